package permissions

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubeworks/cuberepo/internal/common"
	"github.com/cubeworks/cuberepo/internal/cube"
	"github.com/cubeworks/cuberepo/pkg/models"
)

type mapLoader map[string]cube.Cube

func (l mapLoader) GetCube(ctx context.Context, appID models.AppID, name string) (cube.Cube, error) {
	return l[appID.CacheKey()+"|"+strings.ToLower(name)], nil
}

func (l mapLoader) put(appID models.AppID, c cube.Cube) {
	l[appID.CacheKey()+"|"+strings.ToLower(c.Name())] = c
}

func snapshotID(branch string) models.AppID {
	return models.NewAppID("acme", "billing", "1.0.0", models.StatusSnapshot, branch)
}

func userCtx(user string) context.Context {
	return common.WithUser(context.Background(), user)
}

// adminConfig builds sys.permissions and sys.usergroups the way bootstrap
// does: jane is admin, ron is readonly, everyone else is a plain user
func adminConfig(t *testing.T) mapLoader {
	t.Helper()
	boot := snapshotID("HEAD").AsBoot()
	loader := mapLoader{}

	groups := cube.NewTableCube(cube.SysUserGroups,
		cube.NewStrAxis("user", true, "jane", "ron"),
		cube.NewStrAxis("role", false, "admin", "user", "readonly"),
	)
	require.NoError(t, groups.SetCell(true, map[string]string{"user": "jane", "role": "admin"}))
	require.NoError(t, groups.SetCell(true, map[string]string{"user": "ron", "role": "readonly"}))
	require.NoError(t, groups.SetCell(true, map[string]string{"user": "", "role": "user"}))
	loader.put(boot, groups)

	perms := cube.NewTableCube(cube.SysPermissions,
		cube.NewStrAxis("resource", true, "tax.*"),
		cube.NewStrAxis("role", false, "admin", "user", "readonly"),
		cube.NewStrAxis("action", false, "update", "read", "release", "commit"),
	)
	for _, action := range []string{"read", "update", "release", "commit"} {
		require.NoError(t, perms.SetCell(true, map[string]string{"resource": "", "role": "admin", "action": action}))
	}
	for _, action := range []string{"read", "update", "commit"} {
		require.NoError(t, perms.SetCell(true, map[string]string{"resource": "", "role": "user", "action": action}))
	}
	require.NoError(t, perms.SetCell(true, map[string]string{"resource": "", "role": "readonly", "action": "read"}))
	// the tax.* column narrows the tax cubes to admins
	require.NoError(t, perms.SetCell(false, map[string]string{"resource": "tax.*", "role": "user", "action": "update"}))
	require.NoError(t, perms.SetCell(true, map[string]string{"resource": "tax.*", "role": "admin", "action": "update"}))
	loader.put(boot, perms)
	return loader
}

func TestSysLockAlwaysReadable(t *testing.T) {
	e := New(mapLoader{})
	ok, err := e.Allow(userCtx("nobody"), snapshotID("HEAD"), cube.SysLock, ActionRead)
	require.NoError(t, err)
	assert.True(t, ok, "lock status must be observable to everyone")
}

func TestBootstrapModeAllowsEverything(t *testing.T) {
	e := New(mapLoader{})
	ok, err := e.Allow(userCtx("nobody"), snapshotID("HEAD"), "any.cube", ActionUpdate)
	require.NoError(t, err)
	assert.True(t, ok, "missing admin cubes mean bootstrap mode")
}

func TestRoleMatrix(t *testing.T) {
	e := New(adminConfig(t))
	appID := snapshotID("HEAD")

	tests := []struct {
		user     string
		resource string
		action   Action
		want     bool
	}{
		{"jane", "rates", ActionUpdate, true},
		{"jane", "rates", ActionRelease, true},
		{"ron", "rates", ActionRead, true},
		{"ron", "rates", ActionUpdate, false},
		{"ron", "rates", ActionCommit, false},
		{"pat", "rates", ActionRead, true},    // everyone is a user
		{"pat", "rates", ActionUpdate, true},  // users may update
		{"pat", "rates", ActionRelease, false},
		{"pat", "tax.rates", ActionUpdate, false}, // narrowed by the tax.* column
		{"jane", "tax.rates", ActionUpdate, true},
	}
	for _, tt := range tests {
		ok, err := e.Allow(userCtx(tt.user), appID, tt.resource, tt.action)
		require.NoError(t, err)
		assert.Equalf(t, tt.want, ok, "%s %s %s", tt.user, tt.action, tt.resource)
	}
}

func TestBranchPermissionGate(t *testing.T) {
	loader := adminConfig(t)
	branchID := snapshotID("pat-work")
	bootBranch := branchID.AsBoot().AsBranch("pat-work")

	branchPerms := cube.NewTableCube(cube.SysBranchPermissions,
		cube.NewStrAxis("resource", true),
		cube.NewStrAxis("user", true, "pat"),
	)
	require.NoError(t, branchPerms.SetCell(true, map[string]string{"resource": "", "user": "pat"}))
	loader.put(bootBranch, branchPerms)

	e := New(loader)

	// pat created the branch and may mutate it
	ok, err := e.Allow(userCtx("pat"), branchID, "rates", ActionUpdate)
	require.NoError(t, err)
	assert.True(t, ok)

	// other non-admin users are shut out of the branch
	ok, err = e.Allow(userCtx("sam"), branchID, "rates", ActionUpdate)
	require.NoError(t, err)
	assert.False(t, ok)

	// but may still read it
	ok, err = e.Allow(userCtx("sam"), branchID, "rates", ActionRead)
	require.NoError(t, err)
	assert.True(t, ok)

	// admins bypass the branch gate entirely
	ok, err = e.Allow(userCtx("jane"), branchID, "rates", ActionUpdate)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFastCheckReuse(t *testing.T) {
	e := New(adminConfig(t))
	check, err := e.FastCheck(userCtx("pat"), snapshotID("HEAD"))
	require.NoError(t, err)

	assert.True(t, check.Allowed("rates", ActionRead))
	assert.True(t, check.Allowed("fees", ActionRead))
	assert.False(t, check.Allowed("anything", ActionRelease))
}

func TestIsAdmin(t *testing.T) {
	e := New(adminConfig(t))
	admin, err := e.IsAdmin(userCtx("jane"), snapshotID("HEAD"))
	require.NoError(t, err)
	assert.True(t, admin)

	admin, err = e.IsAdmin(userCtx("pat"), snapshotID("HEAD"))
	require.NoError(t, err)
	assert.False(t, admin)
}

func TestResourceMatching(t *testing.T) {
	axis := cube.NewStrAxis("resource", true, "tax.*", "rates", "rates/state")

	tests := []struct {
		resource string
		want     []string
	}{
		{"tax.rates", []string{"tax.*"}},
		{"rates", []string{"rates"}},
		{"rates/state", []string{"rates/state"}},
		{"rates/age", nil},
		{"fees", nil},
	}
	for _, tt := range tests {
		got := matchingColumns(axis, tt.resource)
		assert.Equalf(t, tt.want, got, "resource %s", tt.resource)
	}
}
