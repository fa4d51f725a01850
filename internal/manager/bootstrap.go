package manager

import (
	"context"

	"github.com/cubeworks/cuberepo/internal/common"
	"github.com/cubeworks/cuberepo/internal/cube"
	"github.com/cubeworks/cuberepo/internal/logger"
	"github.com/cubeworks/cuberepo/internal/permissions"
	"github.com/cubeworks/cuberepo/pkg/models"
)

// Default roles seeded into a fresh application
const (
	roleUser     = "user"
	roleReadonly = "readonly"
)

// DetectNewAppID creates the administrative cubes for a tenant/app pair the
// first time it is seen, and the branch permission cube the first time a
// non-HEAD branch is touched. It is a no-op for known workspaces.
func (m *Manager) DetectNewAppID(ctx context.Context, appID models.AppID) error {
	boot := appID.AsBoot()
	records, err := m.persister.Search(ctx, boot, "", "", models.SearchOptions{})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		if err := m.createAdminCubes(ctx, appID); err != nil {
			return err
		}
	}
	if !appID.IsHead() && !appID.IsBootVersion() {
		if err := m.ensureBranchPermissions(ctx, appID); err != nil {
			return err
		}
	}
	return nil
}

// createAdminCubes synthesises sys.usergroups, sys.permissions and sys.lock
// at the boot AppID. The caller becomes admin; everyone else is a user.
func (m *Manager) createAdminCubes(ctx context.Context, appID models.AppID) error {
	boot := appID.AsBoot()
	user := common.UserFrom(ctx)
	logger.Info("bootstrapping new application", "tenant", appID.Tenant, "app", appID.App, "user", user)

	groups := cube.NewTableCube(cube.SysUserGroups,
		cube.NewStrAxis("user", true),
		cube.NewStrAxis("role", false, permissions.RoleAdmin, roleUser, roleReadonly),
	)
	groups.AddColumnTo("user", user)
	mustSet(groups, true, map[string]string{"user": user, "role": permissions.RoleAdmin})
	mustSet(groups, true, map[string]string{"user": user, "role": roleUser})
	// the default user column makes everyone a user
	mustSet(groups, true, map[string]string{"user": "", "role": roleUser})

	perms := cube.NewTableCube(cube.SysPermissions,
		cube.NewStrAxis("resource", true),
		cube.NewStrAxis("role", false, permissions.RoleAdmin, roleUser, roleReadonly),
		cube.NewStrAxis("action", false,
			string(permissions.ActionUpdate), string(permissions.ActionRead),
			string(permissions.ActionRelease), string(permissions.ActionCommit)),
	)
	for _, action := range []permissions.Action{permissions.ActionRead, permissions.ActionUpdate, permissions.ActionRelease, permissions.ActionCommit} {
		mustSet(perms, true, map[string]string{"resource": "", "role": permissions.RoleAdmin, "action": string(action)})
	}
	for _, action := range []permissions.Action{permissions.ActionRead, permissions.ActionUpdate, permissions.ActionCommit} {
		mustSet(perms, true, map[string]string{"resource": "", "role": roleUser, "action": string(action)})
	}
	mustSet(perms, true, map[string]string{"resource": "", "role": roleReadonly, "action": string(permissions.ActionRead)})

	lock := cube.NewTableCube(cube.SysLock, cube.NewStrAxis("system", true))
	lock.SetMetaProperty(cube.MetaCache, false)

	for _, c := range []cube.Cube{groups, perms, lock} {
		if err := m.persister.UpdateCube(ctx, boot, c, user); err != nil {
			return err
		}
		m.cache.Remove(boot, c.Name())
	}
	m.caster.Broadcast(boot)
	return nil
}

// ensureBranchPermissions synthesises sys.branch.permissions for a branch on
// first touch, granting the creator full access, then pulls HEAD into the
// branch so it starts populated
func (m *Manager) ensureBranchPermissions(ctx context.Context, appID models.AppID) error {
	bootBranch := appID.AsBoot().AsBranch(appID.Branch)
	existing, err := m.persister.LoadCube(ctx, bootBranch, cube.SysBranchPermissions)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	user := common.UserFrom(ctx)
	branchPerms := cube.NewTableCube(cube.SysBranchPermissions,
		cube.NewStrAxis("resource", true),
		cube.NewStrAxis("user", true),
	)
	branchPerms.AddColumnTo("user", user)
	mustSet(branchPerms, true, map[string]string{"resource": "", "user": user})
	if err := m.persister.UpdateCube(ctx, bootBranch, branchPerms, user); err != nil {
		return err
	}
	m.cache.Remove(bootBranch, cube.SysBranchPermissions)
	logger.Info("branch created", "appId", appID.String(), "user", user)

	if _, err := m.engine.UpdateBranch(ctx, appID, user); err != nil {
		return err
	}
	m.cache.Clear(appID)
	return nil
}

func mustSet(c *cube.TableCube, value interface{}, coords map[string]string) {
	if err := c.SetCell(value, coords); err != nil {
		// admin cube coordinates are built alongside their axes
		panic(err)
	}
}
