// Package permissions answers allow/deny questions from the administrative
// permission cubes: sys.permissions maps (resource, role, action) to booleans,
// sys.usergroups maps (user, role), and sys.branch.permissions gates mutating
// access per branch.
package permissions

import (
	"context"
	"strings"

	"github.com/cubeworks/cuberepo/internal/common"
	"github.com/cubeworks/cuberepo/internal/cube"
	cuberr "github.com/cubeworks/cuberepo/internal/errors"
	"github.com/cubeworks/cuberepo/internal/glob"
	"github.com/cubeworks/cuberepo/pkg/models"
)

// Action is a permissible operation class
type Action string

const (
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionCommit  Action = "commit"
	ActionRelease Action = "release"
)

// RoleAdmin bypasses branch permission checks
const RoleAdmin = "admin"

// Axis names of the administrative cubes
const (
	axisResource = "resource"
	axisRole     = "role"
	axisAction   = "action"
	axisUser     = "user"
)

// Loader fetches cubes through the coherent cache
type Loader interface {
	GetCube(ctx context.Context, appID models.AppID, name string) (cube.Cube, error)
}

// Evaluator resolves a user's roles and matches resource patterns
type Evaluator struct {
	loader Loader
}

// New creates an evaluator over a cube loader
func New(loader Loader) *Evaluator {
	return &Evaluator{loader: loader}
}

// Allow reports whether the acting user may perform the action on the
// resource, which is a cube name or "cubeName/axisName", either part possibly
// carrying */? wildcards
func (e *Evaluator) Allow(ctx context.Context, appID models.AppID, resource string, action Action) (bool, error) {
	check, err := e.FastCheck(ctx, appID)
	if err != nil {
		return false, err
	}
	return check.Allowed(resource, action), nil
}

// Assert fails with a security error when Allow denies
func (e *Evaluator) Assert(ctx context.Context, appID models.AppID, resource string, action Action) error {
	ok, err := e.Allow(ctx, appID, resource, action)
	if err != nil {
		return err
	}
	if !ok {
		return cuberr.Securityf("user %s does not have %s permission on %s in %s",
			common.UserFrom(ctx), action, resource, appID)
	}
	return nil
}

// IsAdmin reports whether the acting user holds the admin role
func (e *Evaluator) IsAdmin(ctx context.Context, appID models.AppID) (bool, error) {
	check, err := e.FastCheck(ctx, appID)
	if err != nil {
		return false, err
	}
	return check.isAdmin, nil
}

// Check memoises the role resolution and admin-cube fetches for one user and
// AppID, so list filtering can test many resources without re-querying
type Check struct {
	user       string
	branch     string
	perms      cube.Cube
	groups     cube.Cube
	branchPerm cube.Cube
	roles      []string
	isAdmin    bool
}

// FastCheck resolves the admin cubes and role set once for many Allowed calls
func (e *Evaluator) FastCheck(ctx context.Context, appID models.AppID) (*Check, error) {
	boot := appID.AsBoot()
	user := common.UserFrom(ctx)
	check := &Check{user: user, branch: appID.Branch}

	perms, err := e.loader.GetCube(ctx, boot, cube.SysPermissions)
	if err != nil {
		return nil, err
	}
	groups, err := e.loader.GetCube(ctx, boot, cube.SysUserGroups)
	if err != nil {
		return nil, err
	}
	check.perms = perms
	check.groups = groups
	if perms == nil || groups == nil {
		// bootstrap mode: nothing to evaluate against
		return check, nil
	}

	check.roles = resolveRoles(groups, user)
	for _, r := range check.roles {
		if strings.EqualFold(r, RoleAdmin) {
			check.isAdmin = true
		}
	}

	if !check.isAdmin && !appID.IsHead() {
		branchPerm, err := e.loader.GetCube(ctx, boot.AsBranch(appID.Branch), cube.SysBranchPermissions)
		if err != nil {
			return nil, err
		}
		check.branchPerm = branchPerm
	}
	return check, nil
}

// Allowed answers one resource/action question from the memoised state
func (c *Check) Allowed(resource string, action Action) bool {
	// lock status must be observable to everyone
	if action == ActionRead && strings.EqualFold(resource, cube.SysLock) {
		return true
	}
	if c.perms == nil || c.groups == nil {
		return true
	}

	if !c.isAdmin && (action == ActionUpdate || action == ActionCommit) {
		if !c.branchAllowed(resource) {
			return false
		}
	}

	for _, role := range c.roles {
		if c.roleAllowed(role, resource, action) {
			return true
		}
	}
	return false
}

func (c *Check) branchAllowed(resource string) bool {
	if c.branchPerm == nil {
		return true
	}
	axis := c.branchPerm.Axis(axisResource)
	if axis == nil {
		return true
	}
	matched := false
	for _, col := range matchingColumns(axis, resource) {
		matched = true
		if truthy(c.branchPerm, map[string]string{axisResource: col, axisUser: c.user}) {
			return true
		}
	}
	if !matched && axis.HasDefault() {
		return truthy(c.branchPerm, map[string]string{axisResource: resource, axisUser: c.user})
	}
	return false
}

func (c *Check) roleAllowed(role, resource string, action Action) bool {
	axis := c.perms.Axis(axisResource)
	if axis == nil {
		return false
	}
	matched := false
	for _, col := range matchingColumns(axis, resource) {
		matched = true
		if truthy(c.perms, map[string]string{axisResource: col, axisRole: role, axisAction: string(action)}) {
			return true
		}
	}
	if !matched && axis.HasDefault() {
		return truthy(c.perms, map[string]string{axisResource: resource, axisRole: role, axisAction: string(action)})
	}
	return false
}

// resolveRoles selects the roles whose (role, user) cell evaluates true
func resolveRoles(groups cube.Cube, user string) []string {
	axis := groups.Axis(axisRole)
	if axis == nil {
		return nil
	}
	var roles []string
	for _, role := range axis.Columns() {
		if truthy(groups, map[string]string{axisRole: role, axisUser: user}) {
			roles = append(roles, role)
		}
	}
	return roles
}

// matchingColumns returns the resource-axis columns matching the request.
// Requests and columns split on "/": a two-part request needs a two-part
// column whose cube and axis parts both glob-match; a one-part request needs
// a one-part column.
func matchingColumns(axis cube.Axis, resource string) []string {
	reqCube, reqAxis, reqTwoPart := splitResource(resource)
	var out []string
	for _, col := range axis.Columns() {
		colCube, colAxis, colTwoPart := splitResource(col)
		if reqTwoPart != colTwoPart {
			continue
		}
		if !partsMatch(colCube, reqCube) {
			continue
		}
		if reqTwoPart && !partsMatch(colAxis, reqAxis) {
			continue
		}
		out = append(out, col)
	}
	return out
}

func splitResource(resource string) (cubePart, axisPart string, twoPart bool) {
	if i := strings.Index(resource, "/"); i >= 0 {
		return resource[:i], resource[i+1:], true
	}
	return resource, "", false
}

// partsMatch treats the column as the pattern; a wildcarded request is also
// tried as the pattern so list filters like "tax.*" work
func partsMatch(column, request string) bool {
	if glob.Match(column, request) {
		return true
	}
	if strings.ContainsAny(request, "*?") {
		return glob.Match(request, column)
	}
	return false
}

func truthy(c cube.Cube, coords map[string]string) bool {
	v, ok := c.Cell(coords)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	default:
		return false
	}
}
