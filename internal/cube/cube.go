// Package cube defines the contracts the repository manager consumes: the
// cube itself, its axes, interceptor advice, and the delta processor used by
// three-way merges. A reference table-cube implementation lives alongside the
// contracts so embedders and tests have a working cube out of the box.
package cube

import (
	"github.com/cubeworks/cuberepo/pkg/models"
)

// Reserved administrative cube names
const (
	SysBootstrap         = "sys.bootstrap"
	SysClasspath         = "sys.classpath"
	SysPermissions       = "sys.permissions"
	SysUserGroups        = "sys.usergroups"
	SysBranchPermissions = "sys.branch.permissions"
	SysLock              = "sys.lock"
	SysPrototype         = "sys.prototype"
)

// MetaCache is the meta-property controlling cache retention; absent means true
const MetaCache = "cache"

// DefaultMethod is the advice binding method used when a cube has no method axis
const DefaultMethod = "run"

// CellEntry is one populated cell with its resolved coordinates
type CellEntry struct {
	Key    string
	Coords map[string]string
	Value  interface{}
}

// Axis is a single named dimension of a cube
type Axis interface {
	// Name returns the axis name
	Name() string
	// Columns returns the discrete column values in declaration order
	Columns() []string
	// HasDefault reports whether the axis carries a default column
	HasDefault() bool
}

// Advice is a named interceptor attached to cubes on hydration
type Advice interface {
	Name() string
}

// Cube is the manager-facing contract of a multi-dimensional decision table
type Cube interface {
	Name() string
	AppID() models.AppID
	SetAppID(models.AppID)

	// SHA1 returns the content fingerprint, computing it when stale
	SHA1() string
	// ClearSHA1 invalidates the cached fingerprint after direct cell edits
	ClearSHA1()

	MetaProperty(key string) (interface{}, bool)
	SetMetaProperty(key string, value interface{})

	Axis(name string) Axis
	AxisNames() []string

	// Cell resolves coordinates against the axes, falling back to default
	// columns, and returns the stored value
	Cell(coords map[string]string) (interface{}, bool)
	SetCell(value interface{}, coords map[string]string) error
	RemoveCell(coords map[string]string) error
	ClearCells()
	// Cells enumerates every populated cell
	Cells() []CellEntry

	// ReferencedCubeNames returns the names this cube's cells point at
	ReferencedCubeNames() []string

	AddAdvice(advice Advice, method string)
	Advices() []Advice

	// Duplicate deep-copies the cube under a new name
	Duplicate(name string) Cube
}

// ShouldCache reads the cache meta-property; absent defaults to true
func ShouldCache(c Cube) bool {
	v, ok := c.MetaProperty(MetaCache)
	if !ok {
		return true
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b != "false"
	default:
		return true
	}
}
