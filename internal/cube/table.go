package cube

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cubeworks/cuberepo/pkg/models"
)

// defaultColumnKey is the cell-key segment used for an axis default column
const defaultColumnKey = "\x00default"

// StrAxis is a discrete string axis
type StrAxis struct {
	name       string
	columns    []string
	hasDefault bool
}

// NewStrAxis creates a discrete string axis
func NewStrAxis(name string, hasDefault bool, columns ...string) *StrAxis {
	return &StrAxis{name: name, columns: append([]string(nil), columns...), hasDefault: hasDefault}
}

// Name returns the axis name
func (a *StrAxis) Name() string { return a.name }

// Columns returns the column values in declaration order
func (a *StrAxis) Columns() []string { return append([]string(nil), a.columns...) }

// HasDefault reports whether the axis carries a default column
func (a *StrAxis) HasDefault() bool { return a.hasDefault }

// AddColumn appends a column unless an equal one already exists
func (a *StrAxis) AddColumn(value string) {
	for _, c := range a.columns {
		if strings.EqualFold(c, value) {
			return
		}
	}
	a.columns = append(a.columns, value)
}

// findColumn resolves a coordinate value to a canonical column, falling back
// to the default column when the axis has one
func (a *StrAxis) findColumn(value string) (string, bool) {
	for _, c := range a.columns {
		if strings.EqualFold(c, value) {
			return c, true
		}
	}
	if a.hasDefault {
		return defaultColumnKey, true
	}
	return "", false
}

// TableCube is the reference Cube implementation: a discrete-coordinate table
// with lazily computed SHA-1 fingerprints. Safe for concurrent reads; writers
// serialise through the internal mutex.
type TableCube struct {
	mu      sync.RWMutex
	name    string
	appID   models.AppID
	axes    []*StrAxis
	meta    map[string]interface{}
	cells   map[string]interface{}
	coords  map[string]map[string]string
	advices []Advice
	sha     string
}

// NewTableCube creates an empty cube over the given axes
func NewTableCube(name string, axes ...*StrAxis) *TableCube {
	return &TableCube{
		name:   name,
		axes:   axes,
		meta:   map[string]interface{}{},
		cells:  map[string]interface{}{},
		coords: map[string]map[string]string{},
	}
}

// Name returns the cube name
func (c *TableCube) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// AppID returns the workspace this cube is bound to
func (c *TableCube) AppID() models.AppID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.appID
}

// SetAppID rebinds the cube to a workspace
func (c *TableCube) SetAppID(appID models.AppID) {
	c.mu.Lock()
	c.appID = appID
	c.mu.Unlock()
}

// MetaProperty reads one meta-property
func (c *TableCube) MetaProperty(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.meta[key]
	return v, ok
}

// SetMetaProperty writes one meta-property and invalidates the fingerprint
func (c *TableCube) SetMetaProperty(key string, value interface{}) {
	c.mu.Lock()
	c.meta[key] = value
	c.sha = ""
	c.mu.Unlock()
}

// Axis returns the named axis, or nil
func (c *TableCube) Axis(name string) Axis {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.axes {
		if strings.EqualFold(a.name, name) {
			return a
		}
	}
	return nil
}

// AxisNames returns the axis names in declaration order
func (c *TableCube) AxisNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.axes))
	for i, a := range c.axes {
		names[i] = a.name
	}
	return names
}

// AddColumnTo appends a column to the named axis
func (c *TableCube) AddColumnTo(axisName, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range c.axes {
		if strings.EqualFold(a.name, axisName) {
			a.AddColumn(value)
			c.sha = ""
			return
		}
	}
}

// cellKey canonicalises coordinates to a stable cell key. Every axis must
// resolve, either to a column or to the axis default.
func (c *TableCube) cellKey(coords map[string]string) (string, map[string]string, error) {
	parts := make([]string, 0, len(c.axes))
	resolved := make(map[string]string, len(c.axes))
	for _, a := range c.axes {
		value, ok := coords[a.name]
		if !ok {
			if !a.hasDefault {
				return "", nil, fmt.Errorf("coordinate missing axis %q on cube %q", a.name, c.name)
			}
			value = ""
		}
		col, ok := a.findColumn(value)
		if !ok {
			return "", nil, fmt.Errorf("value %q not on axis %q of cube %q", value, a.name, c.name)
		}
		parts = append(parts, strings.ToLower(a.name)+"="+strings.ToLower(col))
		if col == defaultColumnKey {
			resolved[a.name] = ""
		} else {
			resolved[a.name] = col
		}
	}
	return strings.Join(parts, "|"), resolved, nil
}

// Cell resolves coordinates and returns the stored value
func (c *TableCube) Cell(coords map[string]string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, _, err := c.cellKey(coords)
	if err != nil {
		return nil, false
	}
	v, ok := c.cells[key]
	return v, ok
}

// SetCell stores a value at the resolved coordinates
func (c *TableCube) SetCell(value interface{}, coords map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, resolved, err := c.cellKey(coords)
	if err != nil {
		return err
	}
	c.cells[key] = value
	c.coords[key] = resolved
	c.sha = ""
	return nil
}

// RemoveCell clears the value at the resolved coordinates
func (c *TableCube) RemoveCell(coords map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, _, err := c.cellKey(coords)
	if err != nil {
		return err
	}
	delete(c.cells, key)
	delete(c.coords, key)
	c.sha = ""
	return nil
}

// ClearCells drops every populated cell
func (c *TableCube) ClearCells() {
	c.mu.Lock()
	c.cells = map[string]interface{}{}
	c.coords = map[string]map[string]string{}
	c.sha = ""
	c.mu.Unlock()
}

// Cells enumerates the populated cells in key order
func (c *TableCube) Cells() []CellEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.cells))
	for k := range c.cells {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entries := make([]CellEntry, 0, len(keys))
	for _, k := range keys {
		coords := make(map[string]string, len(c.coords[k]))
		for ck, cv := range c.coords[k] {
			coords[ck] = cv
		}
		entries = append(entries, CellEntry{Key: k, Coords: coords, Value: c.cells[k]})
	}
	return entries
}

// CubeRef is a cell value pointing at another cube
type CubeRef struct {
	CubeName string `json:"cube"`
	AxisName string `json:"axis,omitempty"`
}

// ReferencedCubeNames returns the names this cube's cells point at
func (c *TableCube) ReferencedCubeNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := map[string]bool{}
	var names []string
	for _, v := range c.cells {
		if ref, ok := v.(CubeRef); ok && !seen[strings.ToLower(ref.CubeName)] {
			seen[strings.ToLower(ref.CubeName)] = true
			names = append(names, ref.CubeName)
		}
	}
	sort.Strings(names)
	return names
}

// AddAdvice attaches an interceptor for one method binding
func (c *TableCube) AddAdvice(advice Advice, method string) {
	c.mu.Lock()
	c.advices = append(c.advices, advice)
	c.mu.Unlock()
}

// Advices returns the attached interceptors
func (c *TableCube) Advices() []Advice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Advice(nil), c.advices...)
}

// SHA1 returns the content fingerprint, computing it when stale. The
// fingerprint covers axes, meta-properties and cells but not the cube name,
// so duplicates and renames preserve content identity.
func (c *TableCube) SHA1() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sha != "" {
		return c.sha
	}
	h := sha1.New()
	for _, a := range c.axes {
		fmt.Fprintf(h, "axis:%s:%v\n", strings.ToLower(a.name), a.hasDefault)
		cols := append([]string(nil), a.columns...)
		sort.Strings(cols)
		for _, col := range cols {
			fmt.Fprintf(h, "col:%s\n", strings.ToLower(col))
		}
	}
	metaKeys := make([]string, 0, len(c.meta))
	for k := range c.meta {
		metaKeys = append(metaKeys, k)
	}
	sort.Strings(metaKeys)
	for _, k := range metaKeys {
		fmt.Fprintf(h, "meta:%s=%v\n", k, c.meta[k])
	}
	cellKeys := make([]string, 0, len(c.cells))
	for k := range c.cells {
		cellKeys = append(cellKeys, k)
	}
	sort.Strings(cellKeys)
	for _, k := range cellKeys {
		fmt.Fprintf(h, "cell:%s=%v\n", k, c.cells[k])
	}
	c.sha = hex.EncodeToString(h.Sum(nil))
	return c.sha
}

// ClearSHA1 invalidates the cached fingerprint
func (c *TableCube) ClearSHA1() {
	c.mu.Lock()
	c.sha = ""
	c.mu.Unlock()
}

// Duplicate deep-copies the cube under a new name. Advice bindings are not
// copied; they reattach on hydration.
func (c *TableCube) Duplicate(name string) Cube {
	c.mu.RLock()
	defer c.mu.RUnlock()
	axes := make([]*StrAxis, len(c.axes))
	for i, a := range c.axes {
		axes[i] = NewStrAxis(a.name, a.hasDefault, a.columns...)
	}
	dup := NewTableCube(name, axes...)
	dup.appID = c.appID
	for k, v := range c.meta {
		dup.meta[k] = v
	}
	for k, v := range c.cells {
		dup.cells[k] = v
	}
	for k, v := range c.coords {
		coords := make(map[string]string, len(v))
		for ck, cv := range v {
			coords[ck] = cv
		}
		dup.coords[k] = coords
	}
	return dup
}

type simpleJSONAxis struct {
	Name       string   `json:"name"`
	HasDefault bool     `json:"hasDefault"`
	Columns    []string `json:"columns"`
}

type simpleJSONCell struct {
	Coords map[string]string `json:"coords"`
	Value  interface{}       `json:"value"`
	Ref    *CubeRef          `json:"ref,omitempty"`
}

type simpleJSONCube struct {
	Name  string                 `json:"name"`
	Axes  []simpleJSONAxis       `json:"axes"`
	Cells []simpleJSONCell       `json:"cells"`
	Meta  map[string]interface{} `json:"meta,omitempty"`
}

// FromSimpleJSON builds a cube from the simple JSON form
func FromSimpleJSON(data []byte) (*TableCube, error) {
	var sj simpleJSONCube
	if err := json.Unmarshal(data, &sj); err != nil {
		return nil, fmt.Errorf("failed to parse simple json cube: %w", err)
	}
	if sj.Name == "" {
		return nil, fmt.Errorf("simple json cube has no name")
	}
	axes := make([]*StrAxis, len(sj.Axes))
	for i, a := range sj.Axes {
		axes[i] = NewStrAxis(a.Name, a.HasDefault, a.Columns...)
	}
	c := NewTableCube(sj.Name, axes...)
	for k, v := range sj.Meta {
		c.meta[k] = v
	}
	for _, cell := range sj.Cells {
		var value interface{} = cell.Value
		if cell.Ref != nil {
			value = *cell.Ref
		}
		if err := c.SetCell(value, cell.Coords); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ToSimpleJSON serialises the cube to the simple JSON form
func (c *TableCube) ToSimpleJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sj := simpleJSONCube{Name: c.name, Meta: map[string]interface{}{}}
	for _, a := range c.axes {
		sj.Axes = append(sj.Axes, simpleJSONAxis{Name: a.name, HasDefault: a.hasDefault, Columns: a.columns})
	}
	for k, v := range c.meta {
		sj.Meta[k] = v
	}
	keys := make([]string, 0, len(c.cells))
	for k := range c.cells {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cell := simpleJSONCell{Coords: c.coords[k]}
		if ref, ok := c.cells[k].(CubeRef); ok {
			cell.Ref = &ref
		} else {
			cell.Value = c.cells[k]
		}
		sj.Cells = append(sj.Cells, cell)
	}
	return json.Marshal(sj)
}
