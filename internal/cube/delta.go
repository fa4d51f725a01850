package cube

import (
	"fmt"
	"reflect"
)

// DeltaOp is the kind of change one delta carries
type DeltaOp string

const (
	DeltaAdd    DeltaOp = "add"
	DeltaUpdate DeltaOp = "update"
	DeltaRemove DeltaOp = "remove"
)

// Delta is one cell-level change between two cubes
type Delta struct {
	Key    string
	Coords map[string]string
	Op     DeltaOp
	Value  interface{}
}

// String renders the delta for conflict descriptions
func (d Delta) String() string {
	if d.Op == DeltaRemove {
		return fmt.Sprintf("%s %s", d.Op, d.Key)
	}
	return fmt.Sprintf("%s %s = %v", d.Op, d.Key, d.Value)
}

// DeltaProcessor computes, compares and applies delta sets. The branch engine
// consumes it for three-way merges.
type DeltaProcessor interface {
	// Delta returns the changes that turn base into target
	Delta(base, target Cube) []Delta
	// Compatible reports whether two delta sets can merge without conflict.
	// The reverse flag swaps the merge direction for descriptions only;
	// cell-level compatibility is symmetric.
	Compatible(a, b []Delta, reverse bool) bool
	// Merge applies a delta set to the target cube in place
	Merge(target Cube, deltas []Delta) error
	// Describe renders the differences between two cubes; empty means the
	// cubes are effectively identical
	Describe(a, b Cube) []string
}

// CellDeltaProcessor is the reference cell-level delta processor
type CellDeltaProcessor struct{}

// NewCellDeltaProcessor creates the reference delta processor
func NewCellDeltaProcessor() *CellDeltaProcessor {
	return &CellDeltaProcessor{}
}

// Delta returns the cell changes that turn base into target
func (p *CellDeltaProcessor) Delta(base, target Cube) []Delta {
	baseCells := cellIndex(base)
	targetCells := cellIndex(target)

	var deltas []Delta
	for _, entry := range target.Cells() {
		if old, ok := baseCells[entry.Key]; !ok {
			deltas = append(deltas, Delta{Key: entry.Key, Coords: entry.Coords, Op: DeltaAdd, Value: entry.Value})
		} else if !reflect.DeepEqual(old.Value, entry.Value) {
			deltas = append(deltas, Delta{Key: entry.Key, Coords: entry.Coords, Op: DeltaUpdate, Value: entry.Value})
		}
	}
	for _, entry := range base.Cells() {
		if _, ok := targetCells[entry.Key]; !ok {
			deltas = append(deltas, Delta{Key: entry.Key, Coords: entry.Coords, Op: DeltaRemove})
		}
	}
	return deltas
}

// Compatible reports whether two delta sets touch disjoint cells, or agree on
// every cell they both touch
func (p *CellDeltaProcessor) Compatible(a, b []Delta, reverse bool) bool {
	byKey := make(map[string]Delta, len(a))
	for _, d := range a {
		byKey[d.Key] = d
	}
	for _, d := range b {
		other, ok := byKey[d.Key]
		if !ok {
			continue
		}
		if other.Op != d.Op || !reflect.DeepEqual(other.Value, d.Value) {
			return false
		}
	}
	return true
}

// Merge applies a delta set to the target cube in place
func (p *CellDeltaProcessor) Merge(target Cube, deltas []Delta) error {
	for _, d := range deltas {
		switch d.Op {
		case DeltaRemove:
			if err := target.RemoveCell(d.Coords); err != nil {
				return err
			}
		default:
			if err := target.SetCell(d.Value, d.Coords); err != nil {
				return err
			}
		}
	}
	target.ClearSHA1()
	return nil
}

// Describe renders the cell differences between two cubes
func (p *CellDeltaProcessor) Describe(a, b Cube) []string {
	var lines []string
	for _, d := range p.Delta(a, b) {
		lines = append(lines, d.String())
	}
	return lines
}

func cellIndex(c Cube) map[string]CellEntry {
	cells := c.Cells()
	index := make(map[string]CellEntry, len(cells))
	for _, entry := range cells {
		index[entry.Key] = entry
	}
	return index
}
