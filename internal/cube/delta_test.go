package cube

import "testing"

func cellCube(t *testing.T, name string, cells map[string]interface{}) *TableCube {
	t.Helper()
	c := NewTableCube(name,
		NewStrAxis("row", false, "1", "2"),
		NewStrAxis("col", false, "1", "2"),
	)
	for key, v := range cells {
		coords := map[string]string{"row": key[:1], "col": key[1:]}
		if err := c.SetCell(v, coords); err != nil {
			t.Fatal(err)
		}
	}
	return c
}

func TestDeltaClassification(t *testing.T) {
	base := cellCube(t, "x", map[string]interface{}{"11": 10})
	target := cellCube(t, "x", map[string]interface{}{"11": 11, "12": 20})

	p := NewCellDeltaProcessor()
	deltas := p.Delta(base, target)
	if len(deltas) != 2 {
		t.Fatalf("got %d deltas, want 2: %v", len(deltas), deltas)
	}
	ops := map[DeltaOp]int{}
	for _, d := range deltas {
		ops[d.Op]++
	}
	if ops[DeltaUpdate] != 1 || ops[DeltaAdd] != 1 {
		t.Errorf("ops = %v, want one update and one add", ops)
	}

	removedTarget := cellCube(t, "x", nil)
	deltas = p.Delta(base, removedTarget)
	if len(deltas) != 1 || deltas[0].Op != DeltaRemove {
		t.Errorf("deltas = %v, want a single remove", deltas)
	}
}

func TestCompatibleDisjointDeltas(t *testing.T) {
	base := cellCube(t, "x", map[string]interface{}{"11": 10})
	branch := cellCube(t, "x", map[string]interface{}{"11": 10, "12": 20})
	head := cellCube(t, "x", map[string]interface{}{"11": 10, "21": 30})

	p := NewCellDeltaProcessor()
	branchDelta := p.Delta(base, branch)
	headDelta := p.Delta(base, head)
	if !p.Compatible(branchDelta, headDelta, false) {
		t.Fatal("disjoint deltas must be compatible")
	}

	merged := branch.Duplicate("x")
	if err := p.Merge(merged, headDelta); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	for key, want := range map[string]interface{}{"11": 10, "12": 20, "21": 30} {
		coords := map[string]string{"row": key[:1], "col": key[1:]}
		v, ok := merged.Cell(coords)
		if !ok || v != want {
			t.Errorf("merged cell %s = %v, %v; want %v", key, v, ok, want)
		}
	}
}

func TestIncompatibleOverlappingDeltas(t *testing.T) {
	base := cellCube(t, "x", map[string]interface{}{"11": 10})
	branch := cellCube(t, "x", map[string]interface{}{"11": 11})
	head := cellCube(t, "x", map[string]interface{}{"11": 12})

	p := NewCellDeltaProcessor()
	if p.Compatible(p.Delta(base, branch), p.Delta(base, head), false) {
		t.Fatal("overlapping diverging deltas must conflict")
	}
	if len(p.Describe(branch, head)) == 0 {
		t.Error("describe must render the conflicting cells")
	}
}

func TestAgreeingDeltasAreCompatible(t *testing.T) {
	base := cellCube(t, "x", map[string]interface{}{"11": 10})
	branch := cellCube(t, "x", map[string]interface{}{"11": 42})
	head := cellCube(t, "x", map[string]interface{}{"11": 42})

	p := NewCellDeltaProcessor()
	if !p.Compatible(p.Delta(base, branch), p.Delta(base, head), false) {
		t.Error("identical changes on both sides do not conflict")
	}
	if len(p.Describe(branch, head)) != 0 {
		t.Error("identical cubes must describe as empty")
	}
}
