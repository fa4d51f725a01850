package cube

import (
	"testing"
)

func rateCube(name string) *TableCube {
	return NewTableCube(name,
		NewStrAxis("state", false, "OH", "TX"),
		NewStrAxis("age", false, "young", "old"),
	)
}

func TestTableCubeCells(t *testing.T) {
	c := rateCube("rates")
	if err := c.SetCell(1.1, map[string]string{"state": "OH", "age": "young"}); err != nil {
		t.Fatalf("SetCell: %v", err)
	}
	v, ok := c.Cell(map[string]string{"state": "oh", "age": "YOUNG"})
	if !ok || v != 1.1 {
		t.Errorf("Cell = %v, %v; want 1.1 via case-insensitive coordinates", v, ok)
	}
	if _, ok := c.Cell(map[string]string{"state": "OH", "age": "old"}); ok {
		t.Error("unset cell should be absent")
	}
	if err := c.SetCell(1.0, map[string]string{"state": "CA", "age": "young"}); err == nil {
		t.Error("setting a cell off-axis should fail")
	}
	if err := c.RemoveCell(map[string]string{"state": "OH", "age": "young"}); err != nil {
		t.Fatalf("RemoveCell: %v", err)
	}
	if _, ok := c.Cell(map[string]string{"state": "OH", "age": "young"}); ok {
		t.Error("removed cell should be absent")
	}
}

func TestDefaultColumnResolution(t *testing.T) {
	c := NewTableCube("groups",
		NewStrAxis("user", true, "jane"),
		NewStrAxis("role", false, "admin", "user"),
	)
	if err := c.SetCell(true, map[string]string{"user": "", "role": "user"}); err != nil {
		t.Fatalf("SetCell on default: %v", err)
	}
	// an unknown user falls back to the default column
	v, ok := c.Cell(map[string]string{"user": "stranger", "role": "user"})
	if !ok || v != true {
		t.Errorf("default cell = %v, %v; want true", v, ok)
	}
	// a real column does not
	if _, ok := c.Cell(map[string]string{"user": "jane", "role": "user"}); ok {
		t.Error("jane has no explicit cell; must not fall through to default")
	}
}

func TestSHA1StableAndContentBased(t *testing.T) {
	a := rateCube("rates")
	b := rateCube("renamed")
	for _, c := range []*TableCube{a, b} {
		if err := c.SetCell(10, map[string]string{"state": "OH", "age": "young"}); err != nil {
			t.Fatal(err)
		}
	}
	if a.SHA1() != b.SHA1() {
		t.Error("sha1 must fingerprint content, not the name")
	}
	if a.SHA1() != a.SHA1() {
		t.Error("sha1 must be stable")
	}
	if err := a.SetCell(11, map[string]string{"state": "OH", "age": "young"}); err != nil {
		t.Fatal(err)
	}
	if a.SHA1() == b.SHA1() {
		t.Error("sha1 must change with content")
	}
}

func TestDuplicatePreservesContent(t *testing.T) {
	a := rateCube("rates")
	if err := a.SetCell("x", map[string]string{"state": "TX", "age": "old"}); err != nil {
		t.Fatal(err)
	}
	a.SetMetaProperty("owner", "tax-team")
	d := a.Duplicate("rates.copy")
	if d.Name() != "rates.copy" {
		t.Errorf("duplicate name = %q", d.Name())
	}
	if d.SHA1() != a.SHA1() {
		t.Error("duplicate must carry the same fingerprint")
	}
	// the copy is independent
	if err := d.SetCell("y", map[string]string{"state": "OH", "age": "old"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := a.Cell(map[string]string{"state": "OH", "age": "old"}); ok {
		t.Error("mutating the duplicate must not touch the source")
	}
}

func TestShouldCache(t *testing.T) {
	c := rateCube("rates")
	if !ShouldCache(c) {
		t.Error("cache defaults to true")
	}
	c.SetMetaProperty(MetaCache, false)
	if ShouldCache(c) {
		t.Error("cache=false must opt out")
	}
}

func TestSimpleJSONRoundTrip(t *testing.T) {
	src := rateCube("rates")
	if err := src.SetCell("low", map[string]string{"state": "OH", "age": "young"}); err != nil {
		t.Fatal(err)
	}
	if err := src.SetCell(CubeRef{CubeName: "other.rates"}, map[string]string{"state": "TX", "age": "old"}); err != nil {
		t.Fatal(err)
	}
	data, err := src.ToSimpleJSON()
	if err != nil {
		t.Fatalf("ToSimpleJSON: %v", err)
	}
	round, err := FromSimpleJSON(data)
	if err != nil {
		t.Fatalf("FromSimpleJSON: %v", err)
	}
	if round.SHA1() != src.SHA1() {
		t.Error("round trip must preserve the fingerprint")
	}
	refs := round.ReferencedCubeNames()
	if len(refs) != 1 || refs[0] != "other.rates" {
		t.Errorf("references = %v, want [other.rates]", refs)
	}
}

func TestValidateName(t *testing.T) {
	for _, good := range []string{"rates", "tax.rates", "a-b_c:2"} {
		if err := ValidateName(good); err != nil {
			t.Errorf("ValidateName(%q) = %v", good, err)
		}
	}
	for _, bad := range []string{"", "has space", "semi;colon"} {
		if err := ValidateName(bad); err == nil {
			t.Errorf("ValidateName(%q) should fail", bad)
		}
	}
}
