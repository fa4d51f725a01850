package cache

import (
	"testing"

	"github.com/cubeworks/cuberepo/internal/cube"
	"github.com/cubeworks/cuberepo/pkg/models"
)

func testAppID(branch string) models.AppID {
	return models.NewAppID("acme", "billing", "1.0.0", models.StatusSnapshot, branch)
}

func testCube(name string) *cube.TableCube {
	return cube.NewTableCube(name, cube.NewStrAxis("state", false, "OH"))
}

func TestRegistryPutGet(t *testing.T) {
	r := NewRegistry()
	appID := testAppID("HEAD")
	c := testCube("rates")

	if _, ok := r.Get(appID, "rates"); ok {
		t.Fatal("empty registry should miss")
	}
	r.Put(appID, c)
	v, ok := r.Get(appID, "RATES")
	if !ok || v != c {
		t.Error("case-insensitive lookup should return the cached instance")
	}
	if !r.IsCached(appID, "rates") {
		t.Error("IsCached should see the entry")
	}
	r.Remove(appID, "Rates")
	if _, ok := r.Get(appID, "rates"); ok {
		t.Error("removed entry should miss")
	}
}

func TestNotFoundSentinel(t *testing.T) {
	r := NewRegistry()
	appID := testAppID("HEAD")

	r.PutNotFound(appID, "ghost")
	v, ok := r.Get(appID, "ghost")
	if !ok {
		t.Fatal("negative entry should hit")
	}
	if v != NotFound {
		t.Error("negative entry must be the NotFound sentinel")
	}
	if r.IsCached(appID, "ghost") {
		t.Error("the sentinel is not a cached cube")
	}
}

func TestCacheMetaPropertyGate(t *testing.T) {
	r := NewRegistry()
	appID := testAppID("HEAD")
	c := testCube("sys.lock")
	c.SetMetaProperty(cube.MetaCache, false)

	r.Put(appID, c)
	if r.IsCached(appID, "sys.lock") {
		t.Error("cache=false cubes must not be retained")
	}
}

func TestClearReleasesClosers(t *testing.T) {
	r := NewRegistry()
	appID := testAppID("HEAD")
	r.Put(appID, testCube("rates"))

	closed := false
	r.RegisterCloser(appID, closerFunc(func() error { closed = true; return nil }))

	r.Clear(appID)
	if r.IsCached(appID, "rates") {
		t.Error("clear must evict every entry")
	}
	if !closed {
		t.Error("clear must release attached loaders")
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestClearBranches(t *testing.T) {
	r := NewRegistry()
	head := testAppID("HEAD")
	jane := testAppID("jane")
	otherVersion := head.AsVersion("2.0.0")

	r.Put(head, testCube("rates"))
	r.Put(jane, testCube("rates"))
	r.Put(otherVersion, testCube("rates"))

	r.ClearBranches(head)
	if r.IsCached(head, "rates") || r.IsCached(jane, "rates") {
		t.Error("every branch of the version must be evicted")
	}
	if !r.IsCached(otherVersion, "rates") {
		t.Error("other versions must survive a branch-wide clear")
	}
}

func TestClearAll(t *testing.T) {
	r := NewRegistry()
	a := testAppID("HEAD")
	b := testAppID("jane").AsVersion("3.0.0")
	r.Put(a, testCube("one"))
	r.Put(b, testCube("two"))

	r.ClearAll()
	if r.IsCached(a, "one") || r.IsCached(b, "two") {
		t.Error("ClearAll must drop everything")
	}
}
