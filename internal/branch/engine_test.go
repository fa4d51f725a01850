package branch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubeworks/cuberepo/internal/cube"
	cuberr "github.com/cubeworks/cuberepo/internal/errors"
	"github.com/cubeworks/cuberepo/internal/persistence/memstore"
	"github.com/cubeworks/cuberepo/pkg/models"
)

var ctx = context.Background()

func headID() models.AppID {
	return models.NewAppID("acme", "billing", "1.0.0", models.StatusSnapshot, "HEAD")
}

func branchID() models.AppID {
	return headID().AsBranch("jane")
}

func newEngine() (*Engine, *memstore.Store) {
	s := memstore.New()
	return NewEngine(s, cube.NewCellDeltaProcessor()), s
}

func gridCube(t *testing.T, cells map[string]interface{}) *cube.TableCube {
	t.Helper()
	c := cube.NewTableCube("x",
		cube.NewStrAxis("row", false, "1", "2"),
		cube.NewStrAxis("col", false, "1", "2"),
	)
	for key, v := range cells {
		require.NoError(t, c.SetCell(v, map[string]string{"row": key[:1], "col": key[1:]}))
	}
	return c
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		branch   models.CubeInfo
		head     *models.CubeInfo
		want     models.ChangeType
		wantSkip bool
	}{
		{
			name:   "created when head absent",
			branch: models.CubeInfo{Revision: 1, SHA1: "a"},
			want:   models.ChangeCreated,
		},
		{
			name:     "skip tombstone of never-committed cube",
			branch:   models.CubeInfo{Revision: -1, SHA1: "a"},
			wantSkip: true,
		},
		{
			name:   "conflict when both sides created the name",
			branch: models.CubeInfo{Revision: 1, SHA1: "a"},
			head:   &models.CubeInfo{Revision: 1, SHA1: "b"},
			want:   models.ChangeConflict,
		},
		{
			name:   "conflict when head moved past the fork",
			branch: models.CubeInfo{Revision: 2, SHA1: "a", HeadSHA1: "old"},
			head:   &models.CubeInfo{Revision: 2, SHA1: "new"},
			want:   models.ChangeConflict,
		},
		{
			name:   "updated when branch moved on a current fork",
			branch: models.CubeInfo{Revision: 2, SHA1: "b", HeadSHA1: "a"},
			head:   &models.CubeInfo{Revision: 1, SHA1: "a"},
			want:   models.ChangeUpdated,
		},
		{
			name:   "deleted when branch tombstoned the head state",
			branch: models.CubeInfo{Revision: -2, SHA1: "a", HeadSHA1: "a"},
			head:   &models.CubeInfo{Revision: 1, SHA1: "a"},
			want:   models.ChangeDeleted,
		},
		{
			name:   "restored when head holds the tombstone",
			branch: models.CubeInfo{Revision: 2, SHA1: "a", HeadSHA1: "a"},
			head:   &models.CubeInfo{Revision: -1, SHA1: "a"},
			want:   models.ChangeRestored,
		},
		{
			name:     "skip when nothing moved",
			branch:   models.CubeInfo{Revision: 1, SHA1: "a", HeadSHA1: "a"},
			head:     &models.CubeInfo{Revision: 1, SHA1: "a"},
			wantSkip: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, skip := classify(&tt.branch, tt.head)
			assert.Equal(t, tt.wantSkip, skip)
			if !tt.wantSkip {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDiffAgainstHeadRejectsHead(t *testing.T) {
	e, _ := newEngine()
	_, err := e.DiffAgainstHead(ctx, headID())
	require.Error(t, err)
	assert.True(t, cuberr.IsInput(err))
}

func TestCommitCreatedCube(t *testing.T) {
	e, s := newEngine()
	require.NoError(t, s.UpdateCube(ctx, branchID(), gridCube(t, map[string]interface{}{"11": 10}), "jane"))

	changes, err := e.DiffAgainstHead(ctx, branchID())
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, models.ChangeCreated, changes[0].ChangeType)

	committed, err := e.CommitBranch(ctx, branchID(), changes, "jane")
	require.NoError(t, err)
	require.Len(t, committed, 1)

	headCube, err := s.LoadCube(ctx, headID(), "x")
	require.NoError(t, err)
	require.NotNil(t, headCube)

	// diff symmetry: a committed branch has no changes left
	changes, err = e.DiffAgainstHead(ctx, branchID())
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestCommitAutoMergesCompatibleChanges(t *testing.T) {
	e, s := newEngine()
	b := branchID()

	// base (1,1)=10 committed to head
	require.NoError(t, s.UpdateCube(ctx, b, gridCube(t, map[string]interface{}{"11": 10}), "jane"))
	changes, err := e.DiffAgainstHead(ctx, b)
	require.NoError(t, err)
	_, err = e.CommitBranch(ctx, b, changes, "jane")
	require.NoError(t, err)

	// branch adds (1,2)=20; head adds (2,1)=30
	require.NoError(t, s.UpdateCube(ctx, b, gridCube(t, map[string]interface{}{"11": 10, "12": 20}), "jane"))
	require.NoError(t, s.UpdateCube(ctx, headID(), gridCube(t, map[string]interface{}{"11": 10, "21": 30}), "boss"))

	changes, err = e.DiffAgainstHead(ctx, b)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, models.ChangeConflict, changes[0].ChangeType)

	committed, err := e.CommitBranch(ctx, b, changes, "jane")
	require.NoError(t, err, "disjoint cell changes must auto-merge")
	require.Len(t, committed, 1)
	assert.Equal(t, models.ChangeUpdated, committed[0].ChangeType)

	merged, err := s.LoadCube(ctx, headID(), "x")
	require.NoError(t, err)
	require.NotNil(t, merged)
	for key, want := range map[string]interface{}{"11": 10, "12": 20, "21": 30} {
		v, ok := merged.Cell(map[string]string{"row": key[:1], "col": key[1:]})
		require.True(t, ok, "cell %s missing", key)
		assert.Equal(t, want, v, "cell %s", key)
	}
}

func TestCommitConflictRaisesBranchMerge(t *testing.T) {
	e, s := newEngine()
	b := branchID()

	require.NoError(t, s.UpdateCube(ctx, b, gridCube(t, map[string]interface{}{"11": 10}), "jane"))
	changes, err := e.DiffAgainstHead(ctx, b)
	require.NoError(t, err)
	_, err = e.CommitBranch(ctx, b, changes, "jane")
	require.NoError(t, err)

	// both sides move the same cell apart
	require.NoError(t, s.UpdateCube(ctx, b, gridCube(t, map[string]interface{}{"11": 11}), "jane"))
	require.NoError(t, s.UpdateCube(ctx, headID(), gridCube(t, map[string]interface{}{"11": 12}), "boss"))

	changes, err = e.DiffAgainstHead(ctx, b)
	require.NoError(t, err)
	_, err = e.CommitBranch(ctx, b, changes, "jane")
	require.Error(t, err)

	merge, ok := cuberr.AsBranchMerge(err)
	require.True(t, ok)
	require.Contains(t, merge.Conflicts, "x")
	assert.NotEmpty(t, merge.Conflicts["x"].Diff)

	// the head keeps its own value
	headCube, err := s.LoadCube(ctx, headID(), "x")
	require.NoError(t, err)
	v, _ := headCube.Cell(map[string]string{"row": "1", "col": "1"})
	assert.Equal(t, 12, v)
}

func TestUpdateBranchPullsAndMerges(t *testing.T) {
	e, s := newEngine()
	b := branchID()

	// head owns x; the branch has never seen it
	require.NoError(t, s.UpdateCube(ctx, headID(), gridCube(t, map[string]interface{}{"11": 10}), "boss"))
	updated, err := e.UpdateBranch(ctx, b, "jane")
	require.NoError(t, err)
	require.Len(t, updated, 1)

	c, err := s.LoadCube(ctx, b, "x")
	require.NoError(t, err)
	require.NotNil(t, c)

	// both sides move disjoint cells; update reverse-merges into the branch
	require.NoError(t, s.UpdateCube(ctx, b, gridCube(t, map[string]interface{}{"11": 10, "12": 20}), "jane"))
	require.NoError(t, s.UpdateCube(ctx, headID(), gridCube(t, map[string]interface{}{"11": 10, "21": 30}), "boss"))

	updated, err = e.UpdateBranch(ctx, b, "jane")
	require.NoError(t, err)
	require.Len(t, updated, 1)

	mergedCube, err := s.LoadCube(ctx, b, "x")
	require.NoError(t, err)
	for key, want := range map[string]interface{}{"11": 10, "12": 20, "21": 30} {
		v, ok := mergedCube.Cell(map[string]string{"row": key[:1], "col": key[1:]})
		require.True(t, ok, "cell %s missing", key)
		assert.Equal(t, want, v, "cell %s", key)
	}

	// the merged branch cube is still an outgoing change
	changes, err := e.DiffAgainstHead(ctx, b)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, models.ChangeUpdated, changes[0].ChangeType)
}

func TestUpdateBranchFastForwardsInPlace(t *testing.T) {
	e, s := newEngine()
	b := branchID()

	require.NoError(t, s.UpdateCube(ctx, b, gridCube(t, map[string]interface{}{"11": 10}), "jane"))
	changes, err := e.DiffAgainstHead(ctx, b)
	require.NoError(t, err)
	_, err = e.CommitBranch(ctx, b, changes, "jane")
	require.NoError(t, err)

	// head moves; the branch is unchanged
	require.NoError(t, s.UpdateCube(ctx, headID(), gridCube(t, map[string]interface{}{"11": 42}), "boss"))

	before, err := s.GetRevisions(ctx, b, "x")
	require.NoError(t, err)

	updated, err := e.UpdateBranch(ctx, b, "jane")
	require.NoError(t, err)
	require.Len(t, updated, 1)

	after, err := s.GetRevisions(ctx, b, "x")
	require.NoError(t, err)
	assert.Len(t, after, len(before), "fast-forward must not create a branch revision")

	c, err := s.LoadCube(ctx, b, "x")
	require.NoError(t, err)
	v, _ := c.Cell(map[string]string{"row": "1", "col": "1"})
	assert.Equal(t, 42, v)
}

func TestUpdateBranchCubeAgainstOtherBranch(t *testing.T) {
	e, s := newEngine()
	jane := branchID()
	bob := headID().AsBranch("bob")

	require.NoError(t, s.UpdateCube(ctx, bob, gridCube(t, map[string]interface{}{"11": 7}), "bob"))

	updated, err := e.UpdateBranchCube(ctx, jane, "x", "bob", "jane")
	require.NoError(t, err)
	require.Len(t, updated, 1)

	c, err := s.LoadCube(ctx, jane, "x")
	require.NoError(t, err)
	require.NotNil(t, c)
	v, _ := c.Cell(map[string]string{"row": "1", "col": "1"})
	assert.Equal(t, 7, v)
}
