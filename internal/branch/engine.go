// Package branch implements the branch lifecycle engine: change
// classification against the head, commit and update orchestration, and the
// three-way merge with the common ancestor picked by headSha1.
package branch

import (
	"context"
	"strings"

	"github.com/cubeworks/cuberepo/internal/cube"
	cuberr "github.com/cubeworks/cuberepo/internal/errors"
	"github.com/cubeworks/cuberepo/internal/logger"
	"github.com/cubeworks/cuberepo/internal/metrics"
	"github.com/cubeworks/cuberepo/internal/persistence"
	"github.com/cubeworks/cuberepo/pkg/models"
)

// Engine orchestrates diffs, commits, updates and merges for one persister
type Engine struct {
	persister persistence.Persister
	deltas    cube.DeltaProcessor
}

// NewEngine creates a branch engine
func NewEngine(p persistence.Persister, dp cube.DeltaProcessor) *Engine {
	return &Engine{persister: p, deltas: dp}
}

// DiffAgainstHead classifies every changed cube of the branch against the
// head. Conflicted cubes are included with ChangeType CONFLICT.
func (e *Engine) DiffAgainstHead(ctx context.Context, appID models.AppID) ([]models.CubeInfo, error) {
	if appID.IsHead() {
		return nil, cuberr.Inputf("cannot get branch changes from HEAD of %s", appID)
	}
	changed, err := e.persister.Search(ctx, appID, "", "", models.SearchOptions{ChangedRecordsOnly: true})
	if err != nil {
		return nil, err
	}
	var out []models.CubeInfo
	for _, rec := range changed {
		headRec, err := e.headRecord(ctx, appID, rec.Name)
		if err != nil {
			return nil, err
		}
		changeType, skip := classify(&rec, headRec)
		if skip {
			continue
		}
		rec.ChangeType = changeType
		out = append(out, rec)
	}
	return out, nil
}

func (e *Engine) headRecord(ctx context.Context, appID models.AppID, name string) (*models.CubeInfo, error) {
	return e.record(ctx, appID.AsHead(), name)
}

func (e *Engine) record(ctx context.Context, appID models.AppID, name string) (*models.CubeInfo, error) {
	recs, err := e.persister.Search(ctx, appID, name, "", models.SearchOptions{ExactMatchName: true})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// classify applies the change table: a changed branch cube is CREATED,
// UPDATED, DELETED, RESTORED or CONFLICT relative to the head state, or
// skipped when there is nothing to do
func classify(branchRec, headRec *models.CubeInfo) (models.ChangeType, bool) {
	if headRec == nil {
		if branchRec.IsTombstone() {
			return "", true
		}
		return models.ChangeCreated, false
	}
	if branchRec.HeadSHA1 == "" {
		// someone created the same name in head
		return models.ChangeConflict, false
	}
	if branchRec.HeadSHA1 != headRec.SHA1 {
		return models.ChangeConflict, false
	}
	if branchRec.SHA1 == headRec.SHA1 {
		if branchRec.IsTombstone() == headRec.IsTombstone() {
			return "", true
		}
		if branchRec.IsTombstone() {
			return models.ChangeDeleted, false
		}
		return models.ChangeRestored, false
	}
	return models.ChangeUpdated, false
}

// CommitBranch pushes the supplied changed cubes to the head. Conflicting
// cubes go through the three-way merge; any that survive abort the operation
// with a BranchMergeError after the clean subset has committed.
func (e *Engine) CommitBranch(ctx context.Context, appID models.AppID, infos []models.CubeInfo, user string) ([]models.CubeInfo, error) {
	var ids []string
	byName := map[string]models.ChangeType{}
	conflicts := map[string]cuberr.Conflict{}
	var committed []models.CubeInfo

	for _, rec := range infos {
		headRec, err := e.headRecord(ctx, appID, rec.Name)
		if err != nil {
			return committed, err
		}
		changeType, skip := classify(&rec, headRec)
		if skip {
			continue
		}
		if changeType != models.ChangeConflict {
			ids = append(ids, rec.ID)
			byName[strings.ToLower(rec.Name)] = changeType
			continue
		}
		merged, conflict, err := e.checkForConflicts(ctx, appID, rec, headRec, false)
		if err != nil {
			return committed, err
		}
		if conflict != nil {
			conflicts[rec.Name] = *conflict
			continue
		}
		info, err := e.persister.CommitMergedCubeToHead(ctx, appID, merged, user)
		if err != nil {
			return committed, err
		}
		info.ChangeType = models.ChangeUpdated
		committed = append(committed, *info)
	}

	if len(ids) > 0 {
		batch, err := e.persister.CommitCubes(ctx, appID, ids, user)
		if err != nil {
			return committed, err
		}
		for _, info := range batch {
			info.ChangeType = byName[strings.ToLower(info.Name)]
			committed = append(committed, info)
		}
	}

	if len(conflicts) > 0 {
		metrics.Default().MergeConflicts.Add(float64(len(conflicts)))
		logger.Warn("branch commit left conflicts", "appId", appID.String(), "conflicts", len(conflicts))
		return committed, cuberr.NewBranchMergeError(conflicts)
	}
	return committed, nil
}

// UpdateBranch pulls head state into the branch: fast-forward pulls for
// unchanged cubes, silent headSha1 updates where content already matches, and
// reverse three-way merges where both sides moved.
func (e *Engine) UpdateBranch(ctx context.Context, appID models.AppID, user string) ([]models.CubeInfo, error) {
	if appID.IsHead() {
		return nil, cuberr.Inputf("cannot update HEAD from itself in %s", appID)
	}
	otherRecs, err := e.persister.Search(ctx, appID.AsHead(), "", "", models.SearchOptions{})
	if err != nil {
		return nil, err
	}
	return e.updateAgainst(ctx, appID, appID.AsHead(), otherRecs, user)
}

// UpdateBranchCube runs the update algorithm for one cube against an
// arbitrary branch, not just HEAD
func (e *Engine) UpdateBranchCube(ctx context.Context, appID models.AppID, cubeName, otherBranch, user string) ([]models.CubeInfo, error) {
	otherAppID := appID.AsBranch(otherBranch)
	otherRec, err := e.record(ctx, otherAppID, cubeName)
	if err != nil {
		return nil, err
	}
	if otherRec == nil {
		return nil, cuberr.NotFoundf("cube %s does not exist in %s", cubeName, otherAppID)
	}
	return e.updateAgainst(ctx, appID, otherAppID, []models.CubeInfo{*otherRec}, user)
}

func (e *Engine) updateAgainst(ctx context.Context, appID, otherAppID models.AppID, otherRecs []models.CubeInfo, user string) ([]models.CubeInfo, error) {
	var pullIDs []string
	conflicts := map[string]cuberr.Conflict{}
	var updated []models.CubeInfo

	for _, otherRec := range otherRecs {
		branchRec, err := e.record(ctx, appID, otherRec.Name)
		if err != nil {
			return updated, err
		}

		if branchRec == nil {
			if !otherRec.IsTombstone() {
				pullIDs = append(pullIDs, otherRec.ID)
			}
			continue
		}

		if !branchRec.Changed {
			if branchRec.SHA1 != otherRec.SHA1 || branchRec.IsTombstone() != otherRec.IsTombstone() {
				pullIDs = append(pullIDs, otherRec.ID)
			}
			continue
		}

		// changed branch cube
		if branchRec.SHA1 == otherRec.SHA1 {
			if branchRec.HeadSHA1 != otherRec.SHA1 {
				// content already matches; only the bookkeeping moves
				if err := e.persister.UpdateBranchCubeHeadSHA1(ctx, branchRec.ID, otherRec.SHA1); err != nil {
					return updated, err
				}
			}
			continue
		}
		if branchRec.HeadSHA1 == otherRec.SHA1 {
			// branch is ahead; nothing to pull
			continue
		}

		merged, conflict, err := e.checkForConflicts(ctx, appID, *branchRec, &otherRec, true)
		if err != nil {
			return updated, err
		}
		if conflict != nil {
			conflicts[branchRec.Name] = *conflict
			continue
		}
		info, err := e.persister.CommitMergedCubeToBranch(ctx, appID, merged, otherRec.SHA1, user)
		if err != nil {
			return updated, err
		}
		info.ChangeType = models.ChangeUpdated
		updated = append(updated, *info)
	}

	if len(pullIDs) > 0 {
		pulled, err := e.persister.PullToBranch(ctx, appID, pullIDs, user)
		if err != nil {
			return updated, err
		}
		updated = append(updated, pulled...)
	}

	if len(conflicts) > 0 {
		metrics.Default().MergeConflicts.Add(float64(len(conflicts)))
		return updated, cuberr.NewBranchMergeError(conflicts)
	}
	return updated, nil
}

// checkForConflicts attempts the three-way automatic merge between the
// branch cube and the other side's cube, with the common ancestor selected
// by the branch cube's headSha1. A missing ancestor synthesizes an empty cube
// over the branch cube's axes so never-committed cubes can still merge.
func (e *Engine) checkForConflicts(ctx context.Context, appID models.AppID, branchRec models.CubeInfo, otherRec *models.CubeInfo, reverse bool) (cube.Cube, *cuberr.Conflict, error) {
	branchCube, err := e.persister.LoadCubeByID(ctx, branchRec.ID)
	if err != nil {
		return nil, nil, err
	}
	otherCube, err := e.persister.LoadCubeByID(ctx, otherRec.ID)
	if err != nil {
		return nil, nil, err
	}

	var base cube.Cube
	if branchRec.HeadSHA1 != "" {
		base, err = e.persister.LoadCubeBySHA1(ctx, appID, branchRec.Name, branchRec.HeadSHA1)
		if err != nil {
			return nil, nil, err
		}
	}
	if base == nil {
		base = branchCube.Duplicate(branchCube.Name())
		base.ClearCells()
	}

	branchDelta := e.deltas.Delta(base, branchCube)
	otherDelta := e.deltas.Delta(base, otherCube)

	if e.deltas.Compatible(branchDelta, otherDelta, reverse) {
		var merged cube.Cube
		var apply []cube.Delta
		if reverse {
			merged = otherCube.Duplicate(branchCube.Name())
			apply = branchDelta
		} else {
			merged = branchCube.Duplicate(branchCube.Name())
			apply = otherDelta
		}
		if err := e.deltas.Merge(merged, apply); err != nil {
			// axes diverged; the delta cannot land on the other shape
			return nil, &cuberr.Conflict{
				Message:  err.Error(),
				SHA1:     branchRec.SHA1,
				HeadSHA1: otherRec.SHA1,
				Diff:     e.deltas.Describe(branchCube, otherCube),
			}, nil
		}
		return merged, nil, nil
	}

	diff := e.deltas.Describe(branchCube, otherCube)
	if len(diff) == 0 {
		// effectively identical cubes
		return branchCube, nil, nil
	}
	return nil, &cuberr.Conflict{
		Message:  "cube changed in both branches and the changes overlap",
		SHA1:     branchRec.SHA1,
		HeadSHA1: otherRec.SHA1,
		Diff:     diff,
	}, nil
}
