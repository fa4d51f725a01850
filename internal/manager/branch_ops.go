package manager

import (
	"context"

	"github.com/cubeworks/cuberepo/internal/common"
	cuberr "github.com/cubeworks/cuberepo/internal/errors"
	"github.com/cubeworks/cuberepo/internal/logger"
	"github.com/cubeworks/cuberepo/internal/permissions"
	"github.com/cubeworks/cuberepo/pkg/models"
)

// GetBranchChanges classifies every changed cube of the branch against HEAD
func (m *Manager) GetBranchChanges(ctx context.Context, appID models.AppID) ([]models.CubeInfo, error) {
	m.m.Operations.WithLabelValues("getBranchChanges").Inc()
	if err := appID.Validate(); err != nil {
		return nil, cuberr.Wrap(cuberr.ErrorTypeInput, err, "invalid appID")
	}
	return m.engine.DiffAgainstHead(ctx, appID)
}

// CommitBranch pushes the branch's changed cubes to HEAD. When infos is nil
// the current branch changes are committed. The non-conflicted subset is
// durable even when the call fails with a BranchMergeError; callers retry
// only the failed set.
func (m *Manager) CommitBranch(ctx context.Context, appID models.AppID, infos []models.CubeInfo) ([]models.CubeInfo, error) {
	m.m.Operations.WithLabelValues("commitBranch").Inc()
	if err := validateMutable(appID); err != nil {
		return nil, err
	}
	if appID.IsHead() {
		return nil, cuberr.Inputf("cannot commit HEAD to itself in %s", appID)
	}
	if infos == nil {
		var err error
		infos, err = m.engine.DiffAgainstHead(ctx, appID)
		if err != nil {
			return nil, err
		}
	}
	if len(infos) == 0 {
		return nil, nil
	}
	names := make([]string, len(infos))
	for i, rec := range infos {
		names[i] = rec.Name
	}
	if err := m.guardMutation(ctx, appID, permissions.ActionCommit, names...); err != nil {
		return nil, err
	}

	committed, err := m.engine.CommitBranch(ctx, appID, infos, common.UserFrom(ctx))
	// committed cubes are durable even on a merge failure; the caches for
	// both sides must go stale either way
	if len(committed) > 0 || err == nil {
		m.cache.Clear(appID)
		m.cache.Clear(appID.AsHead())
		m.caster.Broadcast(appID)
		m.caster.Broadcast(appID.AsHead())
	}
	if err != nil {
		return committed, err
	}
	logger.Info("branch committed", "appId", appID.String(), "cubes", len(committed))
	return committed, nil
}

// UpdateBranch pulls HEAD state into the branch
func (m *Manager) UpdateBranch(ctx context.Context, appID models.AppID) ([]models.CubeInfo, error) {
	m.m.Operations.WithLabelValues("updateBranch").Inc()
	if err := validateMutable(appID); err != nil {
		return nil, err
	}
	if appID.IsHead() {
		return nil, cuberr.Inputf("cannot update HEAD from itself in %s", appID)
	}
	if err := m.DetectNewAppID(ctx, appID); err != nil {
		return nil, err
	}
	if err := m.locks.AssertNotLockBlocked(ctx, appID); err != nil {
		return nil, err
	}
	updated, err := m.engine.UpdateBranch(ctx, appID, common.UserFrom(ctx))
	if len(updated) > 0 || err == nil {
		m.cache.Clear(appID)
		m.caster.Broadcast(appID)
	}
	return updated, err
}

// UpdateBranchCube runs the update algorithm for one cube against an
// arbitrary source branch
func (m *Manager) UpdateBranchCube(ctx context.Context, appID models.AppID, cubeName, sourceBranch string) ([]models.CubeInfo, error) {
	m.m.Operations.WithLabelValues("updateBranchCube").Inc()
	if err := validateMutable(appID); err != nil {
		return nil, err
	}
	if err := m.guardMutation(ctx, appID, permissions.ActionUpdate, cubeName); err != nil {
		return nil, err
	}
	updated, err := m.engine.UpdateBranchCube(ctx, appID, cubeName, sourceBranch, common.UserFrom(ctx))
	if len(updated) > 0 || err == nil {
		m.invalidate(appID, cubeName)
		m.caster.Broadcast(appID)
	}
	return updated, err
}

// MergeAcceptMine resolves a conflict by keeping the branch content
func (m *Manager) MergeAcceptMine(ctx context.Context, appID models.AppID, name string) (*models.CubeInfo, error) {
	m.m.Operations.WithLabelValues("mergeAcceptMine").Inc()
	if err := validateMutable(appID); err != nil {
		return nil, err
	}
	if err := m.guardMutation(ctx, appID, permissions.ActionUpdate, name); err != nil {
		return nil, err
	}
	info, err := m.persister.MergeAcceptMine(ctx, appID, name, common.UserFrom(ctx))
	if err != nil {
		return nil, err
	}
	m.invalidate(appID, name)
	m.caster.Broadcast(appID)
	return info, nil
}

// MergeAcceptTheirs resolves a conflict by taking the head content into the
// branch
func (m *Manager) MergeAcceptTheirs(ctx context.Context, appID models.AppID, name, headSHA1 string) (*models.CubeInfo, error) {
	m.m.Operations.WithLabelValues("mergeAcceptTheirs").Inc()
	if err := validateMutable(appID); err != nil {
		return nil, err
	}
	if err := m.guardMutation(ctx, appID, permissions.ActionUpdate, name); err != nil {
		return nil, err
	}
	info, err := m.persister.MergeAcceptTheirs(ctx, appID, name, headSHA1, common.UserFrom(ctx))
	if err != nil {
		return nil, err
	}
	m.invalidate(appID, name)
	m.caster.Broadcast(appID)
	return info, nil
}

// CopyBranch creates a branch as a copy of another, then synthesises its
// branch permissions for the creator
func (m *Manager) CopyBranch(ctx context.Context, srcAppID, dstAppID models.AppID) (int, error) {
	m.m.Operations.WithLabelValues("copyBranch").Inc()
	if err := srcAppID.Validate(); err != nil {
		return 0, cuberr.Wrap(cuberr.ErrorTypeInput, err, "invalid source appID")
	}
	if err := validateMutable(dstAppID); err != nil {
		return 0, err
	}
	if srcAppID.Equals(dstAppID) {
		return 0, cuberr.Inputf("cannot copy branch %s onto itself", srcAppID)
	}
	if err := m.locks.AssertNotLockBlocked(ctx, dstAppID); err != nil {
		return 0, err
	}
	count, err := m.persister.CopyBranch(ctx, srcAppID, dstAppID, common.UserFrom(ctx))
	if err != nil {
		return count, err
	}
	if !dstAppID.IsHead() {
		if err := m.ensureBranchPermissions(ctx, dstAppID); err != nil {
			return count, err
		}
	}
	m.cache.Clear(dstAppID)
	m.caster.Broadcast(dstAppID)
	return count, nil
}

// DeleteBranch removes a non-HEAD branch and its permission cube
func (m *Manager) DeleteBranch(ctx context.Context, appID models.AppID) error {
	m.m.Operations.WithLabelValues("deleteBranch").Inc()
	if err := validateMutable(appID); err != nil {
		return err
	}
	if appID.IsHead() {
		return cuberr.Inputf("cannot delete HEAD branch of %s", appID)
	}
	if err := m.locks.AssertNotLockBlocked(ctx, appID); err != nil {
		return err
	}
	if err := m.persister.DeleteBranch(ctx, appID, common.UserFrom(ctx)); err != nil {
		return err
	}
	m.cache.Clear(appID)
	m.caster.Broadcast(appID)
	return nil
}
