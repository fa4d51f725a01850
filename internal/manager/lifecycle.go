package manager

import (
	"context"
	"time"

	"github.com/cubeworks/cuberepo/internal/common"
	cuberr "github.com/cubeworks/cuberepo/internal/errors"
	"github.com/cubeworks/cuberepo/internal/logger"
	"github.com/cubeworks/cuberepo/internal/permissions"
	"github.com/cubeworks/cuberepo/pkg/models"
)

// Lock takes the durable application lock for the acting user
func (m *Manager) Lock(ctx context.Context, appID models.AppID) error {
	if err := m.DetectNewAppID(ctx, appID); err != nil {
		return err
	}
	return m.locks.Lock(ctx, appID)
}

// Unlock releases the durable application lock
func (m *Manager) Unlock(ctx context.Context, appID models.AppID) error {
	return m.locks.Unlock(ctx, appID)
}

// LockOwner returns the current lock owner, or empty when unlocked
func (m *Manager) LockOwner(ctx context.Context, appID models.AppID) (string, error) {
	return m.locks.Owner(ctx, appID)
}

// MoveBranch moves every revision of the branch to a new version. The caller
// must hold the application lock.
func (m *Manager) MoveBranch(ctx context.Context, appID models.AppID, newVersion string) (int, error) {
	m.m.Operations.WithLabelValues("moveBranch").Inc()
	if err := appID.Validate(); err != nil {
		return 0, cuberr.Wrap(cuberr.ErrorTypeInput, err, "invalid appID")
	}
	if err := models.ValidateVersion(newVersion); err != nil {
		return 0, cuberr.Wrap(cuberr.ErrorTypeInput, err, "invalid version")
	}
	if appID.IsBootVersion() || newVersion == models.BootVersion {
		return 0, cuberr.Inputf("version %s is reserved for system configuration", models.BootVersion)
	}
	if err := m.locks.AssertLockedByMe(ctx, appID); err != nil {
		return 0, err
	}
	if err := m.evaluator.Assert(ctx, appID, "*", permissions.ActionRelease); err != nil {
		return 0, err
	}
	count, err := m.persister.MoveBranch(ctx, appID, newVersion, common.UserFrom(ctx))
	if err != nil {
		return count, err
	}
	m.cache.ClearBranches(appID)
	m.caster.Broadcast(appID)
	logger.Info("branch moved", "appId", appID.String(), "newVersion", newVersion, "cubes", count)
	return count, nil
}

// ReleaseVersion freezes the version without the full workflow; the caller
// must hold the lock and has already moved branches aside
func (m *Manager) ReleaseVersion(ctx context.Context, appID models.AppID) error {
	m.m.Operations.WithLabelValues("releaseVersion").Inc()
	if err := appID.Validate(); err != nil {
		return cuberr.Wrap(cuberr.ErrorTypeInput, err, "invalid appID")
	}
	if appID.IsBootVersion() {
		return cuberr.Inputf("version %s is reserved for system configuration", models.BootVersion)
	}
	if err := m.locks.AssertLockedByMe(ctx, appID); err != nil {
		return err
	}
	if err := m.evaluator.Assert(ctx, appID, "*", permissions.ActionRelease); err != nil {
		return err
	}
	released, err := m.releaseExists(ctx, appID)
	if err != nil {
		return err
	}
	if released {
		return cuberr.Inputf("a release of %s %s already exists", appID.App, appID.Version)
	}
	if err := m.persister.ReleaseCubes(ctx, appID, common.UserFrom(ctx)); err != nil {
		return err
	}
	m.cache.ClearBranches(appID.AsSnapshot())
	m.cache.ClearBranches(appID.AsRelease())
	m.caster.Broadcast(appID)
	return nil
}

func (m *Manager) releaseExists(ctx context.Context, appID models.AppID) (bool, error) {
	versions, err := m.persister.GetVersions(ctx, appID.Tenant, appID.App)
	if err != nil {
		return false, err
	}
	for _, v := range versions[models.StatusRelease] {
		if v == appID.Version {
			return true, nil
		}
	}
	return false, nil
}

func (m *Manager) versionExists(ctx context.Context, appID models.AppID, version string) (bool, error) {
	versions, err := m.persister.GetVersions(ctx, appID.Tenant, appID.App)
	if err != nil {
		return false, err
	}
	for _, group := range versions {
		for _, v := range group {
			if v == version {
				return true, nil
			}
		}
	}
	return false, nil
}

// ReleaseCubes runs the full release workflow: verify the target version is
// free, take the lock, wait out in-flight readers, move every non-HEAD branch
// to the new snapshot version, freeze the HEAD, seed the new snapshot HEAD
// from the release, then invalidate, broadcast and unlock.
func (m *Manager) ReleaseCubes(ctx context.Context, appID models.AppID, newSnapVersion string) error {
	m.m.Operations.WithLabelValues("releaseCubes").Inc()
	if err := appID.Validate(); err != nil {
		return cuberr.Wrap(cuberr.ErrorTypeInput, err, "invalid appID")
	}
	if err := models.ValidateVersion(newSnapVersion); err != nil {
		return cuberr.Wrap(cuberr.ErrorTypeInput, err, "invalid version")
	}
	if appID.IsBootVersion() || newSnapVersion == models.BootVersion {
		return cuberr.Inputf("version %s is reserved for system configuration", models.BootVersion)
	}
	if err := m.evaluator.Assert(ctx, appID, "*", permissions.ActionRelease); err != nil {
		return err
	}
	exists, err := m.versionExists(ctx, appID, newSnapVersion)
	if err != nil {
		return err
	}
	if exists {
		return cuberr.Inputf("version %s of %s already exists", newSnapVersion, appID.App)
	}
	released, err := m.releaseExists(ctx, appID)
	if err != nil {
		return err
	}
	if released {
		return cuberr.Inputf("a release of %s %s already exists", appID.App, appID.Version)
	}

	if err := m.locks.Lock(ctx, appID); err != nil {
		return err
	}
	defer func() {
		if err := m.locks.Unlock(ctx, appID); err != nil {
			logger.Error("failed to release application lock", "appId", appID.String(), "error", err)
		}
	}()

	// let in-flight readers drain before the version shifts underneath them
	if m.settings.ReleaseQuietPeriod > 0 {
		time.Sleep(m.settings.ReleaseQuietPeriod)
	}

	user := common.UserFrom(ctx)
	branches, err := m.persister.GetBranches(ctx, appID.AsSnapshot())
	if err != nil {
		return err
	}
	for _, b := range branches {
		branchID := appID.AsSnapshot().AsBranch(b)
		if branchID.IsHead() {
			continue
		}
		if _, err := m.persister.MoveBranch(ctx, branchID, newSnapVersion, user); err != nil {
			return err
		}
	}

	if err := m.persister.ReleaseCubes(ctx, appID, user); err != nil {
		return err
	}
	newHead := appID.AsSnapshot().AsHead().AsVersion(newSnapVersion)
	if _, err := m.persister.CopyBranch(ctx, appID.AsRelease().AsHead(), newHead, user); err != nil {
		return err
	}

	m.cache.ClearBranches(appID.AsSnapshot())
	m.cache.ClearBranches(appID.AsRelease())
	m.cache.ClearBranches(newHead)
	m.caster.Broadcast(appID)
	logger.Info("version released", "appId", appID.String(), "newSnapshot", newSnapVersion)
	return nil
}
