package manager

import (
	"context"
	"strings"

	"github.com/cubeworks/cuberepo/internal/common"
	"github.com/cubeworks/cuberepo/internal/cube"
	cuberr "github.com/cubeworks/cuberepo/internal/errors"
	"github.com/cubeworks/cuberepo/internal/logger"
	"github.com/cubeworks/cuberepo/internal/permissions"
	"github.com/cubeworks/cuberepo/pkg/models"
)

// validateMutable is the shared head of every mutation: a well-formed AppID
// that is not frozen
func validateMutable(appID models.AppID) error {
	if err := appID.Validate(); err != nil {
		return cuberr.Wrap(cuberr.ErrorTypeInput, err, "invalid appID")
	}
	if appID.IsRelease() {
		return cuberr.Inputf("cannot mutate release %s", appID)
	}
	return nil
}

// guardMutation runs the permission and lock gates for a set of cube names.
// Both gates run before any persister mutation, so failures leave no side
// effects.
func (m *Manager) guardMutation(ctx context.Context, appID models.AppID, action permissions.Action, names ...string) error {
	for _, name := range names {
		if err := m.evaluator.Assert(ctx, appID, name, action); err != nil {
			return err
		}
	}
	return m.locks.AssertNotLockBlocked(ctx, appID)
}

// UpdateCube persists a new revision of the cube, creating it on first write
func (m *Manager) UpdateCube(ctx context.Context, appID models.AppID, c cube.Cube) error {
	m.m.Operations.WithLabelValues("updateCube").Inc()
	if c == nil {
		return cuberr.Inputf("cannot update nil cube")
	}
	if err := validateMutable(appID); err != nil {
		return err
	}
	if err := cube.ValidateName(c.Name()); err != nil {
		return cuberr.Wrap(cuberr.ErrorTypeInput, err, "invalid cube name")
	}
	if err := m.DetectNewAppID(ctx, appID); err != nil {
		return err
	}
	if err := m.guardMutation(ctx, appID, permissions.ActionUpdate, c.Name()); err != nil {
		return err
	}
	if err := m.persister.UpdateCube(ctx, appID, c, common.UserFrom(ctx)); err != nil {
		return err
	}
	m.invalidate(appID, c.Name())
	m.caster.Broadcast(appID)
	logger.Info("cube updated", "appId", appID.String(), "cube", c.Name(), "user", common.UserFrom(ctx))
	return nil
}

// DeleteCubes tombstones each named cube
func (m *Manager) DeleteCubes(ctx context.Context, appID models.AppID, names []string) error {
	m.m.Operations.WithLabelValues("deleteCubes").Inc()
	if len(names) == 0 {
		return cuberr.Inputf("no cube names given to delete")
	}
	if err := validateMutable(appID); err != nil {
		return err
	}
	if err := m.guardMutation(ctx, appID, permissions.ActionUpdate, names...); err != nil {
		return err
	}
	if err := m.persister.DeleteCubes(ctx, appID, names, false, common.UserFrom(ctx)); err != nil {
		return err
	}
	m.invalidate(appID, names...)
	m.caster.Broadcast(appID)
	logger.Info("cubes deleted", "appId", appID.String(), "cubes", strings.Join(names, ","))
	return nil
}

// RestoreCubes re-inserts live revisions for tombstoned branch cubes and
// re-hydrates them so advices reapply
func (m *Manager) RestoreCubes(ctx context.Context, appID models.AppID, names []string) error {
	m.m.Operations.WithLabelValues("restoreCubes").Inc()
	if len(names) == 0 {
		return cuberr.Inputf("no cube names given to restore")
	}
	if err := validateMutable(appID); err != nil {
		return err
	}
	if appID.IsHead() {
		return cuberr.Inputf("cannot restore cubes on HEAD of %s", appID)
	}
	if err := m.guardMutation(ctx, appID, permissions.ActionUpdate, names...); err != nil {
		return err
	}
	if err := m.persister.RestoreCubes(ctx, appID, names, common.UserFrom(ctx)); err != nil {
		return err
	}
	m.invalidate(appID, names...)
	for _, name := range names {
		if _, err := m.loadWithCache(ctx, appID, name); err != nil {
			return err
		}
	}
	m.caster.Broadcast(appID)
	return nil
}

// RollbackCubes reverts each branch cube to its fork point and drops the
// whole branch cache, since a rollback can touch any subset
func (m *Manager) RollbackCubes(ctx context.Context, appID models.AppID, names []string) error {
	m.m.Operations.WithLabelValues("rollbackCubes").Inc()
	if len(names) == 0 {
		return cuberr.Inputf("no cube names given to roll back")
	}
	if err := validateMutable(appID); err != nil {
		return err
	}
	if err := m.guardMutation(ctx, appID, permissions.ActionUpdate, names...); err != nil {
		return err
	}
	if err := m.persister.RollbackCubes(ctx, appID, names, common.UserFrom(ctx)); err != nil {
		return err
	}
	m.cache.Clear(appID)
	m.caster.Broadcast(appID)
	return nil
}

// DuplicateCube copies a cube, possibly across AppIDs
func (m *Manager) DuplicateCube(ctx context.Context, oldAppID models.AppID, oldName string, newAppID models.AppID, newName string) error {
	m.m.Operations.WithLabelValues("duplicateCube").Inc()
	if err := oldAppID.Validate(); err != nil {
		return cuberr.Wrap(cuberr.ErrorTypeInput, err, "invalid source appID")
	}
	if err := validateMutable(newAppID); err != nil {
		return err
	}
	if err := cube.ValidateName(newName); err != nil {
		return cuberr.Wrap(cuberr.ErrorTypeInput, err, "invalid cube name")
	}
	if oldAppID.Equals(newAppID) && strings.EqualFold(oldName, newName) {
		return cuberr.Inputf("cannot duplicate %s onto itself in %s", oldName, oldAppID)
	}
	if err := m.DetectNewAppID(ctx, newAppID); err != nil {
		return err
	}
	if err := m.evaluator.Assert(ctx, oldAppID, oldName, permissions.ActionRead); err != nil {
		return err
	}
	if err := m.guardMutation(ctx, newAppID, permissions.ActionUpdate, newName); err != nil {
		return err
	}
	if err := m.persister.DuplicateCube(ctx, oldAppID, oldName, newAppID, newName, common.UserFrom(ctx)); err != nil {
		return err
	}
	m.invalidate(newAppID, newName)
	m.caster.Broadcast(newAppID)
	return nil
}

// RenameCube renames a cube within an AppID. A rename in or out of the
// classpath cube invalidates the whole AppID.
func (m *Manager) RenameCube(ctx context.Context, appID models.AppID, oldName, newName string) error {
	m.m.Operations.WithLabelValues("renameCube").Inc()
	if err := validateMutable(appID); err != nil {
		return err
	}
	if err := cube.ValidateName(newName); err != nil {
		return cuberr.Wrap(cuberr.ErrorTypeInput, err, "invalid cube name")
	}
	if strings.EqualFold(oldName, newName) {
		return cuberr.Inputf("rename of %s to %s changes nothing", oldName, newName)
	}
	if err := m.guardMutation(ctx, appID, permissions.ActionUpdate, oldName, newName); err != nil {
		return err
	}
	if err := m.persister.RenameCube(ctx, appID, oldName, newName, common.UserFrom(ctx)); err != nil {
		return err
	}
	m.invalidate(appID, oldName, newName)
	m.caster.Broadcast(appID)
	return nil
}

// GetNotes reads the live revision's notes; missing cubes are an input error
func (m *Manager) GetNotes(ctx context.Context, appID models.AppID, name string) (string, error) {
	notes, err := m.persister.GetNotes(ctx, appID, name)
	if err != nil {
		if cuberr.IsNotFound(err) {
			return "", cuberr.Inputf("cannot get notes: cube %s does not exist in %s", name, appID)
		}
		return "", err
	}
	return notes, nil
}

// UpdateNotes attaches notes to the live revision
func (m *Manager) UpdateNotes(ctx context.Context, appID models.AppID, name, notes string) error {
	if err := validateMutable(appID); err != nil {
		return err
	}
	if err := m.guardMutation(ctx, appID, permissions.ActionUpdate, name); err != nil {
		return err
	}
	return m.persister.UpdateNotes(ctx, appID, name, notes)
}

// GetTestData reads the live revision's test data; missing cubes are an
// input error
func (m *Manager) GetTestData(ctx context.Context, appID models.AppID, name string) (string, error) {
	data, err := m.persister.GetTestData(ctx, appID, name)
	if err != nil {
		if cuberr.IsNotFound(err) {
			return "", cuberr.Inputf("cannot get test data: cube %s does not exist in %s", name, appID)
		}
		return "", err
	}
	return data, nil
}

// UpdateTestData attaches test data to the live revision
func (m *Manager) UpdateTestData(ctx context.Context, appID models.AppID, name, testData string) error {
	if err := validateMutable(appID); err != nil {
		return err
	}
	if err := m.guardMutation(ctx, appID, permissions.ActionUpdate, name); err != nil {
		return err
	}
	return m.persister.UpdateTestData(ctx, appID, name, testData)
}
