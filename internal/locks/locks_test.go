package locks

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubeworks/cuberepo/internal/common"
	"github.com/cubeworks/cuberepo/internal/cube"
	cuberr "github.com/cubeworks/cuberepo/internal/errors"
	"github.com/cubeworks/cuberepo/pkg/models"
)

type fakeStore struct {
	cubes map[string]cube.Cube
	saves int
}

func newFakeStore() *fakeStore {
	return &fakeStore{cubes: map[string]cube.Cube{}}
}

func (s *fakeStore) key(appID models.AppID, name string) string {
	return appID.CacheKey() + "|" + strings.ToLower(name)
}

func (s *fakeStore) GetCube(ctx context.Context, appID models.AppID, name string) (cube.Cube, error) {
	return s.cubes[s.key(appID, name)], nil
}

func (s *fakeStore) SaveCube(ctx context.Context, appID models.AppID, c cube.Cube) error {
	s.cubes[s.key(appID, c.Name())] = c
	s.saves++
	return nil
}

func appID() models.AppID {
	return models.NewAppID("acme", "billing", "1.0.0", models.StatusSnapshot, "HEAD")
}

func withLockCube(t *testing.T, s *fakeStore) {
	t.Helper()
	lock := cube.NewTableCube(cube.SysLock, cube.NewStrAxis("system", true))
	lock.SetMetaProperty(cube.MetaCache, false)
	require.NoError(t, s.SaveCube(context.Background(), appID().AsBoot(), lock))
	s.saves = 0
}

func ctxFor(user string) context.Context {
	return common.WithUser(context.Background(), user)
}

func TestLockUnlock(t *testing.T) {
	store := newFakeStore()
	withLockCube(t, store)
	c := New(store)

	owner, err := c.Owner(ctxFor("u1"), appID())
	require.NoError(t, err)
	assert.Empty(t, owner)

	require.NoError(t, c.Lock(ctxFor("u1"), appID()))
	owner, err = c.Owner(ctxFor("u2"), appID())
	require.NoError(t, err)
	assert.Equal(t, "u1", owner)

	// re-locking by the owner is a no-op
	require.NoError(t, c.Lock(ctxFor("u1"), appID()))

	require.NoError(t, c.Unlock(ctxFor("u1"), appID()))
	owner, err = c.Owner(ctxFor("u1"), appID())
	require.NoError(t, err)
	assert.Empty(t, owner)
}

func TestLockContention(t *testing.T) {
	store := newFakeStore()
	withLockCube(t, store)
	c := New(store)

	require.NoError(t, c.Lock(ctxFor("u1"), appID()))
	saves := store.saves

	err := c.Lock(ctxFor("u2"), appID())
	require.Error(t, err)
	assert.True(t, cuberr.IsSecurity(err))

	err = c.Unlock(ctxFor("u2"), appID())
	require.Error(t, err)
	assert.True(t, cuberr.IsSecurity(err))

	// the losing calls must not have touched the durable lock
	assert.Equal(t, saves, store.saves)
	owner, err := c.Owner(ctxFor("u2"), appID())
	require.NoError(t, err)
	assert.Equal(t, "u1", owner)
}

func TestAssertNotLockBlocked(t *testing.T) {
	store := newFakeStore()
	withLockCube(t, store)
	c := New(store)

	assert.NoError(t, c.AssertNotLockBlocked(ctxFor("u1"), appID()))
	require.NoError(t, c.Lock(ctxFor("u1"), appID()))
	assert.NoError(t, c.AssertNotLockBlocked(ctxFor("u1"), appID()))

	err := c.AssertNotLockBlocked(ctxFor("u2"), appID())
	require.Error(t, err)
	assert.True(t, cuberr.IsSecurity(err))
}

func TestAssertLockedByMe(t *testing.T) {
	store := newFakeStore()
	withLockCube(t, store)
	c := New(store)

	err := c.AssertLockedByMe(ctxFor("u1"), appID())
	require.Error(t, err, "unlocked app must fail the ownership assertion")

	require.NoError(t, c.Lock(ctxFor("u1"), appID()))
	assert.NoError(t, c.AssertLockedByMe(ctxFor("u1"), appID()))

	err = c.AssertLockedByMe(ctxFor("u2"), appID())
	require.Error(t, err)
	assert.True(t, cuberr.IsSecurity(err))
}
