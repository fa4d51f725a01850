// Package manager is the process-wide façade over the cube repository: every
// public operation funnels through validation, permission check, lock check,
// the persister call, cache maintenance and broadcast, in that order.
package manager

import (
	"context"
	"strings"

	"github.com/cubeworks/cuberepo/internal/advice"
	"github.com/cubeworks/cuberepo/internal/branch"
	"github.com/cubeworks/cuberepo/internal/broadcast"
	"github.com/cubeworks/cuberepo/internal/cache"
	"github.com/cubeworks/cuberepo/internal/classpath"
	"github.com/cubeworks/cuberepo/internal/common"
	"github.com/cubeworks/cuberepo/internal/config"
	"github.com/cubeworks/cuberepo/internal/cube"
	cuberr "github.com/cubeworks/cuberepo/internal/errors"
	"github.com/cubeworks/cuberepo/internal/locks"
	"github.com/cubeworks/cuberepo/internal/metrics"
	"github.com/cubeworks/cuberepo/internal/permissions"
	"github.com/cubeworks/cuberepo/internal/persistence"
	"github.com/cubeworks/cuberepo/pkg/models"
)

// Manager coordinates the cube repository for one process
type Manager struct {
	persister persistence.Persister
	cache     *cache.Registry
	advices   *advice.Registry
	evaluator *permissions.Evaluator
	locks     *locks.Coordinator
	engine    *branch.Engine
	caster    broadcast.Broadcaster
	settings  config.Settings
	loaders   classpath.Provider
	m         *metrics.Metrics
}

// Option customises a Manager
type Option func(*Manager)

// WithBroadcaster replaces the change-notification transport
func WithBroadcaster(b broadcast.Broadcaster) Option {
	return func(m *Manager) { m.caster = b }
}

// WithSettings replaces the embedder settings
func WithSettings(s config.Settings) Option {
	return func(m *Manager) { m.settings = s }
}

// WithDeltaProcessor replaces the merge delta processor
func WithDeltaProcessor(dp cube.DeltaProcessor) Option {
	return func(m *Manager) { m.engine = branch.NewEngine(m.persister, dp) }
}

// WithClasspathProvider supplies the resource-loader factory behind
// sys.classpath
func WithClasspathProvider(p classpath.Provider) Option {
	return func(m *Manager) { m.loaders = p }
}

// New creates a Manager over a persister
func New(p persistence.Persister, opts ...Option) (*Manager, error) {
	if p == nil {
		return nil, cuberr.Statef("no persister configured")
	}
	m := &Manager{
		persister: p,
		cache:     cache.NewRegistry(),
		advices:   advice.NewRegistry(),
		engine:    branch.NewEngine(p, cube.NewCellDeltaProcessor()),
		caster:    broadcast.NewFanOut(config.DefaultSettings().Broadcast.RatePerSecond, config.DefaultSettings().Broadcast.Burst),
		settings:  config.DefaultSettings(),
		m:         metrics.Default(),
	}
	m.evaluator = permissions.New(internalLoader{m})
	m.locks = locks.New(lockStore{m})
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// internalLoader feeds the permission evaluator without re-entering the
// permission gate
type internalLoader struct{ m *Manager }

func (l internalLoader) GetCube(ctx context.Context, appID models.AppID, name string) (cube.Cube, error) {
	return l.m.loadWithCache(ctx, appID, name)
}

// lockStore feeds the lock coordinator: cached loads plus raw saves
type lockStore struct{ m *Manager }

func (s lockStore) GetCube(ctx context.Context, appID models.AppID, name string) (cube.Cube, error) {
	return s.m.loadWithCache(ctx, appID, name)
}

func (s lockStore) SaveCube(ctx context.Context, appID models.AppID, c cube.Cube) error {
	return s.m.saveRaw(ctx, appID, c)
}

// GetCube returns the named cube, or nil when it does not exist. Repeated
// lookups of a missing name are answered by the cache's not-found sentinel
// without touching the persister.
func (m *Manager) GetCube(ctx context.Context, appID models.AppID, name string) (cube.Cube, error) {
	if err := appID.Validate(); err != nil {
		return nil, cuberr.Wrap(cuberr.ErrorTypeInput, err, "invalid appID")
	}
	if err := m.evaluator.Assert(ctx, appID, name, permissions.ActionRead); err != nil {
		return nil, err
	}
	return m.loadWithCache(ctx, appID, name)
}

// loadWithCache is the hydration path shared by reads and internal loads:
// cache first, then the persister, with advice application and negative
// caching on the way in
func (m *Manager) loadWithCache(ctx context.Context, appID models.AppID, name string) (cube.Cube, error) {
	if v, ok := m.cache.Get(appID, name); ok {
		if v == cache.NotFound {
			return nil, nil
		}
		return v.(cube.Cube), nil
	}
	c, err := m.persister.LoadCube(ctx, appID, name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		m.cache.PutNotFound(appID, name)
		return nil, nil
	}
	c.SetAppID(appID)
	m.advices.ApplyTo(appID, c)
	m.cache.Put(appID, c)
	return c, nil
}

// saveRaw persists a cube without permission or lock gates; the lock
// coordinator uses it to write sys.lock
func (m *Manager) saveRaw(ctx context.Context, appID models.AppID, c cube.Cube) error {
	if err := m.persister.UpdateCube(ctx, appID, c, common.UserFrom(ctx)); err != nil {
		return err
	}
	m.invalidate(appID, c.Name())
	m.caster.Broadcast(appID)
	return nil
}

// invalidate applies the cache invalidation rule: any mutation naming the
// classpath cube clears the whole AppID, everything else evicts one entry
func (m *Manager) invalidate(appID models.AppID, names ...string) {
	for _, name := range names {
		if cube.IsClasspathCube(name) {
			m.cache.Clear(appID)
			return
		}
	}
	for _, name := range names {
		m.cache.Remove(appID, name)
	}
}

// Search lists cube records matching the name and content patterns, filtered
// down to the cubes the acting user may read
func (m *Manager) Search(ctx context.Context, appID models.AppID, namePattern, contentPattern string, opts models.SearchOptions) ([]models.CubeInfo, error) {
	if err := appID.Validate(); err != nil {
		return nil, cuberr.Wrap(cuberr.ErrorTypeInput, err, "invalid appID")
	}
	records, err := m.persister.Search(ctx, appID, namePattern, contentPattern, opts)
	if err != nil {
		return nil, err
	}
	check, err := m.evaluator.FastCheck(ctx, appID)
	if err != nil {
		return nil, err
	}
	out := records[:0]
	for _, rec := range records {
		if check.Allowed(rec.Name, permissions.ActionRead) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// GetRevisions lists the revision history of one cube
func (m *Manager) GetRevisions(ctx context.Context, appID models.AppID, name string) ([]models.CubeInfo, error) {
	if err := m.evaluator.Assert(ctx, appID, name, permissions.ActionRead); err != nil {
		return nil, err
	}
	return m.persister.GetRevisions(ctx, appID, name)
}

// GetReferencedCubeNames walks the reference graph from one cube with an
// explicit stack, terminating on cycles via the visited set
func (m *Manager) GetReferencedCubeNames(ctx context.Context, appID models.AppID, name string) ([]string, error) {
	visited := map[string]bool{}
	referenced := map[string]bool{}
	var out []string
	stack := []string{name}
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		key := strings.ToLower(next)
		if visited[key] {
			continue
		}
		visited[key] = true
		c, err := m.loadWithCache(ctx, appID, next)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		for _, ref := range c.ReferencedCubeNames() {
			if !referenced[strings.ToLower(ref)] {
				referenced[strings.ToLower(ref)] = true
				out = append(out, ref)
			}
			stack = append(stack, ref)
		}
	}
	return out, nil
}

// GetClasspathLoader resolves the resource loader for the AppID's classpath
// cube. The env coordinate is injected from configuration when the caller
// omits it. Loaders attach to the cache so a workspace clear releases them.
func (m *Manager) GetClasspathLoader(ctx context.Context, appID models.AppID, coords map[string]string) (classpath.Loader, error) {
	if m.loaders == nil {
		return nil, cuberr.Statef("no classpath provider configured")
	}
	cp, err := m.loadWithCache(ctx, appID, cube.SysClasspath)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, cuberr.NotFoundf("cube %s does not exist in %s", cube.SysClasspath, appID)
	}
	merged := make(map[string]string, len(coords)+1)
	for k, v := range coords {
		merged[k] = v
	}
	if _, ok := merged["env"]; !ok {
		if env := config.EnvLevel(); env != "" {
			merged["env"] = env
		}
	}
	loader, err := m.loaders.LoaderFor(appID, merged)
	if err != nil {
		return nil, cuberr.Wrap(cuberr.ErrorTypeResource, err, "failed to build classpath loader for %s", appID)
	}
	m.cache.RegisterCloser(appID, loader)
	return loader, nil
}

// AddAdvice registers an interceptor for cubes matching the wildcard and
// re-hydrates the workspace so existing cached cubes pick it up
func (m *Manager) AddAdvice(appID models.AppID, pattern string, a cube.Advice) {
	m.advices.Add(appID, pattern, a)
	m.cache.Clear(appID)
}

// IsCached reports whether a real cube instance is resident
func (m *Manager) IsCached(appID models.AppID, name string) bool {
	return m.cache.IsCached(appID, name)
}

// ClearCache evicts every entry for one AppID, releasing attached loaders
func (m *Manager) ClearCache(appID models.AppID) {
	m.cache.Clear(appID)
}

// ClearAllCaches drops the entire cache. Test support.
func (m *Manager) ClearAllCaches() {
	m.cache.ClearAll()
}

// Subscribe registers a change-notification peer when the default fan-out
// broadcaster is in place
func (m *Manager) Subscribe(s broadcast.Subscriber) {
	if f, ok := m.caster.(*broadcast.FanOut); ok {
		f.Subscribe(s)
	}
}

// GetAppNames lists the applications of a tenant
func (m *Manager) GetAppNames(ctx context.Context, tenant string) ([]string, error) {
	return m.persister.GetAppNames(ctx, tenant)
}

// GetVersions lists an application's versions grouped by status
func (m *Manager) GetVersions(ctx context.Context, tenant, app string) (map[models.ReleaseStatus][]string, error) {
	return m.persister.GetVersions(ctx, tenant, app)
}

// GetBranches lists the branches of the AppID's version
func (m *Manager) GetBranches(ctx context.Context, appID models.AppID) ([]string, error) {
	return m.persister.GetBranches(ctx, appID)
}

// IsAdmin reports whether the acting user holds the admin role
func (m *Manager) IsAdmin(ctx context.Context, appID models.AppID) (bool, error) {
	return m.evaluator.IsAdmin(ctx, appID)
}

// AssertPermissions fails unless the acting user may perform the action
func (m *Manager) AssertPermissions(ctx context.Context, appID models.AppID, resource string, action permissions.Action) error {
	return m.evaluator.Assert(ctx, appID, resource, action)
}
