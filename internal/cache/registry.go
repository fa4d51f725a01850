// Package cache holds the per-workspace cube cache. Lookups that miss the
// durable store are remembered with a distinct NotFound sentinel so repeated
// misses never re-query the persister.
package cache

import (
	"io"
	"strings"
	"sync"

	"github.com/cubeworks/cuberepo/internal/cube"
	"github.com/cubeworks/cuberepo/internal/logger"
	"github.com/cubeworks/cuberepo/internal/metrics"
	"github.com/cubeworks/cuberepo/pkg/models"
)

type notFoundSentinel struct{}

// NotFound is the singleton marking a name that was queried and is absent.
// It must stay a distinct value so readers can tell "never queried" from
// "queried and missing".
var NotFound interface{} = &notFoundSentinel{}

type appCache struct {
	appID models.AppID
	cubes sync.Map // lowercase cube name -> cube.Cube or NotFound

	closerMu sync.Mutex
	closers  []io.Closer
}

// Registry is the process-wide cube cache, keyed by AppID then cube name.
// Reads take the registry read lock to find the AppID entry, then read its
// cube map without locking; mass operations take the registry write lock.
type Registry struct {
	mu   sync.RWMutex
	apps map[string]*appCache
	m    *metrics.Metrics
}

// NewRegistry creates an empty cache registry
func NewRegistry() *Registry {
	return &Registry{
		apps: map[string]*appCache{},
		m:    metrics.Default(),
	}
}

func (r *Registry) app(appID models.AppID, create bool) *appCache {
	key := appID.CacheKey()
	r.mu.RLock()
	ac := r.apps[key]
	r.mu.RUnlock()
	if ac != nil || !create {
		return ac
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ac = r.apps[key]; ac == nil {
		ac = &appCache{appID: appID}
		r.apps[key] = ac
	}
	return ac
}

// Get returns the cached cube or the NotFound sentinel. The second return is
// false when the name was never cached for this AppID.
func (r *Registry) Get(appID models.AppID, name string) (interface{}, bool) {
	ac := r.app(appID, false)
	if ac == nil {
		r.m.CacheMisses.Inc()
		return nil, false
	}
	v, ok := ac.cubes.Load(strings.ToLower(name))
	if !ok {
		r.m.CacheMisses.Inc()
		return nil, false
	}
	if v == NotFound {
		r.m.CacheNegatives.Inc()
	} else {
		r.m.CacheHits.Inc()
	}
	return v, true
}

// Put stores a cube unless its cache meta-property opts out
func (r *Registry) Put(appID models.AppID, c cube.Cube) {
	if !cube.ShouldCache(c) {
		return
	}
	ac := r.app(appID, true)
	ac.cubes.Store(strings.ToLower(c.Name()), c)
}

// PutNotFound remembers that a name is absent from the durable store
func (r *Registry) PutNotFound(appID models.AppID, name string) {
	ac := r.app(appID, true)
	ac.cubes.Store(strings.ToLower(name), NotFound)
}

// Remove evicts one entry, case-insensitively
func (r *Registry) Remove(appID models.AppID, name string) {
	if ac := r.app(appID, false); ac != nil {
		ac.cubes.Delete(strings.ToLower(name))
		r.m.CacheEvictions.Inc()
	}
}

// IsCached reports whether a real cube is resident for the name
func (r *Registry) IsCached(appID models.AppID, name string) bool {
	ac := r.app(appID, false)
	if ac == nil {
		return false
	}
	v, ok := ac.cubes.Load(strings.ToLower(name))
	return ok && v != NotFound
}

// RegisterCloser attaches a resource, such as a classpath loader or its
// compiled-code cache, that must be released when the AppID is cleared
func (r *Registry) RegisterCloser(appID models.AppID, c io.Closer) {
	ac := r.app(appID, true)
	ac.closerMu.Lock()
	ac.closers = append(ac.closers, c)
	ac.closerMu.Unlock()
}

// Clear evicts every entry for the AppID and releases attached loaders
func (r *Registry) Clear(appID models.AppID) {
	r.mu.Lock()
	ac := r.apps[appID.CacheKey()]
	delete(r.apps, appID.CacheKey())
	r.mu.Unlock()
	if ac != nil {
		releaseClosers(ac)
		r.m.CacheEvictions.Inc()
	}
}

// ClearBranches evicts every AppID sharing the branch-agnostic key, used when
// a version is released or moved and every branch under it goes stale
func (r *Registry) ClearBranches(appID models.AppID) {
	prefix := appID.BranchAgnosticCacheKey()
	r.mu.Lock()
	var stale []*appCache
	for key, ac := range r.apps {
		if ac.appID.BranchAgnosticCacheKey() == prefix {
			stale = append(stale, ac)
			delete(r.apps, key)
		}
	}
	r.mu.Unlock()
	for _, ac := range stale {
		releaseClosers(ac)
	}
	if len(stale) > 0 {
		r.m.CacheEvictions.Inc()
	}
}

// ClearAll drops every cached entry. Test support.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	apps := r.apps
	r.apps = map[string]*appCache{}
	r.mu.Unlock()
	for _, ac := range apps {
		releaseClosers(ac)
	}
}

func releaseClosers(ac *appCache) {
	ac.closerMu.Lock()
	closers := ac.closers
	ac.closers = nil
	ac.closerMu.Unlock()
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Warn("failed to release cached loader", "appId", ac.appID.String(), "error", err)
		}
	}
}
