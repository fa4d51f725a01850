// Package advice keeps per-workspace interceptor registrations and applies
// them to cubes as they are hydrated from the durable store.
package advice

import (
	"fmt"
	"sync"

	"github.com/cubeworks/cuberepo/internal/cube"
	"github.com/cubeworks/cuberepo/internal/glob"
	"github.com/cubeworks/cuberepo/pkg/models"
)

type binding struct {
	pattern string
	advice  cube.Advice
}

// Registry maps wildcard patterns to advices, per AppID
type Registry struct {
	mu       sync.RWMutex
	bindings map[string][]binding // AppID cache key -> registrations
}

// NewRegistry creates an empty advice registry
func NewRegistry() *Registry {
	return &Registry{bindings: map[string][]binding{}}
}

// Add registers an advice under a wildcard. The wildcard matches against
// "cubeName.method()" bindings.
func (r *Registry) Add(appID models.AppID, pattern string, a cube.Advice) {
	r.mu.Lock()
	key := appID.CacheKey()
	r.bindings[key] = append(r.bindings[key], binding{pattern: pattern, advice: a})
	r.mu.Unlock()
}

// Clear drops every registration for an AppID
func (r *Registry) Clear(appID models.AppID) {
	r.mu.Lock()
	delete(r.bindings, appID.CacheKey())
	r.mu.Unlock()
}

// ApplyTo attaches every matching advice to a freshly hydrated cube. Methods
// range over the columns of the cube's method axis when present, else the
// literal run binding.
func (r *Registry) ApplyTo(appID models.AppID, c cube.Cube) {
	r.mu.RLock()
	bindings := r.bindings[appID.CacheKey()]
	r.mu.RUnlock()
	if len(bindings) == 0 {
		return
	}

	methods := []string{cube.DefaultMethod}
	if axis := c.Axis("method"); axis != nil {
		methods = axis.Columns()
	}

	for _, b := range bindings {
		for _, method := range methods {
			target := fmt.Sprintf("%s.%s()", c.Name(), method)
			if glob.Match(b.pattern, target) {
				c.AddAdvice(b.advice, method)
			}
		}
	}
}
