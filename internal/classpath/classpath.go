// Package classpath defines the resource-loader contract behind the
// sys.classpath cube. The loader implementation is supplied by the embedder;
// this layer only caches loaders per workspace and releases them when the
// workspace cache is cleared.
package classpath

import (
	"net/url"

	"github.com/cubeworks/cuberepo/pkg/models"
)

// Loader resolves resource names to URLs for one coordinate set
type Loader interface {
	// Resolve maps a resource name to a fetchable URL
	Resolve(resource string) (*url.URL, error)
	// Close releases any resources the loader holds, including compiled-code
	// caches attached to it
	Close() error
}

// Provider builds loaders from the sys.classpath cube's output for a given
// coordinate set. The "env" coordinate is injected from configuration when
// the caller omits it.
type Provider interface {
	LoaderFor(appID models.AppID, coords map[string]string) (Loader, error)
}
