// Package metrics exposes Prometheus collectors for the repository manager
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the manager instruments
type Metrics struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheNegatives prometheus.Counter
	CacheEvictions prometheus.Counter

	Operations     *prometheus.CounterVec
	MergeConflicts prometheus.Counter
	Broadcasts     prometheus.Counter

	PersisterDuration prometheus.Histogram
}

var (
	once     sync.Once
	instance *Metrics
)

// Default returns the process-wide metrics, registering the collectors on
// first use
func Default() *Metrics {
	once.Do(func() {
		const namespace = "cuberepo"
		instance = &Metrics{
			CacheHits: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total cube cache hits",
			}),
			CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total cube cache misses",
			}),
			CacheNegatives: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "negative_hits_total",
				Help:      "Total lookups answered by the not-found sentinel",
			}),
			CacheEvictions: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "evictions_total",
				Help:      "Total cube cache evictions",
			}),
			Operations: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "manager",
				Name:      "operations_total",
				Help:      "Total manager operations by name",
			}, []string{"operation"}),
			MergeConflicts: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "branch",
				Name:      "merge_conflicts_total",
				Help:      "Total cubes that failed three-way merge",
			}),
			Broadcasts: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "broadcast",
				Name:      "events_total",
				Help:      "Total structural-change notifications sent",
			}),
			PersisterDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "persister",
				Name:      "call_duration_seconds",
				Help:      "Durable store call latency",
				Buckets:   prometheus.DefBuckets,
			}),
		}
	})
	return instance
}
