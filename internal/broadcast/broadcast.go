// Package broadcast fans structural-change notifications out to peers.
// Delivery is fire-and-forget and unordered; the wire transport is supplied
// by the embedder as a subscriber.
package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/cubeworks/cuberepo/internal/logger"
	"github.com/cubeworks/cuberepo/internal/metrics"
	"github.com/cubeworks/cuberepo/pkg/models"
)

// Event is one structural-change notification
type Event struct {
	ID        string       `json:"id"`
	AppID     models.AppID `json:"app_id"`
	Timestamp time.Time    `json:"timestamp"`
}

// Subscriber receives change events; implementations must not block
type Subscriber interface {
	OnChange(Event)
}

// Broadcaster publishes change notifications
type Broadcaster interface {
	Broadcast(appID models.AppID)
}

// FanOut is the in-process Broadcaster: every registered subscriber gets
// every event, throttled by a process-wide rate limiter
type FanOut struct {
	mu          sync.RWMutex
	subscribers []Subscriber
	limiter     *rate.Limiter
}

// NewFanOut creates a broadcaster throttled to ratePerSecond with the given
// burst
func NewFanOut(ratePerSecond float64, burst int) *FanOut {
	return &FanOut{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Subscribe registers a peer transport
func (f *FanOut) Subscribe(s Subscriber) {
	f.mu.Lock()
	f.subscribers = append(f.subscribers, s)
	f.mu.Unlock()
}

// Broadcast publishes one change notification; events over the rate limit are
// dropped, since peers re-read through the cache anyway
func (f *FanOut) Broadcast(appID models.AppID) {
	if !f.limiter.Allow() {
		logger.Debug("broadcast dropped by rate limit", "appId", appID.String())
		return
	}
	event := Event{ID: uuid.NewString(), AppID: appID, Timestamp: time.Now()}
	f.mu.RLock()
	subscribers := append([]Subscriber(nil), f.subscribers...)
	f.mu.RUnlock()
	for _, s := range subscribers {
		s.OnChange(event)
	}
	metrics.Default().Broadcasts.Inc()
	logger.Debug("broadcast sent", "appId", appID.String(), "event", event.ID)
}

// Noop is a Broadcaster that drops everything; test support
type Noop struct{}

// Broadcast implements Broadcaster
func (Noop) Broadcast(models.AppID) {}
