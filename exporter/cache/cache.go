package cache

import (
	"context"
	"sync"
	"time"

	"kaspa-exporter/exporter/snapshot"
	"kaspa-exporter/protocol"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Lookup result labels
const (
	LookupHit  = "hit"
	LookupMiss = "miss"
)

const refreshKey = "snapshot"

// Refresher computes a fresh snapshot and labels how the refresh went
type Refresher interface {
	Refresh(ctx context.Context) (*snapshot.Snapshot, string)
}

// Tracker receives cache metrics
type Tracker interface {
	IncrementLookups(result string)
	ObserveRefresh(result string, seconds float64)
}

type nopTracker struct{}

func (nopTracker) IncrementLookups(string) {}

func (nopTracker) ObserveRefresh(string, float64) {}

// Option configures a Cache
type Option func(*Cache)

// WithClock overrides the time source used for freshness checks
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// Cache holds the latest snapshot and refreshes it lazily once it is older
// than the TTL. At most one refresh runs at a time.
type Cache struct {
	refresher Refresher
	ttl       time.Duration
	tracker   Tracker
	logger    zerolog.Logger
	now       func() time.Time

	group singleflight.Group

	mu          sync.RWMutex
	current     *snapshot.Snapshot
	lastResult  string
	lastRefresh time.Time
}

// New creates an empty cache
func New(refresher Refresher, ttl time.Duration, tracker Tracker, logger zerolog.Logger, opts ...Option) *Cache {
	if tracker == nil {
		tracker = nopTracker{}
	}
	c := &Cache{
		refresher: refresher,
		ttl:       ttl,
		tracker:   tracker,
		logger:    protocol.Component(logger, "cache"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the current snapshot while it is fresh, otherwise refreshes
func (c *Cache) Get(ctx context.Context) *snapshot.Snapshot {
	c.mu.RLock()
	current := c.current
	c.mu.RUnlock()

	if current != nil && current.Age(c.now()) < c.ttl {
		c.tracker.IncrementLookups(LookupHit)
		return current
	}

	c.tracker.IncrementLookups(LookupMiss)
	return c.refresh(ctx, true)
}

// Refresh replaces the snapshot. Concurrent callers share one in-flight
// refresh, which is not cancelled when a caller goes away.
func (c *Cache) Refresh(ctx context.Context) *snapshot.Snapshot {
	return c.refresh(ctx, false)
}

// refresh runs the shared refresh. With onlyIfStale set, a snapshot that a
// refresh finishing since the caller's lookup left fresh is returned as is.
func (c *Cache) refresh(ctx context.Context, onlyIfStale bool) *snapshot.Snapshot {
	ctx = context.WithoutCancel(ctx)

	v, _, _ := c.group.Do(refreshKey, func() (interface{}, error) {
		if onlyIfStale {
			c.mu.RLock()
			current := c.current
			c.mu.RUnlock()
			if current != nil && current.Age(c.now()) < c.ttl {
				return current, nil
			}
		}

		start := c.now()
		snap, result := c.refresher.Refresh(ctx)
		elapsed := c.now().Sub(start)

		c.mu.Lock()
		c.current = snap
		c.lastResult = result
		c.lastRefresh = snap.TakenAt()
		c.mu.Unlock()

		c.tracker.ObserveRefresh(result, elapsed.Seconds())
		c.logger.Debug().
			Str("result", result).
			Int("gauges", snap.Len()).
			Dur("duration", elapsed).
			Msg("Snapshot refreshed")
		return snap, nil
	})
	return v.(*snapshot.Snapshot)
}

// Current returns the held snapshot without refreshing, nil before the
// first refresh
func (c *Cache) Current() *snapshot.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// LastRefresh reports when the held snapshot was computed and how that
// refresh went. ok is false before the first refresh.
func (c *Cache) LastRefresh() (at time.Time, result string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return time.Time{}, "", false
	}
	return c.lastRefresh, c.lastResult, true
}

// TTL returns the freshness window
func (c *Cache) TTL() time.Duration {
	return c.ttl
}
