package modserver

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache TTLs by environment.
const (
	DevelopmentTTL = 2 * time.Second
	ProductionTTL  = time.Hour
)

// EnvDevelopment is the environment name that selects the short TTL and
// verbose timeout messages.
const EnvDevelopment = "development"

// TTLForEnv returns the snapshot TTL for an environment name.
func TTLForEnv(env string) time.Duration {
	if env == EnvDevelopment {
		return DevelopmentTTL
	}
	return ProductionTTL
}

// LoadFunc produces a fresh snapshot.
type LoadFunc func(ctx context.Context) (*Snapshot, error)

// CacheConfig configures a SnapshotCache.
type CacheConfig struct {
	// TTL is how long a snapshot stays fresh. Zero means ProductionTTL.
	TTL time.Duration

	// Coalesce makes concurrent misses share one load.
	Coalesce bool

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	Logger  Logger
	Events  *EventBus
	Metrics *Metrics
}

type cacheEntry struct {
	snapshot  *Snapshot
	expiresAt time.Time
}

// SnapshotCache holds at most one snapshot and reloads it after its TTL.
// Failed loads are never cached.
type SnapshotCache struct {
	load     LoadFunc
	ttl      time.Duration
	coalesce bool
	now      func() time.Time
	logger   Logger
	events   *EventBus
	metrics  *Metrics

	mu         sync.RWMutex
	entry      *cacheEntry
	generation uint64
	group      singleflight.Group
}

const snapshotKey = "snapshot"

// NewSnapshotCache creates a cache in front of load.
func NewSnapshotCache(load LoadFunc, cfg CacheConfig) *SnapshotCache {
	c := &SnapshotCache{
		load:     load,
		ttl:      cfg.TTL,
		coalesce: cfg.Coalesce,
		now:      cfg.Now,
		logger:   cfg.Logger,
		events:   cfg.Events,
		metrics:  cfg.Metrics,
	}
	if c.ttl <= 0 {
		c.ttl = ProductionTTL
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = NopLogger()
	}
	return c
}

// TTL returns the configured time to live.
func (c *SnapshotCache) TTL() time.Duration { return c.ttl }

// Get returns the cached snapshot while it is fresh, otherwise runs a load.
// A successful load replaces the entry unless the cache was invalidated
// while it ran.
func (c *SnapshotCache) Get(ctx context.Context) (*Snapshot, error) {
	c.mu.RLock()
	entry := c.entry
	c.mu.RUnlock()

	if entry != nil && c.now().Before(entry.expiresAt) {
		c.metrics.cacheHit()
		return entry.snapshot, nil
	}
	c.metrics.cacheMiss()

	if !c.coalesce {
		return c.fill(context.WithoutCancel(ctx))
	}

	ch := c.group.DoChan(snapshotKey, func() (any, error) {
		return c.fill(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func (c *SnapshotCache) fill(ctx context.Context) (*Snapshot, error) {
	c.mu.RLock()
	generation := c.generation
	c.mu.RUnlock()

	snap, err := c.load(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.generation == generation {
		c.entry = &cacheEntry{snapshot: snap, expiresAt: c.now().Add(c.ttl)}
	}
	c.mu.Unlock()
	return snap, nil
}

// Peek returns the cached snapshot without loading, fresh or not.
func (c *SnapshotCache) Peek() (*Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil {
		return nil, false
	}
	return c.entry.snapshot, true
}

// Invalidate drops the cached snapshot. The next Get runs a fresh load, and
// a load already in flight does not repopulate the cache.
func (c *SnapshotCache) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.generation++
	c.mu.Unlock()
	c.group.Forget(snapshotKey)

	c.metrics.cacheInvalidated()
	c.logger.Debug("Config cache invalidated")
	c.events.emit(context.Background(), EventTypeCacheInvalidated, nil)
}
