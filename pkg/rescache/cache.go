// Package rescache deduplicates externally provisioned conversational agents
// by a hash of their cacheable configuration.
package rescache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pario-ai/skirmish/pkg/errs"
	"github.com/pario-ai/skirmish/pkg/metrics"
	"github.com/pario-ai/skirmish/pkg/models"
)

// Provisioner creates and maintains the external resources being cached.
type Provisioner interface {
	Create(ctx context.Context, cfg models.CacheableConfig) (string, error)
	Exists(ctx context.Context, resourceID string) (bool, error)
	Patch(ctx context.Context, resourceID string, dyn models.DynamicFields) (bool, error)
}

// Options configures a Cache.
type Options struct {
	TTL      time.Duration
	Capacity int
	Logger   *zap.Logger

	// AcquireTimeout bounds a shared lookup and provisioning call, which
	// outlives the caller that started it.
	AcquireTimeout time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Cache maps config hashes to provisioned resources.
type Cache struct {
	store       Store
	provisioner Provisioner
	ttl         time.Duration
	capacity    int
	timeout     time.Duration
	logger      *zap.Logger
	now         func() time.Time
	group       singleflight.Group

	hits           atomic.Int64
	misses         atomic.Int64
	evictions      atomic.Int64
	verifyFailures atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a Cache over store and provisioner.
func New(store Store, provisioner Provisioner, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.Capacity <= 0 {
		opts.Capacity = 500
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 2 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		store:       store,
		provisioner: provisioner,
		ttl:         opts.TTL,
		capacity:    opts.Capacity,
		timeout:     opts.AcquireTimeout,
		logger:      opts.Logger.Named("rescache"),
		now:         opts.Now,
		done:        make(chan struct{}),
	}
}

// Lookup returns the live entry for hash and records the use. Entries older
// than the TTL are reported as a miss but left for Sweep.
func (c *Cache) Lookup(ctx context.Context, hash string) (*models.CacheEntry, bool, error) {
	e, err := c.store.Get(ctx, hash)
	if err != nil {
		return nil, false, err
	}
	if e == nil {
		c.misses.Add(1)
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false, nil
	}
	now := c.now()
	if now.Sub(e.CreatedAt) > c.ttl {
		c.misses.Add(1)
		metrics.CacheLookups.WithLabelValues("expired").Inc()
		return nil, false, nil
	}

	touched, err := c.store.Touch(ctx, hash, now)
	if err != nil {
		return nil, false, err
	}
	if touched == nil {
		// Evicted between Get and Touch.
		c.misses.Add(1)
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false, nil
	}
	c.hits.Add(1)
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return touched, true, nil
}

// Store records a provisioned resource under hash, evicting the least
// recently used tenth of the cache first when it is full.
func (c *Cache) Store(ctx context.Context, resourceID string, cfg models.CacheableConfig, hash string) error {
	existing, err := c.store.Get(ctx, hash)
	if err != nil {
		return err
	}
	if existing == nil {
		n, err := c.store.Count(ctx)
		if err != nil {
			return err
		}
		if n >= int64(c.capacity) {
			batch := int(n / 10)
			if batch < 1 {
				batch = 1
			}
			evicted, err := c.store.EvictOldest(ctx, batch)
			if err != nil {
				return err
			}
			c.evictions.Add(evicted)
			metrics.CacheEvictions.WithLabelValues("capacity").Add(float64(evicted))
			c.logger.Info("cache at capacity, evicted oldest entries", zap.Int64("evicted", evicted), zap.Int64("entries", n))
		}
	}

	now := c.now().UTC()
	return c.store.Upsert(ctx, models.CacheEntry{
		ConfigHash: hash,
		ResourceID: resourceID,
		Config:     cfg,
		CreatedAt:  now,
		LastUsedAt: now,
	})
}

// Verify asks the provisioner whether resourceID still exists. A provisioner
// error counts as not existing.
func (c *Cache) Verify(ctx context.Context, resourceID string) bool {
	ok, err := c.provisioner.Exists(ctx, resourceID)
	if err != nil {
		c.logger.Warn("verify failed", zap.String("resource_id", resourceID), zap.Error(err))
		return false
	}
	return ok
}

// UpdateDynamicContent pushes per-call data onto a shared resource.
func (c *Cache) UpdateDynamicContent(ctx context.Context, resourceID string, dyn models.DynamicFields) error {
	ok, err := c.provisioner.Patch(ctx, resourceID, dyn)
	if err != nil {
		return fmt.Errorf("update dynamic content for %s: %w", resourceID, err)
	}
	if !ok {
		return fmt.Errorf("update dynamic content for %s: rejected", resourceID)
	}
	return nil
}

// Evict removes hash immediately.
func (c *Cache) Evict(ctx context.Context, hash string, reason string) error {
	if err := c.store.Delete(ctx, hash); err != nil {
		return err
	}
	c.evictions.Add(1)
	metrics.CacheEvictions.WithLabelValues(reason).Inc()
	return nil
}

// Acquire returns a verified resource for cfg, provisioning one on a miss,
// then pushes dyn onto it. Concurrent acquires for the same config share a
// single lookup and provisioning call. The shared call is detached from any
// one caller's cancellation; each caller still returns when its own ctx ends.
func (c *Cache) Acquire(ctx context.Context, cfg models.CacheableConfig, dyn models.DynamicFields) (string, bool, error) {
	hash := Hash(cfg)
	type result struct {
		id  string
		hit bool
	}
	ch := c.group.DoChan(hash, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		id, hit, err := c.acquire(shared, cfg, hash)
		return result{id: id, hit: hit}, err
	})

	var r result
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", false, res.Err
		}
		r = res.Val.(result)
	}

	if !dyn.IsZero() {
		if err := c.UpdateDynamicContent(ctx, r.id, dyn); err != nil {
			return "", false, err
		}
	}
	return r.id, r.hit, nil
}

func (c *Cache) acquire(ctx context.Context, cfg models.CacheableConfig, hash string) (string, bool, error) {
	e, ok, err := c.Lookup(ctx, hash)
	if err != nil {
		return "", false, fmt.Errorf("cache lookup: %w", err)
	}
	if ok {
		if c.Verify(ctx, e.ResourceID) {
			return e.ResourceID, true, nil
		}
		c.verifyFailures.Add(1)
		metrics.CacheLookups.WithLabelValues("stale").Inc()
		c.logger.Warn("cached resource no longer exists, re-provisioning",
			zap.String("hash", hash), zap.String("resource_id", e.ResourceID),
			zap.Error(errs.ErrCacheVerification))
		if err := c.Evict(ctx, hash, "stale"); err != nil {
			return "", false, fmt.Errorf("evict stale entry: %w", err)
		}
	}

	id, err := c.provisioner.Create(ctx, cfg)
	if err != nil {
		return "", false, fmt.Errorf("provision resource: %w", err)
	}
	if err := c.Store(ctx, id, cfg, hash); err != nil {
		// The resource exists; only reuse is lost.
		c.logger.Error("cache store failed", zap.String("resource_id", id), zap.Error(err))
	}
	c.logger.Debug("provisioned resource", zap.String("hash", hash), zap.String("resource_id", id))
	return id, false, nil
}

// Sweep deletes entries older than the TTL.
func (c *Cache) Sweep(ctx context.Context) (int64, error) {
	n, err := c.store.DeleteCreatedBefore(ctx, c.now().Add(-c.ttl))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.evictions.Add(n)
		metrics.CacheEvictions.WithLabelValues("expired").Add(float64(n))
	}
	return n, nil
}

// StartSweeper runs Sweep every interval until Close.
func (c *Cache) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		return
	}
	c.wg.Add(1)
	go c.sweepLoop(interval)
}

func (c *Cache) sweepLoop(interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if n, err := c.Sweep(context.Background()); err != nil {
				c.logger.Warn("cache sweep failed", zap.Error(err))
			} else if n > 0 {
				c.logger.Info("cache sweep", zap.Int64("removed", n))
			}
		}
	}
}

// Stats returns cache counters and the current entry count.
func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	n, err := c.store.Count(ctx)
	if err != nil {
		return models.CacheStats{}, err
	}
	return models.CacheStats{
		Entries:        n,
		Hits:           c.hits.Load(),
		Misses:         c.misses.Load(),
		Evictions:      c.evictions.Load(),
		VerifyFailures: c.verifyFailures.Load(),
	}, nil
}

// Entries lists stored entries, most recently used first.
func (c *Cache) Entries(ctx context.Context) ([]models.CacheEntry, error) {
	return c.store.List(ctx)
}

// Clear removes every entry.
func (c *Cache) Clear(ctx context.Context) (int64, error) {
	return c.store.Clear(ctx)
}

// Close stops the sweeper and closes the store.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	c.wg.Wait()
	return c.store.Close()
}
