package rescache

import (
	"context"
	"time"

	"github.com/pario-ai/skirmish/pkg/models"
)

// Store persists cache entries keyed by config hash. Implementations must
// make Upsert and Touch atomic per key.
type Store interface {
	// Get returns the entry for hash, or nil if absent.
	Get(ctx context.Context, hash string) (*models.CacheEntry, error)
	// Upsert records a freshly provisioned resource. It inserts e with use
	// count 1 or, if the hash exists, replaces the handle and config, resets
	// CreatedAt, sets LastUsedAt and increments the use count.
	Upsert(ctx context.Context, e models.CacheEntry) error
	// Touch increments the use count and sets LastUsedAt, returning the
	// updated entry or nil if absent.
	Touch(ctx context.Context, hash string, at time.Time) (*models.CacheEntry, error)
	// Delete removes one entry.
	Delete(ctx context.Context, hash string) error
	// Count returns the number of stored entries.
	Count(ctx context.Context) (int64, error)
	// EvictOldest removes up to n entries with the oldest LastUsedAt.
	EvictOldest(ctx context.Context, n int) (int64, error)
	// DeleteCreatedBefore removes entries created before cutoff.
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// List returns all entries, most recently used first.
	List(ctx context.Context) ([]models.CacheEntry, error)
	// Clear removes every entry.
	Clear(ctx context.Context) (int64, error)
	// Close releases resources.
	Close() error
}
