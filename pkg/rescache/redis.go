package rescache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pario-ai/skirmish/pkg/models"
)

// RedisStore is a Store backed by Redis. Each entry is a hash; two sorted
// sets index entries by last use (for eviction) and creation (for sweeps).
type RedisStore struct {
	client *redis.Client
	prefix string
}

// upsertScript mirrors the SQLite upsert: created_at is reset and the use
// count increments on conflict.
var upsertScript = redis.NewScript(`
redis.call('HSET', KEYS[1], 'resource_id', ARGV[2], 'config', ARGV[3],
	'created_at', ARGV[4], 'last_used_at', ARGV[5])
redis.call('HINCRBY', KEYS[1], 'use_count', 1)
redis.call('ZADD', KEYS[2], ARGV[6], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[7], ARGV[1])
return 1
`)

var touchScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HINCRBY', KEYS[1], 'use_count', 1)
redis.call('HSET', KEYS[1], 'last_used_at', ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
return 1
`)

// NewRedisStore wraps client. Keys are namespaced under prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "skirmish:cache"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) entryKey(hash string) string { return s.prefix + ":entry:" + hash }
func (s *RedisStore) lruKey() string              { return s.prefix + ":lru" }
func (s *RedisStore) createdKey() string          { return s.prefix + ":created" }

func score(t time.Time) float64 { return float64(t.UTC().UnixMicro()) }

func parseEntry(hash string, m map[string]string) (*models.CacheEntry, error) {
	if len(m) == 0 {
		return nil, nil
	}
	e := &models.CacheEntry{ConfigHash: hash, ResourceID: m["resource_id"]}
	if err := json.Unmarshal([]byte(m["config"]), &e.Config); err != nil {
		return nil, fmt.Errorf("decode cached config: %w", err)
	}
	created, err := strconv.ParseInt(m["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	lastUsed, err := strconv.ParseInt(m["last_used_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse last_used_at: %w", err)
	}
	e.UseCount, err = strconv.ParseInt(m["use_count"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse use_count: %w", err)
	}
	e.CreatedAt = time.Unix(0, created).UTC()
	e.LastUsedAt = time.Unix(0, lastUsed).UTC()
	return e, nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, hash string) (*models.CacheEntry, error) {
	m, err := s.client.HGetAll(ctx, s.entryKey(hash)).Result()
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	return parseEntry(hash, m)
}

// Upsert implements Store.
func (s *RedisStore) Upsert(ctx context.Context, e models.CacheEntry) error {
	cfg, err := json.Marshal(e.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	err = upsertScript.Run(ctx, s.client,
		[]string{s.entryKey(e.ConfigHash), s.lruKey(), s.createdKey()},
		e.ConfigHash, e.ResourceID, string(cfg),
		e.CreatedAt.UTC().UnixNano(), e.LastUsedAt.UTC().UnixNano(),
		score(e.LastUsedAt), score(e.CreatedAt),
	).Err()
	if err != nil {
		return fmt.Errorf("cache upsert: %w", err)
	}
	return nil
}

// Touch implements Store.
func (s *RedisStore) Touch(ctx context.Context, hash string, at time.Time) (*models.CacheEntry, error) {
	n, err := touchScript.Run(ctx, s.client,
		[]string{s.entryKey(hash), s.lruKey()},
		hash, at.UTC().UnixNano(), score(at),
	).Int()
	if err != nil {
		return nil, fmt.Errorf("cache touch: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.Get(ctx, hash)
}

func (s *RedisStore) deleteAll(ctx context.Context, hashes []string) (int64, error) {
	if len(hashes) == 0 {
		return 0, nil
	}
	members := make([]any, len(hashes))
	keys := make([]string, len(hashes))
	for i, h := range hashes {
		members[i] = h
		keys[i] = s.entryKey(h)
	}
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, keys...)
		p.ZRem(ctx, s.lruKey(), members...)
		p.ZRem(ctx, s.createdKey(), members...)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return del.Val(), nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, hash string) error {
	if _, err := s.deleteAll(ctx, []string{hash}); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Count implements Store.
func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, s.lruKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return n, nil
}

// EvictOldest implements Store.
func (s *RedisStore) EvictOldest(ctx context.Context, n int) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	hashes, err := s.client.ZRange(ctx, s.lruKey(), 0, int64(n-1)).Result()
	if err != nil {
		return 0, fmt.Errorf("cache evict: %w", err)
	}
	removed, err := s.deleteAll(ctx, hashes)
	if err != nil {
		return 0, fmt.Errorf("cache evict: %w", err)
	}
	return removed, nil
}

// DeleteCreatedBefore implements Store.
func (s *RedisStore) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	hashes, err := s.client.ZRangeByScore(ctx, s.createdKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatFloat(score(cutoff), 'f', 0, 64),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("cache sweep: %w", err)
	}
	removed, err := s.deleteAll(ctx, hashes)
	if err != nil {
		return 0, fmt.Errorf("cache sweep: %w", err)
	}
	return removed, nil
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context) ([]models.CacheEntry, error) {
	hashes, err := s.client.ZRevRange(ctx, s.lruKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("cache list: %w", err)
	}
	cmds := make([]*redis.MapStringStringCmd, len(hashes))
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, h := range hashes {
			cmds[i] = p.HGetAll(ctx, s.entryKey(h))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cache list: %w", err)
	}
	entries := make([]models.CacheEntry, 0, len(hashes))
	for i, h := range hashes {
		e, err := parseEntry(h, cmds[i].Val())
		if err != nil {
			return nil, err
		}
		if e != nil {
			entries = append(entries, *e)
		}
	}
	return entries, nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context) (int64, error) {
	hashes, err := s.client.ZRange(ctx, s.lruKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	removed, err := s.deleteAll(ctx, hashes)
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	return removed, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
