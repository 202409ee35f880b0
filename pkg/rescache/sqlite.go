package rescache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pario-ai/skirmish/pkg/models"
	"github.com/pario-ai/skirmish/pkg/sqlitex"
)

// SQLiteStore is a Store backed by SQLite. Timestamps are unix nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS resource_cache (
	config_hash TEXT PRIMARY KEY,
	resource_id TEXT NOT NULL,
	config TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	last_used_at INTEGER NOT NULL,
	use_count INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_resource_cache_last_used ON resource_cache(last_used_at);
`

const entryColumns = `config_hash, resource_id, config, created_at, last_used_at, use_count`

// NewSQLiteStore opens the cache table in the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlitex.Open(dbPath, createCacheTable)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*models.CacheEntry, error) {
	var (
		e                 models.CacheEntry
		cfg               string
		created, lastUsed int64
	)
	if err := s.Scan(&e.ConfigHash, &e.ResourceID, &cfg, &created, &lastUsed, &e.UseCount); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cfg), &e.Config); err != nil {
		return nil, fmt.Errorf("decode cached config: %w", err)
	}
	e.CreatedAt = time.Unix(0, created).UTC()
	e.LastUsedAt = time.Unix(0, lastUsed).UTC()
	return &e, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, hash string) (*models.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM resource_cache WHERE config_hash = ?`, hash)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	return e, nil
}

// Upsert implements Store.
func (s *SQLiteStore) Upsert(ctx context.Context, e models.CacheEntry) error {
	cfg, err := json.Marshal(e.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO resource_cache (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, 1)
		 ON CONFLICT(config_hash) DO UPDATE SET
			created_at = excluded.created_at,
			resource_id = excluded.resource_id,
			config = excluded.config,
			last_used_at = excluded.last_used_at,
			use_count = resource_cache.use_count + 1`,
		e.ConfigHash, e.ResourceID, string(cfg), e.CreatedAt.UTC().UnixNano(), e.LastUsedAt.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("cache upsert: %w", err)
	}
	return nil
}

// Touch implements Store.
func (s *SQLiteStore) Touch(ctx context.Context, hash string, at time.Time) (*models.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE resource_cache SET use_count = use_count + 1, last_used_at = ?
		 WHERE config_hash = ? RETURNING `+entryColumns,
		at.UTC().UnixNano(), hash)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache touch: %w", err)
	}
	return e, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, hash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM resource_cache WHERE config_hash = ?`, hash); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resource_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return n, nil
}

// EvictOldest implements Store.
func (s *SQLiteStore) EvictOldest(ctx context.Context, n int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM resource_cache WHERE config_hash IN
		 (SELECT config_hash FROM resource_cache ORDER BY last_used_at ASC LIMIT ?)`, n)
	if err != nil {
		return 0, fmt.Errorf("cache evict: %w", err)
	}
	return res.RowsAffected()
}

// DeleteCreatedBefore implements Store.
func (s *SQLiteStore) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM resource_cache WHERE created_at < ?`, cutoff.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("cache sweep: %w", err)
	}
	return res.RowsAffected()
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]models.CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM resource_cache ORDER BY last_used_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("cache list: %w", err)
	}
	defer rows.Close()

	var entries []models.CacheEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Clear implements Store.
func (s *SQLiteStore) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM resource_cache`)
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
