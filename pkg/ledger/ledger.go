// Package ledger is the append-only record of every billable operation.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pario-ai/skirmish/pkg/errs"
	"github.com/pario-ai/skirmish/pkg/models"
	"github.com/pario-ai/skirmish/pkg/sqlitex"
)

// Ledger records and queries cost entries.
type Ledger interface {
	// Record appends an entry. Entries are never updated or deleted.
	Record(ctx context.Context, e models.CostEntry) error
	// SumSince returns spend for an environment at or after since.
	SumSince(ctx context.Context, since time.Time, environment string) (decimal.Decimal, error)
	// SumByBattle returns the total recorded for one battle.
	SumByBattle(ctx context.Context, battleID string) (decimal.Decimal, error)
	// Entries returns entries matching q, newest first.
	Entries(ctx context.Context, q models.CostQuery) ([]models.CostEntry, error)
	// Summary aggregates spend by provider, kind and tier.
	Summary(ctx context.Context, since time.Time, environment string) ([]models.SpendSummary, error)
	// Close releases resources.
	Close() error
}

// SQLiteLedger implements Ledger with a SQLite database. Costs are stored as
// integer micro-dollars so range sums are exact.
type SQLiteLedger struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS cost_entries (
	id TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	kind TEXT NOT NULL,
	tier TEXT NOT NULL,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	duration_seconds REAL NOT NULL DEFAULT 0,
	cost_micros INTEGER NOT NULL,
	environment TEXT NOT NULL,
	battle_id TEXT NOT NULL DEFAULT '',
	work_item_id TEXT NOT NULL DEFAULT '',
	turn_index INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cost_env_time ON cost_entries(environment, created_at);
CREATE INDEX IF NOT EXISTS idx_cost_battle ON cost_entries(battle_id);
`

// New creates a SQLiteLedger and runs auto-migration.
func New(dbPath string) (*SQLiteLedger, error) {
	db, err := sqlitex.Open(dbPath, createTable)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

// ToMicros converts a dollar amount to integer micro-dollars.
func ToMicros(d decimal.Decimal) int64 {
	return d.Shift(6).Round(0).IntPart()
}

// FromMicros converts integer micro-dollars back to dollars.
func FromMicros(m int64) decimal.Decimal {
	return decimal.New(m, -6)
}

// Record stores a cost entry. A failure wraps errs.ErrLedgerWrite.
func (l *SQLiteLedger) Record(ctx context.Context, e models.CostEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO cost_entries (id, provider, kind, tier, input_tokens, output_tokens, duration_seconds,
		 cost_micros, environment, battle_id, work_item_id, turn_index, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Provider, string(e.Kind), string(e.Tier), e.Usage.InputTokens, e.Usage.OutputTokens,
		e.Usage.DurationSeconds, ToMicros(e.Cost), e.Environment, e.BattleID, e.WorkItemID, e.TurnIndex,
		e.CreatedAt.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record cost: %w: %w", errs.ErrLedgerWrite, err)
	}
	return nil
}

// SumSince returns spend for an environment at or after since.
func (l *SQLiteLedger) SumSince(ctx context.Context, since time.Time, environment string) (decimal.Decimal, error) {
	var total int64
	err := l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_micros), 0) FROM cost_entries WHERE environment = ? AND created_at >= ?`,
		environment, since.UTC().UnixNano(),
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum spend: %w", err)
	}
	return FromMicros(total), nil
}

// SumByBattle returns the total recorded for one battle.
func (l *SQLiteLedger) SumByBattle(ctx context.Context, battleID string) (decimal.Decimal, error) {
	var total int64
	err := l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_micros), 0) FROM cost_entries WHERE battle_id = ?`,
		battleID,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum battle spend: %w", err)
	}
	return FromMicros(total), nil
}

// Entries returns entries matching q, newest first.
func (l *SQLiteLedger) Entries(ctx context.Context, q models.CostQuery) ([]models.CostEntry, error) {
	query := `SELECT id, provider, kind, tier, input_tokens, output_tokens, duration_seconds, cost_micros,
		environment, battle_id, work_item_id, turn_index, created_at FROM cost_entries WHERE 1=1`
	var args []any
	if q.Environment != "" {
		query += ` AND environment = ?`
		args = append(args, q.Environment)
	}
	if q.BattleID != "" {
		query += ` AND battle_id = ?`
		args = append(args, q.BattleID)
	}
	if !q.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, q.Since.UTC().UnixNano())
	}
	query += ` ORDER BY created_at DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []models.CostEntry
	for rows.Next() {
		var (
			e          models.CostEntry
			kind, tier string
			micros     int64
			created    int64
		)
		if err := rows.Scan(&e.ID, &e.Provider, &kind, &tier, &e.Usage.InputTokens, &e.Usage.OutputTokens,
			&e.Usage.DurationSeconds, &micros, &e.Environment, &e.BattleID, &e.WorkItemID, &e.TurnIndex, &created); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Kind = models.ResourceKind(kind)
		e.Tier = models.Tier(tier)
		e.Cost = FromMicros(micros)
		e.CreatedAt = time.Unix(0, created).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Summary aggregates spend by provider, kind and tier. A zero since means all
// time; an empty environment means every environment.
func (l *SQLiteLedger) Summary(ctx context.Context, since time.Time, environment string) ([]models.SpendSummary, error) {
	query := `SELECT provider, kind, tier, COUNT(*), SUM(input_tokens), SUM(output_tokens),
		SUM(duration_seconds), SUM(cost_micros) FROM cost_entries WHERE created_at >= ?`
	args := []any{since.UTC().UnixNano()}
	if since.IsZero() {
		args[0] = int64(0)
	}
	if environment != "" {
		query += ` AND environment = ?`
		args = append(args, environment)
	}
	query += ` GROUP BY provider, kind, tier ORDER BY provider, kind, tier`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.SpendSummary
	for rows.Next() {
		var (
			s          models.SpendSummary
			kind, tier string
			micros     int64
		)
		if err := rows.Scan(&s.Provider, &kind, &tier, &s.Entries, &s.InputTokens, &s.OutputTokens, &s.Seconds, &micros); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.Kind = models.ResourceKind(kind)
		s.Tier = models.Tier(tier)
		s.Cost = FromMicros(micros)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Close releases the database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
