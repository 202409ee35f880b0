// Package archive keeps finished battles, transcript and score included, for
// later inspection.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pario-ai/skirmish/pkg/ledger"
	"github.com/pario-ai/skirmish/pkg/models"
	"github.com/pario-ai/skirmish/pkg/sqlitex"
)

// ErrNotFound is returned by Get for an unknown battle id.
var ErrNotFound = errors.New("battle not found")

const createTable = `
CREATE TABLE IF NOT EXISTS battles (
	id TEXT PRIMARY KEY,
	work_item_id TEXT NOT NULL DEFAULT '',
	environment TEXT NOT NULL,
	state TEXT NOT NULL,
	turns INTEGER NOT NULL,
	cost_micros INTEGER NOT NULL,
	score_total REAL,
	body TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_battles_started ON battles(started_at);
CREATE INDEX IF NOT EXISTS idx_battles_item ON battles(work_item_id);
`

// Archive writes and queries battles in SQLite.
type Archive struct {
	db   *sql.DB
	cfg  models.ArchiveConfig
	now  func() time.Time
	done chan struct{}
	wg   sync.WaitGroup
}

// New opens the archive database. When RetentionDays is positive a
// background loop deletes old battles hourly.
func New(cfg models.ArchiveConfig) (*Archive, error) {
	db, err := sqlitex.Open(cfg.DBPath, createTable)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	a := &Archive{
		db:   db,
		cfg:  cfg,
		now:  time.Now,
		done: make(chan struct{}),
	}
	if cfg.RetentionDays > 0 {
		a.wg.Add(1)
		go a.retentionLoop()
	}
	return a, nil
}

// Save inserts or replaces a battle.
func (a *Archive) Save(ctx context.Context, b *models.Battle) error {
	if a == nil || a.db == nil || b == nil {
		return nil
	}
	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode battle: %w", err)
	}
	var total sql.NullFloat64
	if b.Score != nil {
		total = sql.NullFloat64{Float64: b.Score.Total, Valid: true}
	}
	finished := b.FinishedAt
	if finished.IsZero() {
		finished = b.StartedAt
	}
	_, err = a.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO battles
		(id, work_item_id, environment, state, turns, cost_micros, score_total, body, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.WorkItemID, b.Environment, string(b.State), len(b.Turns),
		ledger.ToMicros(b.CumulativeCost), total, string(body),
		b.StartedAt.UTC().UnixNano(), finished.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save battle: %w", err)
	}
	return nil
}

// Get returns one battle with its full transcript.
func (a *Archive) Get(ctx context.Context, id string) (*models.Battle, error) {
	var body string
	err := a.db.QueryRowContext(ctx, `SELECT body FROM battles WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get battle: %w", err)
	}
	var b models.Battle
	if err := json.Unmarshal([]byte(body), &b); err != nil {
		return nil, fmt.Errorf("decode battle %s: %w", id, err)
	}
	return &b, nil
}

// List returns battles matching opts, newest first.
func (a *Archive) List(ctx context.Context, opts models.ArchiveQueryOpts) ([]models.Battle, error) {
	q := `SELECT body FROM battles WHERE 1=1`
	var args []any

	if opts.WorkItemID != "" {
		q += " AND work_item_id = ?"
		args = append(args, opts.WorkItemID)
	}
	if opts.State != "" {
		q += " AND state = ?"
		args = append(args, string(opts.State))
	}
	if opts.Environment != "" {
		q += " AND environment = ?"
		args = append(args, opts.Environment)
	}
	if !opts.Since.IsZero() {
		q += " AND started_at >= ?"
		args = append(args, opts.Since.UTC().UnixNano())
	}

	q += " ORDER BY started_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query battles: %w", err)
	}
	defer rows.Close()

	var battles []models.Battle
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan battle row: %w", err)
		}
		var b models.Battle
		if err := json.Unmarshal([]byte(body), &b); err != nil {
			return nil, fmt.Errorf("decode battle: %w", err)
		}
		battles = append(battles, b)
	}
	return battles, rows.Err()
}

// Stats returns battle counts grouped by state and UTC day.
func (a *Archive) Stats(ctx context.Context) ([]models.ArchiveStat, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT state, date(started_at / 1000000000, 'unixepoch') AS day, count(*) AS cnt
		 FROM battles GROUP BY state, day ORDER BY day DESC, state`)
	if err != nil {
		return nil, fmt.Errorf("archive stats: %w", err)
	}
	defer rows.Close()

	var stats []models.ArchiveStat
	for rows.Next() {
		var s models.ArchiveStat
		var state string
		var day sql.NullString
		if err := rows.Scan(&state, &day, &s.Count); err != nil {
			return nil, fmt.Errorf("scan archive stat: %w", err)
		}
		s.State = models.BattleState(state)
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes battles that finished before the retention period.
func (a *Archive) Cleanup(ctx context.Context) (int64, error) {
	if a.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := a.now().AddDate(0, 0, -a.cfg.RetentionDays)
	res, err := a.db.ExecContext(ctx,
		`DELETE FROM battles WHERE finished_at < ?`, cutoff.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("archive cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (a *Archive) Close() error {
	close(a.done)
	a.wg.Wait()
	return a.db.Close()
}

func (a *Archive) retentionLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-a.done:
			return
		case <-ticker.C:
			_, _ = a.Cleanup(context.Background())
		}
	}
}
