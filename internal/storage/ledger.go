// Package storage persists the idempotency ledger: identities of items
// already handed off and an append-only log of pipeline runs.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// timestamps are fixed-width UTC text so range queries compare correctly
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

var schemas = map[string]string{
	DriverSQLite: `
	CREATE TABLE IF NOT EXISTS seen_items (
		item_id TEXT PRIMARY KEY,
		canonical_url TEXT NOT NULL,
		seen_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_seen_items_seen_at ON seen_items(seen_at);

	CREATE TABLE IF NOT EXISTS run_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_at TEXT NOT NULL,
		status TEXT NOT NULL,
		metrics_json TEXT NOT NULL,
		error_message TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_run_logs_run_at ON run_logs(run_at);
	`,
	DriverPostgres: `
	CREATE TABLE IF NOT EXISTS seen_items (
		item_id TEXT PRIMARY KEY,
		canonical_url TEXT NOT NULL,
		seen_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_seen_items_seen_at ON seen_items(seen_at);

	CREATE TABLE IF NOT EXISTS run_logs (
		id BIGSERIAL PRIMARY KEY,
		run_at TEXT NOT NULL,
		status TEXT NOT NULL,
		metrics_json TEXT NOT NULL,
		error_message TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_run_logs_run_at ON run_logs(run_at);
	`,
}

// SeenItem is one ledger entry.
type SeenItem struct {
	ItemID       string
	CanonicalURL string
}

// Ledger is safe for concurrent use; every operation is one short
// statement or transaction.
type Ledger struct {
	db     *sql.DB
	driver string
	sb     sq.StatementBuilderType
	now    func() time.Time
	logger *slog.Logger
}

// Open connects to the ledger store and creates its tables. For sqlite the
// dsn is a file path (":memory:" works for tests).
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	format := sq.Question
	switch driver {
	case DriverSQLite:
		if dsn != ":memory:" {
			if dir := filepath.Dir(dsn); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("create database dir: %w", err)
				}
			}
		}
	case DriverPostgres:
		format = sq.Dollar
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q", driver)
	}

	connStr := dsn
	if driver == DriverSQLite && dsn == ":memory:" {
		connStr = "file::memory:?cache=shared"
	}
	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if driver == DriverSQLite && dsn != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	l := &Ledger{
		db:     db,
		driver: driver,
		sb:     sq.StatementBuilder.PlaceholderFormat(format),
		now:    time.Now,
		logger: logger.With("component", "ledger"),
	}
	if err := l.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// Init creates the ledger tables if they are missing.
func (l *Ledger) Init(ctx context.Context) error {
	for _, stmt := range strings.Split(schemas[l.driver], ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

func (l *Ledger) stamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// LoadSeen returns the ids of items marked within the trailing window.
func (l *Ledger) LoadSeen(ctx context.Context, window time.Duration) (map[string]bool, error) {
	query, args, err := l.sb.
		Select("item_id").
		From("seen_items").
		Where(sq.GtOrEq{"seen_at": l.stamp(l.now().Add(-window))}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build seen query: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load seen items: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan seen item: %w", err)
		}
		seen[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load seen items: %w", err)
	}
	return seen, nil
}

// MarkSeen records items as handed off now, replacing earlier entries.
func (l *Ledger) MarkSeen(ctx context.Context, items []SeenItem) error {
	if len(items) == 0 {
		return nil
	}
	now := l.stamp(l.now())

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, it := range items {
		query, args, err := l.sb.
			Insert("seen_items").
			Columns("item_id", "canonical_url", "seen_at").
			Values(it.ItemID, it.CanonicalURL, now).
			Suffix("ON CONFLICT (item_id) DO UPDATE SET canonical_url = EXCLUDED.canonical_url, seen_at = EXCLUDED.seen_at").
			ToSql()
		if err != nil {
			return fmt.Errorf("build mark query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to mark as seen: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	l.logger.Debug("marked items as seen", "count", len(items))
	return nil
}

// LogRun appends a run record. metrics is stored as JSON.
func (l *Ledger) LogRun(ctx context.Context, status string, metrics any, errMsg string) error {
	blob, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("encode run metrics: %w", err)
	}
	var errCol any
	if errMsg != "" {
		errCol = errMsg
	}

	query, args, err := l.sb.
		Insert("run_logs").
		Columns("run_at", "status", "metrics_json", "error_message").
		Values(l.stamp(l.now()), status, string(blob), errCol).
		ToSql()
	if err != nil {
		return fmt.Errorf("build run log query: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to log run: %w", err)
	}
	return nil
}

// deliveryMarker is the part of a run's metrics blob the recent-delivery
// check reads. push_enabled is the older name of delivery_enabled.
type deliveryMarker struct {
	DeliveryEnabled bool `json:"delivery_enabled"`
	PushEnabled     bool `json:"push_enabled"`
	SelectedCount   int  `json:"selected_count"`
}

// HasRecentSuccessfulDelivery reports whether a successful run within the
// window had delivery enabled and selected at least one item.
func (l *Ledger) HasRecentSuccessfulDelivery(ctx context.Context, window time.Duration) (bool, error) {
	query, args, err := l.sb.
		Select("metrics_json").
		From("run_logs").
		Where(sq.Eq{"status": StatusSuccess}).
		Where(sq.GtOrEq{"run_at": l.stamp(l.now().Add(-window))}).
		OrderBy("id DESC").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build run query: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return false, fmt.Errorf("scan run: %w", err)
		}
		var m deliveryMarker
		if err := json.Unmarshal([]byte(blob), &m); err != nil {
			l.logger.Debug("skip run with unreadable metrics", "error", err)
			continue
		}
		if (m.DeliveryEnabled || m.PushEnabled) && m.SelectedCount > 0 {
			return true, nil
		}
	}
	return false, rows.Err()
}

// RunRecord is one row of the run log.
type RunRecord struct {
	RunAt        time.Time
	Status       string
	MetricsJSON  string
	ErrorMessage string
}

// RecentRuns returns the latest run records, newest first.
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	query, args, err := l.sb.
		Select("run_at", "status", "metrics_json", "error_message").
		From("run_logs").
		OrderBy("id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build run query: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			rec    RunRecord
			runAt  string
			errMsg sql.NullString
		)
		if err := rows.Scan(&runAt, &rec.Status, &rec.MetricsJSON, &errMsg); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.RunAt, _ = time.Parse(timeLayout, runAt)
		rec.ErrorMessage = errMsg.String
		out = append(out, rec)
	}
	return out, rows.Err()
}
