// Package sqlite keeps a ledger of stage executions in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "stage runs",
		SQL: `
CREATE TABLE IF NOT EXISTS stage_runs (
    id TEXT PRIMARY KEY,
    model TEXT NOT NULL,
    region TEXT NOT NULL,
    cycle TEXT NOT NULL,
    stage TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    outcome TEXT NOT NULL,
    detail TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_finished ON stage_runs(finished_at);
CREATE INDEX IF NOT EXISTS idx_runs_pair ON stage_runs(region, model, cycle);
`,
	},
}

// Ledger records stage runs.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger database at path and applies migrations.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	l := &Ledger{db: db}
	if err := l.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// Migrate applies pending schema migrations.
func (l *Ledger) Migrate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at TEXT
		)
	`); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	for _, m := range migrations {
		var n int
		if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&n); err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if n > 0 {
			continue
		}

		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, formatTime(domain.Now()),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// Record stores run, assigning an id when it has none, and returns the id.
func (l *Ledger) Record(ctx context.Context, run domain.StageRun) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO stage_runs (id, model, region, cycle, stage, started_at, finished_at, outcome, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Model, run.Region, run.Cycle, run.Stage,
		formatTime(run.StartedAt), formatTime(run.FinishedAt), string(run.Outcome), run.Detail)
	if err != nil {
		return "", fmt.Errorf("record stage run: %w", err)
	}
	return run.ID, nil
}

// Recent returns up to limit runs, most recently finished first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]domain.StageRun, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, model, region, cycle, stage, started_at, finished_at, outcome, detail
		FROM stage_runs
		ORDER BY finished_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query stage runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.StageRun
	for rows.Next() {
		var (
			run             domain.StageRun
			started, finish string
			outcome         string
			detail          sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Model, &run.Region, &run.Cycle, &run.Stage, &started, &finish, &outcome, &detail); err != nil {
			return nil, fmt.Errorf("scan stage run: %w", err)
		}
		if run.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if run.FinishedAt, err = parseTime(finish); err != nil {
			return nil, err
		}
		run.Outcome = domain.StageOutcome(outcome)
		run.Detail = detail.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CheckReadiness pings the database.
func (l *Ledger) CheckReadiness(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse ledger time %q: %w", s, err)
	}
	return t, nil
}
