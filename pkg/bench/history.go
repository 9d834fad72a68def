package bench

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// RunRecord is one finished benchmark run.
type RunRecord struct {
	RunID      string
	Model      string
	StartedAt  time.Time
	FinishedAt time.Time
	// Metrics is the number of result rows the run produced; Failed is
	// how many of them errored.
	Metrics int
	Failed  int
}

// History records finished runs in a SQLite database so past runs can be
// listed without parsing result files.
type History struct {
	db *sql.DB
}

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	model TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	metrics INTEGER NOT NULL,
	failed INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_model ON runs(model, started_at);
`

// OpenHistory opens (and migrates) the run history database. It can share
// a file with the sample cache; the two use disjoint tables, and both
// connections wait out short lock contention instead of failing busy.
func OpenHistory(dbPath string) (*History, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(createRunsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &History{db: db}, nil
}

// Record stores one finished run.
func (h *History) Record(ctx context.Context, rec RunRecord) error {
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, model, started_at, finished_at, metrics, failed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Model, rec.StartedAt.UTC(), rec.FinishedAt.UTC(), rec.Metrics, rec.Failed,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// List returns runs newest first, optionally filtered by model. limit <= 0
// means no limit.
func (h *History) List(ctx context.Context, model string, limit int) ([]RunRecord, error) {
	query := `SELECT run_id, model, started_at, finished_at, metrics, failed FROM runs`
	var args []any
	if model != "" {
		query += ` WHERE model = ?`
		args = append(args, model)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(&rec.RunID, &rec.Model, &rec.StartedAt, &rec.FinishedAt, &rec.Metrics, &rec.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (h *History) Close() error {
	return h.db.Close()
}
