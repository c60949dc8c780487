// Package sqlite keeps a ledger of completed jobs in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/couchcryptid/ukcp-rainfall-etl/internal/domain"
)

const schema = `CREATE TABLE IF NOT EXISTS completed_jobs (
	projection_slice_id INTEGER NOT NULL,
	member              INTEGER NOT NULL,
	variable            TEXT    NOT NULL,
	year                INTEGER NOT NULL,
	month               INTEGER NOT NULL,
	run_id              TEXT    NOT NULL,
	completed_at        TEXT    NOT NULL,
	PRIMARY KEY (projection_slice_id, member, variable, year, month)
);`

// Ledger records which jobs have completed.
// It implements pipeline.Ledger.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the ledger database at path and applies the schema.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}
	return &Ledger{db: db, now: time.Now}, nil
}

// Done reports whether job has completed before.
func (l *Ledger) Done(ctx context.Context, job domain.Job) (bool, error) {
	var runID string
	err := l.db.QueryRowContext(ctx,
		`SELECT run_id FROM completed_jobs
		 WHERE projection_slice_id = ? AND member = ? AND variable = ? AND year = ? AND month = ?`,
		job.ProjectionID, job.Member, job.Variable, job.Year, job.Month,
	).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query ledger %s: %w", job.Key(), err)
	}
	return true, nil
}

// MarkDone records job as completed by runID, replacing any earlier entry.
func (l *Ledger) MarkDone(ctx context.Context, job domain.Job, runID string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO completed_jobs
		 (projection_slice_id, member, variable, year, month, run_id, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ProjectionID, job.Member, job.Variable, job.Year, job.Month,
		runID, l.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("mark %s done: %w", job.Key(), err)
	}
	return nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}
