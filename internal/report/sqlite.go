package report

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS match_runs (
		run_id         TEXT PRIMARY KEY,
		started_at     TEXT NOT NULL,
		finished_at    TEXT NOT NULL,
		input          TEXT,
		output         TEXT,
		dataset        TEXT,
		properties     TEXT,
		row_count      INTEGER NOT NULL,
		with_qid       INTEGER NOT NULL,
		unresolved     INTEGER NOT NULL,
		ambiguous      INTEGER NOT NULL,
		matched        INTEGER NOT NULL,
		no_identifier  INTEGER NOT NULL,
		preexisting    INTEGER NOT NULL,
		conflicts      INTEGER NOT NULL,
		failed_queries INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS match_decisions (
		run_id      TEXT NOT NULL REFERENCES match_runs(run_id),
		row_index   INTEGER NOT NULL,
		column_name TEXT,
		value       TEXT,
		hint        TEXT,
		status      TEXT NOT NULL,
		reason      TEXT NOT NULL,
		qid         TEXT,
		candidates  TEXT,
		existing    TEXT,
		written     TEXT,
		conflict    INTEGER NOT NULL,
		PRIMARY KEY (run_id, row_index)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_match_decisions_value ON match_decisions(value)`,
}

const insertRun = `INSERT INTO match_runs (
	run_id, started_at, finished_at, input, output, dataset, properties,
	row_count, with_qid, unresolved, ambiguous, matched, no_identifier, preexisting, conflicts, failed_queries
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertDecision = `INSERT INTO match_decisions (
	run_id, row_index, column_name, value, hint, status, reason, qid, candidates, existing, written, conflict
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// WriteSQLite appends r to the SQLite database at path, creating it when needed.
func WriteSQLite(ctx context.Context, path string, r Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return errors.Wrapf(err, "open report database %s", path)
	}
	defer func() {
		_ = db.Close()
	}()
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 10000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Wrapf(err, "apply %s", pragma)
		}
	}
	return WriteSQL(ctx, db, r)
}

// WriteSQL stores r in one transaction.
func WriteSQL(ctx context.Context, db *sql.DB, r Report) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin report transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range schema {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "create report schema")
		}
	}

	s := r.Summary
	if _, err = tx.ExecContext(ctx, insertRun,
		r.RunID,
		r.StartedAt.UTC().Format(time.RFC3339Nano),
		r.FinishedAt.UTC().Format(time.RFC3339Nano),
		r.Input, r.Output, r.Dataset,
		strings.Join(r.Properties, ","),
		s.Rows, s.WithQID, s.Unresolved, s.Ambiguous, s.Matched,
		s.NoIdentifier, s.Preexisting, s.Conflicts, s.FailedQueries,
	); err != nil {
		return errors.Wrap(err, "insert run")
	}

	stmt, err := tx.PrepareContext(ctx, insertDecision)
	if err != nil {
		return errors.Wrap(err, "prepare decision insert")
	}
	defer func() {
		_ = stmt.Close()
	}()
	for _, d := range r.Decisions {
		conflict := 0
		if d.Conflict {
			conflict = 1
		}
		if _, err = stmt.ExecContext(ctx,
			r.RunID, d.Row, d.Column, d.Value, d.Hint,
			string(d.Status), string(d.Reason), d.QID,
			strings.Join(d.Candidates, ";"), d.Existing, d.Written, conflict,
		); err != nil {
			return errors.Wrapf(err, "insert decision for row %d", d.Row)
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit report")
	}
	return nil
}
