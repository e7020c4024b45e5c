// Package audit is a write-only, append-only record of every evaluation
// and the probe runs that produced it, kept for offline analysis across
// process restarts. It never feeds back into a live session: the in-memory
// registry remains the sole source of truth for iteration state; sessions
// are not persisted or resumable, even though a history of past runs
// survives on disk.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/coderefine/engine/internal/model"
)

// Store wraps a sql.DB connection to the audit sqlite database.
type Store struct {
	conn *sql.DB
}

// Open creates (or reuses) the audit database at path and applies all
// pending migrations. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	migrationsFS, err := fs.Sub(MigrationFS, "migrations")
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations sub-fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, migrationsFS)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{conn: conn}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// RecordEval appends one EvalResult row for sessionID. Called after the
// pipeline has already published the result to the live session; a failure
// here never unwinds the iteration -- the audit trail is strictly secondary
// to in-memory state.
func (s *Store) RecordEval(sessionID string, r model.EvalResult) error {
	feedback, err := json.Marshal(r.Feedback)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}
	reasons, err := json.Marshal(r.Reasons)
	if err != nil {
		return fmt.Errorf("marshal reasons: %w", err)
	}

	var okDQ, okLint any
	if r.OKDataQuality.Present {
		okDQ = r.OKDataQuality.Value
	}
	if r.OKLint.Present {
		okLint = r.OKLint.Value
	}

	var testsPassed, testsFailed, testsTotal any
	if r.Tests.Present {
		testsPassed = r.Tests.Value.Passed
		testsFailed = r.Tests.Value.Failed
		testsTotal = r.Tests.Value.Total
	}

	var perfValue any
	if r.Perf.Present {
		perfValue = r.Perf.Value.Value
	}

	_, err = s.conn.Exec(
		`INSERT INTO eval_results (
			session_id, step, score, ema_score,
			ok_data_quality, ok_lint,
			tests_present, tests_passed, tests_failed, tests_total,
			perf_present, perf_value,
			feedback, should_halt, reasons
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, r.Step, r.Score, r.EMAScore,
		okDQ, okLint,
		r.Tests.Present, testsPassed, testsFailed, testsTotal,
		r.Perf.Present, perfValue,
		string(feedback), r.ShouldHalt, string(reasons),
	)
	if err != nil {
		return fmt.Errorf("insert eval_results: %w", err)
	}
	return nil
}

// RecordCommand appends one CommandResult row for one probe of one step.
func (s *Store) RecordCommand(sessionID string, step int, probe string, cr model.CommandResult) error {
	_, err := s.conn.Exec(
		`INSERT INTO command_results (session_id, step, probe, ok, exit_code, stdout, stderr)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, step, probe, cr.OK, cr.ExitCode, cr.Stdout, cr.Stderr,
	)
	if err != nil {
		return fmt.Errorf("insert command_results: %w", err)
	}
	return nil
}

// EvalRow is one row read back from the eval_results table, used by the
// dashboard to render a session's history without touching the live
// registry.
type EvalRow struct {
	Step       int
	Score      float64
	EMAScore   float64
	ShouldHalt bool
	Feedback   []string
	Reasons    []string
	RecordedAt string
}

// ListEvals returns every recorded evaluation for sessionID, ordered by
// step.
func (s *Store) ListEvals(sessionID string) ([]EvalRow, error) {
	rows, err := s.conn.Query(
		`SELECT step, score, ema_score, should_halt, feedback, reasons, recorded_at
		 FROM eval_results WHERE session_id = ? ORDER BY step ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query eval_results: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []EvalRow
	for rows.Next() {
		var row EvalRow
		var feedback, reasons string
		if err := rows.Scan(&row.Step, &row.Score, &row.EMAScore, &row.ShouldHalt, &feedback, &reasons, &row.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan eval_results: %w", err)
		}
		_ = json.Unmarshal([]byte(feedback), &row.Feedback)
		_ = json.Unmarshal([]byte(reasons), &row.Reasons)
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListSessionIDs returns the distinct session ids that have at least one
// recorded evaluation, most recently active first.
func (s *Store) ListSessionIDs() ([]string, error) {
	rows, err := s.conn.Query(
		`SELECT session_id FROM eval_results GROUP BY session_id ORDER BY MAX(recorded_at) DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query session ids: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
