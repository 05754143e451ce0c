// Package history records review-logs scans in a SQLite database so runs
// can be listed, inspected and compared with each other.
package history

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/nielsmadan/agentic-coding/internal/behavioral"
)

var (
	// ErrRunNotFound is returned when no run matches the requested id
	ErrRunNotFound = errors.New("run not found")

	// ErrAmbiguousRunID is returned when a run id prefix matches several runs
	ErrAmbiguousRunID = errors.New("ambiguous run id")

	// ErrNoActiveRun is returned by RecordSession before BeginRun
	ErrNoActiveRun = errors.New("no active run")
)

// Run is one recorded scan
type Run struct {
	ID              string
	StartedAt       time.Time
	FinishedAt      *time.Time // nil while the scan is in progress
	Days            int
	Project         string
	SessionsScanned int
	SessionsSkipped int
	TotalToolCalls  int
	TotalErrors     int
	RetryLoops      int
	SkippedPaths    []string
	ReportJSON      string
}

// Finished reports whether the run completed
func (r *Run) Finished() bool {
	return r.FinishedAt != nil
}

// SessionRecord is the per-session signal summary stored with a run
type SessionRecord struct {
	RunID             string
	SessionID         string
	Project           string
	ToolCalls         int
	Errors            int
	ErrorRate         float64
	RetryLoops        int
	Misbehaviors      int
	PermissionDenials int
	RecordedAt        time.Time
}

// Store manages the SQLite run history database
type Store struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time

	mu        sync.Mutex // serializes writes and guards activeRun
	activeRun string
}

// NewStore creates a new Store instance and initializes the database
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout=5000", // Must be first
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	store := &Store{
		db:     db,
		dbPath: dbPath,
		now:    time.Now,
	}

	if err := store.ApplyMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

// execWithRetry executes a SQL statement with exponential backoff retry on lock errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.dbPath
}

// RecordRun inserts a run row. A missing ID is filled with a new UUID and a
// zero StartedAt with the current time.
func (s *Store) RecordRun(ctx context.Context, run *Run) error {
	if run == nil {
		return errors.New("run cannot be nil")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now()
	}

	skipped, err := marshalPaths(run.SkippedPaths)
	if err != nil {
		return err
	}

	var finished interface{}
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}

	query := `INSERT INTO scan_runs
		(id, started_at, finished_at, days, project, sessions_scanned, sessions_skipped,
		 total_tool_calls, total_errors, retry_loops, skipped_paths, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, query,
		run.ID, run.StartedAt.UTC(), finished, run.Days, run.Project,
		run.SessionsScanned, run.SessionsSkipped, run.TotalToolCalls, run.TotalErrors,
		run.RetryLoops, skipped, run.ReportJSON,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// BeginRun records a new in-progress run and makes it the target of
// RecordSession
func (s *Store) BeginRun(ctx context.Context, days int, project string) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		StartedAt: s.now(),
		Days:      days,
		Project:   project,
	}
	if err := s.RecordRun(ctx, run); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.activeRun = run.ID
	s.mu.Unlock()
	return run, nil
}

// FinishRun stores the run totals and report, and ends the active run
func (s *Store) FinishRun(ctx context.Context, runID string, stats behavioral.RunStats, report *behavioral.Report) error {
	if report == nil {
		return errors.New("report cannot be nil")
	}

	var data bytes.Buffer
	enc := json.NewEncoder(&data)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	skipped, err := marshalPaths(stats.SkippedPaths)
	if err != nil {
		return err
	}

	query := `UPDATE scan_runs SET
		finished_at = ?, sessions_scanned = ?, sessions_skipped = ?,
		total_tool_calls = ?, total_errors = ?, retry_loops = ?,
		skipped_paths = ?, report_json = ?
		WHERE id = ?`

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, query,
		s.now().UTC(), stats.Scanned, stats.Skipped,
		report.Meta.TotalToolCalls, report.Meta.TotalErrors, report.RetryLoops.Total,
		skipped, strings.TrimSpace(data.String()), runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}

	if s.activeRun == runID {
		s.activeRun = ""
	}
	return nil
}

// RecordSession stores one scanned session against the active run.
// It implements behavioral.SessionSink.
func (s *Store) RecordSession(ctx context.Context, stats *behavioral.SessionStats) error {
	if stats == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeRun == "" {
		return ErrNoActiveRun
	}

	query := `INSERT INTO session_signals
		(run_id, session_id, project, tool_calls, errors, error_rate, retry_loops,
		 misbehaviors, permission_denials, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		s.activeRun, stats.SessionID, stats.Project, stats.TotalToolCalls, stats.TotalErrors,
		stats.ErrorRate(), len(stats.RetryLoops), len(stats.Misbehaviors),
		len(stats.PermissionDenials), s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", stats.SessionID, err)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, days, project, sessions_scanned, sessions_skipped,
	total_tool_calls, total_errors, retry_loops, skipped_paths, report_json`

// ListRuns returns runs newest first. limit <= 0 returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM scan_runs ORDER BY started_at DESC, rowid DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns the run with the given id. A unique id prefix is accepted.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrRunNotFound
	}

	query := `SELECT ` + runColumns + ` FROM scan_runs WHERE id = ? OR id LIKE ? ESCAPE '\' ORDER BY id = ? DESC LIMIT 2`
	rows, err := s.db.QueryContext(ctx, query, id, escapeLike(id)+"%", id)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	defer rows.Close()

	var found []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	switch {
	case len(found) == 0:
		return nil, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	case found[0].ID == id || len(found) == 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%s: %w", id, ErrAmbiguousRunID)
	}
}

// PreviousRun returns the newest finished run started before the given time
func (s *Store) PreviousRun(ctx context.Context, before time.Time) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM scan_runs
		WHERE finished_at IS NOT NULL AND started_at < ?
		ORDER BY started_at DESC, rowid DESC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, before.UTC())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return run, err
}

// SessionHistory returns every recorded scan of one session, oldest run first
func (s *Store) SessionHistory(ctx context.Context, sessionID string) ([]*SessionRecord, error) {
	query := `SELECT ss.run_id, ss.session_id, ss.project, ss.tool_calls, ss.errors, ss.error_rate,
		ss.retry_loops, ss.misbehaviors, ss.permission_denials, ss.recorded_at
		FROM session_signals ss JOIN scan_runs r ON r.id = ss.run_id
		WHERE ss.session_id = ?
		ORDER BY r.started_at ASC, ss.id ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session history: %w", err)
	}
	defer rows.Close()

	records := []*SessionRecord{}
	for rows.Next() {
		rec := &SessionRecord{}
		var project sql.NullString
		if err := rows.Scan(&rec.RunID, &rec.SessionID, &project, &rec.ToolCalls, &rec.Errors,
			&rec.ErrorRate, &rec.RetryLoops, &rec.Misbehaviors, &rec.PermissionDenials, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan session record: %w", err)
		}
		rec.Project = project.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session history: %w", err)
	}
	return records, nil
}

// PruneRuns deletes all but the newest keep runs along with their sessions.
// keep <= 0 keeps everything. Returns the number of runs deleted.
func (s *Store) PruneRuns(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stale := `SELECT id FROM scan_runs ORDER BY started_at DESC, rowid DESC LIMIT -1 OFFSET ?`
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_signals WHERE run_id IN (`+stale+`)`, keep); err != nil {
		return 0, fmt.Errorf("delete stale sessions: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM scan_runs WHERE id IN (`+stale+`)`, keep)
	if err != nil {
		return 0, fmt.Errorf("delete stale runs: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted runs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return deleted, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var (
		finished sql.NullTime
		project  sql.NullString
		skipped  sql.NullString
		report   sql.NullString
	)
	err := row.Scan(&run.ID, &run.StartedAt, &finished, &run.Days, &project,
		&run.SessionsScanned, &run.SessionsSkipped, &run.TotalToolCalls, &run.TotalErrors,
		&run.RetryLoops, &skipped, &report)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	run.Project = project.String
	run.ReportJSON = report.String
	if skipped.Valid && skipped.String != "" {
		if err := json.Unmarshal([]byte(skipped.String), &run.SkippedPaths); err != nil {
			return nil, fmt.Errorf("unmarshal skipped paths: %w", err)
		}
	}
	return run, nil
}

func marshalPaths(paths []string) (string, error) {
	if len(paths) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(paths)
	if err != nil {
		return "", fmt.Errorf("marshal skipped paths: %w", err)
	}
	return string(data), nil
}

// escapeLike escapes LIKE wildcards so a prefix matches literally
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}
