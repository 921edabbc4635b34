// Package history records service executions in SQLite.
//
// A run is opened with Begin before the plan executes and closed with Finish
// once it succeeds or fails. Run ids are prefixed ULIDs, so ordering by id is
// ordering by start time.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite"

	"github.com/GriffinCanCode/nbapi/internal/domain/plan"
	"github.com/GriffinCanCode/nbapi/internal/shared/id"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

var ErrNotFound = errors.New("run not found")

// Status is the state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// StageSummary is the persisted digest of one executed stage.
type StageSummary struct {
	Index   int           `json:"index"`
	CellID  string        `json:"cell_id,omitempty"`
	Outputs int           `json:"outputs"`
	Elapsed time.Duration `json:"elapsed"`
}

// Run is one recorded execution.
type Run struct {
	ID         string         `json:"id"`
	Service    string         `json:"service"`
	Status     Status         `json:"status"`
	Error      string         `json:"error,omitempty"`
	Digest     string         `json:"digest,omitempty"`
	Stages     []StageSummary `json:"stages,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// Elapsed returns the run duration, or zero while it is running.
func (r *Run) Elapsed() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summarize condenses an execution report for storage.
func Summarize(report *plan.Report) (string, []StageSummary) {
	if report == nil {
		return "", nil
	}
	stages := make([]StageSummary, len(report.Stages))
	for i, st := range report.Stages {
		outputs := 0
		for _, res := range st.Results {
			outputs += len(res.Outputs)
		}
		stages[i] = StageSummary{Index: st.Index, CellID: st.CellID, Outputs: outputs, Elapsed: st.Elapsed}
	}
	return report.Digest, stages
}

// Store persists runs.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open creates or opens the run database at path. ":memory:" keeps it in memory.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, now: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		service TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		digest TEXT NOT NULL DEFAULT '',
		stages_json TEXT NOT NULL DEFAULT '[]',
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_runs_service ON runs(service, id);
	`)
	return err
}

// Begin records the start of a run of service and returns its id.
func (s *Store) Begin(ctx context.Context, service string) (id.RunID, error) {
	runID := id.NewRunID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, service, status, started_at) VALUES (?, ?, ?, ?)`,
		runID.String(), service, string(StatusRunning), s.now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return runID, nil
}

// Finish closes a run. A nil runErr marks it succeeded.
func (s *Store) Finish(ctx context.Context, runID id.RunID, runErr error, digest string, stages []StageSummary) error {
	status, message := StatusSucceeded, ""
	if runErr != nil {
		status, message = StatusFailed, runErr.Error()
	}
	if stages == nil {
		stages = []StageSummary{}
	}
	stagesJSON, err := sonic.Marshal(stages)
	if err != nil {
		return fmt.Errorf("encode stages: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, digest = ?, stages_json = ?, finished_at = ? WHERE id = ?`,
		string(status), message, digest, string(stagesJSON), s.now().UnixNano(), runID.String(),
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return nil
}

// Get returns one run.
func (s *Store) Get(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+` WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return run, err
}

// List returns the newest runs first, optionally only those of service.
func (s *Store) List(ctx context.Context, service string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var (
		rows *sql.Rows
		err  error
	)
	if service == "" {
		rows, err = s.db.QueryContext(ctx, selectRuns+` ORDER BY id DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, selectRuns+` WHERE service = ? ORDER BY id DESC LIMIT ?`, service, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
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
	return runs, rows.Err()
}

const selectRuns = `SELECT id, service, status, error, digest, stages_json, started_at, finished_at FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run        Run
		status     string
		stagesJSON string
		started    int64
		finished   sql.NullInt64
	)
	if err := row.Scan(&run.ID, &run.Service, &status, &run.Error, &run.Digest, &stagesJSON, &started, &finished); err != nil {
		return nil, err
	}
	run.Status = Status(status)
	run.StartedAt = time.Unix(0, started).UTC()
	if finished.Valid {
		t := time.Unix(0, finished.Int64).UTC()
		run.FinishedAt = &t
	}
	if err := sonic.UnmarshalString(stagesJSON, &run.Stages); err != nil {
		return nil, fmt.Errorf("decode stages of %s: %w", run.ID, err)
	}
	return &run, nil
}
