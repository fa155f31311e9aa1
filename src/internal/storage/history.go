package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const (
	KindCompare = "compare"
	KindScript  = "script"
	KindBatch   = "batch"
	KindTask    = "task"
)

var ErrRunNotFound = errors.New("run not found")

// Run is one recorded invocation of a pipeline, script or task.
type Run struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Subject    string    `json:"subject"`
	Compounds  []string  `json:"compounds,omitempty"`
	OutputPath string    `json:"output_path,omitempty"`
	ExitCode   int       `json:"exit_code"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

func (r *Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// History is the SQLite run log kept in history.db.
type History struct {
	db     *sql.DB
	dbPath string
}

func OpenHistory(dir string) (*History, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	dbPath := filepath.Join(dir, "history.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	h := &History{db: db, dbPath: dbPath}
	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return h, nil
}

func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) Path() string {
	return h.dbPath
}

func (h *History) initSchema() error {
	_, err := h.db.Exec(`
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		subject TEXT NOT NULL,
		compounds_json TEXT,
		output_path TEXT,
		exit_code INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind);
	`)
	return err
}

// Start inserts an unfinished run and returns it with a fresh id.
func (h *History) Start(ctx context.Context, kind, subject string, compounds []string, outputPath string) (*Run, error) {
	r := &Run{
		ID:         uuid.New().String(),
		Kind:       kind,
		Subject:    subject,
		Compounds:  compounds,
		OutputPath: outputPath,
		StartedAt:  time.Now().UTC(),
	}
	compoundsJSON, err := json.Marshal(compounds)
	if err != nil {
		return nil, err
	}
	_, err = h.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, subject, compounds_json, output_path, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, r.Subject, string(compoundsJSON), r.OutputPath, r.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	return r, nil
}

// Finish stores the outcome of r. runErr may be nil.
func (h *History) Finish(ctx context.Context, r *Run, exitCode int, runErr error) error {
	r.ExitCode = exitCode
	r.FinishedAt = time.Now().UTC()
	if runErr != nil {
		r.Error = runErr.Error()
	}
	res, err := h.db.ExecContext(ctx,
		`UPDATE runs SET exit_code = ?, error = ?, output_path = ?, finished_at = ? WHERE id = ?`,
		r.ExitCode, r.Error, r.OutputPath, r.FinishedAt, r.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, r.ID)
	}
	return nil
}

func (h *History) Get(ctx context.Context, id string) (*Run, error) {
	row := h.db.QueryRowContext(ctx,
		`SELECT id, kind, subject, compounds_json, output_path, exit_code, error, started_at, finished_at FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// List returns the newest runs first. An empty kind matches every kind.
func (h *History) List(ctx context.Context, kind string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, kind, subject, compounds_json, output_path, exit_code, error, started_at, finished_at FROM runs`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		r             Run
		compoundsJSON sql.NullString
		outputPath    sql.NullString
		errText       sql.NullString
		finishedAt    sql.NullTime
	)
	if err := s.Scan(&r.ID, &r.Kind, &r.Subject, &compoundsJSON, &outputPath, &r.ExitCode, &errText, &r.StartedAt, &finishedAt); err != nil {
		return nil, err
	}
	if compoundsJSON.Valid && compoundsJSON.String != "" {
		_ = json.Unmarshal([]byte(compoundsJSON.String), &r.Compounds)
	}
	r.OutputPath = outputPath.String
	r.Error = errText.String
	if finishedAt.Valid {
		r.FinishedAt = finishedAt.Time
	}
	return &r, nil
}
