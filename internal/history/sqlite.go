package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite stores deploy tasks in an embedded SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at dbPath.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS deploys (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			target TEXT NOT NULL,
			status TEXT NOT NULL,
			ref TEXT NOT NULL,
			sha TEXT NOT NULL,
			head_sha TEXT NOT NULL DEFAULT '',
			method TEXT NOT NULL,
			trigger_source TEXT NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			exit_code INTEGER,
			log_tail TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_target_seq
		ON deploys(target, seq DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Create inserts a new task.
func (s *SQLite) Create(ctx context.Context, task *Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deploys
		(id, target, status, ref, sha, head_sha, method, trigger_source,
		 started_at, completed_at, exit_code, log_tail, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		task.ID,
		task.Target,
		string(task.Status),
		task.Ref,
		task.SHA,
		task.HeadSHA,
		task.Method,
		task.Trigger,
		formatTime(task.StartedAt),
		formatTimePtr(task.CompletedAt),
		task.ExitCode,
		task.LogTail,
		task.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert deploy %s: %w", task.ID, err)
	}
	return nil
}

// Update overwrites the mutable fields of an existing task.
func (s *SQLite) Update(ctx context.Context, task *Task) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE deploys
		SET status = ?, head_sha = ?, completed_at = ?, exit_code = ?,
		    log_tail = ?, error_message = ?
		WHERE id = ?
	`,
		string(task.Status),
		task.HeadSHA,
		formatTimePtr(task.CompletedAt),
		task.ExitCode,
		task.LogTail,
		task.Error,
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update deploy %s: %w", task.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, task.ID)
	}
	return nil
}

// FailStale closes out tasks a previous process never finished.
func (s *SQLite) FailStale(ctx context.Context, target, reason string) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE deploys
		SET status = ?, completed_at = ?, exit_code = COALESCE(exit_code, -1),
		    error_message = ?
		WHERE target = ? AND status IN (?, ?)
	`,
		string(StatusFailed),
		formatTime(time.Now()),
		reason,
		target,
		string(StatusPending),
		string(StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale deploys: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(n), nil
}

const selectColumns = `
	SELECT id, target, status, ref, sha, head_sha, method, trigger_source,
	       started_at, completed_at, exit_code, log_tail, error_message
	FROM deploys`

// Get returns the task with the given id.
func (s *SQLite) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query deploy: %w", err)
	}
	return task, nil
}

// Latest returns the most recent task for target.
func (s *SQLite) Latest(ctx context.Context, target string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+`
		WHERE target = ?
		ORDER BY seq DESC
		LIMIT 1
	`, target)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest deploy: %w", err)
	}
	return task, nil
}

// List returns up to limit tasks, newest first.
func (s *SQLite) List(ctx context.Context, target string, limit int) ([]*Task, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var (
		rows *sql.Rows
		err  error
	)
	if target == "" {
		rows, err = s.db.QueryContext(ctx, selectColumns+` ORDER BY seq DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, selectColumns+`
			WHERE target = ?
			ORDER BY seq DESC
			LIMIT ?
		`, target, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query deploy history: %w", err)
	}
	defer rows.Close()

	tasks := []*Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deploy record: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return tasks, nil
}

// scanner is implemented by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(s scanner) (*Task, error) {
	var task Task
	var status string
	var startedAtStr string
	var completedAtStr sql.NullString
	var exitCode sql.NullInt64

	err := s.Scan(
		&task.ID,
		&task.Target,
		&status,
		&task.Ref,
		&task.SHA,
		&task.HeadSHA,
		&task.Method,
		&task.Trigger,
		&startedAtStr,
		&completedAtStr,
		&exitCode,
		&task.LogTail,
		&task.Error,
	)
	if err != nil {
		return nil, err
	}
	task.Status = Status(status)

	startedAt, err := time.Parse(time.RFC3339Nano, startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at timestamp: %w", err)
	}
	task.StartedAt = startedAt

	if completedAtStr.Valid {
		completedAt, err := time.Parse(time.RFC3339Nano, completedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at timestamp: %w", err)
		}
		task.CompletedAt = &completedAt
	}

	if exitCode.Valid {
		code := int(exitCode.Int64)
		task.ExitCode = &code
	}

	return &task, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := formatTime(*t)
	return &formatted
}
