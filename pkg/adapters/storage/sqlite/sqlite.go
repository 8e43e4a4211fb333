package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aescanero/codeforge/pkg/domain"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	body         BLOB NOT NULL,
	submitted_at TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS tasks_submitted_at ON tasks(submitted_at);`

// timeLayout is fixed width so that submitted_at sorts lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// TaskStorage implements ports.TaskStorage on SQLite
type TaskStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) a SQLite task store. Use ":memory:" for an in-memory database.
func Open(path string, logger *zap.Logger) (*TaskStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %q: %w", path, err)
	}

	// one connection: ":memory:" databases are per connection and writes serialize anyway
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set WAL mode: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &TaskStorage{db: db, logger: logger}, nil
}

// SaveTask upserts a task snapshot
func (s *TaskStorage) SaveTask(ctx context.Context, task *domain.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task id is required")
	}

	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, status, body, submitted_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			body = excluded.body,
			updated_at = excluded.updated_at`,
		task.ID,
		string(task.Status),
		body,
		task.SubmittedAt.UTC().Format(timeLayout),
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}
	return nil
}

// GetTask loads a task snapshot
func (s *TaskStorage) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, "SELECT body FROM tasks WHERE id = ?", taskID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", taskID, err)
	}

	var task domain.Task
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task %s: %w", taskID, err)
	}
	return &task, nil
}

// ListTasks returns all tasks, oldest first
func (s *TaskStorage) ListTasks(ctx context.Context) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, body FROM tasks ORDER BY submitted_at ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		var task domain.Task
		if err := json.Unmarshal(body, &task); err != nil {
			s.logger.Warn("skipping unreadable task", zap.String("task_id", id), zap.Error(err))
			continue
		}
		tasks = append(tasks, &task)
	}
	return tasks, rows.Err()
}

// Close closes the database
func (s *TaskStorage) Close() error {
	return s.db.Close()
}
