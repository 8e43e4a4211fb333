package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/aescanero/codeforge/pkg/domain"
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

var keyPrefix = []byte("task/")

// Config holds the settings of the Badger database
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM
	InMemory bool

	SyncWrites bool
}

// TaskStorage implements ports.TaskStorage on an embedded Badger database
type TaskStorage struct {
	db     *badger.DB
	logger *zap.Logger
}

// zapLogger adapts zap to Badger's logger interface
type zapLogger struct {
	logger *zap.SugaredLogger
}

func (l *zapLogger) Errorf(format string, args ...interface{})   { l.logger.Errorf(format, args...) }
func (l *zapLogger) Warningf(format string, args ...interface{}) { l.logger.Warnf(format, args...) }
func (l *zapLogger) Infof(format string, args ...interface{})    { l.logger.Debugf(format, args...) }
func (l *zapLogger) Debugf(format string, args ...interface{})   { l.logger.Debugf(format, args...) }

// Open opens the database described by cfg
func Open(cfg Config, logger *zap.Logger) (*TaskStorage, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required for a persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&zapLogger{logger: logger.Named("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	return &TaskStorage{db: db, logger: logger}, nil
}

// SaveTask stores a task snapshot
func (s *TaskStorage) SaveTask(ctx context.Context, task *domain.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task id is required")
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(taskKey(task.ID), data)
	}); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// GetTask loads a task snapshot
func (s *TaskStorage) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	var task domain.Task

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(taskKey(taskID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &task)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return &task, nil
}

// ListTasks returns all tasks, oldest first
func (s *TaskStorage) ListTasks(ctx context.Context) ([]*domain.Task, error) {
	var tasks []*domain.Task

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var task domain.Task
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &task)
			}); err != nil {
				s.logger.Warn("skipping unreadable task",
					zap.ByteString("key", it.Item().Key()),
					zap.Error(err))
				continue
			}
			tasks = append(tasks, &task)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].SubmittedAt.Before(tasks[j].SubmittedAt)
	})
	return tasks, nil
}

// Close closes the database
func (s *TaskStorage) Close() error {
	return s.db.Close()
}

func taskKey(taskID string) []byte {
	return append(append([]byte(nil), keyPrefix...), taskID...)
}
