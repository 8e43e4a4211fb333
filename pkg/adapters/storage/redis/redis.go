package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aescanero/codeforge/pkg/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "codeforge:task:"

// TaskStorage implements ports.TaskStorage using Redis
type TaskStorage struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewTaskStorage creates a new Redis task storage. A zero ttl keeps tasks forever.
func NewTaskStorage(client *redis.Client, ttl time.Duration, logger *zap.Logger) *TaskStorage {
	return &TaskStorage{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveTask saves a task snapshot to Redis
func (s *TaskStorage) SaveTask(ctx context.Context, task *domain.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task id is required")
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	if err := s.client.Set(ctx, getTaskKey(task.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}

	s.logger.Debug("task saved",
		zap.String("task_id", task.ID),
		zap.String("status", string(task.Status)))

	return nil
}

// GetTask retrieves a task snapshot from Redis
func (s *TaskStorage) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	data, err := s.client.Get(ctx, getTaskKey(taskID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}

	return &task, nil
}

// ListTasks lists all stored tasks, oldest first
func (s *TaskStorage) ListTasks(ctx context.Context) ([]*domain.Task, error) {
	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	tasks := make([]*domain.Task, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			// expired between SCAN and GET
			continue
		}

		var task domain.Task
		if err := json.Unmarshal(data, &task); err != nil {
			s.logger.Warn("skipping unreadable task",
				zap.String("key", key),
				zap.Error(err))
			continue
		}

		tasks = append(tasks, &task)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].SubmittedAt.Before(tasks[j].SubmittedAt)
	})

	return tasks, nil
}

// Close closes the Redis client
func (s *TaskStorage) Close() error {
	return s.client.Close()
}

// getTaskKey returns the Redis key for a task
func getTaskKey(taskID string) string {
	return keyPrefix + taskID
}
