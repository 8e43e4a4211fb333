package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aescanero/codeforge/pkg/domain"
)

// TaskStorage implements ports.TaskStorage using an in-memory map
type TaskStorage struct {
	tasks map[string]*domain.Task
	mu    sync.RWMutex
}

// NewTaskStorage creates a new in-memory task storage
func NewTaskStorage() *TaskStorage {
	return &TaskStorage{
		tasks: make(map[string]*domain.Task),
	}
}

// SaveTask stores a copy of the task
func (s *TaskStorage) SaveTask(ctx context.Context, task *domain.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[task.ID] = task.Clone()
	return nil
}

// GetTask returns a copy of the stored task
func (s *TaskStorage) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
	}
	return task.Clone(), nil
}

// ListTasks returns copies of all tasks, oldest first
func (s *TaskStorage) ListTasks(ctx context.Context) ([]*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]*domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t.Clone())
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].SubmittedAt.Before(tasks[j].SubmittedAt)
	})
	return tasks, nil
}

// Close is a no-op
func (s *TaskStorage) Close() error {
	return nil
}
