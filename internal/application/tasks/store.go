// Package tasks keeps the lifecycle records of submitted tasks.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/codeforge/pkg/domain"
	"github.com/aescanero/codeforge/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store owns task records. Every mutation is a read-modify-write of the stored
// snapshot under a per-task lock, followed by an event on the bus.
type Store struct {
	storage  ports.TaskStorage
	eventBus ports.EventBus
	logger   *zap.Logger
	now      func() time.Time

	locks sync.Map // map[string]*sync.Mutex
}

// NewStore creates a task store on top of a storage backend
func NewStore(storage ports.TaskStorage, eventBus ports.EventBus, logger *zap.Logger) *Store {
	return &Store{
		storage:  storage,
		eventBus: eventBus,
		logger:   logger,
		now:      time.Now,
	}
}

// Create registers a new pending task
func (s *Store) Create(ctx context.Context, request string, stageOrder []string, graph *domain.ExecutionGraph) (*domain.Task, error) {
	task := &domain.Task{
		ID:          uuid.New().String(),
		Request:     request,
		StageOrder:  append([]string(nil), stageOrder...),
		Status:      domain.TaskStatusPending,
		State:       domain.PipelineState{Request: request},
		Logs:        []domain.LogEntry{},
		Graph:       graph.Clone(),
		SubmittedAt: s.now(),
	}

	if err := s.storage.SaveTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	s.publish(ctx, task.ID, domain.EventTypeTaskSubmitted, map[string]interface{}{
		"stage_order": task.StageOrder,
	})

	return task.Clone(), nil
}

// Get returns a snapshot of a task
func (s *Store) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	return s.storage.GetTask(ctx, taskID)
}

// List returns snapshots of all tasks, oldest first
func (s *Store) List(ctx context.Context) ([]*domain.Task, error) {
	return s.storage.ListTasks(ctx)
}

// AppendLog adds a timestamped entry to the task log. Timestamps never go
// backwards within a task.
func (s *Store) AppendLog(ctx context.Context, taskID, message string) error {
	var entry domain.LogEntry
	_, err := s.update(ctx, taskID, func(t *domain.Task) error {
		ts := s.now()
		if n := len(t.Logs); n > 0 && ts.Before(t.Logs[n-1].Timestamp) {
			ts = t.Logs[n-1].Timestamp
		}
		entry = domain.LogEntry{Timestamp: ts, Message: message}
		t.Logs = append(t.Logs, entry)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info(message, zap.String("task_id", taskID))
	s.publish(ctx, taskID, domain.EventTypeTaskLog, map[string]interface{}{
		"line": entry.String(),
	})
	return nil
}

// SetStatus moves a task to a non-terminal status. Use Finish for terminal ones.
func (s *Store) SetStatus(ctx context.Context, taskID string, status domain.TaskStatus) error {
	if status.IsTerminal() {
		return fmt.Errorf("%w: use Finish to move to %s", domain.ErrInvalidTransition, status)
	}

	_, err := s.update(ctx, taskID, func(t *domain.Task) error {
		if err := checkTransition(t.Status, status); err != nil {
			return err
		}
		t.Status = status
		if status == domain.TaskStatusRunning {
			started := s.now()
			t.StartedAt = &started
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, taskID, domain.EventTypeTaskStatus, map[string]interface{}{
		"status": string(status),
	})
	return nil
}

// Finish moves a task to a terminal status and records its result in one step.
func (s *Store) Finish(ctx context.Context, taskID string, status domain.TaskStatus, result *domain.TaskResult) (*domain.Task, error) {
	if !status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is not terminal", domain.ErrInvalidTransition, status)
	}

	task, err := s.update(ctx, taskID, func(t *domain.Task) error {
		if err := checkTransition(t.Status, status); err != nil {
			return err
		}
		completed := s.now()
		t.Status = status
		t.CompletedAt = &completed
		if result != nil {
			r := *result
			t.Result = &r
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	eventType := domain.EventTypeTaskCompleted
	data := map[string]interface{}{"status": string(status)}
	if status == domain.TaskStatusError {
		eventType = domain.EventTypeTaskFailed
		if result != nil {
			data["error"] = result.Error
		}
	}
	s.publish(ctx, taskID, eventType, data)

	return task, nil
}

// SetState replaces the pipeline state of a running task
func (s *Store) SetState(ctx context.Context, taskID string, state domain.PipelineState) error {
	_, err := s.update(ctx, taskID, func(t *domain.Task) error {
		if t.Status.IsTerminal() {
			return fmt.Errorf("%w: %s", domain.ErrTerminalState, t.Status)
		}
		st := state.Clone()
		st.Request = t.Request
		t.State = st
		return nil
	})
	return err
}

// AddTokens adds to the task's token counter
func (s *Store) AddTokens(ctx context.Context, taskID string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("negative token amount %d", amount)
	}
	_, err := s.update(ctx, taskID, func(t *domain.Task) error {
		t.TokensUsed += amount
		return nil
	})
	return err
}

// PublishStage reports a stage transition on the event bus
func (s *Store) PublishStage(ctx context.Context, taskID, stage string, eventType domain.EventType, data map[string]interface{}) {
	s.publishEvent(ctx, domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		TaskID:    taskID,
		Stage:     stage,
		Timestamp: s.now(),
		Data:      data,
	})
}

// update serializes a read-modify-write of one task
func (s *Store) update(ctx context.Context, taskID string, fn func(t *domain.Task) error) (*domain.Task, error) {
	mu := s.lock(taskID)
	mu.Lock()
	defer mu.Unlock()

	task, err := s.storage.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if err := fn(task); err != nil {
		return nil, err
	}

	if err := s.storage.SaveTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	return task, nil
}

func (s *Store) lock(taskID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(taskID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *Store) publish(ctx context.Context, taskID string, eventType domain.EventType, data map[string]interface{}) {
	s.publishEvent(ctx, domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		TaskID:    taskID,
		Timestamp: s.now(),
		Data:      data,
	})
}

func (s *Store) publishEvent(ctx context.Context, event domain.Event) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, domain.TaskEventsTopic, event); err != nil {
		s.logger.Error("failed to publish task event",
			zap.String("task_id", event.TaskID),
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}

func checkTransition(from, to domain.TaskStatus) error {
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s", domain.ErrTerminalState, from)
	}
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	return nil
}
