package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aescanero/codeforge/internal/application/accounting"
	"github.com/aescanero/codeforge/internal/application/pipeline"
	"github.com/aescanero/codeforge/internal/application/tasks"
	"github.com/aescanero/codeforge/pkg/domain"
	"github.com/aescanero/codeforge/pkg/ports"
	"go.uber.org/zap"
)

// Dispatcher hands a task id to a background execution unit
type Dispatcher interface {
	Dispatch(taskID string) error
}

// TaskStatus is the status view of a task
type TaskStatus struct {
	TaskID          string `json:"task_id"`
	Status          string `json:"status"`
	TokensUsed      int64  `json:"tokens_used"`
	TokensRemaining int64  `json:"tokens_remaining"`
	TokenLimit      int64  `json:"token_limit"`
}

// StagesInfo describes the stages known to the registry
type StagesInfo struct {
	DefaultOrder    []string                 `json:"default_order"`
	Stages          []pipeline.StageSpec     `json:"stages"`
	ConcurrentGroup pipeline.ConcurrentGroup `json:"concurrent_group"`
}

// Manager is the submission and query facade of the orchestrator
type Manager struct {
	registry   *pipeline.Registry
	tasks      *tasks.Store
	ledger     *accounting.Ledger
	validator  *Validator
	dispatcher Dispatcher
	metrics    ports.MetricsCollector
	logger     *zap.Logger

	mu       sync.RWMutex
	shutdown bool
}

// NewManager creates a new orchestrator manager
func NewManager(
	registry *pipeline.Registry,
	store *tasks.Store,
	ledger *accounting.Ledger,
	validator *Validator,
	dispatcher Dispatcher,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		registry:   registry,
		tasks:      store,
		ledger:     ledger,
		validator:  validator,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
	}
}

// Submit validates a submission, creates its task and dispatches it for
// background execution. The returned task is pending.
func (m *Manager) Submit(ctx context.Context, sub *Submission) (*domain.Task, error) {
	m.mu.RLock()
	closed := m.shutdown
	m.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("%w: service is shutting down", domain.ErrQueueFull)
	}

	plan, err := m.validator.Validate(sub)
	if err != nil {
		m.logger.Warn("submission rejected", zap.Error(err))
		m.metrics.RecordTaskSubmitted("rejected")
		return nil, err
	}

	graph := m.registry.BuildGraph(plan.Order)

	task, err := m.tasks.Create(ctx, sub.Task, plan.Order, graph)
	if err != nil {
		m.logger.Error("failed to create task", zap.Error(err))
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	if err := m.tasks.AppendLog(ctx, task.ID, "Task received. Queued for processing."); err != nil {
		m.logger.Error("failed to append task log", zap.String("task_id", task.ID), zap.Error(err))
	}

	if err := m.dispatcher.Dispatch(task.ID); err != nil {
		m.logger.Warn("failed to dispatch task",
			zap.String("task_id", task.ID),
			zap.Error(err))
		m.metrics.RecordTaskSubmitted("rejected")
		if _, ferr := m.tasks.Finish(ctx, task.ID, domain.TaskStatusError, &domain.TaskResult{Error: err.Error()}); ferr != nil {
			m.logger.Error("failed to fail undispatched task", zap.String("task_id", task.ID), zap.Error(ferr))
		}
		return nil, err
	}

	m.metrics.RecordTaskSubmitted(string(domain.TaskStatusPending))
	m.logger.Info("task submitted",
		zap.String("task_id", task.ID),
		zap.Strings("stage_order", plan.Order))

	return task, nil
}

// Get returns a snapshot of a task
func (m *Manager) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	return m.tasks.Get(ctx, taskID)
}

// List returns snapshots of all tasks, oldest first
func (m *Manager) List(ctx context.Context) ([]*domain.Task, error) {
	return m.tasks.List(ctx)
}

// Status returns the status view of a task
func (m *Manager) Status(ctx context.Context, taskID string) (*TaskStatus, error) {
	task, err := m.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	snap := m.ledger.Snapshot()
	return &TaskStatus{
		TaskID:          task.ID,
		Status:          string(task.Status),
		TokensUsed:      task.TokensUsed,
		TokensRemaining: snap.Remaining,
		TokenLimit:      snap.Limit,
	}, nil
}

// Logs returns the log trail of a task in append order
func (m *Manager) Logs(ctx context.Context, taskID string) ([]domain.LogEntry, error) {
	task, err := m.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return task.Logs, nil
}

// Result returns the result of a finished task
func (m *Manager) Result(ctx context.Context, taskID string) (*domain.TaskResult, error) {
	task, err := m.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.Status.IsTerminal() || task.Result == nil {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrTaskNotFinished, taskID, task.Status)
	}
	return task.Result, nil
}

// Graph returns the execution graph of a task
func (m *Manager) Graph(ctx context.Context, taskID string) (*domain.ExecutionGraph, error) {
	task, err := m.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Graph == nil {
		return &domain.ExecutionGraph{Nodes: []domain.GraphNode{}, Edges: []domain.GraphEdge{}}, nil
	}
	return task.Graph, nil
}

// Tokens returns the process-wide ledger snapshot
func (m *Manager) Tokens() accounting.Snapshot {
	return m.ledger.Snapshot()
}

// Stages describes the registered stages
func (m *Manager) Stages() StagesInfo {
	return StagesInfo{
		DefaultOrder:    m.registry.DefaultOrder(),
		Stages:          m.registry.Stages(),
		ConcurrentGroup: m.registry.ConcurrentGroup(),
	}
}

// Shutdown stops accepting submissions and fails tasks still waiting for a
// worker. Running tasks are interrupted by the worker pool.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down orchestrator manager")

	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()

	all, err := m.tasks.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	for _, t := range all {
		if t.Status != domain.TaskStatusPending {
			continue
		}
		_ = m.tasks.AppendLog(ctx, t.ID, "Error: service shut down before the task started")
		_, err := m.tasks.Finish(ctx, t.ID, domain.TaskStatusError, &domain.TaskResult{
			Error: "service shut down before the task started",
		})
		if err != nil && !errors.Is(err, domain.ErrTerminalState) && !errors.Is(err, domain.ErrInvalidTransition) {
			m.logger.Error("failed to fail pending task", zap.String("task_id", t.ID), zap.Error(err))
		}
	}

	m.logger.Info("orchestrator manager shut down complete")
	return nil
}
