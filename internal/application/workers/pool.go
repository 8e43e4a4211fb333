package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/codeforge/pkg/domain"
	"github.com/aescanero/codeforge/pkg/ports"
	"go.uber.org/zap"
)

// Runner drives one task to a terminal status
type Runner interface {
	Run(ctx context.Context, taskID string) error
}

// Pool manages a pool of worker goroutines
type Pool struct {
	size    int
	runner  Runner
	metrics ports.MetricsCollector
	logger  *zap.Logger
	health  *HealthMonitor

	queue   chan string
	workers []*worker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.RWMutex
	started bool
	stopped bool
}

// worker represents a single worker goroutine
type worker struct {
	id     string
	pool   *Pool
	status WorkerStatus
	taskID string
	mu     sync.RWMutex
}

// WorkerStatus represents worker status
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// NewPool creates a new worker pool with a queue of queueSize pending tasks
func NewPool(
	size int,
	queueSize int,
	runner Runner,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	healthCheckInterval time.Duration,
) *Pool {
	if size < 1 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		size:    size,
		runner:  runner,
		metrics: metrics,
		logger:  logger,
		queue:   make(chan string, queueSize),
		workers: make([]*worker, size),
		ctx:     ctx,
		cancel:  cancel,
	}

	for i := 0; i < size; i++ {
		pool.workers[i] = &worker{
			id:     fmt.Sprintf("worker-%d", i),
			pool:   pool,
			status: WorkerStatusStopped,
		}
	}

	pool.health = NewHealthMonitor(pool, healthCheckInterval, logger)

	return pool
}

// Start starts the worker pool
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("worker pool already started")
	}
	p.started = true

	p.logger.Info("starting worker pool",
		zap.Int("size", p.size),
		zap.Int("queue", cap(p.queue)))

	for _, w := range p.workers {
		w.setStatus(WorkerStatusIdle, "")
		p.wg.Add(1)
		go w.run(p.ctx)
	}

	p.health.Start()

	p.logger.Info("worker pool started", zap.Int("workers", p.size))
	return nil
}

// Dispatch queues a task id for execution. It never blocks: when the queue is
// full it returns domain.ErrQueueFull.
func (p *Pool) Dispatch(taskID string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return fmt.Errorf("%w: worker pool is stopped", domain.ErrQueueFull)
	}

	select {
	case p.queue <- taskID:
		return nil
	default:
		return fmt.Errorf("%w: %d tasks waiting", domain.ErrQueueFull, len(p.queue))
	}
}

// Shutdown stops the workers, interrupting running tasks, and waits for them to exit
func (p *Pool) Shutdown(ctx context.Context) error {
	p.logger.Info("shutting down worker pool")

	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	p.health.Stop()

	// Cancel context to signal workers to stop
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool shut down complete",
			zap.Int("abandoned", len(p.queue)))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}

// Queued returns the number of tasks waiting for a worker
func (p *Pool) Queued() int {
	return len(p.queue)
}

// Size returns the number of workers
func (p *Pool) Size() int {
	return p.size
}

// GetStatus returns the status of all workers
func (p *Pool) GetStatus() map[string]WorkerStatus {
	status := make(map[string]WorkerStatus, len(p.workers))
	for _, w := range p.workers {
		status[w.id], _ = w.snapshot()
	}
	return status
}

// run is the main worker loop
func (w *worker) run(ctx context.Context) {
	defer w.pool.wg.Done()

	w.pool.logger.Debug("worker started", zap.String("worker_id", w.id))

	for {
		select {
		case <-ctx.Done():
			w.setStatus(WorkerStatusStopped, "")
			w.pool.logger.Debug("worker stopped", zap.String("worker_id", w.id))
			return
		case taskID := <-w.pool.queue:
			w.handleTask(ctx, taskID)
		}
	}
}

// handleTask runs one task
func (w *worker) handleTask(ctx context.Context, taskID string) {
	w.setStatus(WorkerStatusBusy, taskID)
	defer w.setStatus(WorkerStatusIdle, "")

	w.pool.logger.Info("running task",
		zap.String("worker_id", w.id),
		zap.String("task_id", taskID))

	start := time.Now()

	func() {
		defer func() {
			if p := recover(); p != nil {
				w.pool.logger.Error("task runner panicked",
					zap.String("worker_id", w.id),
					zap.String("task_id", taskID),
					zap.Any("panic", p))
			}
		}()

		if err := w.pool.runner.Run(ctx, taskID); err != nil {
			w.pool.logger.Error("failed to run task",
				zap.String("worker_id", w.id),
				zap.String("task_id", taskID),
				zap.Error(err))
		}
	}()

	w.pool.logger.Info("task finished",
		zap.String("worker_id", w.id),
		zap.String("task_id", taskID),
		zap.Duration("duration", time.Since(start)))
}

func (w *worker) setStatus(status WorkerStatus, taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.status = status
	w.taskID = taskID
}

func (w *worker) snapshot() (WorkerStatus, string) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status, w.taskID
}
