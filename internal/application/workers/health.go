package workers

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultHealthInterval = 30 * time.Second

// HealthStatus is a point-in-time view of the pool
type HealthStatus struct {
	TotalWorkers   int       `json:"total_workers"`
	IdleWorkers    int       `json:"idle_workers"`
	BusyWorkers    int       `json:"busy_workers"`
	StoppedWorkers int       `json:"stopped_workers"`
	QueuedTasks    int       `json:"queued_tasks"`
	QueueCapacity  int       `json:"queue_capacity"`
	RunningTasks   []string  `json:"running_tasks,omitempty"`
	Healthy        bool      `json:"healthy"`
	Timestamp      time.Time `json:"timestamp"`
}

// Saturated reports whether every worker is busy and tasks are waiting
func (s *HealthStatus) Saturated() bool {
	return s.TotalWorkers > 0 && s.BusyWorkers == s.TotalWorkers && s.QueuedTasks > 0
}

// HealthMonitor samples the pool periodically, logging and recording the
// samples as metrics. Start and Stop may each be called any number of times.
type HealthMonitor struct {
	pool     *Pool
	interval time.Duration
	logger   *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}
}

// NewHealthMonitor creates a monitor sampling pool every interval
func NewHealthMonitor(pool *Pool, interval time.Duration, logger *zap.Logger) *HealthMonitor {
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthMonitor{
		pool:     pool,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins sampling. A monitor that was stopped does not restart.
func (h *HealthMonitor) Start() {
	h.startOnce.Do(func() {
		select {
		case <-h.stopCh:
			close(h.done)
			return
		default:
		}
		go h.run()
	})
}

// Stop ends sampling and waits for the sampling goroutine to exit
func (h *HealthMonitor) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
	// mark the monitor as started so a later Start is a no-op
	h.startOnce.Do(func() { close(h.done) })
	<-h.done
}

func (h *HealthMonitor) run() {
	defer close(h.done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.sample()
		}
	}
}

func (h *HealthMonitor) sample() {
	status := h.GetStatus()

	h.pool.metrics.RecordWorkerPoolStatus(
		status.IdleWorkers,
		status.BusyWorkers,
		status.StoppedWorkers,
		status.QueuedTasks,
	)

	fields := []zap.Field{
		zap.Int("idle", status.IdleWorkers),
		zap.Int("busy", status.BusyWorkers),
		zap.Int("stopped", status.StoppedWorkers),
		zap.Int("queued", status.QueuedTasks),
		zap.Strings("running_tasks", status.RunningTasks),
	}

	switch {
	case !status.Healthy:
		h.logger.Warn("worker pool is unhealthy", fields...)
	case status.Saturated():
		h.logger.Warn("all workers busy with tasks waiting", fields...)
	default:
		h.logger.Debug("worker pool health check", fields...)
	}
}

// GetStatus samples the pool now. The pool is healthy while every worker is
// running, busy or not.
func (h *HealthMonitor) GetStatus() *HealthStatus {
	status := &HealthStatus{
		TotalWorkers:  len(h.pool.workers),
		QueuedTasks:   h.pool.Queued(),
		QueueCapacity: cap(h.pool.queue),
		Timestamp:     time.Now(),
	}

	for _, w := range h.pool.workers {
		ws, taskID := w.snapshot()
		switch ws {
		case WorkerStatusIdle:
			status.IdleWorkers++
		case WorkerStatusBusy:
			status.BusyWorkers++
			status.RunningTasks = append(status.RunningTasks, taskID)
		case WorkerStatusStopped:
			status.StoppedWorkers++
		}
	}
	sort.Strings(status.RunningTasks)

	status.Healthy = status.TotalWorkers > 0 && status.StoppedWorkers == 0
	return status
}

// IsHealthy reports whether every worker is running
func (h *HealthMonitor) IsHealthy() bool {
	return h.GetStatus().Healthy
}

// Health returns the pool's health monitor
func (p *Pool) Health() *HealthMonitor {
	return p.health
}
