package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements ports.MetricsCollector using Prometheus
type Collector struct {
	tasksSubmitted     *prometheus.CounterVec
	tasksCompleted     *prometheus.CounterVec
	taskDuration       *prometheus.HistogramVec
	stagesExecuted     *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	generationAttempts *prometheus.HistogramVec
	stageTokens        *prometheus.CounterVec
	ledgerUsed         prometheus.Gauge
	ledgerRemaining    prometheus.Gauge
	workerPoolIdle     prometheus.Gauge
	workerPoolBusy     prometheus.Gauge
	workerPoolStopped  prometheus.Gauge
	queueDepth         prometheus.Gauge
	llmCalls           *prometheus.CounterVec
	llmTokens          *prometheus.CounterVec
	llmLatency         *prometheus.HistogramVec
}

// NewCollector creates a collector registered with reg. A nil reg uses the
// default Prometheus registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		tasksSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codeforge_tasks_submitted_total",
				Help: "Total number of task submissions by outcome",
			},
			[]string{"status"},
		),
		tasksCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codeforge_tasks_completed_total",
				Help: "Total number of tasks that reached a terminal status",
			},
			[]string{"status"},
		),
		taskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "codeforge_task_duration_seconds",
				Help:    "Task execution duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
		stagesExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codeforge_stages_executed_total",
				Help: "Total number of stage invocations by outcome",
			},
			[]string{"stage", "status"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "codeforge_stage_duration_seconds",
				Help:    "Stage invocation duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		generationAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "codeforge_generation_attempts",
				Help:    "Generation attempts used per task",
				Buckets: []float64{1, 2, 3},
			},
			[]string{"review_passed"},
		),
		stageTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codeforge_stage_tokens_total",
				Help: "Tokens charged to the ledger by stage",
			},
			[]string{"stage"},
		),
		ledgerUsed: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "codeforge_ledger_tokens_used",
				Help: "Tokens used across all tasks",
			},
		),
		ledgerRemaining: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "codeforge_ledger_tokens_remaining",
				Help: "Tokens remaining before the limit",
			},
		),
		workerPoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "codeforge_worker_pool_idle",
				Help: "Number of idle workers",
			},
		),
		workerPoolBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "codeforge_worker_pool_busy",
				Help: "Number of busy workers",
			},
		),
		workerPoolStopped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "codeforge_worker_pool_stopped",
				Help: "Number of stopped workers",
			},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "codeforge_queue_depth",
				Help: "Tasks waiting for a worker",
			},
		),
		llmCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codeforge_llm_calls_total",
				Help: "Total number of LLM API calls",
			},
			[]string{"model", "status"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codeforge_llm_tokens_total",
				Help: "Total number of LLM tokens used",
			},
			[]string{"model", "type"},
		),
		llmLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "codeforge_llm_latency_seconds",
				Help:    "LLM API call latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 60},
			},
			[]string{"model"},
		),
	}
}

// RecordTaskSubmitted records a submission outcome
func (c *Collector) RecordTaskSubmitted(status string) {
	c.tasksSubmitted.WithLabelValues(status).Inc()
}

// RecordTaskCompleted records a task reaching a terminal status
func (c *Collector) RecordTaskCompleted(status string, duration time.Duration) {
	c.tasksCompleted.WithLabelValues(status).Inc()
	c.taskDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordStageExecuted records a stage invocation
func (c *Collector) RecordStageExecuted(stage, status string, duration time.Duration) {
	c.stagesExecuted.WithLabelValues(stage, status).Inc()
	if status != "skipped" {
		c.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	}
}

// RecordGenerationAttempts records how many attempts the generation loop used
func (c *Collector) RecordGenerationAttempts(attempts int, passed bool) {
	label := "false"
	if passed {
		label = "true"
	}
	c.generationAttempts.WithLabelValues(label).Observe(float64(attempts))
}

// RecordTokens records tokens charged by a stage
func (c *Collector) RecordTokens(stage string, tokens int64) {
	c.stageTokens.WithLabelValues(stage).Add(float64(tokens))
}

// RecordLedger records the ledger totals
func (c *Collector) RecordLedger(used, remaining int64) {
	c.ledgerUsed.Set(float64(used))
	c.ledgerRemaining.Set(float64(remaining))
}

// RecordWorkerPoolStatus records worker pool status
func (c *Collector) RecordWorkerPoolStatus(idle, busy, stopped, queued int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStopped.Set(float64(stopped))
	c.queueDepth.Set(float64(queued))
}

// RecordLLMCall records one LLM API call
func (c *Collector) RecordLLMCall(model string, duration time.Duration, inputTokens, outputTokens int64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.llmCalls.WithLabelValues(model, status).Inc()
	c.llmLatency.WithLabelValues(model).Observe(duration.Seconds())
	if inputTokens > 0 {
		c.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		c.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}
