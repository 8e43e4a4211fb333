// Package ports declares the interfaces between the CodeForge core and its adapters.
package ports

import (
	"context"
	"time"

	"github.com/aescanero/codeforge/pkg/domain"
)

// EventHandler handles an event received from the bus
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes task events and delivers them to subscribers
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

// TaskStorage persists task records. Implementations store whole snapshots;
// read-modify-write serialization is the caller's concern.
type TaskStorage interface {
	SaveTask(ctx context.Context, task *domain.Task) error
	GetTask(ctx context.Context, taskID string) (*domain.Task, error)
	ListTasks(ctx context.Context) ([]*domain.Task, error)
	Close() error
}

// LLMClient generates completions from a text-generation backend
type LLMClient interface {
	GenerateCompletion(ctx context.Context, req *domain.LLMRequest) (*domain.LLMResponse, error)
}

// Agents is the contract of the external stage collaborators. Every call reports
// the usage it consumed so the driver can charge the resource ledger.
type Agents interface {
	Decompose(ctx context.Context, request string) (*domain.TaskSpec, domain.Usage, error)
	Generate(ctx context.Context, language, taskSpec string) (string, domain.Usage, error)
	Extract(ctx context.Context, raw string) (string, domain.Usage, error)
	Review(ctx context.Context, language, code string) (string, domain.Usage, error)
	Classify(ctx context.Context, review string) (bool, domain.Usage, error)
	GenerateTests(ctx context.Context, language, code string) (string, domain.Usage, error)
	Execute(ctx context.Context, language, code string) (string, domain.Usage, error)
}

// ArtifactStore persists generated files and the cumulative run log
type ArtifactStore interface {
	WriteCode(taskID, language, code string) (string, error)
	WriteTests(taskID, language, tests string) (string, error)
	AppendRunLog(taskID, block string) (string, error)
}

// MetricsCollector records orchestration metrics
type MetricsCollector interface {
	RecordTaskSubmitted(status string)
	RecordTaskCompleted(status string, duration time.Duration)
	RecordStageExecuted(stage, status string, duration time.Duration)
	RecordGenerationAttempts(attempts int, passed bool)
	RecordTokens(stage string, tokens int64)
	RecordLedger(used, remaining int64)
	RecordWorkerPoolStatus(idle, busy, stopped, queued int)
}
