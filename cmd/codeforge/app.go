package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aescanero/codeforge/internal/application/accounting"
	"github.com/aescanero/codeforge/internal/application/orchestrator"
	"github.com/aescanero/codeforge/internal/application/pipeline"
	"github.com/aescanero/codeforge/internal/application/tasks"
	"github.com/aescanero/codeforge/internal/application/workers"
	"github.com/aescanero/codeforge/internal/config"
	"github.com/aescanero/codeforge/pkg/adapters/agents"
	"github.com/aescanero/codeforge/pkg/adapters/artifacts/filesystem"
	eventsmem "github.com/aescanero/codeforge/pkg/adapters/events/memory"
	eventsredis "github.com/aescanero/codeforge/pkg/adapters/events/redis"
	"github.com/aescanero/codeforge/pkg/adapters/llm"
	"github.com/aescanero/codeforge/pkg/adapters/metrics/prometheus"
	"github.com/aescanero/codeforge/pkg/adapters/storage/badger"
	storagemem "github.com/aescanero/codeforge/pkg/adapters/storage/memory"
	storageredis "github.com/aescanero/codeforge/pkg/adapters/storage/redis"
	"github.com/aescanero/codeforge/pkg/adapters/storage/sqlite"
	"github.com/aescanero/codeforge/pkg/ports"
	prom "github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app holds the wired components shared by the serve and run commands
type app struct {
	logger    *zap.Logger
	redis     *goredis.Client
	storage   ports.TaskStorage
	eventBus  ports.EventBus
	metrics   *prometheus.Collector
	gatherer  prom.Gatherer
	registry  *pipeline.Registry
	store     *tasks.Store
	ledger    *accounting.Ledger
	driver    *orchestrator.Driver
	pool      *workers.Pool
	manager   *orchestrator.Manager
	artifacts *filesystem.Store
}

// newApp wires every component from the configuration. The worker pool is
// created but not started.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{logger: logger}

	reg := prom.NewRegistry()
	reg.MustRegister(prom.NewGoCollector(), prom.NewProcessCollector(prom.ProcessCollectorOpts{}))
	a.metrics = prometheus.NewCollector(reg)
	a.gatherer = reg

	if cfg.Storage.Backend == "redis" || cfg.Events.Backend == "redis" {
		a.redis = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	var err error
	if a.storage, err = newStorage(cfg, a.redis, logger); err != nil {
		return nil, err
	}
	a.eventBus = newEventBus(cfg, a.redis, logger)

	profile, err := loadProfile(cfg.PipelineProfile)
	if err != nil {
		return nil, err
	}

	llmClient, err := llm.NewClient(&llm.Config{
		Provider:              cfg.LLM.Provider,
		APIKey:                cfg.LLM.APIKey,
		BaseURL:               cfg.LLM.BaseURL,
		Model:                 cfg.LLM.Model,
		MaxConcurrentRequests: cfg.LLM.MaxConcurrentRequests,
		RequestsPerSecond:     cfg.LLM.RequestsPerSecond,
		RequestTimeout:        cfg.LLM.RequestTimeout,
		Metrics:               a.metrics,
		Logger:                logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	executor := agents.NewExecutor(agents.ExecutorConfig{
		Interpreter: cfg.Execution.Interpreter,
		Timeout:     cfg.Timeouts.ExecutionStage,
		Languages:   profileLanguages(profile, pipeline.StageExecute),
	})
	stageAgents := agents.New(llmClient, executor, agents.Options{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}, logger)

	if a.registry, err = newRegistry(stageAgents, profile); err != nil {
		return nil, err
	}

	if a.artifacts, err = filesystem.NewStore(cfg.ArtifactDir); err != nil {
		return nil, err
	}

	a.store = tasks.NewStore(a.storage, a.eventBus, logger)
	a.ledger = accounting.NewLedger(cfg.TokenLimit)
	a.driver = orchestrator.NewDriver(a.registry, a.store, a.ledger, a.artifacts, a.metrics, logger, cfg.Timeouts.TaskExecution)
	a.pool = workers.NewPool(cfg.Workers.PoolSize, cfg.Workers.QueueSize, a.driver, a.metrics, logger, cfg.Workers.HealthCheckInterval)
	a.manager = orchestrator.NewManager(a.registry, a.store, a.ledger, orchestrator.NewValidator(a.registry), a.pool, a.metrics, logger)

	return a, nil
}

// shutdown stops the workers before failing what is still pending, then
// releases the backends.
func (a *app) shutdown(ctx context.Context) {
	if err := a.pool.Shutdown(ctx); err != nil {
		a.logger.Error("worker pool shutdown error", zap.Error(err))
	}
	if err := a.manager.Shutdown(ctx); err != nil {
		a.logger.Error("orchestrator shutdown error", zap.Error(err))
	}
	if err := a.eventBus.Close(); err != nil {
		a.logger.Error("event bus close error", zap.Error(err))
	}
	// the redis storage owns the shared client and closes it
	if err := a.storage.Close(); err != nil {
		a.logger.Error("storage close error", zap.Error(err))
	}
	if a.redis != nil {
		if _, ok := a.storage.(*storageredis.TaskStorage); !ok {
			if err := a.redis.Close(); err != nil {
				a.logger.Error("Redis close error", zap.Error(err))
			}
		}
	}
}

func newStorage(cfg *config.Config, client *goredis.Client, logger *zap.Logger) (ports.TaskStorage, error) {
	switch cfg.Storage.Backend {
	case "redis":
		return storageredis.NewTaskStorage(client, cfg.Storage.TaskTTL, logger), nil
	case "badger":
		s, err := badger.Open(badger.Config{Path: cfg.Storage.BadgerPath}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger storage: %w", err)
		}
		return s, nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
		s, err := sqlite.Open(cfg.Storage.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		return s, nil
	default:
		return storagemem.NewTaskStorage(), nil
	}
}

func newEventBus(cfg *config.Config, client *goredis.Client, logger *zap.Logger) ports.EventBus {
	if cfg.Events.Backend == "redis" {
		return eventsredis.NewStreamsEventBus(client, cfg.Events.StreamMaxLen, logger)
	}
	return eventsmem.NewEventBus(logger)
}

func loadProfile(path string) (*config.Profile, error) {
	if path == "" {
		return nil, nil
	}
	return config.LoadProfile(path)
}

func profileLanguages(p *config.Profile, stage string) []string {
	if p == nil {
		return nil
	}
	return p.Languages[stage]
}

// newRegistry builds the stage registry and applies a pipeline profile
func newRegistry(stageAgents ports.Agents, profile *config.Profile) (*pipeline.Registry, error) {
	var opts []pipeline.Option
	if profile != nil {
		opts = append(opts, pipeline.WithDefaultOrder(profile.DefaultOrder))
		for stage, langs := range profile.Languages {
			opts = append(opts, pipeline.WithLanguages(stage, langs))
		}
	}

	registry := pipeline.NewRegistry(stageAgents, opts...)

	if profile != nil {
		for stage := range profile.Languages {
			if _, ok := registry.Stage(stage); !ok {
				return nil, fmt.Errorf("pipeline profile: unknown stage %q", stage)
			}
		}
		if _, err := registry.Plan(nil); err != nil {
			return nil, fmt.Errorf("pipeline profile: invalid default order: %w", err)
		}
	}

	return registry, nil
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
