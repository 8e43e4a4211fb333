package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the CodeForge service
type Config struct {
	// Server configuration
	HTTPPort int    `env:"CODEFORGE_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"CODEFORGE_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Process-wide budget of resource units
	TokenLimit int64 `env:"TOKEN_LIMIT" envDefault:"2000000"`

	// Directory receiving generated code, tests and logs.txt
	ArtifactDir string `env:"ARTIFACT_DIR" envDefault:"output"`

	// Optional YAML pipeline profile
	PipelineProfile string `env:"PIPELINE_PROFILE"`

	Storage   StorageConfig
	Events    EventsConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Execution ExecutionConfig
	Workers   WorkerConfig
	Timeouts  TimeoutConfig
	Tracing   TracingConfig
}

// StorageConfig selects the task storage backend
type StorageConfig struct {
	Backend    string        `env:"STORAGE_BACKEND" envDefault:"memory"`
	BadgerPath string        `env:"BADGER_PATH" envDefault:"data/badger"`
	SQLitePath string        `env:"SQLITE_PATH" envDefault:"data/codeforge.db"`
	TaskTTL    time.Duration `env:"STORAGE_TASK_TTL" envDefault:"24h"`
}

// EventsConfig selects the event bus backend
type EventsConfig struct {
	Backend      string `env:"EVENTS_BACKEND" envDefault:"memory"`
	StreamMaxLen int64  `env:"EVENTS_STREAM_MAX_LEN" envDefault:"1000"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	Provider string `env:"LLM_PROVIDER" envDefault:"anthropic"`
	APIKey   string `env:"LLM_API_KEY"`
	BaseURL  string `env:"LLM_BASE_URL"`

	// Rate limiting
	MaxConcurrentRequests int           `env:"LLM_MAX_CONCURRENT_REQUESTS" envDefault:"10"`
	RequestsPerSecond     float64       `env:"LLM_REQUESTS_PER_SECOND" envDefault:"5"`
	RequestTimeout        time.Duration `env:"LLM_REQUEST_TIMEOUT" envDefault:"120s"`

	// Model settings. An empty model selects the provider default.
	Model       string  `env:"LLM_MODEL"`
	Temperature float64 `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	MaxTokens   int     `env:"LLM_MAX_TOKENS" envDefault:"4096"`
}

// ExecutionConfig configures the local code executor
type ExecutionConfig struct {
	Interpreter string `env:"EXECUTION_INTERPRETER" envDefault:"python3"`
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	PoolSize            int           `env:"WORKER_POOL_SIZE" envDefault:"5"`
	QueueSize           int           `env:"WORKER_QUEUE_SIZE" envDefault:"100"`
	HealthCheckInterval time.Duration `env:"WORKER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	TaskExecution  time.Duration `env:"TIMEOUT_TASK_EXECUTION" envDefault:"0s"` // 0 disables the task deadline
	ExecutionStage time.Duration `env:"TIMEOUT_EXECUTION_STAGE" envDefault:"10s"`
	Shutdown       time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// TracingConfig selects the OpenTelemetry span exporter
type TracingConfig struct {
	Exporter     string `env:"TRACING_EXPORTER" envDefault:"none"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTLPInsecure bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"codeforge"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	// Validate backends
	switch c.Storage.Backend {
	case "memory", "redis", "badger", "sqlite":
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory, redis, badger, or sqlite)", c.Storage.Backend)
	}
	switch c.Events.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid events backend: %s (must be memory or redis)", c.Events.Backend)
	}
	if c.usesRedis() && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	// Validate LLM config
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key is required")
	}
	if c.LLM.Provider != "anthropic" && c.LLM.Provider != "openai" {
		return fmt.Errorf("unsupported LLM provider: %s (must be anthropic or openai)", c.LLM.Provider)
	}
	if c.LLM.MaxTokens < 1 {
		return fmt.Errorf("LLM max tokens must be at least 1")
	}

	// Validate worker config
	if c.Workers.PoolSize < 1 {
		return fmt.Errorf("worker pool size must be at least 1")
	}
	if c.Workers.QueueSize < 0 {
		return fmt.Errorf("worker queue size must not be negative")
	}

	if c.TokenLimit < 1 {
		return fmt.Errorf("token limit must be positive")
	}
	if c.ArtifactDir == "" {
		return fmt.Errorf("artifact directory is required")
	}
	if c.Timeouts.TaskExecution < 0 || c.Timeouts.ExecutionStage < 0 || c.Timeouts.Shutdown < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	switch c.Tracing.Exporter {
	case "none", "stdout", "otlp":
	default:
		return fmt.Errorf("invalid tracing exporter: %s (must be none, stdout, or otlp)", c.Tracing.Exporter)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

func (c *Config) usesRedis() bool {
	return c.Storage.Backend == "redis" || c.Events.Backend == "redis"
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
