package llm

import (
	"fmt"
	"time"

	"github.com/aescanero/codeforge/pkg/adapters/llm/anthropic"
	"github.com/aescanero/codeforge/pkg/adapters/llm/openai"
	"github.com/aescanero/codeforge/pkg/ports"
	"go.uber.org/zap"
)

// Config holds LLM client configuration
type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string

	MaxConcurrentRequests int
	RequestsPerSecond     float64
	RequestTimeout        time.Duration

	Metrics CallRecorder
	Logger  *zap.Logger
}

// NewClient creates a rate-limited LLM client based on provider
func NewClient(cfg *Config) (ports.LLMClient, error) {
	var (
		client ports.LLMClient
		err    error
	)

	switch cfg.Provider {
	case "anthropic":
		client, err = anthropic.NewClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Logger)
	case "openai":
		client, err = openai.NewClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewLimiter(client, LimiterConfig{
		MaxConcurrent:     cfg.MaxConcurrentRequests,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Timeout:           cfg.RequestTimeout,
		DefaultModel:      cfg.Model,
		Metrics:           cfg.Metrics,
	}, cfg.Logger), nil
}
