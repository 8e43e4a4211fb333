package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/aescanero/codeforge/pkg/domain"
	"github.com/aescanero/codeforge/pkg/ports"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// CallRecorder records LLM calls
type CallRecorder interface {
	RecordLLMCall(model string, duration time.Duration, inputTokens, outputTokens int64, err error)
}

// LimiterConfig bounds the traffic sent to a provider
type LimiterConfig struct {
	// MaxConcurrent caps in-flight requests; zero means unbounded
	MaxConcurrent int

	// RequestsPerSecond caps the request rate; zero means unlimited
	RequestsPerSecond float64

	// Timeout applies to each request; zero means none
	Timeout time.Duration

	DefaultModel string
	Metrics      CallRecorder
}

// Limiter wraps an LLM client with concurrency, rate and timeout limits. The
// review and test-generation branches of every running task share it.
type Limiter struct {
	next    ports.LLMClient
	cfg     LimiterConfig
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewLimiter wraps next
func NewLimiter(next ports.LLMClient, cfg LimiterConfig, logger *zap.Logger) *Limiter {
	l := &Limiter{
		next:   next,
		cfg:    cfg,
		logger: logger,
	}
	if cfg.MaxConcurrent > 0 {
		l.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return l
}

// GenerateCompletion waits for capacity and forwards the request
func (l *Limiter) GenerateCompletion(ctx context.Context, req *domain.LLMRequest) (*domain.LLMResponse, error) {
	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("waiting for LLM capacity: %w", err)
		}
		defer l.sem.Release(1)
	}

	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for LLM rate limit: %w", err)
		}
	}

	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}

	model := req.Model
	if model == "" {
		model = l.cfg.DefaultModel
	}

	start := time.Now()
	resp, err := l.next.GenerateCompletion(ctx, req)
	duration := time.Since(start)

	if l.cfg.Metrics != nil {
		var usage domain.Usage
		if resp != nil {
			usage = resp.Usage
		}
		l.cfg.Metrics.RecordLLMCall(model, duration, usage.InputTokens, usage.OutputTokens, err)
	}

	if err != nil {
		l.logger.Warn("LLM call failed",
			zap.String("model", model),
			zap.Duration("duration", duration),
			zap.Error(err))
		return nil, err
	}

	l.logger.Debug("LLM call completed",
		zap.String("model", model),
		zap.Duration("duration", duration),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens))

	return resp, nil
}
