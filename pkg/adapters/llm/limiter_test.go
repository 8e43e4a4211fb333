package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aescanero/codeforge/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type slowClient struct {
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (c *slowClient) GenerateCompletion(ctx context.Context, req *domain.LLMRequest) (*domain.LLMResponse, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		seen := c.maxSeen.Load()
		if n <= seen || c.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	select {
	case <-time.After(c.delay):
		return &domain.LLMResponse{Content: "ok", Usage: domain.Usage{InputTokens: 1, OutputTokens: 2}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type recorder struct {
	mu    sync.Mutex
	calls int
	errs  int
}

func (r *recorder) RecordLLMCall(model string, duration time.Duration, in, out int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if err != nil {
		r.errs++
	}
}

func TestLimiterBoundsConcurrency(t *testing.T) {
	client := &slowClient{delay: 20 * time.Millisecond}
	rec := &recorder{}
	l := NewLimiter(client, LimiterConfig{MaxConcurrent: 2, DefaultModel: "m", Metrics: rec}, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.GenerateCompletion(context.Background(), &domain.LLMRequest{Prompt: "p"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, client.maxSeen.Load(), int32(2))
	assert.Equal(t, 8, rec.calls)
}

func TestLimiterAppliesTimeout(t *testing.T) {
	client := &slowClient{delay: time.Second}
	rec := &recorder{}
	l := NewLimiter(client, LimiterConfig{Timeout: 10 * time.Millisecond, Metrics: rec}, zap.NewNop())

	_, err := l.GenerateCompletion(context.Background(), &domain.LLMRequest{Prompt: "p"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, rec.errs)
}

func TestLimiterHonoursCancelledContext(t *testing.T) {
	client := &slowClient{delay: time.Second}
	l := NewLimiter(client, LimiterConfig{MaxConcurrent: 1, RequestsPerSecond: 1}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.GenerateCompletion(ctx, &domain.LLMRequest{Prompt: "p"})
	assert.Error(t, err)
}

func TestNewClientRejectsUnknownProvider(t *testing.T) {
	_, err := NewClient(&Config{Provider: "gemini", Logger: zap.NewNop()})
	assert.Error(t, err)
}
