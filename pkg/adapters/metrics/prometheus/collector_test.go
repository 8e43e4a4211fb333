package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsTaskMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTaskSubmitted("pending")
	c.RecordTaskSubmitted("pending")
	c.RecordTaskSubmitted("rejected")
	c.RecordTaskCompleted("complete", 2*time.Second)
	c.RecordStageExecuted("review", "completed", time.Second)
	c.RecordStageExecuted("execute", "skipped", 0)
	c.RecordTokens("generate", 120)
	c.RecordTokens("generate", 30)
	c.RecordLedger(150, 1_999_850)
	c.RecordWorkerPoolStatus(3, 1, 0, 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.tasksSubmitted.WithLabelValues("pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tasksSubmitted.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tasksCompleted.WithLabelValues("complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.stagesExecuted.WithLabelValues("execute", "skipped")))
	assert.Equal(t, 150.0, testutil.ToFloat64(c.stageTokens.WithLabelValues("generate")))
	assert.Equal(t, 150.0, testutil.ToFloat64(c.ledgerUsed))
	assert.Equal(t, 1_999_850.0, testutil.ToFloat64(c.ledgerRemaining))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.queueDepth))
}

func TestCollectorRecordsLLMCalls(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLLMCall("claude", 500*time.Millisecond, 10, 20, nil)
	c.RecordLLMCall("claude", time.Second, 0, 0, errors.New("rate limited"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmCalls.WithLabelValues("claude", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmCalls.WithLabelValues("claude", "error")))
	assert.Equal(t, 20.0, testutil.ToFloat64(c.llmTokens.WithLabelValues("claude", "output")))
}

func TestCollectorsUseSeparateRegistries(t *testing.T) {
	require.NotPanics(t, func() {
		NewCollector(prometheus.NewRegistry())
		NewCollector(prometheus.NewRegistry())
	})
}
