package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/codeforge/internal/application/pipeline"
	"github.com/aescanero/codeforge/internal/application/workers"
	"github.com/aescanero/codeforge/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingDispatcher records dispatched ids and optionally rejects them
type recordingDispatcher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (d *recordingDispatcher) Dispatch(taskID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, taskID)
	return nil
}

func newTestManager(t *testing.T, h *harness, dispatcher Dispatcher) *Manager {
	t.Helper()
	return NewManager(h.registry, h.store, h.ledger, NewValidator(h.registry), dispatcher, h.metrics, zap.NewNop())
}

func TestSubmitCreatesPendingTask(t *testing.T) {
	h := newHarness(t, newScriptedAgents("python"))
	d := &recordingDispatcher{}
	m := newTestManager(t, h, d)
	ctx := context.Background()

	task, err := m.Submit(ctx, &Submission{Task: "print hello"})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, task.Status)
	assert.Equal(t, []string{task.ID}, d.ids)

	logs, err := m.Logs(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Task received. Queued for processing.", logs[0].Message)

	graph, err := m.Graph(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, graph.Nodes, len(pipeline.DefaultOrder))

	status, err := m.Status(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", status.Status)
	assert.Equal(t, int64(0), status.TokensUsed)
	assert.Equal(t, h.ledger.Limit(), status.TokenLimit)

	_, err = m.Result(ctx, task.ID)
	assert.ErrorIs(t, err, domain.ErrTaskNotFinished)
}

func TestSubmitCustomOrder(t *testing.T) {
	h := newHarness(t, newScriptedAgents("python"))
	m := newTestManager(t, h, &recordingDispatcher{})

	task, err := m.Submit(context.Background(), &Submission{
		Task:       "print hello",
		StageOrder: []string{"decompose", " generate "},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"decompose", "generate"}, task.StageOrder)
	require.NotNil(t, task.Graph)
	assert.Len(t, task.Graph.Edges, 1)
}

func TestSubmitRejectsInvalid(t *testing.T) {
	h := newHarness(t, newScriptedAgents("python"))
	d := &recordingDispatcher{}
	m := newTestManager(t, h, d)
	ctx := context.Background()

	_, err := m.Submit(ctx, &Submission{Task: "   "})
	assert.ErrorIs(t, err, ErrInvalidSubmission)

	_, err = m.Submit(ctx, &Submission{Task: "x", StageOrder: []string{"decompose", "deploy"}})
	assert.ErrorIs(t, err, ErrInvalidSubmission)
	assert.ErrorIs(t, err, domain.ErrUnknownStage)

	all, err := m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, d.ids)
}

func TestSubmitQueueFullFailsTask(t *testing.T) {
	h := newHarness(t, newScriptedAgents("python"))
	m := newTestManager(t, h, &recordingDispatcher{err: domain.ErrQueueFull})
	ctx := context.Background()

	_, err := m.Submit(ctx, &Submission{Task: "print hello"})
	assert.ErrorIs(t, err, domain.ErrQueueFull)

	all, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.TaskStatusError, all[0].Status)

	res, err := m.Result(ctx, all[0].ID)
	require.NoError(t, err)
	assert.Contains(t, res.Error, "queue is full")
}

func TestQueriesUnknownTask(t *testing.T) {
	h := newHarness(t, newScriptedAgents("python"))
	m := newTestManager(t, h, &recordingDispatcher{})
	ctx := context.Background()

	_, err := m.Status(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	_, err = m.Logs(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	_, err = m.Result(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	_, err = m.Graph(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestShutdownFailsPendingTasks(t *testing.T) {
	h := newHarness(t, newScriptedAgents("python"))
	m := newTestManager(t, h, &recordingDispatcher{})
	ctx := context.Background()

	task, err := m.Submit(ctx, &Submission{Task: "print hello"})
	require.NoError(t, err)

	require.NoError(t, m.Shutdown(ctx))

	res, err := m.Result(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "service shut down before the task started", res.Error)

	_, err = m.Submit(ctx, &Submission{Task: "print hello"})
	assert.ErrorIs(t, err, domain.ErrQueueFull)
}

func TestStagesInfo(t *testing.T) {
	h := newHarness(t, newScriptedAgents("python"))
	m := newTestManager(t, h, &recordingDispatcher{})

	info := m.Stages()
	assert.Equal(t, pipeline.DefaultOrder, info.DefaultOrder)
	assert.Len(t, info.Stages, len(pipeline.DefaultOrder))
	assert.Equal(t, pipeline.StageExtract, info.ConcurrentGroup.After)
	assert.Equal(t, pipeline.StageExecute, info.ConcurrentGroup.Join)
}

func TestSubmitRunsOnWorkerPool(t *testing.T) {
	h := newHarness(t, newScriptedAgents("python"))
	pool := workers.NewPool(2, 8, h.driver, h.metrics, zap.NewNop(), time.Hour)
	require.NoError(t, pool.Start())
	defer pool.Shutdown(context.Background())

	m := newTestManager(t, h, pool)
	ctx := context.Background()

	task, err := m.Submit(ctx, &Submission{Task: "print hello world in python"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := m.Status(ctx, task.ID)
		return err == nil && status.Status == string(domain.TaskStatusComplete)
	}, 5*time.Second, 10*time.Millisecond)

	res, err := m.Result(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, res.ReviewPassed)
	require.NotNil(t, res.ExecutionOutput)
	assert.Equal(t, "hello world", *res.ExecutionOutput)

	tokens := m.Tokens()
	assert.Equal(t, int64(65), tokens.Used)
	assert.Equal(t, tokens.Limit-65, tokens.Remaining)

	logs, err := m.Logs(ctx, task.ID)
	require.NoError(t, err)
	for i := 1; i < len(logs); i++ {
		assert.False(t, logs[i].Timestamp.Before(logs[i-1].Timestamp))
	}
}
