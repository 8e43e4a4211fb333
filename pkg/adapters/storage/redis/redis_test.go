package redis

import (
	"context"
	"testing"
	"time"

	"github.com/aescanero/codeforge/pkg/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStorage(t *testing.T, ttl time.Duration) (*TaskStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewTaskStorage(client, ttl, zap.NewNop())
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	s, mr := newTestStorage(t, 0)
	ctx := context.Background()

	passed := true
	task := &domain.Task{
		ID:          "t1",
		Request:     "sum two numbers",
		StageOrder:  []string{"decompose", "generate"},
		Status:      domain.TaskStatusRunning,
		State:       domain.PipelineState{Language: "python", ReviewPassed: &passed},
		TokensUsed:  42,
		Logs:        []domain.LogEntry{{Timestamp: time.Now().UTC(), Message: "Task started."}},
		SubmittedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveTask(ctx, task))
	assert.True(t, mr.Exists("codeforge:task:t1"))

	got, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "sum two numbers", got.Request)
	assert.Equal(t, domain.TaskStatusRunning, got.Status)
	assert.Equal(t, "python", got.State.Language)
	require.NotNil(t, got.State.ReviewPassed)
	assert.True(t, *got.State.ReviewPassed)
	assert.Equal(t, int64(42), got.TokensUsed)
	require.Len(t, got.Logs, 1)
	assert.Equal(t, "Task started.", got.Logs[0].Message)
}

func TestGetUnknownTask(t *testing.T) {
	s, _ := newTestStorage(t, 0)

	_, err := s.GetTask(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestSaveRequiresID(t *testing.T) {
	s, _ := newTestStorage(t, 0)

	assert.Error(t, s.SaveTask(context.Background(), &domain.Task{}))
	assert.Error(t, s.SaveTask(context.Background(), nil))
}

func TestTasksExpireAfterTTL(t *testing.T) {
	s, mr := newTestStorage(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.SaveTask(ctx, &domain.Task{ID: "t1", Status: domain.TaskStatusPending}))
	assert.Equal(t, time.Minute, mr.TTL("codeforge:task:t1"))

	mr.FastForward(2 * time.Minute)

	_, err := s.GetTask(ctx, "t1")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestZeroTTLKeepsTasks(t *testing.T) {
	s, mr := newTestStorage(t, 0)

	require.NoError(t, s.SaveTask(context.Background(), &domain.Task{ID: "t1"}))
	assert.Zero(t, mr.TTL("codeforge:task:t1"))
}

func TestListTasksOldestFirst(t *testing.T) {
	s, mr := newTestStorage(t, 0)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	offsets := map[string]time.Duration{"c": 2 * time.Minute, "a": 0, "b": time.Minute}
	for id, offset := range offsets {
		require.NoError(t, s.SaveTask(ctx, &domain.Task{ID: id, SubmittedAt: base.Add(offset)}))
	}
	require.NoError(t, mr.Set("codeforge:task:broken", "{not json"))
	require.NoError(t, mr.Set("unrelated:key", "ignored"))

	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)

	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}
