package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/codeforge/pkg/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBus(t *testing.T, maxLen int64) (*StreamsEventBus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStreamsEventBus(client, maxLen, zap.NewNop()), mr
}

// collector gathers delivered event ids
type collector struct {
	mu  sync.Mutex
	ids []string
}

func (c *collector) handle(ctx context.Context, ev domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, ev.ID)
	return nil
}

func (c *collector) got() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

func TestPublishAppendsToStream(t *testing.T) {
	bus, mr := newTestBus(t, 0)

	ev := domain.Event{ID: "e1", Type: domain.EventTypeTaskLog, TaskID: "t1", Data: map[string]interface{}{"line": "[12:00:00] hi"}}
	require.NoError(t, bus.Publish(context.Background(), domain.TaskEventsTopic, ev))

	entries, err := mr.Stream("codeforge:events:" + domain.TaskEventsTopic)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "data", entries[0].Values[0])
	assert.Contains(t, entries[0].Values[1], `"task_id":"t1"`)
}

func TestSubscribeDeliversNewEventsInOrder(t *testing.T) {
	bus, _ := newTestBus(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// published before the subscription, never delivered
	require.NoError(t, bus.Publish(ctx, domain.TaskEventsTopic, domain.Event{ID: "old", TaskID: "t"}))

	var c collector
	require.NoError(t, bus.Subscribe(ctx, domain.TaskEventsTopic, c.handle))

	for _, id := range []string{"1", "2", "3", "4"} {
		require.NoError(t, bus.Publish(ctx, domain.TaskEventsTopic, domain.Event{ID: id, TaskID: "t"}))
	}

	assert.Eventually(t, func() bool {
		return len(c.got()) == 4
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"1", "2", "3", "4"}, c.got())
}

func TestEverySubscriberSeesEveryEvent(t *testing.T) {
	bus, _ := newTestBus(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var first, second collector
	require.NoError(t, bus.Subscribe(ctx, domain.TaskEventsTopic, first.handle))
	require.NoError(t, bus.Subscribe(ctx, domain.TaskEventsTopic, second.handle))

	for _, id := range []string{"a", "b"} {
		require.NoError(t, bus.Publish(ctx, domain.TaskEventsTopic, domain.Event{ID: id}))
	}

	assert.Eventually(t, func() bool {
		return len(first.got()) == 2 && len(second.got()) == 2
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, first.got())
	assert.Equal(t, []string{"a", "b"}, second.got())
}

func TestTopicsAreIsolated(t *testing.T) {
	bus, _ := newTestBus(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var c collector
	require.NoError(t, bus.Subscribe(ctx, "other", c.handle))

	require.NoError(t, bus.Publish(ctx, domain.TaskEventsTopic, domain.Event{ID: "x"}))
	require.NoError(t, bus.Publish(ctx, "other", domain.Event{ID: "y"}))

	assert.Eventually(t, func() bool {
		return len(c.got()) == 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"y"}, c.got())
}

func TestMalformedEntriesAreSkipped(t *testing.T) {
	bus, mr := newTestBus(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var c collector
	require.NoError(t, bus.Subscribe(ctx, domain.TaskEventsTopic, c.handle))

	stream := "codeforge:events:" + domain.TaskEventsTopic
	_, err := mr.XAdd(stream, "*", []string{"other", "field"})
	require.NoError(t, err)
	_, err = mr.XAdd(stream, "*", []string{"data", "{not json"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, domain.TaskEventsTopic, domain.Event{ID: "good"}))

	assert.Eventually(t, func() bool {
		return len(c.got()) == 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"good"}, c.got())
}

func TestSubscriptionStopsWithContext(t *testing.T) {
	bus, _ := newTestBus(t, 0)
	ctx, cancel := context.WithCancel(context.Background())

	var c collector
	require.NoError(t, bus.Subscribe(ctx, domain.TaskEventsTopic, c.handle))
	cancel()

	// let the reader observe the cancellation
	time.Sleep(2 * time.Second)
	require.NoError(t, bus.Publish(context.Background(), domain.TaskEventsTopic, domain.Event{ID: "late"}))

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, c.got())
	assert.NoError(t, bus.Close())
}
