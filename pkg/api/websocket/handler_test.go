package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	eventsmem "github.com/aescanero/codeforge/pkg/adapters/events/memory"
	storagemem "github.com/aescanero/codeforge/pkg/adapters/storage/memory"
	"github.com/aescanero/codeforge/pkg/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type storageLookup struct {
	storage *storagemem.TaskStorage
}

func (l storageLookup) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	return l.storage.GetTask(ctx, taskID)
}

func newStreamServer(t *testing.T, tasks ...*domain.Task) (*httptest.Server, *eventsmem.EventBus) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	storage := storagemem.NewTaskStorage()
	for _, task := range tasks {
		require.NoError(t, storage.SaveTask(context.Background(), task))
	}
	bus := eventsmem.NewEventBus(zap.NewNop())
	t.Cleanup(func() { bus.Close() })

	router := gin.New()
	router.GET("/api/v1/tasks/:id/ws", NewHandler(bus, storageLookup{storage}, zap.NewNop()).HandleTaskStream)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, bus
}

func dial(t *testing.T, srv *httptest.Server, taskID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/tasks/" + taskID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func TestStreamFiltersByTaskAndClosesOnCompletion(t *testing.T) {
	task := &domain.Task{ID: "task-1", Status: domain.TaskStatusRunning, SubmittedAt: time.Now()}
	srv, bus := newStreamServer(t, task)
	conn := dial(t, srv, "task-1")

	var first domain.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, domain.EventTypeTaskStatus, first.Type)
	assert.Equal(t, "running", first.Data["status"])

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, domain.TaskEventsTopic, domain.Event{ID: "1", Type: domain.EventTypeTaskLog, TaskID: "other"}))
	require.NoError(t, bus.Publish(ctx, domain.TaskEventsTopic, domain.Event{ID: "2", Type: domain.EventTypeTaskLog, TaskID: "task-1",
		Data: map[string]interface{}{"line": "generate: starting code generation (attempt 1/3)"}}))
	require.NoError(t, bus.Publish(ctx, domain.TaskEventsTopic, domain.Event{ID: "3", Type: domain.EventTypeTaskCompleted, TaskID: "task-1"}))

	var log domain.Event
	require.NoError(t, conn.ReadJSON(&log))
	assert.Equal(t, "2", log.ID)
	assert.Equal(t, "generate: starting code generation (attempt 1/3)", log.Data["line"])

	var done domain.Event
	require.NoError(t, conn.ReadJSON(&done))
	assert.Equal(t, domain.EventTypeTaskCompleted, done.Type)

	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
}

func TestStreamFinishedTaskSendsSnapshotOnly(t *testing.T) {
	task := &domain.Task{ID: "task-2", Status: domain.TaskStatusComplete, SubmittedAt: time.Now()}
	srv, _ := newStreamServer(t, task)
	conn := dial(t, srv, "task-2")

	var first domain.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "complete", first.Data["status"])

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestStreamUnknownTask(t *testing.T) {
	srv, _ := newStreamServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/tasks/missing/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
