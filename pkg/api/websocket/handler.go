package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aescanero/codeforge/pkg/domain"
	"github.com/aescanero/codeforge/pkg/ports"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	eventBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TaskLookup returns a snapshot of a task
type TaskLookup interface {
	Get(ctx context.Context, taskID string) (*domain.Task, error)
}

// Handler handles WebSocket connections
type Handler struct {
	eventBus ports.EventBus
	tasks    TaskLookup
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(eventBus ports.EventBus, tasks TaskLookup, logger *zap.Logger) *Handler {
	return &Handler{
		eventBus: eventBus,
		tasks:    tasks,
		logger:   logger,
	}
}

// HandleTaskStream streams the events of one task
func (h *Handler) HandleTaskStream(c *gin.Context) {
	taskID := c.Param("id")

	task, err := h.tasks.Get(c.Request.Context(), taskID)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, domain.ErrTaskNotFound) {
			code = http.StatusNotFound
		}
		c.JSON(code, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": err.Error()}})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("WebSocket connection established",
		zap.String("task_id", taskID),
		zap.String("client", c.ClientIP()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan domain.Event, eventBuffer)
	err = h.eventBus.Subscribe(ctx, domain.TaskEventsTopic, func(ctx context.Context, event domain.Event) error {
		if event.TaskID != taskID {
			return nil
		}
		select {
		case events <- event:
		case <-ctx.Done():
			return ctx.Err()
		default:
			h.logger.Warn("event channel full, dropping event",
				zap.String("task_id", taskID),
				zap.String("event_type", string(event.Type)))
		}
		return nil
	})
	if err != nil {
		h.logger.Error("failed to subscribe to events", zap.String("task_id", taskID), zap.Error(err))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "event stream unavailable"))
		return
	}

	// re-read after subscribing so no transition is missed in between
	if latest, err := h.tasks.Get(ctx, taskID); err == nil {
		task = latest
	}
	if err := h.write(conn, snapshot(task)); err != nil {
		return
	}
	if task.Status.IsTerminal() {
		h.close(conn)
		return
	}

	// the read pump only detects client disconnects and answers pongs
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case event := <-events:
			if err := h.write(conn, event); err != nil {
				return
			}
			if event.Type == domain.EventTypeTaskCompleted || event.Type == domain.EventTypeTaskFailed {
				h.close(conn)
				return
			}
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, event domain.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(event); err != nil {
		h.logger.Debug("failed to write message", zap.String("task_id", event.TaskID), zap.Error(err))
		return err
	}
	return nil
}

func (h *Handler) close(conn *websocket.Conn) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "task finished"))
}

// snapshot is the first message of a stream
func snapshot(task *domain.Task) domain.Event {
	return domain.Event{
		ID:        uuid.New().String(),
		Type:      domain.EventTypeTaskStatus,
		TaskID:    task.ID,
		Timestamp: time.Now().UTC(),
		Data: map[string]interface{}{
			"status":      string(task.Status),
			"tokens_used": task.TokensUsed,
			"log_entries": len(task.Logs),
		},
	}
}
