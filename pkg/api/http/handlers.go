package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aescanero/codeforge/internal/application/orchestrator"
	"github.com/aescanero/codeforge/pkg/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const requestPreviewLength = 80

// TaskSubmitRequest represents a task submission request
type TaskSubmitRequest struct {
	Task       string   `json:"task"`
	StageOrder []string `json:"stage_order,omitempty"`
}

// TaskSubmitResponse represents a task submission response
type TaskSubmitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// TaskSummary is one entry of the task list
type TaskSummary struct {
	TaskID      string     `json:"task_id"`
	Status      string     `json:"status"`
	Request     string     `json:"request"`
	TokensUsed  int64      `json:"tokens_used"`
	SubmittedAt time.Time  `json:"submitted_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TaskResultResponse is the result of a finished task
type TaskResultResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	*domain.TaskResult
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
		})
		return
	}

	status := s.health.GetStatus()
	code, label := http.StatusOK, "healthy"
	if !status.Healthy {
		code, label = http.StatusServiceUnavailable, "unhealthy"
	}

	c.JSON(code, gin.H{
		"status":    label,
		"timestamp": status.Timestamp.UTC(),
		"checks": gin.H{
			"workers": status,
		},
	})
}

// handleSubmitTask handles task submission
func (s *Server) handleSubmitTask(c *gin.Context) {
	var req TaskSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Warn("invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: "request body must be a JSON object with a 'task' field",
				Details: err.Error(),
			},
		})
		return
	}

	task, err := s.orchestrator.Submit(c.Request.Context(), &orchestrator.Submission{
		Task:       req.Task,
		StageOrder: req.StageOrder,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, TaskSubmitResponse{
		TaskID: task.ID,
		Status: string(task.Status),
	})
}

// handleListTasks handles listing tasks
func (s *Server) handleListTasks(c *gin.Context) {
	all, err := s.orchestrator.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}

	summaries := make([]TaskSummary, 0, len(all))
	for _, t := range all {
		summaries = append(summaries, TaskSummary{
			TaskID:      t.ID,
			Status:      string(t.Status),
			Request:     preview(t.Request),
			TokensUsed:  t.TokensUsed,
			SubmittedAt: t.SubmittedAt,
			CompletedAt: t.CompletedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks": summaries,
		"total": len(summaries),
	})
}

// handleGetStatus handles getting task status
func (s *Server) handleGetStatus(c *gin.Context) {
	taskID := c.Param("id")

	status, err := s.orchestrator.Status(c.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"task_id": taskID,
				"status":  "not_found",
				"error": ErrorDetail{
					Code:    "NOT_FOUND",
					Message: "Task not found",
				},
			})
			return
		}
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// handleGetLogs returns the task log trail as plain text, one entry per line
func (s *Server) handleGetLogs(c *gin.Context) {
	logs, err := s.orchestrator.Logs(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	lines := make([]string, len(logs))
	for i, l := range logs {
		lines[i] = l.String()
	}
	c.String(http.StatusOK, strings.Join(lines, "\n"))
}

// handleGetResult handles getting the result of a finished task
func (s *Server) handleGetResult(c *gin.Context) {
	taskID := c.Param("id")

	result, err := s.orchestrator.Result(c.Request.Context(), taskID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	status := string(domain.TaskStatusComplete)
	if result.Error != "" {
		status = string(domain.TaskStatusError)
	}

	c.JSON(http.StatusOK, TaskResultResponse{
		TaskID:     taskID,
		Status:     status,
		TaskResult: result,
	})
}

// handleGetGraph handles getting the execution graph of a task
func (s *Server) handleGetGraph(c *gin.Context) {
	graph, err := s.orchestrator.Graph(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, graph)
}

// handleGetTokens returns the process-wide token budget
func (s *Server) handleGetTokens(c *gin.Context) {
	c.JSON(http.StatusOK, s.orchestrator.Tokens())
}

// handleGetStages describes the registered stages
func (s *Server) handleGetStages(c *gin.Context) {
	c.JSON(http.StatusOK, s.orchestrator.Stages())
}

// writeError maps orchestrator errors to HTTP responses
func (s *Server) writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"

	switch {
	case errors.Is(err, orchestrator.ErrInvalidSubmission):
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, domain.ErrQueueFull):
		status, code = http.StatusServiceUnavailable, "QUEUE_FULL"
	case errors.Is(err, domain.ErrTaskNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrTaskNotFinished):
		status, code = http.StatusNotFound, "NOT_COMPLETED"
	default:
		s.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	c.JSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: err.Error(),
		},
	})
}

func preview(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= requestPreviewLength {
		return text
	}
	return text[:requestPreviewLength] + "..."
}
