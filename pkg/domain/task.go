package domain

import (
	"fmt"
	"time"
)

// TaskStatus is the lifecycle status of a task
type TaskStatus string

const (
	TaskStatusPending  TaskStatus = "pending"
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusComplete TaskStatus = "complete"
	TaskStatusError    TaskStatus = "error"
)

// IsTerminal reports whether the status is absorbing.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusComplete || s == TaskStatusError
}

// CanTransition reports whether a task may move from one status to another.
// A task that fails before the driver picks it up goes straight from pending to error.
func CanTransition(from, to TaskStatus) bool {
	switch from {
	case TaskStatusPending:
		return to == TaskStatusRunning || to == TaskStatusError
	case TaskStatusRunning:
		return to == TaskStatusComplete || to == TaskStatusError
	default:
		return false
	}
}

// LogEntry is a single line of a task's log trail
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// String renders the entry as "[HH:MM:SS] message".
func (e LogEntry) String() string {
	return fmt.Sprintf("[%s] %s", e.Timestamp.Format("15:04:05"), e.Message)
}

// Task is one end-to-end request tracked from submission to a terminal status
type Task struct {
	ID          string          `json:"id"`
	Request     string          `json:"request"`
	StageOrder  []string        `json:"stage_order"`
	Status      TaskStatus      `json:"status"`
	State       PipelineState   `json:"state"`
	TokensUsed  int64           `json:"tokens_used"`
	Logs        []LogEntry      `json:"logs"`
	Result      *TaskResult     `json:"result,omitempty"`
	Graph       *ExecutionGraph `json:"graph,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Clone returns a deep copy safe to hand out as a snapshot.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.StageOrder = append([]string(nil), t.StageOrder...)
	c.Logs = append([]LogEntry(nil), t.Logs...)
	c.State = t.State.Clone()
	if t.Result != nil {
		r := *t.Result
		if t.Result.ExecutionOutput != nil {
			out := *t.Result.ExecutionOutput
			r.ExecutionOutput = &out
		}
		c.Result = &r
	}
	if t.Graph != nil {
		c.Graph = t.Graph.Clone()
	}
	if t.StartedAt != nil {
		ts := *t.StartedAt
		c.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	return &c
}

// TaskResult is the final record of a task. Error is set only when the task failed.
type TaskResult struct {
	Language        string  `json:"language,omitempty"`
	TaskSpec        string  `json:"task_spec,omitempty"`
	Code            string  `json:"code,omitempty"`
	TestCode        string  `json:"test_code,omitempty"`
	Review          string  `json:"review,omitempty"`
	ReviewPassed    bool    `json:"review_passed"`
	ExecutionOutput *string `json:"execution_output,omitempty"`
	CodeFile        string  `json:"code_file,omitempty"`
	TestFile        string  `json:"test_file,omitempty"`
	LogsFile        string  `json:"logs_file,omitempty"`
	Attempts        int     `json:"attempts"`
	TokensUsed      int64   `json:"tokens_used"`
	TokensRemaining int64   `json:"tokens_remaining"`
	TokenLimit      int64   `json:"token_limit"`
	Error           string  `json:"error,omitempty"`
}
