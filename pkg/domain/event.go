package domain

import "time"

// EventType identifies what happened to a task
type EventType string

const (
	EventTypeTaskSubmitted EventType = "task.submitted"
	EventTypeTaskStatus    EventType = "task.status"
	EventTypeTaskLog       EventType = "task.log"
	EventTypeTaskCompleted EventType = "task.completed"
	EventTypeTaskFailed    EventType = "task.failed"
	EventTypeStageStarted  EventType = "stage.started"
	EventTypeStageFinished EventType = "stage.finished"
)

// TaskEventsTopic is the event bus topic carrying all task events.
const TaskEventsTopic = "task.events"

// Event is published on the event bus whenever a task changes
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	TaskID    string                 `json:"task_id"`
	Stage     string                 `json:"stage,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
