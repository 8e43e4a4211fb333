package domain

import "errors"

var (
	// ErrTaskNotFound is returned when a task id is unknown to the store.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTerminalState is returned when mutating the status of a finished task.
	ErrTerminalState = errors.New("task already in terminal state")

	// ErrTaskNotFinished is returned when asking for the result of a running task.
	ErrTaskNotFinished = errors.New("task not complete yet")

	// ErrInvalidTransition is returned for status changes the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrLanguageUnresolved is the fatal precondition failure of a pipeline.
	ErrLanguageUnresolved = errors.New("failed to resolve language from the request")

	// ErrUnknownStage is returned for stage names missing from the registry.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrQueueFull is returned when no worker can accept a new task.
	ErrQueueFull = errors.New("task queue is full")
)
