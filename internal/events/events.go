package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/vidq/internal/domain"
)

// TaskEvent records one status change of a task.
type TaskEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	TaskID   uuid.UUID         `json:"task_id"`
	TaskType domain.TaskType   `json:"task_type"`
	Status   domain.TaskStatus `json:"status"`

	// ResultReference is set on success events.
	ResultReference string `json:"result_reference,omitempty"`
	// Error is set on failure events and is already redacted.
	Error string `json:"error,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// NewTaskEvent creates an event announcing that task entered status.
func NewTaskEvent(taskID uuid.UUID, taskType domain.TaskType, status domain.TaskStatus, at time.Time) *TaskEvent {
	return &TaskEvent{
		ID:         uuid.New(),
		TaskID:     taskID,
		TaskType:   taskType,
		Status:     status,
		OccurredAt: at.UTC(),
	}
}

// NewOutcomeEvent creates the terminal event for an outcome.
func NewOutcomeEvent(taskID uuid.UUID, taskType domain.TaskType, outcome domain.Outcome, at time.Time) *TaskEvent {
	e := NewTaskEvent(taskID, taskType, outcome.Status, at)
	e.ResultReference = outcome.ResultReference
	e.Error = outcome.Error
	return e
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *TaskEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows the scheduler to publish events without knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *TaskEvent) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event *TaskEvent) error

// HandleEvent calls f.
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *TaskEvent) error {
	return f(ctx, event)
}

// NopEmitter drops every event.
type NopEmitter struct{}

// EmitEvent implements EventEmitter.
func (NopEmitter) EmitEvent(context.Context, *TaskEvent) error { return nil }
