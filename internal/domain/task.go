package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/vidq/internal/redact"
)

// TaskType identifies which pipeline processes a task.
type TaskType string

// The closed set of task types.
const (
	TaskTypeCaption         TaskType = "caption"
	TaskTypeMerge           TaskType = "merge"
	TaskTypeBackgroundMusic TaskType = "background_music"
)

// TaskTypes lists every supported task type.
var TaskTypes = []TaskType{TaskTypeCaption, TaskTypeMerge, TaskTypeBackgroundMusic}

// Valid reports whether t is one of the supported task types.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeCaption, TaskTypeMerge, TaskTypeBackgroundMusic:
		return true
	}
	return false
}

// TaskStatus represents the current state of a task.
type TaskStatus string

// Possible task status values.
const (
	TaskStatusQueued  TaskStatus = "queued"
	TaskStatusRunning TaskStatus = "running"
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusFailed  TaskStatus = "failed"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusQueued, TaskStatusRunning, TaskStatusSuccess, TaskStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a final status.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusSuccess || s == TaskStatusFailed
}

// CanTransition reports whether a task may move from one status to another.
// Only queued->running and running->{success,failed} are permitted.
func CanTransition(from, to TaskStatus) bool {
	switch from {
	case TaskStatusQueued:
		return to == TaskStatusRunning
	case TaskStatusRunning:
		return to.Terminal()
	}
	return false
}

// MaxErrorLength bounds the error message stored on a failed task.
const MaxErrorLength = 1000

// Task-specific validation errors
var (
	ErrTaskIDEmpty        = errors.New("task ID cannot be empty")
	ErrTaskInputEmpty     = errors.New("task input cannot be empty")
	ErrTaskStatusInvalid  = errors.New("task status is invalid")
	ErrTaskResultMismatch = errors.New("result reference must be set exactly when status is success")
	ErrTaskErrorMismatch  = errors.New("error must be set exactly when status is failed")
	ErrTaskCompletedAt    = errors.New("completed_at must be set exactly when status is terminal")
)

// Task is the durable record describing one unit of requested work and its outcome.
type Task struct {
	ID              uuid.UUID       `json:"id"`
	Type            TaskType        `json:"task_type"`
	Status          TaskStatus      `json:"status"`
	Input           json.RawMessage `json:"input"`
	ResultReference string          `json:"result_reference,omitempty"`
	Error           string          `json:"error,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// NewTask creates a queued task for the given type and already-validated input.
func NewTask(taskType TaskType, input json.RawMessage, now time.Time) (*Task, error) {
	t := &Task{
		ID:        uuid.New(),
		Type:      taskType,
		Status:    TaskStatusQueued,
		Input:     input,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks the record invariants.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrTaskIDEmpty
	}
	if !t.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTaskType, t.Type)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrTaskStatusInvalid, t.Status)
	}
	if len(t.Input) == 0 {
		return ErrTaskInputEmpty
	}
	if (t.ResultReference != "") != (t.Status == TaskStatusSuccess) {
		return ErrTaskResultMismatch
	}
	if (t.Error != "") != (t.Status == TaskStatusFailed) {
		return ErrTaskErrorMismatch
	}
	if (t.CompletedAt != nil) != t.Status.Terminal() {
		return ErrTaskCompletedAt
	}
	return nil
}

// Age returns how old the record is for retention purposes: measured from
// completion when the task finished, otherwise from creation.
func (t *Task) Age(now time.Time) time.Duration {
	if t.CompletedAt != nil {
		return now.Sub(*t.CompletedAt)
	}
	return now.Sub(t.CreatedAt)
}

// Outcome is the terminal result written to the store in a single update.
type Outcome struct {
	Status          TaskStatus
	ResultReference string
	Error           string
}

// Succeeded builds a success outcome referencing the produced artifact.
func Succeeded(resultReference string) Outcome {
	return Outcome{Status: TaskStatusSuccess, ResultReference: resultReference}
}

// Failed builds a failure outcome from err. The message is prefixed with the
// failure kind, redacted and bounded to MaxErrorLength.
func Failed(err error) Outcome {
	return FailedWithKind(KindOf(err), err)
}

// FailedWithKind is Failed with an explicit kind.
func FailedWithKind(kind FailureKind, err error) Outcome {
	msg := "unknown error"
	if err != nil {
		msg = redact.Error(err)
	}
	return Outcome{
		Status: TaskStatusFailed,
		Error:  redact.Truncate(fmt.Sprintf("%s: %s", kind, msg), MaxErrorLength),
	}
}

// Validate checks that the outcome is a well-formed terminal result.
func (o Outcome) Validate() error {
	switch o.Status {
	case TaskStatusSuccess:
		if o.ResultReference == "" || o.Error != "" {
			return ErrTaskResultMismatch
		}
	case TaskStatusFailed:
		if o.Error == "" || o.ResultReference != "" {
			return ErrTaskErrorMismatch
		}
	default:
		return fmt.Errorf("%w: outcome status %q", ErrInvalidTransition, o.Status)
	}
	return nil
}
