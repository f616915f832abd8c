package domain

import (
	"context"
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrInvalidInput is returned when task input parameters are malformed.
	ErrInvalidInput = errors.New("invalid task input")

	// ErrInvalidTaskType is returned for a task type outside the closed set.
	ErrInvalidTaskType = errors.New("invalid task type")

	// ErrInvalidTransition is returned when a status change would move a task
	// backward or skip a state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidArtifactName is returned when a filename does not follow the
	// {task_id}_{suffix}.mp4 scheme.
	ErrInvalidArtifactName = errors.New("invalid artifact name")
)

// FailureKind classifies why a task ended in the failed state.
type FailureKind string

// Failure kinds recorded on failed tasks.
const (
	FailureInputAcquisition FailureKind = "input_acquisition"
	FailureToolFailure      FailureKind = "tool_failure"
	FailureTimeout          FailureKind = "timeout"
	FailureInternal         FailureKind = "internal"
	FailureWorkerLost       FailureKind = "worker_lost"
)

// TaskError is a pipeline failure carrying its kind and the stage that failed.
type TaskError struct {
	Kind  FailureKind
	Stage string
	Err   error
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	if e.Stage == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TaskError) Unwrap() error {
	return e.Err
}

// NewTaskError wraps err with a failure kind and stage name.
func NewTaskError(kind FailureKind, stage string, err error) error {
	if err == nil {
		return nil
	}
	return &TaskError{Kind: kind, Stage: stage, Err: err}
}

// KindOf reports the failure kind of err. Deadline errors are timeouts even when
// they surface unwrapped from a tool invocation; anything unclassified is internal.
func KindOf(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var te *TaskError
	if errors.As(err, &te) {
		return te.Kind
	}
	return FailureInternal
}
