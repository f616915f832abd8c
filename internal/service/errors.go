package service

import "errors"

// Service sentinel errors. Callers check them with errors.Is; the API layer maps
// them to HTTP status codes.
var (
	// ErrTaskNotFound indicates that no record exists for the requested id.
	// API layer should map this to HTTP 404 Not Found.
	ErrTaskNotFound = errors.New("task not found")

	// ErrNotRequeueable indicates a requeue of a task that has left the queued state.
	// API layer should map this to HTTP 409 Conflict.
	ErrNotRequeueable = errors.New("task is not queued")

	// ErrSourceTooLarge indicates that a task source, or all sources of a task
	// together, declare more bytes than admission allows.
	// API layer should map this to HTTP 413 Request Entity Too Large.
	ErrSourceTooLarge = errors.New("task source too large")

	// ErrQueueUnavailable indicates that the queue transport rejected a hand-off.
	// API layer should map this to HTTP 503 Service Unavailable.
	ErrQueueUnavailable = errors.New("task queue unavailable")

	// ErrStoreUnavailable indicates that the task store could not be reached.
	// API layer should map this to HTTP 503 Service Unavailable.
	ErrStoreUnavailable = errors.New("task store unavailable")
)
