package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/vidq/internal/domain"
)

// TaskFilter selects task records for range queries. Zero fields do not filter.
type TaskFilter struct {
	// Status restricts results to records in this status.
	Status domain.TaskStatus

	// ExpiredBefore selects records whose retention age is measured from a point
	// before this instant: completed_at when set, created_at otherwise.
	ExpiredBefore time.Time

	// UpdatedBefore selects records whose last update happened before this instant.
	UpdatedBefore time.Time

	// Limit caps the number of records returned. Zero means no limit.
	Limit int
}

// TaskStore defines the interface for task record persistence.
// The store is the authoritative source for task state; every status change is a
// conditional update so that concurrent workers cannot move a record backward.
// Version: 1.0
type TaskStore interface {
	// Insert persists a new task record. The record must validate.
	// Returns ErrDuplicate if a record with the same ID exists.
	Insert(ctx context.Context, task *domain.Task) error

	// Get retrieves a task by ID.
	// Returns ErrTaskNotFound if the task does not exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// MarkRunning transitions a task from queued to running.
	// It reports false, without error, when the task is missing or not queued;
	// exactly one of several concurrent callers observes true.
	MarkRunning(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	// Complete writes a terminal outcome, its result reference or error, and the
	// completion timestamp in a single update, only if the task is running.
	// It reports false, without error, when the task is missing or not running.
	Complete(ctx context.Context, id uuid.UUID, outcome domain.Outcome, at time.Time) (bool, error)

	// Query returns the records matching filter ordered by creation time.
	Query(ctx context.Context, filter TaskFilter) ([]*domain.Task, error)

	// Delete hard-deletes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id uuid.UUID) error

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}
