// Package memstore provides an in-memory store.TaskStore. It backs single-process
// deployments without a database and the package tests of every component that
// depends on the task store.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/vidq/internal/domain"
	"github.com/phrazzld/vidq/internal/store"
)

// TaskStore implements store.TaskStore with a mutex-guarded map. Records are
// copied on the way in and out so callers never share memory with the store.
//
// The optional hook fields let tests inject failures; when a hook is set it
// runs before the default behaviour and a non-nil error short-circuits it.
type TaskStore struct {
	mutex sync.RWMutex
	tasks map[uuid.UUID]*domain.Task

	GetHook         func(ctx context.Context, id uuid.UUID) error
	MarkRunningHook func(ctx context.Context, id uuid.UUID) error
	CompleteHook    func(ctx context.Context, id uuid.UUID, outcome domain.Outcome) error
	PingHook        func(ctx context.Context) error
}

var _ store.TaskStore = (*TaskStore)(nil)

// New creates an empty TaskStore.
func New() *TaskStore {
	return &TaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

// Insert persists a copy of task.
func (s *TaskStore) Insert(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("%w: task %s", store.ErrDuplicate, task.ID)
	}
	s.tasks[task.ID] = clone(task)
	return nil
}

// Get returns a copy of the task with the given id.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	if s.GetHook != nil {
		if err := s.GetHook(ctx, id); err != nil {
			return nil, err
		}
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return clone(t), nil
}

// MarkRunning performs the queued->running transition under the store lock.
func (s *TaskStore) MarkRunning(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	if s.MarkRunningHook != nil {
		if err := s.MarkRunningHook(ctx, id); err != nil {
			return false, err
		}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	t, ok := s.tasks[id]
	if !ok || !domain.CanTransition(t.Status, domain.TaskStatusRunning) {
		return false, nil
	}
	t.Status = domain.TaskStatusRunning
	t.UpdatedAt = at.UTC()
	return true, nil
}

// Complete writes the terminal outcome of a running task.
func (s *TaskStore) Complete(ctx context.Context, id uuid.UUID, outcome domain.Outcome, at time.Time) (bool, error) {
	if err := outcome.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	if s.CompleteHook != nil {
		if err := s.CompleteHook(ctx, id, outcome); err != nil {
			return false, err
		}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	t, ok := s.tasks[id]
	if !ok || !domain.CanTransition(t.Status, outcome.Status) {
		return false, nil
	}
	completed := at.UTC()
	t.Status = outcome.Status
	t.ResultReference = outcome.ResultReference
	t.Error = outcome.Error
	t.UpdatedAt = completed
	t.CompletedAt = &completed
	return true, nil
}

// Query returns copies of the records matching filter ordered by creation time.
func (s *TaskStore) Query(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var out []*domain.Task
	for _, t := range s.tasks {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if !filter.ExpiredBefore.IsZero() {
			ref := t.CreatedAt
			if t.CompletedAt != nil {
				ref = *t.CompletedAt
			}
			if !ref.Before(filter.ExpiredBefore) {
				continue
			}
		}
		if !filter.UpdatedBefore.IsZero() && !t.UpdatedAt.Before(filter.UpdatedBefore) {
			continue
		}
		out = append(out, clone(t))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Delete removes the record with the given id.
func (s *TaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.tasks, id)
	return nil
}

// Ping always succeeds unless PingHook says otherwise.
func (s *TaskStore) Ping(ctx context.Context) error {
	if s.PingHook != nil {
		return s.PingHook(ctx)
	}
	return nil
}

// Len returns the number of stored records.
func (s *TaskStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.tasks)
}

func clone(t *domain.Task) *domain.Task {
	c := *t
	c.Input = append([]byte(nil), t.Input...)
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		c.CompletedAt = &completed
	}
	return &c
}
