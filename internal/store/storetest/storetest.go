// Package storetest holds the behavioural contract every store.TaskStore
// implementation must satisfy. Implementation packages call Run from their tests.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/vidq/internal/domain"
	"github.com/phrazzld/vidq/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.TaskStore

// NewQueuedTask builds a valid queued caption task created at createdAt.
func NewQueuedTask(t *testing.T, createdAt time.Time) *domain.Task {
	t.Helper()
	input, err := json.Marshal(domain.CaptionInput{VideoURL: "https://cdn.example.com/v.mp4", ModelSize: "small"})
	require.NoError(t, err)
	task, err := domain.NewTask(domain.TaskTypeCaption, input, createdAt)
	require.NoError(t, err)
	return task
}

// Run executes the contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("insert and get", func(t *testing.T) { testInsertGet(t, newStore(t)) })
	t.Run("get missing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("insert duplicate", func(t *testing.T) { testInsertDuplicate(t, newStore(t)) })
	t.Run("lifecycle", func(t *testing.T) { testLifecycle(t, newStore(t)) })
	t.Run("no backward transitions", func(t *testing.T) { testNoBackward(t, newStore(t)) })
	t.Run("racing claims", func(t *testing.T) { testRacingClaims(t, newStore(t)) })
	t.Run("query filters", func(t *testing.T) { testQuery(t, newStore(t)) })
	t.Run("delete", func(t *testing.T) { testDelete(t, newStore(t)) })
}

func testInsertGet(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	created := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	task := NewQueuedTask(t, created)

	require.NoError(t, s.Insert(ctx, task))

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, domain.TaskTypeCaption, got.Type)
	assert.Equal(t, domain.TaskStatusQueued, got.Status)
	assert.JSONEq(t, string(task.Input), string(got.Input))
	assert.True(t, created.Equal(got.CreatedAt), "created_at %v", got.CreatedAt)
	assert.Nil(t, got.CompletedAt)
	assert.Empty(t, got.ResultReference)
	assert.Empty(t, got.Error)
}

func testGetMissing(t *testing.T, s store.TaskStore) {
	_, err := s.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
	assert.True(t, store.IsNotFoundError(err))
}

func testInsertDuplicate(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	task := NewQueuedTask(t, time.Now().UTC())
	require.NoError(t, s.Insert(ctx, task))
	assert.ErrorIs(t, s.Insert(ctx, task), store.ErrDuplicate)
}

func testLifecycle(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	created := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	task := NewQueuedTask(t, created)
	require.NoError(t, s.Insert(ctx, task))

	ok, err := s.MarkRunning(ctx, task.ID, created.Add(time.Second))
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusRunning, got.Status)
	assert.Nil(t, got.CompletedAt)

	ref := domain.ArtifactName(task.ID, task.Type)
	completedAt := created.Add(time.Minute)
	ok, err = s.Complete(ctx, task.ID, domain.Succeeded(ref), completedAt)
	require.NoError(t, err)
	require.True(t, ok)

	got, err = s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusSuccess, got.Status)
	assert.Equal(t, ref, got.ResultReference)
	assert.Empty(t, got.Error)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, completedAt.Equal(*got.CompletedAt))
	assert.NoError(t, got.Validate())
}

func testNoBackward(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	now := time.Now().UTC()
	task := NewQueuedTask(t, now)
	require.NoError(t, s.Insert(ctx, task))

	// Completing a queued task would skip running.
	ok, err := s.Complete(ctx, task.ID, domain.Failed(errors.New("boom")), now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.MarkRunning(ctx, task.ID, now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Complete(ctx, task.ID, domain.Failed(errors.New("boom")), now)
	require.NoError(t, err)
	require.True(t, ok)

	// Terminal records never move again.
	ok, err = s.MarkRunning(ctx, task.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Complete(ctx, task.ID, domain.Succeeded("x_captioned.mp4"), now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)

	// Missing records are no-ops, not errors.
	ok, err = s.MarkRunning(ctx, uuid.New(), now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testRacingClaims(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	task := NewQueuedTask(t, time.Now().UTC())
	require.NoError(t, s.Insert(ctx, task))

	const racers = 8
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		start   = make(chan struct{})
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := s.MarkRunning(ctx, task.ID, time.Now().UTC())
			assert.NoError(t, err)
			if ok {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func testQuery(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	base := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

	old := NewQueuedTask(t, base)
	recent := NewQueuedTask(t, base.Add(5*time.Hour))
	oldButJustCompleted := NewQueuedTask(t, base.Add(time.Hour))
	for _, task := range []*domain.Task{old, recent, oldButJustCompleted} {
		require.NoError(t, s.Insert(ctx, task))
	}

	ok, err := s.MarkRunning(ctx, oldButJustCompleted.ID, base.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.Complete(ctx, oldButJustCompleted.ID, domain.Succeeded("ref_merged.mp4"), base.Add(6*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	// Age counts from completion when present, creation otherwise.
	expired, err := s.Query(ctx, store.TaskFilter{ExpiredBefore: base.Add(4 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{old.ID}, ids(expired))

	queued, err := s.Query(ctx, store.TaskFilter{Status: domain.TaskStatusQueued})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{old.ID, recent.ID}, ids(queued))

	success, err := s.Query(ctx, store.TaskFilter{Status: domain.TaskStatusSuccess})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{oldButJustCompleted.ID}, ids(success))

	stale, err := s.Query(ctx, store.TaskFilter{
		Status:        domain.TaskStatusQueued,
		UpdatedBefore: base.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{old.ID}, ids(stale))

	limited, err := s.Query(ctx, store.TaskFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
	assert.Equal(t, old.ID, limited[0].ID)
}

func testDelete(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	task := NewQueuedTask(t, time.Now().UTC())
	require.NoError(t, s.Insert(ctx, task))

	require.NoError(t, s.Delete(ctx, task.ID))
	_, err := s.Get(ctx, task.ID)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)

	// Idempotent.
	require.NoError(t, s.Delete(ctx, task.ID))
}

func ids(tasks []*domain.Task) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}
