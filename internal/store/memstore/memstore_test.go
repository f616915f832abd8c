package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/vidq/internal/domain"
	"github.com/phrazzld/vidq/internal/store"
	"github.com/phrazzld/vidq/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.TaskStore { return New() })
}

func TestTaskStore_ReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	task := storetest.NewQueuedTask(t, time.Now().UTC())
	require.NoError(t, s.Insert(ctx, task))

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	got.Status = domain.TaskStatusSuccess
	got.Input[0] = 'X'

	again, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusQueued, again.Status)
	assert.Equal(t, byte('{'), again.Input[0])
}

func TestTaskStore_Hooks(t *testing.T) {
	s := New()
	ctx := context.Background()
	unavailable := errors.New("connection refused")
	s.GetHook = func(ctx context.Context, id uuid.UUID) error { return unavailable }
	s.PingHook = func(ctx context.Context) error { return unavailable }

	_, err := s.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, unavailable)
	assert.ErrorIs(t, s.Ping(ctx), unavailable)
}

func TestTaskStore_InsertRejectsInvalid(t *testing.T) {
	s := New()
	err := s.Insert(context.Background(), &domain.Task{ID: uuid.New(), Type: "bogus"})
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
	assert.Zero(t, s.Len())
}
