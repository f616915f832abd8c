package redisqueue

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/phrazzld/vidq/internal/domain"
	"github.com/phrazzld/vidq/internal/queue"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport(t *testing.T) (*Transport, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(client, Config{MetaTTL: 2 * time.Hour}, logger), mr
}

func pointer(taskType domain.TaskType) queue.Pointer {
	return queue.Pointer{TaskID: uuid.New(), TaskType: taskType}
}

func TestTransport_PushPopFIFO(t *testing.T) {
	t.Parallel()
	tr, _ := newTestTransport(t)
	ctx := context.Background()

	first, second := pointer(domain.TaskTypeCaption), pointer(domain.TaskTypeMerge)
	require.NoError(t, tr.Push(ctx, first))
	require.NoError(t, tr.Push(ctx, second))

	n, err := tr.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, ok, err := tr.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first, got)

	got, ok, err = tr.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second, got)
}

func TestTransport_PushWritesMetadataWithTTL(t *testing.T) {
	t.Parallel()
	tr, mr := newTestTransport(t)
	ctx := context.Background()
	p := pointer(domain.TaskTypeBackgroundMusic)

	require.NoError(t, tr.Push(ctx, p))

	key := "vidq:task:" + p.TaskID.String()
	require.True(t, mr.Exists(key))
	assert.Equal(t, 2*time.Hour, mr.TTL(key))

	value, err := mr.Get(key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"task_id":"`+p.TaskID.String()+`","task_type":"background_music"}`, value)

	mr.FastForward(2*time.Hour + time.Second)
	assert.False(t, mr.Exists(key))
}

func TestTransport_PopEmptyTimesOut(t *testing.T) {
	t.Parallel()
	tr, _ := newTestTransport(t)

	_, ok, err := tr.Pop(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransport_ReturnGoesToHead(t *testing.T) {
	t.Parallel()
	tr, _ := newTestTransport(t)
	ctx := context.Background()

	waiting, returned := pointer(domain.TaskTypeCaption), pointer(domain.TaskTypeMerge)
	require.NoError(t, tr.Push(ctx, waiting))
	require.NoError(t, tr.Return(ctx, returned))

	got, ok, err := tr.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, returned, got)
}

func TestTransport_DropsMalformedMessages(t *testing.T) {
	t.Parallel()
	tr, mr := newTestTransport(t)
	ctx := context.Background()

	_, err := mr.Lpush("vidq:queue", "not-a-pointer")
	require.NoError(t, err)

	_, ok, err := tr.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := tr.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTransport_DeleteMeta(t *testing.T) {
	t.Parallel()
	tr, mr := newTestTransport(t)
	ctx := context.Background()
	p := pointer(domain.TaskTypeCaption)

	require.NoError(t, tr.Push(ctx, p))
	require.NoError(t, tr.DeleteMeta(ctx, p.TaskID))
	assert.False(t, mr.Exists("vidq:task:"+p.TaskID.String()))

	// Idempotent.
	require.NoError(t, tr.DeleteMeta(ctx, p.TaskID))
}

func TestTransport_PingReportsOutage(t *testing.T) {
	t.Parallel()
	tr, mr := newTestTransport(t)
	ctx := context.Background()

	require.NoError(t, tr.Ping(ctx))
	mr.SetError("LOADING")
	assert.Error(t, tr.Ping(ctx))
	mr.SetError("")
	assert.NoError(t, tr.Ping(ctx))
}

func TestOpen_InvalidURL(t *testing.T) {
	t.Parallel()
	_, err := Open("http://not-redis", Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
