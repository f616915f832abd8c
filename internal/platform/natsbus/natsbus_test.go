package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/vidq/internal/domain"
	"github.com/phrazzld/vidq/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs []published
	err  error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, published{subject, data})
	return nil
}

func TestPublisher_HandleEvent(t *testing.T) {
	t.Parallel()
	conn := &fakeConn{}
	p := NewPublisher(conn, "vidq.tasks", slog.New(slog.NewTextHandler(io.Discard, nil)))

	event := events.NewOutcomeEvent(uuid.New(), domain.TaskTypeMerge, domain.Succeeded("a_merged.mp4"), time.Now())
	require.NoError(t, p.HandleEvent(context.Background(), event))

	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "vidq.tasks.success", conn.msgs[0].subject)

	var decoded events.TaskEvent
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &decoded))
	assert.Equal(t, event.TaskID, decoded.TaskID)
	assert.Equal(t, "a_merged.mp4", decoded.ResultReference)
}

func TestPublisher_PublishError(t *testing.T) {
	t.Parallel()
	conn := &fakeConn{err: errors.New("nats: connection closed")}
	p := NewPublisher(conn, "vidq.tasks", slog.New(slog.NewTextHandler(io.Discard, nil)))

	event := events.NewTaskEvent(uuid.New(), domain.TaskTypeCaption, domain.TaskStatusRunning, time.Now())
	err := p.HandleEvent(context.Background(), event)
	assert.ErrorContains(t, err, "vidq.tasks.running")
}

func TestConnect_Unreachable(t *testing.T) {
	t.Parallel()
	_, _, err := Connect("nats://127.0.0.1:1", "vidq.tasks", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
