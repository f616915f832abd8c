package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/vidq/internal/domain"
	"github.com/phrazzld/vidq/internal/events"
	"github.com/phrazzld/vidq/internal/queue"
	"github.com/phrazzld/vidq/internal/store"
	"github.com/phrazzld/vidq/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const captionBody = `{"video_url":"https://cdn.example.com/talk.mp4"}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// failingTransport wraps a Memory transport and fails pushes on demand.
type failingTransport struct {
	*queue.Memory
	pushErr error
}

func (f *failingTransport) Push(ctx context.Context, p queue.Pointer) error {
	if f.pushErr != nil {
		return f.pushErr
	}
	return f.Memory.Push(ctx, p)
}

func newService(t *testing.T) (TaskService, *memstore.TaskStore, *failingTransport, *events.Recorder) {
	t.Helper()
	st := memstore.New()
	tr := &failingTransport{Memory: queue.NewMemory(0, testLogger())}
	rec := &events.Recorder{}
	emitter := events.NewInMemoryEventEmitter(testLogger())
	emitter.RegisterHandler(rec)

	svc, err := NewTaskService(st, tr, emitter, "https://videos.example.com/", testLogger())
	require.NoError(t, err)
	return svc, st, tr, rec
}

func TestSubmit_PersistsAndEnqueues(t *testing.T) {
	t.Parallel()
	svc, st, tr, rec := newService(t)
	ctx := context.Background()

	task, err := svc.Submit(ctx, domain.TaskTypeCaption, []byte(captionBody))
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusQueued, task.Status)
	assert.JSONEq(t, `{"video_url":"https://cdn.example.com/talk.mp4","model_size":"small"}`, string(task.Input))

	stored, err := st.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusQueued, stored.Status)

	p, ok, err := tr.Pop(ctx, time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, task.ID, p.TaskID)
	assert.Equal(t, domain.TaskTypeCaption, p.TaskType)

	require.Len(t, rec.Events(), 1)
	assert.Equal(t, domain.TaskStatusQueued, rec.Events()[0].Status)
}

func TestSubmit_InvalidInput(t *testing.T) {
	t.Parallel()
	svc, st, tr, _ := newService(t)

	_, err := svc.Submit(context.Background(), domain.TaskTypeMerge,
		[]byte(`{"scene_clip_urls":["https://a.test/1.mp4"],"voiceover_urls":[]}`))
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Submit(context.Background(), domain.TaskType("transcode"), []byte(captionBody))
	require.ErrorIs(t, err, domain.ErrInvalidTaskType)

	assert.Zero(t, st.Len())
	n, _ := tr.Len(context.Background())
	assert.Zero(t, n)
}

func TestSubmit_QueueFailureRemovesRecord(t *testing.T) {
	t.Parallel()
	svc, st, tr, rec := newService(t)
	tr.pushErr = errors.New("connection refused")

	_, err := svc.Submit(context.Background(), domain.TaskTypeCaption, []byte(captionBody))
	require.ErrorIs(t, err, ErrQueueUnavailable)
	assert.Zero(t, st.Len(), "no record may survive a failed hand-off")
	assert.Empty(t, rec.Events())
}

// unavailableStore fails every insert.
type unavailableStore struct {
	*memstore.TaskStore
}

func (unavailableStore) Insert(context.Context, *domain.Task) error {
	return store.ErrUnavailable
}

func TestSubmit_StoreFailure(t *testing.T) {
	t.Parallel()
	tr := queue.NewMemory(0, testLogger())
	svc, err := NewTaskService(unavailableStore{memstore.New()}, tr, nil, "", testLogger())
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), domain.TaskTypeCaption, []byte(captionBody))
	require.ErrorIs(t, err, ErrStoreUnavailable)

	n, _ := tr.Len(context.Background())
	assert.Zero(t, n, "nothing is enqueued without a record")
}

// fakeProber returns fixed sizes per URL; unlisted URLs fail the lookup.
type fakeProber map[string]int64

func (f fakeProber) Size(_ context.Context, url string) (int64, error) {
	size, ok := f[url]
	if !ok {
		return 0, errors.New("HEAD not allowed")
	}
	return size, nil
}

func TestSubmit_SourceSizeLimit(t *testing.T) {
	t.Parallel()

	const mb = 1 << 20
	mergeBody := `{
		"scene_clip_urls": ["https://cdn.example.com/s1.mp4", "https://cdn.example.com/s2.mp4"],
		"voiceover_urls": ["https://cdn.example.com/v1.mp3", "https://cdn.example.com/v2.mp3"]
	}`
	threeSceneBody := `{
		"scene_clip_urls": ["https://cdn.example.com/s1.mp4", "https://cdn.example.com/s2.mp4", "https://cdn.example.com/s3.mp4"],
		"voiceover_urls": ["https://cdn.example.com/v1.mp3", "https://cdn.example.com/v2.mp3", "https://cdn.example.com/v3.mp3"]
	}`

	tests := []struct {
		name     string
		taskType domain.TaskType
		body     string
		sizes    fakeProber
		wantErr  error
	}{
		{
			name:     "within limit",
			taskType: domain.TaskTypeCaption,
			body:     captionBody,
			sizes:    fakeProber{"https://cdn.example.com/talk.mp4": 90 * mb},
		},
		{
			name:     "single source too large",
			taskType: domain.TaskTypeCaption,
			body:     captionBody,
			sizes:    fakeProber{"https://cdn.example.com/talk.mp4": 101 * mb},
			wantErr:  ErrSourceTooLarge,
		},
		{
			name:     "unknown size admitted",
			taskType: domain.TaskTypeCaption,
			body:     captionBody,
			sizes:    fakeProber{},
		},
		{
			name:     "merge total over budget",
			taskType: domain.TaskTypeMerge,
			body:     threeSceneBody,
			sizes: fakeProber{
				"https://cdn.example.com/s1.mp4": 99 * mb,
				"https://cdn.example.com/s2.mp4": 99 * mb,
				"https://cdn.example.com/s3.mp4": 99 * mb,
				"https://cdn.example.com/v1.mp3": 99 * mb,
				"https://cdn.example.com/v2.mp3": 99 * mb,
				"https://cdn.example.com/v3.mp3": 99 * mb,
			},
			wantErr: ErrSourceTooLarge,
		},
		{
			name:     "merge total within budget",
			taskType: domain.TaskTypeMerge,
			body:     mergeBody,
			sizes: fakeProber{
				"https://cdn.example.com/s1.mp4": 100 * mb,
				"https://cdn.example.com/s2.mp4": 100 * mb,
				"https://cdn.example.com/v1.mp3": 100 * mb,
				"https://cdn.example.com/v2.mp3": 100 * mb,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st := memstore.New()
			tr := queue.NewMemory(0, testLogger())
			svc, err := NewTaskService(st, tr, nil, "", testLogger(),
				WithSourceSizeLimit(tt.sizes, 100*mb))
			require.NoError(t, err)

			_, err = svc.Submit(context.Background(), tt.taskType, []byte(tt.body))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, st.Len())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, st.Len())
		})
	}
}

func TestNewTaskServiceError(t *testing.T) {
	t.Parallel()

	assert.Nil(t, NewTaskServiceError("get", "x", nil))
	assert.Equal(t, ErrTaskNotFound, NewTaskServiceError("get", "x", store.ErrTaskNotFound))

	err := NewTaskServiceError("submit", "failed to persist task", store.ErrDuplicate)
	var svcErr *TaskServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "submit", svcErr.Operation)
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestView(t *testing.T) {
	t.Parallel()
	svc, st, _, _ := newService(t)
	ctx := context.Background()

	task, err := svc.Submit(ctx, domain.TaskTypeMerge,
		[]byte(`{"scene_clip_urls":["https://a.test/1.mp4"],"voiceover_urls":["https://a.test/1.mp3"]}`))
	require.NoError(t, err)

	view, err := svc.View(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusQueued, view.Status)
	assert.Empty(t, view.VideoURL)

	_, err = st.MarkRunning(ctx, task.ID, time.Now())
	require.NoError(t, err)
	ref := domain.ArtifactName(task.ID, domain.TaskTypeMerge)
	_, err = st.Complete(ctx, task.ID, domain.Succeeded(ref), time.Now())
	require.NoError(t, err)

	view, err = svc.View(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusSuccess, view.Status)
	assert.Equal(t, "https://videos.example.com/video/"+ref, view.VideoURL)
	assert.NotNil(t, view.CompletedAt)
}

func TestView_FailedTaskShowsError(t *testing.T) {
	t.Parallel()
	task, err := domain.NewTask(domain.TaskTypeCaption, []byte(captionBody), time.Now())
	require.NoError(t, err)
	completed := time.Now()
	task.Status = domain.TaskStatusFailed
	task.Error = "tool_failure: render: ffmpeg exited with status 1"
	task.CompletedAt = &completed

	view := NewTaskView(task, "http://localhost:8080")
	assert.Equal(t, task.Error, view.Error)
	assert.Empty(t, view.VideoURL)
}

func TestGet_NotFound(t *testing.T) {
	t.Parallel()
	svc, _, _, _ := newService(t)

	_, err := svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestGet_StoreUnavailable(t *testing.T) {
	t.Parallel()
	svc, st, _, _ := newService(t)
	st.GetHook = func(context.Context, uuid.UUID) error { return store.ErrUnavailable }

	_, err := svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestRequeue(t *testing.T) {
	t.Parallel()
	svc, st, tr, _ := newService(t)
	ctx := context.Background()

	task, err := svc.Submit(ctx, domain.TaskTypeCaption, []byte(captionBody))
	require.NoError(t, err)
	_, _, err = tr.Pop(ctx, time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, svc.Requeue(ctx, task.ID))
	n, err := tr.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = st.MarkRunning(ctx, task.ID, time.Now())
	require.NoError(t, err)
	err = svc.Requeue(ctx, task.ID)
	assert.ErrorIs(t, err, ErrNotRequeueable)

	assert.ErrorIs(t, svc.Requeue(ctx, uuid.New()), ErrTaskNotFound)

	tr.pushErr = errors.New("redis down")
	other, err := domain.NewTask(domain.TaskTypeCaption, []byte(captionBody), time.Now())
	require.NoError(t, err)
	require.NoError(t, st.Insert(ctx, other))
	assert.ErrorIs(t, svc.Requeue(ctx, other.ID), ErrQueueUnavailable)
}

func TestNewTaskService_RequiresDependencies(t *testing.T) {
	t.Parallel()
	_, err := NewTaskService(nil, queue.NewMemory(0, testLogger()), nil, "", nil)
	require.Error(t, err)
	_, err = NewTaskService(memstore.New(), nil, nil, "", nil)
	require.Error(t, err)
}

func TestHealthChecker(t *testing.T) {
	t.Parallel()
	st := memstore.New()
	tr := queue.NewMemory(0, testLogger())
	checker := NewHealthChecker(st, tr, time.Second, testLogger())

	report := checker.Check(context.Background())
	assert.True(t, report.Healthy())
	assert.Equal(t, ComponentOK, report.Queue)
	assert.Equal(t, ComponentOK, report.Store)
	require.NotNil(t, report.QueueLength)
	assert.Zero(t, *report.QueueLength)

	st.PingHook = func(context.Context) error { return store.ErrUnavailable }
	report = checker.Check(context.Background())
	assert.False(t, report.Healthy())
	assert.Equal(t, ComponentUnavailable, report.Store)
	assert.Equal(t, ComponentOK, report.Queue)

	st.PingHook = nil
	tr.Close()
	report = checker.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, ComponentUnavailable, report.Queue)
	assert.Nil(t, report.QueueLength)
}
