package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/vidq/internal/api/middleware"
	"github.com/phrazzld/vidq/internal/api/shared"
	"github.com/phrazzld/vidq/internal/domain"
	"github.com/phrazzld/vidq/internal/queue"
	"github.com/phrazzld/vidq/internal/service"
	"github.com/phrazzld/vidq/internal/store/memstore"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const (
	publicURL = "https://videos.example.com"
	videoDir  = "/srv/videos"
)

type testAPI struct {
	router http.Handler
	store  *memstore.TaskStore
	queue  *queue.Memory
	fs     afero.Fs
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestAPI wires the handlers the way the server does, over in-memory
// dependencies.
func newTestAPI(t *testing.T, opts ...service.TaskServiceOption) *testAPI {
	t.Helper()
	ta := &testAPI{
		store: memstore.New(),
		queue: queue.NewMemory(0, testLogger()),
		fs:    afero.NewMemMapFs(),
	}
	svc, err := service.NewTaskService(ta.store, ta.queue, nil, publicURL, testLogger(), opts...)
	require.NoError(t, err)

	tasks := NewTaskHandler(svc)
	videos := NewVideoHandler(ta.fs, videoDir)
	health := NewHealthHandler(service.NewHealthChecker(ta.store, ta.queue, 0, testLogger()))

	r := chi.NewRouter()
	r.Use(middleware.NewTraceMiddleware(testLogger()))
	r.Route("/api/tasks", func(r chi.Router) {
		r.Post("/caption", tasks.Submit(domain.TaskTypeCaption))
		r.Post("/merge", tasks.Submit(domain.TaskTypeMerge))
		r.Post("/background-music", tasks.Submit(domain.TaskTypeBackgroundMusic))
		r.Get("/{id}", tasks.GetTask)
		r.Post("/{id}/requeue", tasks.RequeueTask)
	})
	r.Get("/video/{filename}", videos.ServeVideo)
	r.Get("/health", health.Health)
	ta.router = r
	return ta
}

func (ta *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader).WithContext(context.Background())
	rec := httptest.NewRecorder()
	ta.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) shared.ErrorResponse {
	t.Helper()
	return decode[shared.ErrorResponse](t, rec)
}
