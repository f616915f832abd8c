package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/vidq/internal/domain"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeVideo(t *testing.T) {
	t.Parallel()
	ta := newTestAPI(t)

	name := domain.ArtifactName(uuid.New(), domain.TaskTypeMerge)
	require.NoError(t, afero.WriteFile(ta.fs, filepath.Join(videoDir, name), []byte("mp4 bytes"), 0o644))

	rec := ta.do(t, http.MethodGet, "/video/"+name, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "mp4 bytes", rec.Body.String())
}

func TestServeVideo_RangeRequest(t *testing.T) {
	t.Parallel()
	ta := newTestAPI(t)

	name := domain.ArtifactName(uuid.New(), domain.TaskTypeCaption)
	require.NoError(t, afero.WriteFile(ta.fs, filepath.Join(videoDir, name), []byte("0123456789"), 0o644))

	req, err := http.NewRequest(http.MethodGet, "/video/"+name, nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=2-5")
	rec := httptest.NewRecorder()
	ta.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "2345", rec.Body.String())
}

func TestServeVideo_Rejects(t *testing.T) {
	t.Parallel()
	ta := newTestAPI(t)
	require.NoError(t, afero.WriteFile(ta.fs, filepath.Join(videoDir, "notes.txt"), []byte("x"), 0o644))

	tests := []struct {
		name string
		path string
		code int
	}{
		{"not an artifact", "/video/notes.txt", http.StatusBadRequest},
		{"traversal", "/video/..%2F..%2Fetc%2Fpasswd", http.StatusBadRequest},
		{"partial file", "/video/" + domain.PartialArtifactName(uuid.New(), domain.TaskTypeMerge), http.StatusBadRequest},
		{"missing", "/video/" + domain.ArtifactName(uuid.New(), domain.TaskTypeMerge), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ta.do(t, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}
