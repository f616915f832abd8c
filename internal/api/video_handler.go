package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/vidq/internal/domain"
	"github.com/spf13/afero"
)

// VideoHandler serves output artifacts.
type VideoHandler struct {
	fs  afero.Fs
	dir string
}

// NewVideoHandler creates a VideoHandler serving files from dir on fs.
func NewVideoHandler(fs afero.Fs, dir string) *VideoHandler {
	return &VideoHandler{fs: fs, dir: dir}
}

// ServeVideo streams an artifact. Only names that follow the artifact naming
// scheme are served, so nothing outside the output directory is reachable.
// GET /video/{filename}
func (h *VideoHandler) ServeVideo(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if _, _, err := domain.ParseArtifactName(name); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	f, err := h.fs.Open(filepath.Join(h.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			HandleAPIError(w, r, errVideoNotFound, "Video not found")
			return
		}
		HandleAPIError(w, r, err, "")
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		HandleAPIError(w, r, errVideoNotFound, "Video not found")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	http.ServeContent(w, r, name, info.ModTime(), f)
}
