package pipeline

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/vidq/internal/domain"
	"golang.org/x/sys/unix"
)

// WorkspacePrefix starts the name of every workspace directory. The sweeper
// removes abandoned directories carrying it.
const WorkspacePrefix = "vidq-"

// diskHeadroom is kept free on top of what an execution asks for.
const diskHeadroom = 100 << 20

// ErrInsufficientDisk is returned when the workspace filesystem lacks the free
// space an execution needs.
var ErrInsufficientDisk = errors.New("insufficient disk space")

// freeBytes reports the space available to unprivileged users on the
// filesystem holding dir.
func freeBytes(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// Workspace is a private temporary directory for one execution.
type Workspace struct {
	Dir string
}

// NewWorkspace creates a workspace for the task with id under parent. When
// need is positive the filesystem must have need bytes plus headroom free.
func NewWorkspace(parent string, id uuid.UUID, need int64) (*Workspace, error) {
	if parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create temp root: %w", err)
		}
	}
	if need > 0 {
		root := parent
		if root == "" {
			root = os.TempDir()
		}
		free, err := freeBytes(root)
		if err != nil {
			return nil, fmt.Errorf("failed to read free disk space: %w", err)
		}
		if required := uint64(need) + diskHeadroom; free < required {
			return nil, fmt.Errorf("%w: %d MB free, %d MB required",
				ErrInsufficientDisk, free>>20, required>>20)
		}
	}
	dir, err := os.MkdirTemp(parent, WorkspacePrefix+id.String()+"-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Workspace{Dir: dir}, nil
}

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Remove deletes the workspace and everything in it.
func (w *Workspace) Remove() error {
	return os.RemoveAll(w.Dir)
}

// Place moves the file at src into outputDir under the artifact name of the
// task. The file becomes visible under its final name only once complete.
func Place(src, outputDir string, id uuid.UUID, taskType domain.TaskType) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	name := domain.ArtifactName(id, taskType)
	partial := filepath.Join(outputDir, domain.PartialArtifactName(id, taskType))
	final := filepath.Join(outputDir, name)

	if err := os.Rename(src, partial); err != nil {
		// Workspaces may live on another filesystem.
		if err := copyFile(src, partial); err != nil {
			_ = os.Remove(partial)
			return "", err
		}
	}
	if err := os.Rename(partial, final); err != nil {
		_ = os.Remove(partial)
		return "", fmt.Errorf("failed to publish artifact: %w", err)
	}
	return name, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy artifact: %w", err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to sync artifact: %w", err)
	}
	return out.Close()
}

// inputExt returns the file extension of the URL's path, or fallback when it
// has none or an implausible one.
func inputExt(rawURL, fallback string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if len(ext) < 2 || len(ext) > 5 {
		return fallback
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return fallback
		}
	}
	return ext
}
