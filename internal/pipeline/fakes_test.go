package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/vidq/internal/domain"
	"github.com/phrazzld/vidq/internal/platform/ffmpeg"
	"github.com/stretchr/testify/require"
)

// fakeFetcher writes the URL into dest. URLs listed in fail return an error.
type fakeFetcher struct {
	mu      sync.Mutex
	fetched []string
	fail    map[string]error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	err := f.fail[url]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return os.WriteFile(dest, []byte(url), 0o600)
}

// fakeMedia records calls and writes outputs derived from its inputs.
type fakeMedia struct {
	mu           sync.Mutex
	duration     time.Duration
	jitter       bool
	failMixScene int // 1-based scene index to fail, 0 for none
	failBurn     error
	concatClips  []string
	musicParams  ffmpeg.MusicParams
	sceneParams  []ffmpeg.SceneParams
	burnedSRT    string
	burnCalls    int
}

func (m *fakeMedia) Probe(_ context.Context, path string) (time.Duration, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	return m.duration, nil
}

func (m *fakeMedia) BurnSubtitles(_ context.Context, input, srtPath, output string) error {
	m.mu.Lock()
	m.burnCalls++
	m.mu.Unlock()
	if m.failBurn != nil {
		return m.failBurn
	}
	srt, err := os.ReadFile(srtPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.burnedSRT = string(srt)
	m.mu.Unlock()
	return copyFile(input, output)
}

func (m *fakeMedia) MixScene(ctx context.Context, video, voiceover, output string, p ffmpeg.SceneParams) error {
	if m.jitter {
		select {
		case <-time.After(time.Duration(rand.IntN(20)) * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	base := filepath.Base(video)
	if m.failMixScene > 0 && strings.HasPrefix(base, sceneFile(m.failMixScene-1)) {
		return errors.New("ffmpeg exited with status 1")
	}
	m.mu.Lock()
	m.sceneParams = append(m.sceneParams, p)
	m.mu.Unlock()
	return os.WriteFile(output, []byte(base), 0o600)
}

func (m *fakeMedia) Concat(_ context.Context, clips []string, output string) error {
	m.mu.Lock()
	m.concatClips = append([]string(nil), clips...)
	m.mu.Unlock()
	var b strings.Builder
	for _, c := range clips {
		data, err := os.ReadFile(c)
		if err != nil {
			return err
		}
		b.Write(data)
		b.WriteString("\n")
	}
	return os.WriteFile(output, []byte(b.String()), 0o600)
}

func (m *fakeMedia) AddBackgroundMusic(_ context.Context, video, _ string, output string, p ffmpeg.MusicParams) error {
	m.mu.Lock()
	m.musicParams = p
	m.mu.Unlock()
	return copyFile(video, output)
}

type fakeTranscriber struct {
	segments []domain.Segment
	err      error
	model    string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _, model, _ string) ([]domain.Segment, error) {
	f.model = model
	return f.segments, f.err
}

func sceneFile(i int) string {
	return fmt.Sprintf("scene_%03d", i)
}

type testEnv struct {
	deps    Deps
	fetcher *fakeFetcher
	media   *fakeMedia
	tempDir string
	outDir  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	env := &testEnv{
		fetcher: &fakeFetcher{fail: map[string]error{}},
		media:   &fakeMedia{duration: 61 * time.Second},
		tempDir: filepath.Join(root, "tmp"),
		outDir:  filepath.Join(root, "videos"),
	}
	env.deps = Deps{
		Fetcher:             env.fetcher,
		Media:               env.media,
		OutputDir:           env.outDir,
		TempDir:             env.tempDir,
		DownloadParallelism: 4,
	}
	return env
}

func (e *testEnv) newTask(t *testing.T, taskType domain.TaskType, input any) *domain.Task {
	t.Helper()
	raw, err := json.Marshal(input)
	require.NoError(t, err)
	normalized, err := domain.NormalizeInput(taskType, raw)
	require.NoError(t, err)
	task, err := domain.NewTask(taskType, normalized, time.Now())
	require.NoError(t, err)
	return task
}

// assertNoWorkspace checks that every workspace was removed.
func (e *testEnv) assertNoWorkspace(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(e.tempDir)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	require.NoError(t, err)
	require.Empty(t, entries, "workspace should be removed")
}

func (e *testEnv) outputs(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.outDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}
