package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/phrazzld/vidq/internal/domain"
	"github.com/phrazzld/vidq/internal/platform/ffmpeg"
)

// Media is the set of media operations executors need. *ffmpeg.Toolkit
// implements it.
type Media interface {
	Probe(ctx context.Context, path string) (time.Duration, error)
	BurnSubtitles(ctx context.Context, input, srtPath, output string) error
	MixScene(ctx context.Context, video, voiceover, output string, p ffmpeg.SceneParams) error
	Concat(ctx context.Context, clips []string, output string) error
	AddBackgroundMusic(ctx context.Context, video, music, output string, p ffmpeg.MusicParams) error
}

// Transcriber turns speech in a media file into timed segments.
type Transcriber interface {
	Transcribe(ctx context.Context, media, model, workDir string) ([]domain.Segment, error)
}

// Fetcher downloads a remote input to a local path.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) error
}

// Deps holds what every executor shares.
type Deps struct {
	Fetcher   Fetcher
	Media     Media
	OutputDir string
	// TempDir is where workspaces are created; empty means the OS default.
	TempDir string
	// DownloadParallelism bounds concurrent downloads and scene renders.
	DownloadParallelism int
	// MaxFileBytes is the per-input size limit. It sizes the free-space check
	// done before a workspace is created; zero skips the check.
	MaxFileBytes int64
	Logger       *slog.Logger
}

// diskNeed is the free space an execution expects to use for the given number
// of input-sized files.
func (d Deps) diskNeed(files int) int64 {
	return d.MaxFileBytes * int64(files)
}

func (d Deps) parallelism() int {
	if d.DownloadParallelism < 1 {
		return 1
	}
	return d.DownloadParallelism
}

// Stage names used in failure messages.
const (
	stageWorkspace  = "prepare workspace"
	stageDownload   = "download"
	stageProbe      = "probe"
	stageTranscribe = "transcribe"
	stageRender     = "render"
	stageConcat     = "concat"
	stagePlace      = "place output"
)

func toolFailure(stage string, err error) error {
	return domain.NewTaskError(domain.FailureToolFailure, stage, err)
}

func inputFailure(stage string, err error) error {
	return domain.NewTaskError(domain.FailureInputAcquisition, stage, err)
}

func internalFailure(stage string, err error) error {
	return domain.NewTaskError(domain.FailureInternal, stage, err)
}
