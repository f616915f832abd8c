package pipeline

import (
	"context"
	"fmt"

	"github.com/phrazzld/vidq/internal/domain"
	"github.com/phrazzld/vidq/internal/platform/ffmpeg"
	"github.com/phrazzld/vidq/internal/platform/logger"
	"golang.org/x/sync/errgroup"
)

// BackgroundMusic mixes a looped music track under a video.
type BackgroundMusic struct {
	Deps
}

// Execute runs a background music task and returns the artifact name. The
// output is exactly as long as the input video.
func (b *BackgroundMusic) Execute(ctx context.Context, task *domain.Task) (string, error) {
	in, err := domain.DecodeBackgroundMusicInput(task.Input)
	if err != nil {
		return "", internalFailure("decode input", err)
	}
	log := logger.FromContext(ctx)

	ws, err := NewWorkspace(b.TempDir, task.ID, b.diskNeed(4))
	if err != nil {
		return "", internalFailure(stageWorkspace, err)
	}
	defer func() {
		if err := ws.Remove(); err != nil {
			log.WarnContext(ctx, "failed to remove workspace", "error", err)
		}
	}()

	video := ws.Path("video" + inputExt(in.VideoURL, ".mp4"))
	music := ws.Path("music" + inputExt(in.MusicURL, ".mp3"))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelism())
	g.Go(func() error {
		return wrapFetch(b.Fetcher.Fetch(gctx, in.VideoURL, video), "video")
	})
	g.Go(func() error {
		return wrapFetch(b.Fetcher.Fetch(gctx, in.MusicURL, music), "music")
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	duration, err := b.Media.Probe(ctx, video)
	if err != nil {
		return "", toolFailure(stageProbe+" video", err)
	}

	output := ws.Path("with_music.mp4")
	err = b.Media.AddBackgroundMusic(ctx, video, music, output, ffmpeg.MusicParams{
		MusicVolume: in.MusicVolume,
		VideoVolume: in.VideoVolume,
		Duration:    duration,
	})
	if err != nil {
		return "", toolFailure(stageRender, err)
	}

	name, err := Place(output, b.OutputDir, task.ID, task.Type)
	if err != nil {
		return "", internalFailure(stagePlace, fmt.Errorf("background music: %w", err))
	}
	return name, nil
}

func wrapFetch(err error, what string) error {
	if err == nil {
		return nil
	}
	return inputFailure(stageDownload+" "+what, err)
}
