package pipeline

import (
	"context"
	"fmt"

	"github.com/phrazzld/vidq/internal/domain"
	"github.com/phrazzld/vidq/internal/platform/ffmpeg"
	"github.com/phrazzld/vidq/internal/platform/logger"
	"golang.org/x/sync/errgroup"
)

// Merge pairs each scene clip with its voiceover and concatenates the results
// in input order.
type Merge struct {
	Deps
}

// Execute runs a merge task and returns the artifact name. Any scene failure
// fails the whole task; no partial output is placed.
func (m *Merge) Execute(ctx context.Context, task *domain.Task) (string, error) {
	in, err := domain.DecodeMergeInput(task.Input)
	if err != nil {
		return "", internalFailure("decode input", err)
	}
	log := logger.FromContext(ctx)

	ws, err := NewWorkspace(m.TempDir, task.ID, m.diskNeed(5*len(in.SceneClipURLs)))
	if err != nil {
		return "", internalFailure(stageWorkspace, err)
	}
	defer func() {
		if err := ws.Remove(); err != nil {
			log.WarnContext(ctx, "failed to remove workspace", "error", err)
		}
	}()

	n := len(in.SceneClipURLs)
	scenes := make([]string, n)
	voices := make([]string, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallelism())
	for i := range n {
		scenes[i] = ws.Path(fmt.Sprintf("scene_%03d%s", i, inputExt(in.SceneClipURLs[i], ".mp4")))
		voices[i] = ws.Path(fmt.Sprintf("voice_%03d%s", i, inputExt(in.VoiceoverURLs[i], ".mp3")))
		g.Go(func() error {
			if err := m.Fetcher.Fetch(gctx, in.SceneClipURLs[i], scenes[i]); err != nil {
				return inputFailure(fmt.Sprintf("%s scene %d", stageDownload, i), err)
			}
			return nil
		})
		g.Go(func() error {
			if err := m.Fetcher.Fetch(gctx, in.VoiceoverURLs[i], voices[i]); err != nil {
				return inputFailure(fmt.Sprintf("%s voiceover %d", stageDownload, i), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	log.DebugContext(ctx, "merge inputs downloaded", "scenes", n)

	mixed := make([]string, n)
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(m.parallelism())
	for i := range n {
		g.Go(func() error {
			duration, err := m.Media.Probe(gctx, scenes[i])
			if err != nil {
				return toolFailure(fmt.Sprintf("%s scene %d", stageProbe, i), err)
			}
			out := ws.Path(fmt.Sprintf("mixed_%03d.mp4", i))
			err = m.Media.MixScene(gctx, scenes[i], voices[i], out, ffmpeg.SceneParams{
				Width:           in.Width,
				Height:          in.Height,
				VideoVolume:     in.VideoVolume,
				VoiceoverVolume: in.VoiceoverVolume,
				Duration:        duration,
			})
			if err != nil {
				return toolFailure(fmt.Sprintf("%s scene %d", stageRender, i), err)
			}
			mixed[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	merged := ws.Path("merged.mp4")
	if err := m.Media.Concat(ctx, mixed, merged); err != nil {
		return "", toolFailure(stageConcat, err)
	}

	name, err := Place(merged, m.OutputDir, task.ID, task.Type)
	if err != nil {
		return "", internalFailure(stagePlace, fmt.Errorf("merge: %w", err))
	}
	return name, nil
}
