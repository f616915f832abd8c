package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/phrazzld/vidq/internal/domain"
	"github.com/phrazzld/vidq/internal/platform/logger"
)

// Caption transcribes a video's speech and burns the text onto it.
type Caption struct {
	Deps
	Transcriber     Transcriber
	MaxWordsPerLine int
}

// Execute runs a caption task and returns the artifact name.
func (c *Caption) Execute(ctx context.Context, task *domain.Task) (string, error) {
	in, err := domain.DecodeCaptionInput(task.Input)
	if err != nil {
		return "", internalFailure("decode input", err)
	}
	log := logger.FromContext(ctx)

	ws, err := NewWorkspace(c.TempDir, task.ID, c.diskNeed(3))
	if err != nil {
		return "", internalFailure(stageWorkspace, err)
	}
	defer func() {
		if err := ws.Remove(); err != nil {
			log.WarnContext(ctx, "failed to remove workspace", "error", err)
		}
	}()

	source := ws.Path("source" + inputExt(in.VideoURL, ".mp4"))
	if err := c.Fetcher.Fetch(ctx, in.VideoURL, source); err != nil {
		return "", inputFailure(stageDownload+" video", err)
	}

	segments, err := c.Transcriber.Transcribe(ctx, source, in.ModelSize, ws.Dir)
	if err != nil {
		return "", toolFailure(stageTranscribe, err)
	}
	cues := BuildCues(segments, c.MaxWordsPerLine)
	log.DebugContext(ctx, "transcription complete", "segments", len(segments), "cues", len(cues))

	output := source
	if len(cues) > 0 {
		srtPath := ws.Path("captions.srt")
		if err := os.WriteFile(srtPath, []byte(RenderSRT(cues)), 0o600); err != nil {
			return "", internalFailure("write captions", err)
		}
		output = ws.Path("captioned.mp4")
		if err := c.Media.BurnSubtitles(ctx, source, srtPath, output); err != nil {
			return "", toolFailure(stageRender, err)
		}
	} else {
		// A video without speech is published unchanged.
		log.InfoContext(ctx, "no speech detected, skipping caption burn-in")
	}

	name, err := Place(output, c.OutputDir, task.ID, task.Type)
	if err != nil {
		return "", internalFailure(stagePlace, fmt.Errorf("caption: %w", err))
	}
	return name, nil
}
