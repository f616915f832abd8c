// Package ffmpeg drives the ffmpeg and ffprobe command-line tools.
//
// Argument construction lives in pure functions (ProbeArgs, MixSceneArgs, ...)
// so it can be tested without the binaries; Toolkit runs them through a
// toolexec.Runner.
package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/phrazzld/vidq/internal/platform/toolexec"
)

// Toolkit runs media operations with the configured binaries.
type Toolkit struct {
	runner  toolexec.Runner
	ffmpeg  string
	ffprobe string
	style   CaptionStyle
	logger  *slog.Logger
}

// New creates a Toolkit.
func New(runner toolexec.Runner, ffmpegPath, ffprobePath string, style CaptionStyle, logger *slog.Logger) *Toolkit {
	return &Toolkit{
		runner:  runner,
		ffmpeg:  ffmpegPath,
		ffprobe: ffprobePath,
		style:   style,
		logger:  logger.With("component", "ffmpeg"),
	}
}

// Probe returns the duration of the media file at path.
func (t *Toolkit) Probe(ctx context.Context, path string) (time.Duration, error) {
	out, err := t.runner.Run(ctx, t.ffprobe, ProbeArgs(path)...)
	if err != nil {
		return 0, err
	}
	return ParseDuration(out)
}

// BurnSubtitles renders the SRT file onto the video.
func (t *Toolkit) BurnSubtitles(ctx context.Context, input, srtPath, output string) error {
	args, err := BurnSubtitlesArgs(input, srtPath, output, t.style)
	if err != nil {
		return err
	}
	_, err = t.runner.Run(ctx, t.ffmpeg, args...)
	return err
}

// MixScene combines a scene clip with its voiceover.
func (t *Toolkit) MixScene(ctx context.Context, video, voiceover, output string, p SceneParams) error {
	_, err := t.runner.Run(ctx, t.ffmpeg, MixSceneArgs(video, voiceover, output, p)...)
	return err
}

// Concat joins clips in order. The concat list is written next to output.
func (t *Toolkit) Concat(ctx context.Context, clips []string, output string) error {
	if len(clips) == 0 {
		return fmt.Errorf("concat needs at least one clip")
	}
	listPath := filepath.Join(filepath.Dir(output), "concat_list.txt")
	if err := os.WriteFile(listPath, []byte(ConcatList(clips)), 0o600); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	_, err := t.runner.Run(ctx, t.ffmpeg, ConcatArgs(listPath, output)...)
	return err
}

// AddBackgroundMusic mixes looped music under the video.
func (t *Toolkit) AddBackgroundMusic(ctx context.Context, video, music, output string, p MusicParams) error {
	_, err := t.runner.Run(ctx, t.ffmpeg, BackgroundMusicArgs(video, music, output, p)...)
	return err
}

// ExtractAudio writes input's audio track as a compact MP3.
func (t *Toolkit) ExtractAudio(ctx context.Context, input, output string) error {
	_, err := t.runner.Run(ctx, t.ffmpeg, ExtractAudioArgs(input, output)...)
	return err
}
