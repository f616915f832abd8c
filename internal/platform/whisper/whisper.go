// Package whisper transcribes media with the openai-whisper command-line tool.
package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phrazzld/vidq/internal/domain"
	"github.com/phrazzld/vidq/internal/platform/toolexec"
)

// Transcriber runs whisper and reads back its JSON output.
type Transcriber struct {
	runner   toolexec.Runner
	binary   string
	modelDir string
	logger   *slog.Logger
}

// New creates a Transcriber. modelDir may be empty to use whisper's default cache.
func New(runner toolexec.Runner, binary, modelDir string, logger *slog.Logger) *Transcriber {
	return &Transcriber{
		runner:   runner,
		binary:   binary,
		modelDir: modelDir,
		logger:   logger.With("component", "whisper"),
	}
}

type output struct {
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Args returns the whisper arguments transcribing media into outDir.
func (t *Transcriber) Args(media, model, outDir string) []string {
	args := []string{
		media,
		"--model", model,
		"--output_format", "json",
		"--output_dir", outDir,
		"--fp16", "False",
		"--verbose", "False",
	}
	if t.modelDir != "" {
		args = append(args, "--model_dir", t.modelDir)
	}
	return args
}

// Transcribe returns the timed speech segments of media using the named model.
// whisper writes <basename>.json into workDir.
func (t *Transcriber) Transcribe(ctx context.Context, media, model, workDir string) ([]domain.Segment, error) {
	start := time.Now()
	if _, err := t.runner.Run(ctx, t.binary, t.Args(media, model, workDir)...); err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(filepath.Base(media), filepath.Ext(media))
	data, err := os.ReadFile(filepath.Join(workDir, base+".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read whisper output: %w", err)
	}

	segments, err := ParseOutput(data)
	if err != nil {
		return nil, err
	}
	t.logger.DebugContext(ctx, "transcription finished",
		"model", model,
		"segments", len(segments),
		"duration", time.Since(start))
	return segments, nil
}

// ParseOutput decodes whisper's JSON output.
func ParseOutput(data []byte) ([]domain.Segment, error) {
	var out output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode whisper output: %w", err)
	}
	segments := make([]domain.Segment, 0, len(out.Segments))
	for _, s := range out.Segments {
		segments = append(segments, domain.Segment{
			Start: seconds(s.Start),
			End:   seconds(s.End),
			Text:  strings.TrimSpace(s.Text),
		})
	}
	return segments, nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
