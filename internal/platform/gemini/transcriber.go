package gemini

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/phrazzld/vidq/internal/domain"
	"github.com/sethvargo/go-retry"
	"google.golang.org/genai"
)

//go:embed prompt.tmpl
var promptText string

var promptTemplate = template.Must(template.New("transcribe").Parse(promptText))

// maxInlineAudio is the largest request payload Gemini accepts inline.
const maxInlineAudio = 20 << 20

// ContentGenerator is the part of the genai client the transcriber uses.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// AudioExtractor produces the audio track of a media file.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, input, output string) error
}

// Config holds the transcriber settings.
type Config struct {
	APIKey     string
	Model      string
	MaxRetries uint64
	RetryBase  time.Duration
}

// Transcriber implements speech-to-text on the Gemini API.
type Transcriber struct {
	models    ContentGenerator
	extractor AudioExtractor
	cfg       Config
	logger    *slog.Logger
}

// New creates a Transcriber backed by a real genai client.
func New(ctx context.Context, cfg Config, extractor AudioExtractor, logger *slog.Logger) (*Transcriber, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}
	return NewWithGenerator(client.Models, cfg, extractor, logger)
}

// NewWithGenerator creates a Transcriber on an existing content generator.
func NewWithGenerator(models ContentGenerator, cfg Config, extractor AudioExtractor, logger *slog.Logger) (*Transcriber, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 2 * time.Second
	}
	return &Transcriber{
		models:    models,
		extractor: extractor,
		cfg:       cfg,
		logger:    logger.With("component", "gemini_transcriber", "model", cfg.Model),
	}, nil
}

// Transcribe extracts the audio of media into workDir and asks Gemini for timed
// segments. The whisper model selector is not meaningful here and is ignored.
func (t *Transcriber) Transcribe(ctx context.Context, media, _ string, workDir string) ([]domain.Segment, error) {
	audioPath := filepath.Join(workDir, "speech.mp3")
	if err := t.extractor.ExtractAudio(ctx, media, audioPath); err != nil {
		return nil, err
	}
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read extracted audio: %w", err)
	}
	if len(audio) > maxInlineAudio {
		return nil, fmt.Errorf("%w: %d bytes", ErrAudioTooLarge, len(audio))
	}

	prompt, err := createPrompt()
	if err != nil {
		return nil, err
	}

	response, err := t.callWithRetry(ctx, prompt, audio)
	if err != nil {
		return nil, err
	}
	return parseResponse(response)
}

func createPrompt() (string, error) {
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, promptData{MaxSegmentSeconds: 8}); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}

// callWithRetry calls the API, retrying transient failures with exponential
// backoff. Permanent errors such as blocked content are returned immediately.
func (t *Transcriber) callWithRetry(ctx context.Context, prompt string, audio []byte) (*ResponseSchema, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(audio, "audio/mp3"),
		}, genai.RoleUser),
	}
	temperature := float32(0)
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      &temperature,
	}

	backoff := retry.WithMaxRetries(t.cfg.MaxRetries, retry.NewExponential(t.cfg.RetryBase))
	attempt := 0
	var result *ResponseSchema

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		t.logger.InfoContext(ctx, "Making Gemini API call", "attempt", attempt)

		resp, err := t.models.GenerateContent(ctx, t.cfg.Model, contents, config)
		if err != nil {
			if isTransient(err) {
				t.logger.WarnContext(ctx, "Gemini API call failed, retrying",
					"attempt", attempt,
					"error", err)
				return retry.RetryableError(err)
			}
			return err
		}

		parsed, err := decodeResponse(resp)
		if err != nil {
			return err
		}
		result = parsed
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if isTransient(err) {
			return nil, fmt.Errorf("%w: after %d attempts: %v", ErrTransientFailure, attempt, err)
		}
		return nil, err
	}
	return result, nil
}

func decodeResponse(resp *genai.GenerateContentResponse) (*ResponseSchema, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no content generated", ErrInvalidResponse)
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, ErrContentBlocked
	}
	if candidate.Content == nil {
		return nil, fmt.Errorf("%w: empty content in response", ErrInvalidResponse)
	}

	text := strings.TrimSpace(resp.Text())
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimSuffix(strings.TrimPrefix(text, "```"), "```")

	var parsed ResponseSchema
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %v", ErrInvalidResponse, err)
	}
	return &parsed, nil
}

// parseResponse validates the segments and converts them to domain values.
func parseResponse(response *ResponseSchema) ([]domain.Segment, error) {
	segments := make([]domain.Segment, 0, len(response.Segments))
	var prevEnd float64
	for i, s := range response.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		if s.Start < 0 || s.End <= s.Start {
			return nil, fmt.Errorf("%w: segment %d has invalid bounds %.3f-%.3f",
				ErrInvalidResponse, i, s.Start, s.End)
		}
		if s.Start+0.001 < prevEnd {
			return nil, fmt.Errorf("%w: segment %d overlaps its predecessor", ErrInvalidResponse, i)
		}
		prevEnd = s.End
		segments = append(segments, domain.Segment{
			Start: time.Duration(s.Start * float64(time.Second)),
			End:   time.Duration(s.End * float64(time.Second)),
			Text:  text,
		})
	}
	return segments, nil
}

// isTransient reports whether err is worth retrying.
func isTransient(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code == 429 || apiErrPtr.Code >= 500
	}
	return !errors.Is(err, ErrInvalidResponse) && !errors.Is(err, ErrContentBlocked) &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
