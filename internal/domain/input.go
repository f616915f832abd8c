package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CaptionInput holds the parameters of a caption task.
type CaptionInput struct {
	VideoURL  string `json:"video_url"  validate:"required,http_url"`
	ModelSize string `json:"model_size" validate:"oneof=tiny base small medium large"`
}

// MergeInput holds the parameters of a merge task. Scene i is paired with voiceover i.
type MergeInput struct {
	SceneClipURLs   []string `json:"scene_clip_urls"  validate:"required,min=1,max=50,dive,http_url"`
	VoiceoverURLs   []string `json:"voiceover_urls"   validate:"required,min=1,max=50,dive,http_url"`
	Width           int      `json:"width"            validate:"gte=480,lte=3840"`
	Height          int      `json:"height"           validate:"gte=480,lte=3840"`
	VideoVolume     float64  `json:"video_volume"     validate:"gte=0,lte=1"`
	VoiceoverVolume float64  `json:"voiceover_volume" validate:"gte=0,lte=10"`
}

// BackgroundMusicInput holds the parameters of a background music task.
type BackgroundMusicInput struct {
	VideoURL    string  `json:"video_url"    validate:"required,http_url"`
	MusicURL    string  `json:"music_url"    validate:"required,http_url"`
	MusicVolume float64 `json:"music_volume" validate:"gte=0,lte=1"`
	VideoVolume float64 `json:"video_volume" validate:"gte=0,lte=1"`
}

// DefaultCaptionInput returns a CaptionInput with defaults for optional fields.
func DefaultCaptionInput() CaptionInput {
	return CaptionInput{ModelSize: "small"}
}

// DefaultMergeInput returns a MergeInput with defaults for optional fields.
func DefaultMergeInput() MergeInput {
	return MergeInput{Width: 1080, Height: 1920, VideoVolume: 0.2, VoiceoverVolume: 2.0}
}

// DefaultBackgroundMusicInput returns a BackgroundMusicInput with defaults for optional fields.
func DefaultBackgroundMusicInput() BackgroundMusicInput {
	return BackgroundMusicInput{MusicVolume: 0.3, VideoVolume: 1.0}
}

// DecodeCaptionInput parses and validates raw caption parameters.
func DecodeCaptionInput(raw []byte) (CaptionInput, error) {
	in := DefaultCaptionInput()
	if err := decodeInput(raw, &in); err != nil {
		return CaptionInput{}, err
	}
	return in, nil
}

// DecodeMergeInput parses and validates raw merge parameters.
func DecodeMergeInput(raw []byte) (MergeInput, error) {
	in := DefaultMergeInput()
	if err := decodeInput(raw, &in); err != nil {
		return MergeInput{}, err
	}
	if len(in.SceneClipURLs) != len(in.VoiceoverURLs) {
		return MergeInput{}, fmt.Errorf("%w: %d scene clips but %d voiceovers",
			ErrInvalidInput, len(in.SceneClipURLs), len(in.VoiceoverURLs))
	}
	return in, nil
}

// DecodeBackgroundMusicInput parses and validates raw background music parameters.
func DecodeBackgroundMusicInput(raw []byte) (BackgroundMusicInput, error) {
	in := DefaultBackgroundMusicInput()
	if err := decodeInput(raw, &in); err != nil {
		return BackgroundMusicInput{}, err
	}
	return in, nil
}

// NormalizeInput validates raw input for taskType and returns it re-encoded with
// defaults applied, which is the form persisted on the task record.
func NormalizeInput(taskType TaskType, raw []byte) (json.RawMessage, error) {
	var (
		in  any
		err error
	)
	switch taskType {
	case TaskTypeCaption:
		in, err = DecodeCaptionInput(raw)
	case TaskTypeMerge:
		in, err = DecodeMergeInput(raw)
	case TaskTypeBackgroundMusic:
		in, err = DecodeBackgroundMusicInput(raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidTaskType, taskType)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(in)
}

// SourceURLs returns the remote inputs named by raw parameters of taskType.
func SourceURLs(taskType TaskType, raw []byte) ([]string, error) {
	switch taskType {
	case TaskTypeCaption:
		in, err := DecodeCaptionInput(raw)
		if err != nil {
			return nil, err
		}
		return []string{in.VideoURL}, nil
	case TaskTypeMerge:
		in, err := DecodeMergeInput(raw)
		if err != nil {
			return nil, err
		}
		return append(append([]string(nil), in.SceneClipURLs...), in.VoiceoverURLs...), nil
	case TaskTypeBackgroundMusic:
		in, err := DecodeBackgroundMusicInput(raw)
		if err != nil {
			return nil, err
		}
		return []string{in.VideoURL, in.MusicURL}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidTaskType, taskType)
}

// SourceBudget is how many single-file size limits the inputs of one task of
// taskType may add up to.
func SourceBudget(taskType TaskType) int64 {
	switch taskType {
	case TaskTypeMerge:
		return 5
	case TaskTypeBackgroundMusic:
		return 2
	}
	return 1
}

func decodeInput(raw []byte, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("%w: empty body", ErrInvalidInput)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after the JSON object", ErrInvalidInput)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, describeValidation(err))
	}
	return nil
}

// describeValidation turns validator errors into a short field list that is safe
// to return to clients.
func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
