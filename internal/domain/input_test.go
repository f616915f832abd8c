package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMergeInput_Defaults(t *testing.T) {
	t.Parallel()

	in, err := DecodeMergeInput([]byte(`{
		"scene_clip_urls": ["https://cdn.example.com/s1.mp4", "https://cdn.example.com/s2.mp4"],
		"voiceover_urls": ["https://cdn.example.com/v1.mp3", "https://cdn.example.com/v2.mp3"]
	}`))
	require.NoError(t, err)

	assert.Equal(t, 1080, in.Width)
	assert.Equal(t, 1920, in.Height)
	assert.InDelta(t, 0.2, in.VideoVolume, 1e-9)
	assert.InDelta(t, 2.0, in.VoiceoverVolume, 1e-9)
}

func TestDecodeMergeInput_ExplicitZeroVolumeKept(t *testing.T) {
	t.Parallel()

	in, err := DecodeMergeInput([]byte(`{
		"scene_clip_urls": ["https://cdn.example.com/s1.mp4"],
		"voiceover_urls": ["https://cdn.example.com/v1.mp3"],
		"video_volume": 0
	}`))
	require.NoError(t, err)
	assert.Zero(t, in.VideoVolume)
}

func TestDecodeInputs_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		taskType TaskType
		raw      string
	}{
		{"empty body", TaskTypeCaption, ``},
		{"missing url", TaskTypeCaption, `{}`},
		{"not http", TaskTypeCaption, `{"video_url":"file:///etc/passwd"}`},
		{"bad model", TaskTypeCaption, `{"video_url":"https://e.com/v.mp4","model_size":"huge"}`},
		{"unknown field", TaskTypeCaption, `{"video_url":"https://e.com/v.mp4","codec":"h265"}`},
		{"mismatched pairs", TaskTypeMerge, `{"scene_clip_urls":["https://e.com/1.mp4","https://e.com/2.mp4"],"voiceover_urls":["https://e.com/1.mp3"]}`},
		{"width too small", TaskTypeMerge, `{"scene_clip_urls":["https://e.com/1.mp4"],"voiceover_urls":["https://e.com/1.mp3"],"width":100}`},
		{"music volume too loud", TaskTypeBackgroundMusic, `{"video_url":"https://e.com/v.mp4","music_url":"https://e.com/m.mp3","music_volume":3}`},
		{"missing music", TaskTypeBackgroundMusic, `{"video_url":"https://e.com/v.mp4"}`},
		{"trailing object", TaskTypeCaption, `{"video_url":"https://e.com/v.mp4"} {"junk":true}`},
		{"trailing garbage", TaskTypeCaption, `{"video_url":"https://e.com/v.mp4"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeInput(tt.taskType, []byte(tt.raw))
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestNormalizeInput_AppliesDefaults(t *testing.T) {
	t.Parallel()

	raw, err := NormalizeInput(TaskTypeBackgroundMusic,
		[]byte(`{"video_url":"https://e.com/v.mp4","music_url":"https://e.com/m.mp3"}`))
	require.NoError(t, err)

	var in BackgroundMusicInput
	require.NoError(t, json.Unmarshal(raw, &in))
	assert.InDelta(t, 0.3, in.MusicVolume, 1e-9)
	assert.InDelta(t, 1.0, in.VideoVolume, 1e-9)

	_, err = NormalizeInput("transcode", []byte(`{}`))
	assert.ErrorIs(t, err, ErrInvalidTaskType)
}

func TestDecodeCaptionInput_TrailingWhitespaceAccepted(t *testing.T) {
	t.Parallel()

	_, err := DecodeCaptionInput([]byte("{\"video_url\":\"https://e.com/v.mp4\"}\n  "))
	require.NoError(t, err)
}

func TestSourceURLs(t *testing.T) {
	t.Parallel()

	urls, err := SourceURLs(TaskTypeMerge, []byte(`{
		"scene_clip_urls": ["https://e.com/s1.mp4", "https://e.com/s2.mp4"],
		"voiceover_urls": ["https://e.com/v1.mp3", "https://e.com/v2.mp3"]
	}`))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://e.com/s1.mp4", "https://e.com/s2.mp4",
		"https://e.com/v1.mp3", "https://e.com/v2.mp3",
	}, urls)

	urls, err = SourceURLs(TaskTypeBackgroundMusic, []byte(`{"video_url":"https://e.com/v.mp4","music_url":"https://e.com/m.mp3"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://e.com/v.mp4", "https://e.com/m.mp3"}, urls)

	_, err = SourceURLs(TaskType("transcode"), []byte(`{}`))
	assert.ErrorIs(t, err, ErrInvalidTaskType)

	assert.EqualValues(t, 1, SourceBudget(TaskTypeCaption))
	assert.EqualValues(t, 5, SourceBudget(TaskTypeMerge))
	assert.EqualValues(t, 2, SourceBudget(TaskTypeBackgroundMusic))
}
