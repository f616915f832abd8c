package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CaptionStyle is the burn-in appearance of captions.
type CaptionStyle struct {
	FontName     string
	FontSize     int
	PrimaryColor string // #RRGGBB
	OutlineColor string // #RRGGBB
	ShadowColor  string // #RRGGBB
	Outline      int
	Shadow       int
	// PositionY is the baseline of captions on a 1920 pixel tall frame.
	PositionY int
}

// SceneParams controls how one scene clip is combined with its voiceover.
type SceneParams struct {
	Width           int
	Height          int
	VideoVolume     float64
	VoiceoverVolume float64
	// Duration is the scene length; the voiceover is cut to it.
	Duration time.Duration
}

// MusicParams controls background music mixing.
type MusicParams struct {
	MusicVolume float64
	VideoVolume float64
	// Duration is the video length; the looped music is trimmed to it.
	Duration time.Duration
}

// referenceHeight is the frame height PositionY is expressed against.
const referenceHeight = 1920

// HexToASS converts #RRGGBB into the &H00BBGGRR form used by ASS styles.
func HexToASS(hex string) (string, error) {
	h := strings.TrimPrefix(hex, "#")
	if len(h) != 6 {
		return "", fmt.Errorf("invalid colour %q", hex)
	}
	if _, err := strconv.ParseUint(h, 16, 32); err != nil {
		return "", fmt.Errorf("invalid colour %q", hex)
	}
	h = strings.ToUpper(h)
	return "&H00" + h[4:6] + h[2:4] + h[0:2], nil
}

// escapeFilterPath escapes a path for use as a filter option value.
func escapeFilterPath(path string) string {
	r := strings.NewReplacer(`\`, `/`, `:`, `\:`, `'`, `\'`)
	return r.Replace(path)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// SubtitleFilter builds the -vf value that renders srtPath with style.
func SubtitleFilter(srtPath string, style CaptionStyle) (string, error) {
	primary, err := HexToASS(style.PrimaryColor)
	if err != nil {
		return "", err
	}
	outline, err := HexToASS(style.OutlineColor)
	if err != nil {
		return "", err
	}
	shadowHex := style.ShadowColor
	if shadowHex == "" {
		shadowHex = style.OutlineColor
	}
	shadow, err := HexToASS(shadowHex)
	if err != nil {
		return "", err
	}

	marginV := referenceHeight - style.PositionY
	if marginV < 0 {
		marginV = 0
	}

	return fmt.Sprintf(
		"subtitles=%s:force_style='FontName=%s,FontSize=%d,PrimaryColour=%s,OutlineColour=%s,BackColour=%s,BorderStyle=1,Outline=%d,Shadow=%d,Alignment=2,MarginV=%d'",
		escapeFilterPath(srtPath),
		style.FontName,
		style.FontSize,
		primary,
		outline,
		shadow,
		style.Outline,
		style.Shadow,
		marginV,
	), nil
}

// ProbeArgs returns ffprobe arguments printing only the container duration.
func ProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
}

// ParseDuration parses ffprobe's duration output in seconds.
func ParseDuration(out []byte) (time.Duration, error) {
	s := strings.TrimSpace(string(out))
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs <= 0 {
		return 0, fmt.Errorf("unexpected ffprobe duration %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// BurnSubtitlesArgs returns the ffmpeg arguments that burn srtPath into input.
func BurnSubtitlesArgs(input, srtPath, output string, style CaptionStyle) ([]string, error) {
	filter, err := SubtitleFilter(srtPath, style)
	if err != nil {
		return nil, err
	}
	return []string{
		"-y",
		"-i", input,
		"-vf", filter,
		"-c:a", "copy",
		output,
	}, nil
}

// MixSceneArgs returns the ffmpeg arguments that scale and crop video to cover
// the target frame and mix its audio with the voiceover.
func MixSceneArgs(video, voiceover, output string, p SceneParams) []string {
	filter := fmt.Sprintf(
		"[0:v]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d[v];"+
			"[0:a]volume=%s[va];"+
			"[1:a]volume=%s,atrim=duration=%s,asetpts=PTS-STARTPTS[aa];"+
			"[va][aa]amix=inputs=2:duration=first[a]",
		p.Width, p.Height, p.Width, p.Height,
		formatFloat(p.VideoVolume),
		formatFloat(p.VoiceoverVolume),
		formatSeconds(p.Duration),
	)
	return []string{
		"-y",
		"-i", video,
		"-i", voiceover,
		"-t", formatSeconds(p.Duration),
		"-filter_complex", filter,
		"-map", "[v]",
		"-map", "[a]",
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-ar", "48000",
		"-ac", "2",
		output,
	}
}

// ConcatList renders a concat demuxer list for paths in order.
func ConcatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(p, `'`, `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

// ConcatArgs returns the ffmpeg arguments that join the clips named in listPath
// without re-encoding.
func ConcatArgs(listPath, output string) []string {
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		output,
	}
}

// BackgroundMusicArgs returns the ffmpeg arguments that loop music, trim it to
// the video duration, mix it under the video's audio and copy the video stream.
func BackgroundMusicArgs(video, music, output string, p MusicParams) []string {
	filter := fmt.Sprintf(
		"[0:a]volume=%s[va];"+
			"[1:a]volume=%s,aloop=loop=-1:size=2e+09,atrim=duration=%s[ma];"+
			"[va][ma]amix=inputs=2:duration=first:dropout_transition=2[a]",
		formatFloat(p.VideoVolume),
		formatFloat(p.MusicVolume),
		formatSeconds(p.Duration),
	)
	return []string{
		"-y",
		"-i", video,
		"-i", music,
		"-filter_complex", filter,
		"-map", "0:v",
		"-map", "[a]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-ar", "48000",
		"-t", formatSeconds(p.Duration),
		output,
	}
}

// ExtractAudioArgs returns the ffmpeg arguments that write a mono 16 kHz MP3 of
// input's audio, the form speech recognisers accept most compactly.
func ExtractAudioArgs(input, output string) []string {
	return []string{
		"-y",
		"-i", input,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "libmp3lame",
		"-b:a", "64k",
		output,
	}
}
