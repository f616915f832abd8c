package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/phrazzld/vidq/internal/domain"
)

// Cue is one caption line with its display interval.
type Cue struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// BuildCues splits segments into lines of at most maxWords words. A segment's
// duration is shared evenly between the lines cut from it.
func BuildCues(segments []domain.Segment, maxWords int) []Cue {
	if maxWords < 1 {
		maxWords = 1
	}
	var cues []Cue
	for _, seg := range segments {
		words := strings.Fields(seg.Text)
		if len(words) == 0 {
			continue
		}
		chunks := (len(words) + maxWords - 1) / maxWords
		span := seg.End - seg.Start
		for i := 0; i < chunks; i++ {
			lo := i * maxWords
			hi := min(lo+maxWords, len(words))
			cues = append(cues, Cue{
				Start: seg.Start + span*time.Duration(i)/time.Duration(chunks),
				End:   seg.Start + span*time.Duration(i+1)/time.Duration(chunks),
				Text:  strings.Join(words[lo:hi], " "),
			})
		}
	}
	return cues
}

// FormatTimestamp renders d as an SRT timestamp HH:MM:SS,mmm.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}

// RenderSRT renders cues as a SubRip document.
func RenderSRT(cues []Cue) string {
	var b strings.Builder
	for i, c := range cues {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, FormatTimestamp(c.Start), FormatTimestamp(c.End), c.Text)
	}
	return b.String()
}
