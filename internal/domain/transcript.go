package domain

import "time"

// Segment is one timed span of transcribed speech.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}
