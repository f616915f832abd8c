package gemini

// promptData represents the data passed to the prompt template
type promptData struct {
	MaxSegmentSeconds int
}

// ResponseSchema represents the expected structure of a transcript from the Gemini API
type ResponseSchema struct {
	Segments []SegmentSchema `json:"segments"`
}

// SegmentSchema represents a single timed segment in the API response
type SegmentSchema struct {
	// Start is the segment start in seconds from the beginning of the audio
	Start float64 `json:"start"`

	// End is the segment end in seconds
	End float64 `json:"end"`

	// Text is the spoken content
	Text string `json:"text"`
}
