package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrInvalidConfig is returned when the transcriber is misconfigured.
	ErrInvalidConfig = errors.New("invalid gemini configuration")

	// ErrInvalidResponse is returned when the API answers with something that is
	// not a usable transcript.
	ErrInvalidResponse = errors.New("invalid transcription response")

	// ErrContentBlocked is returned when safety filters blocked the response.
	ErrContentBlocked = errors.New("transcription blocked by safety filters")

	// ErrTransientFailure is returned when retries were exhausted.
	ErrTransientFailure = errors.New("transient transcription failure")

	// ErrAudioTooLarge is returned when extracted audio exceeds the inline limit.
	ErrAudioTooLarge = errors.New("audio too large for inline transcription")
)
