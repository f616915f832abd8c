// Package gemini transcribes speech with Google's Gemini API.
//
// It is the alternative to the whisper command-line backend: the media's audio is
// extracted to a compact MP3, sent inline with a prompt asking for timed
// segments as JSON, and the structured response is validated into
// domain.Segment values.
//
// Error handling:
//   - Transient API failures (5xx, 429, network) are retried with exponential
//     backoff.
//   - Blocked content and malformed responses are permanent and returned at once.
package gemini
