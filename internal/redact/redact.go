// Package redact provides utilities for redacting sensitive information from strings
// before they are logged at user-visible boundaries or stored as task error messages.
// It prevents leakage of credentials, signed URLs, file paths and stack traces that
// external tools and HTTP clients tend to include in their diagnostics.
package redact

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Constants for redaction placeholders
const (
	RedactionPlaceholder          = "[REDACTED]"
	RedactedPathPlaceholder       = "[REDACTED_PATH]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedURLPlaceholder        = "[REDACTED_URL]"
	truncationMarker              = "...[truncated]"
)

type rule struct {
	pattern     *regexp.Regexp
	placeholder string
}

// Rules are applied in order: credentials inside URLs first, then whole URLs
// (pre-signed media URLs carry tokens in their query), then paths.
var rules = []rule{
	{regexp.MustCompile(`(?i)(postgres|postgresql|redis|rediss|nats|mysql|db|database)://[^@\s]+@`), RedactedCredentialPlaceholder},
	{regexp.MustCompile(`(?i)https?://[^\s'"<>]+`), RedactedURLPlaceholder},
	{regexp.MustCompile(`(?i)(password|passwd|pwd)([=:\s]?['"]?)[^'"&\s]{3,}`), RedactedCredentialPlaceholder},
	{regexp.MustCompile(`(?i)(api[_-]?key|token|secret|signature|access|auth)(['"\s:=]+)[A-Za-z0-9_\-.~+/%]{8,}`), RedactedKeyPlaceholder},
	{regexp.MustCompile(`(AKIA|AccessKey(Id)?)([^a-zA-Z0-9])?[A-Z0-9]{8,}`), RedactedKeyPlaceholder},
	{regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`), "[STACK_TRACE_REDACTED]"},
	{regexp.MustCompile(`(/[\w.-]+){2,}`), RedactedPathPlaceholder},
	{regexp.MustCompile(`[A-Za-z]:\\[^\\\s]+(\\[^\\\s]+)+`), RedactedPathPlaceholder},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[REDACTED_EMAIL]"},
}

// String redacts sensitive information from the input string
func String(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, r := range rules {
		result = r.pattern.ReplaceAllString(result, r.placeholder)
	}
	return result
}

// Error redacts sensitive information from an error's Error() output
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

// Truncate bounds s to at most limit bytes without splitting a UTF-8 sequence,
// marking the cut when one happens.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	cut := limit - len(truncationMarker)
	if cut <= 0 {
		return truncationMarker[:limit]
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimRight(s[:cut], " \n\t") + truncationMarker
}

// Tail returns at most limit bytes from the end of s, which is where tools such as
// ffmpeg print the actual failure after pages of banner output.
func Tail(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	start := len(s) - limit
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
