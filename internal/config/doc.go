// Package config handles configuration loading, parsing, and validation
// from various sources (defaults, an optional config.yaml, environment variables
// prefixed with VIDQ_). The loaded Config is immutable for the lifetime of the
// process and is passed by value or pointer to the components that need it.
package config
