package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// The error taxonomy. Config and validation errors fire before any network
// I/O; the rest classify what came back (or failed to come back) from the
// provider. All types support errors.As so callers can branch on them.

// ConfigError is a user-input error: an unknown provider with no generic
// fallback available, or a malformed selector.
type ConfigError struct {
	Provider string
	Message  string
}

func (e *ConfigError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] config error: %s", e.Provider, e.Message)
	}
	return "config error: " + e.Message
}

// NewUnknownProviderError reports a selector that matched no registry entry
// and had no generic base URL to fall back to.
func NewUnknownProviderError(provider string) *ConfigError {
	return &ConfigError{
		Provider: provider,
		Message:  "unknown provider and no generic base URL configured",
	}
}

// MissingCredentialError reports a required credential that could not be
// resolved. Raised before any network call.
type MissingCredentialError struct {
	Provider string
	EnvVar   string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("[%s] missing credential: %s is not set", e.Provider, e.EnvVar)
}

// ValidationError is a fatal local error in the request itself.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Message
}

// NewEmptyRequestError reports a request with no messages. No provider
// accepts a no-message request, so this fires before any body is built.
func NewEmptyRequestError() *ValidationError {
	return &ValidationError{Message: "message list is empty"}
}

// TransportError wraps a connection-level failure (dial, TLS, timeout).
// The transport never retries; the caller owns retry policy.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("[%s] transport error: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProviderError is a non-2xx provider response, surfaced verbatim so the
// caller can show the provider's own diagnostic text.
type ProviderError struct {
	Provider string
	Status   int
	Body     []byte
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] provider error (status %d): %s", e.Provider, e.Status, e.Message())
}

// Message extracts a human-readable message from the error body. Providers
// that return {"error": {"message": ...}} get that message; anything else
// is returned raw.
func (e *ProviderError) Message() string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(e.Body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return string(e.Body)
}

// JobFailedError reports an async job that reached its failure status.
type JobFailedError struct {
	Provider string
	JobID    string
	Status   string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("[%s] job %s failed (status %q)", e.Provider, e.JobID, e.Status)
}

// PollTimeoutError reports an async job that was still pending when the
// caller's polling budget ran out.
type PollTimeoutError struct {
	Provider string
	JobID    string
	Waited   time.Duration
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("[%s] job %s still pending after %s", e.Provider, e.JobID, e.Waited)
}

// StreamTruncatedError reports a stream that ended mid-event. A caller
// persisting partial output must know it is incomplete, so this is never
// folded into a clean end-of-stream.
type StreamTruncatedError struct {
	Provider string
	Err      error
}

func (e *StreamTruncatedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] stream truncated: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("[%s] stream truncated: connection closed mid-event", e.Provider)
}

func (e *StreamTruncatedError) Unwrap() error { return e.Err }
