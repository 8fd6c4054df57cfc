// Package core provides the shared types and error taxonomy for the dispatcher.
package core

import (
	"encoding/json"
	"net/http"
)

// Message roles accepted by every envelope.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single turn in the conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the normalized request handed to the dispatcher.
// It is constructed by the caller and never mutated after dispatch.
type ChatRequest struct {
	Provider string
	Model    string
	Messages []Message
	Stream   bool
	// Extra carries provider pass-through parameters (max_tokens,
	// temperature, ...) merged verbatim into the request body.
	Extra map[string]any
}

// WithStreaming returns a shallow copy of the request with Stream set to true.
// This avoids mutating the caller's request object.
func (r *ChatRequest) WithStreaming() *ChatRequest {
	cp := *r
	cp.Stream = true
	return &cp
}

// LastUserContent returns the content of the most recent user message,
// or the empty string if there is none.
func (r *ChatRequest) LastUserContent() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// RequestDescription is the outbound request as it would go on the wire.
// It is the dry-run payload; header secrets are redacted before it is built.
type RequestDescription struct {
	Method  string          `json:"method"`
	URL     string          `json:"url"`
	Header  http.Header     `json:"header"`
	Body    json.RawMessage `json:"body,omitempty"`
	Mode    string          `json:"mode"`
	Framing string          `json:"framing,omitempty"`
}

// DispatchResult is the uniform output of a dispatch: either a final text
// blob (sync and polled modes) or a pull-based stream of text deltas.
// StatusCode and Header expose the raw provider response for diagnostics.
type DispatchResult struct {
	Provider   string
	Model      string
	StatusCode int
	Header     http.Header

	// Text holds the final completion for SyncJSON and polled results.
	Text string

	// Stream yields text deltas for streaming modes. Nil otherwise.
	// The caller owns it and must Close it.
	Stream Stream

	// Warnings surfaces lossy normalization (history collapse, stream
	// downgrade). These are not errors: the request still succeeded.
	Warnings []string

	// Request is set instead of Text/Stream when dry-run is enabled.
	Request *RequestDescription
}

// Streaming reports whether the result delivers text incrementally.
func (r *DispatchResult) Streaming() bool {
	return r.Stream != nil
}
