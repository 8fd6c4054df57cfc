package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorTaxonomy_ErrorsAs(t *testing.T) {
	// Every taxonomy type must survive wrapping so callers can branch on
	// the class, not the message.
	wrap := func(err error) error { return fmt.Errorf("dispatch: %w", err) }

	var cerr *ConfigError
	if !errors.As(wrap(NewUnknownProviderError("nope")), &cerr) {
		t.Error("ConfigError lost through wrapping")
	}
	var verr *ValidationError
	if !errors.As(wrap(NewEmptyRequestError()), &verr) {
		t.Error("ValidationError lost through wrapping")
	}
	var merr *MissingCredentialError
	if !errors.As(wrap(&MissingCredentialError{Provider: "openai", EnvVar: "OPENAI_API_KEY"}), &merr) {
		t.Error("MissingCredentialError lost through wrapping")
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &TransportError{Provider: "openai", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("TransportError does not unwrap to its cause")
	}
}

func TestProviderError_Message(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"openai envelope", `{"error":{"message":"Incorrect API key"}}`, "Incorrect API key"},
		{"plain text", `upstream exploded`, "upstream exploded"},
		{"unrelated json", `{"detail":"nope"}`, `{"detail":"nope"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &ProviderError{Provider: "p", Status: 500, Body: []byte(tt.body)}
			if got := e.Message(); got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStreamTruncatedError_Format(t *testing.T) {
	e := &StreamTruncatedError{Provider: "openai"}
	if got := e.Error(); got != "[openai] stream truncated: connection closed mid-event" {
		t.Errorf("Error() = %q", got)
	}
}
