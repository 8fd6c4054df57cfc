// Package profile defines provider connection profiles: how a provider is
// addressed, authenticated, fed messages, and how its completion arrives.
// The registry is built once at startup and never mutated afterwards, so
// concurrent dispatches share it freely.
package profile

import (
	"strings"
	"time"
)

// EnvelopeKind selects the JSON shape a provider expects for conversational
// input.
type EnvelopeKind string

const (
	// OpenAIChatArray serializes the full ordered history as
	// {model, messages:[{role,content}], stream}.
	OpenAIChatArray EnvelopeKind = "openai_chat_array"
	// GeminiPartsArray serializes as {contents:[{role, parts:[{text}]}]}
	// with role "assistant" renamed to "model".
	GeminiPartsArray EnvelopeKind = "gemini_parts_array"
	// CohereSingleMessage collapses to the latest user turn in a scalar
	// "message" field. Lossy for multi-turn history.
	CohereSingleMessage EnvelopeKind = "cohere_single_message"
	// RawPromptString collapses to the latest user turn in a scalar
	// prompt field. Lossy for multi-turn history.
	RawPromptString EnvelopeKind = "raw_prompt_string"
)

// EnvelopeSpec is an EnvelopeKind plus the per-provider serialization
// options that vary within a kind.
type EnvelopeSpec struct {
	Kind EnvelopeKind

	// SystemTop hoists leading system messages into a top-level "system"
	// field (Claude-family APIs).
	SystemTop bool

	// SystemInstruction routes system messages into Gemini's
	// systemInstruction field. When false, system content is prepended to
	// the first user turn instead (lossy fallback, reported as a warning).
	SystemInstruction bool

	// OmitModel leaves the model out of the body when it travels in the
	// URL path instead.
	OmitModel bool

	// OmitStreamFlag leaves the stream flag out of the body for providers
	// that select streaming by endpoint rather than by body field.
	OmitStreamFlag bool

	// PromptField names the scalar field for RawPromptString ("prompt").
	PromptField string

	// InputWrap nests the prompt and extra parameters under "input"
	// (Replicate prediction bodies).
	InputWrap bool
}

// ModeKind classifies how a completion is delivered.
type ModeKind string

const (
	// SyncJSON: one request, one JSON body.
	SyncJSON ModeKind = "sync_json"
	// StreamingChunks: one request held open, text deltas decoded
	// incrementally from the response body.
	StreamingChunks ModeKind = "streaming_chunks"
	// AsyncJobPoll: submit, receive a job handle, then poll (or attach to
	// the job's stream endpoint when the caller wants streaming).
	AsyncJobPoll ModeKind = "async_job_poll"
)

// Framing selects the event framing of a streamed response body.
type Framing string

const (
	// FramingSSE is server-sent events: "data: {...}\n\n" records.
	FramingSSE Framing = "sse"
	// FramingJSONLines is newline-delimited JSON objects, used by
	// providers without SSE support.
	FramingJSONLines Framing = "jsonl"
)

// PollSpec drives the AsyncJobPoll loop. All paths are gjson paths into
// the provider's job documents.
type PollSpec struct {
	Interval      time.Duration
	JobIDPath     string
	StatusPath    string
	SucceedValue  string
	FailValue     string
	ResultURLPath string
	StreamURLPath string
	OutputPath    string
}

// CompletionMode is the tagged delivery variant of a profile.
type CompletionMode struct {
	Kind ModeKind

	// Streaming fields (StreamingChunks, and AsyncJobPoll stream attach).
	Framing Framing
	// DoneData is the sentinel data payload that cleanly terminates an
	// SSE stream ("[DONE]"). Empty means the stream ends at EOF.
	DoneData string
	// DoneEvent is an SSE event name that cleanly terminates the stream
	// (Replicate's "done"). Empty means no event-based termination.
	DoneEvent string

	Poll *PollSpec
}

// ResponseSpec holds the gjson paths used to pull text out of provider
// responses.
type ResponseSpec struct {
	// TextPath locates the final text in a sync or polled JSON body.
	TextPath string
	// DeltaPath locates the text delta in one stream event. Empty means
	// the event data is the delta itself (non-JSON stream payloads).
	DeltaPath string
}

// Auth is the tagged authentication variant of a profile.
type Auth interface {
	authKind() string
}

// AuthNone is for endpoints without authentication (self-hosted generic
// endpoints).
type AuthNone struct{}

func (AuthNone) authKind() string { return "none" }

// AuthBearer places a secret from the environment in a request header.
// Defaults to "Authorization: Bearer <key>"; Header/Prefix override covers
// the x-api-key family.
type AuthBearer struct {
	EnvVar string
	// Header defaults to "Authorization" when empty.
	Header string
	// Prefix is prepended to the key. Only applied when Header is unset
	// ("Bearer " by default); explicit headers carry the bare key.
	Prefix string
	// Token is a literal key for call-time synthesized profiles. When
	// set, EnvVar is not consulted.
	Token string
	// Optional marks providers that accept anonymous access when no key
	// is configured.
	Optional bool
}

func (AuthBearer) authKind() string { return "bearer_header" }

// HeaderName returns the header this auth writes to.
func (a AuthBearer) HeaderName() string {
	if a.Header != "" {
		return a.Header
	}
	return "Authorization"
}

// HeaderValue formats the key for the wire.
func (a AuthBearer) HeaderValue(key string) string {
	if a.Header != "" {
		return a.Prefix + key
	}
	if a.Prefix != "" {
		return a.Prefix + key
	}
	return "Bearer " + key
}

// AuthQueryKey appends a secret from the environment to the URL query
// string (Gemini's ?key=).
type AuthQueryKey struct {
	EnvVar string
	Param  string
}

func (AuthQueryKey) authKind() string { return "api_key_query_param" }

// AuthSigned computes a cloud request signature over
// method+path+headers+body immediately before sending. Signatures are
// time-bound, so a retried request must be re-signed.
type AuthSigned struct {
	Service   string
	RegionEnv string
	KeyEnv    string
	SecretEnv string
}

func (AuthSigned) authKind() string { return "signed_request" }

// AuthTokenExchange obtains a short-lived access token through a named
// token source (external helper command or an HTTP credential exchange),
// at most once per process run.
type AuthTokenExchange struct {
	// Source names a token source registered with the credential package
	// ("gcloud", "ernie").
	Source string
	// QueryParam places the token in the query string instead of a
	// Bearer header when set (Ernie's ?access_token=).
	QueryParam string
}

func (AuthTokenExchange) authKind() string { return "access_token_exchange" }

// URLVar binds a URL template placeholder to an environment variable
// ({account_id} from CLOUDFLARE_ACCOUNT_ID).
type URLVar struct {
	Name   string
	EnvVar string
}

// Profile is one provider's connection profile. Immutable after startup.
type Profile struct {
	ID           string
	BaseURL      string
	ChatPath     string
	// StreamPath overrides ChatPath for streaming requests when the
	// provider selects streaming by endpoint (Gemini, Vertex). Empty
	// means ChatPath serves both.
	StreamPath   string
	DefaultModel string

	Auth     Auth
	Envelope EnvelopeSpec
	Mode     CompletionMode
	Response ResponseSpec

	// ExtraHeaders are fixed provider headers (anthropic-version).
	ExtraHeaders map[string]string
	// ExtraBody are fixed body fields merged under the request
	// (anthropic_version, a required max_tokens default). Caller extra
	// params win on conflict.
	ExtraBody map[string]any

	// Vars are URL template placeholders resolved from the environment.
	Vars []URLVar
}

// Endpoint expands the profile URL for the given model and delivery,
// substituting {model} and the profile's bound template vars.
func (p Profile) Endpoint(model string, stream bool, vars map[string]string) string {
	pathPart := p.ChatPath
	if stream && p.StreamPath != "" {
		pathPart = p.StreamPath
	}
	url := p.BaseURL + pathPart
	url = strings.ReplaceAll(url, "{model}", model)
	for name, value := range vars {
		url = strings.ReplaceAll(url, "{"+name+"}", value)
	}
	return url
}

// ModelEnvVar returns the environment variable consulted for a per-provider
// model override (<PROVIDER>_MODEL).
func (p Profile) ModelEnvVar() string {
	return envPrefix(p.ID) + "_MODEL"
}

func envPrefix(id string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(id))
}
