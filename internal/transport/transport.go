// Package transport executes a prepared provider request over one of three
// delivery modes: a single JSON exchange, an incrementally decoded stream,
// or a submit-then-poll job. The transport never retries; callers own retry
// policy because a replayed request may bill twice.
package transport

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"llmdispatch/internal/core"
	"llmdispatch/internal/credential"
	"llmdispatch/internal/profile"
)

// PreparedRequest is a fully resolved outbound request: final URL with
// query credentials applied, headers set, body serialized. The only work
// left is signing (when Signer is set) and the wire exchange.
type PreparedRequest struct {
	Provider string
	Model    string

	Method string
	URL    string
	Header http.Header
	Body   []byte

	// Stream records the caller's delivery preference. Ignored for
	// SyncJSON profiles; the dispatcher warns about the downgrade.
	Stream bool

	Mode     profile.CompletionMode
	Response profile.ResponseSpec

	// Signer, when set, is run immediately before each send. Poll and
	// stream-attach follow-ups are re-signed individually.
	Signer credential.Signer

	// SecretHeaders and SecretQuery name credential-bearing material for
	// dry-run redaction.
	SecretHeaders []string
	SecretQuery   []string

	// PollBudget bounds the total wait for AsyncJobPoll. Zero means the
	// context deadline is the only bound.
	PollBudget time.Duration
}

// Executor runs a prepared request. The live adapter and the dry-run
// interceptor both satisfy it, so the dispatcher is wired identically in
// both cases.
type Executor interface {
	Execute(ctx context.Context, req *PreparedRequest) (*core.DispatchResult, error)
}

// Hooks observe the exchange. The zero value is a valid no-op.
type Hooks struct {
	OnRequest  func(provider, mode string)
	OnResponse func(provider string, status int, elapsed time.Duration, err error)
	OnChunk    func(provider string)
}

func (h Hooks) request(provider, mode string) {
	if h.OnRequest != nil {
		h.OnRequest(provider, mode)
	}
}

func (h Hooks) response(provider string, status int, elapsed time.Duration, err error) {
	if h.OnResponse != nil {
		h.OnResponse(provider, status, elapsed, err)
	}
}

func (h Hooks) chunk(provider string) {
	if h.OnChunk != nil {
		h.OnChunk(provider)
	}
}

// Adapter is the live executor.
type Adapter struct {
	client *http.Client
	logger *slog.Logger
	hooks  Hooks
}

// NewAdapter returns a live adapter. A nil client falls back to
// http.DefaultClient; a nil logger discards.
func NewAdapter(client *http.Client, logger *slog.Logger, hooks Hooks) *Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Adapter{client: client, logger: logger, hooks: hooks}
}

// Execute dispatches on the profile's completion mode.
func (a *Adapter) Execute(ctx context.Context, req *PreparedRequest) (*core.DispatchResult, error) {
	a.hooks.request(req.Provider, string(req.Mode.Kind))

	switch req.Mode.Kind {
	case profile.SyncJSON:
		return a.doSync(ctx, req)
	case profile.StreamingChunks:
		if req.Stream {
			return a.doStream(ctx, req)
		}
		return a.doSync(ctx, req)
	case profile.AsyncJobPoll:
		return a.doPoll(ctx, req)
	default:
		return nil, &core.ConfigError{Provider: req.Provider, Message: "unsupported completion mode " + string(req.Mode.Kind)}
	}
}

// send performs one signed HTTP exchange and returns the raw response.
// The caller owns the response body.
func (a *Adapter) send(ctx context.Context, req *PreparedRequest, method, url string, body []byte, accept string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &core.ConfigError{Provider: req.Provider, Message: err.Error()}
	}
	for name, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if accept != "" {
		httpReq.Header.Set("Accept", accept)
	}
	if req.Signer != nil {
		if err := req.Signer.Sign(httpReq, body, time.Now()); err != nil {
			return nil, &core.ConfigError{Provider: req.Provider, Message: "request signing failed: " + err.Error()}
		}
	}

	start := time.Now()
	resp, err := a.client.Do(httpReq)
	if err != nil {
		a.hooks.response(req.Provider, 0, time.Since(start), err)
		return nil, &core.TransportError{Provider: req.Provider, Err: err}
	}
	a.hooks.response(req.Provider, resp.StatusCode, time.Since(start), nil)

	a.logger.Debug("provider exchange",
		"provider", req.Provider,
		"method", method,
		"status", resp.StatusCode,
		"elapsed", time.Since(start))
	return resp, nil
}

// exchange sends and fully reads one JSON exchange, mapping non-2xx to
// ProviderError with the body preserved verbatim.
func (a *Adapter) exchange(ctx context.Context, req *PreparedRequest, method, url string, body []byte) (int, http.Header, []byte, error) {
	resp, err := a.send(ctx, req, method, url, body, "")
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, &core.TransportError{Provider: req.Provider, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, nil, nil, &core.ProviderError{Provider: req.Provider, Status: resp.StatusCode, Body: raw}
	}
	return resp.StatusCode, resp.Header, raw, nil
}

func (a *Adapter) doSync(ctx context.Context, req *PreparedRequest) (*core.DispatchResult, error) {
	status, header, raw, err := a.exchange(ctx, req, req.Method, req.URL, req.Body)
	if err != nil {
		return nil, err
	}

	text := string(raw)
	if req.Response.TextPath != "" {
		// A 2xx response that is not JSON cannot satisfy the extraction
		// path; surface the raw body instead of a silent empty result.
		if !gjson.ValidBytes(raw) {
			return nil, &core.ProviderError{Provider: req.Provider, Status: status, Body: raw}
		}
		text = gjson.GetBytes(raw, req.Response.TextPath).String()
	}
	return &core.DispatchResult{
		Provider:   req.Provider,
		Model:      req.Model,
		StatusCode: status,
		Header:     header,
		Text:       text,
	}, nil
}

func (a *Adapter) doStream(ctx context.Context, req *PreparedRequest) (*core.DispatchResult, error) {
	resp, err := a.send(ctx, req, req.Method, req.URL, req.Body, "text/event-stream")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &core.ProviderError{Provider: req.Provider, Status: resp.StatusCode, Body: raw}
	}

	stream := a.newStream(req, resp.Body)
	return &core.DispatchResult{
		Provider:   req.Provider,
		Model:      req.Model,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Stream:     stream,
	}, nil
}

// newStream wraps a response body in the framing decoder the profile
// declares.
func (a *Adapter) newStream(req *PreparedRequest, body io.ReadCloser) core.Stream {
	onChunk := func() { a.hooks.chunk(req.Provider) }
	if req.Mode.Framing == profile.FramingJSONLines {
		return newJSONLinesStream(req.Provider, body, req.Response.DeltaPath, onChunk)
	}
	return newSSEStream(req.Provider, body, sseOptions{
		deltaPath: req.Response.DeltaPath,
		doneData:  req.Mode.DoneData,
		doneEvent: req.Mode.DoneEvent,
	}, onChunk)
}
