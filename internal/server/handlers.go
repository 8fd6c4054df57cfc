package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"llmdispatch/internal/core"
	"llmdispatch/internal/dispatch"
)

// Handler holds the HTTP handlers.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// NewHandler creates a handler around the given dispatcher.
func NewHandler(d *dispatch.Dispatcher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{dispatcher: d, logger: logger}
}

// chatCompletionRequest is the facade's wire request. The model field
// carries a "provider[:model]" selector.
type chatCompletionRequest struct {
	Model       string         `json:"model"`
	Messages    []core.Message `json:"messages"`
	Stream      bool           `json:"stream"`
	DryRun      bool           `json:"dry_run"`
	MaxTokens   *int           `json:"max_tokens,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	ID       string       `json:"id"`
	Object   string       `json:"object"`
	Created  int64        `json:"created"`
	Model    string       `json:"model"`
	Provider string       `json:"provider"`
	Choices  []chatChoice `json:"choices"`
	Warnings []string     `json:"warnings,omitempty"`
}

type chatChoice struct {
	Index        int           `json:"index"`
	Message      *core.Message `json:"message,omitempty"`
	Delta        *core.Message `json:"delta,omitempty"`
	FinishReason *string       `json:"finish_reason"`
}

// ChatCompletion handles POST /v1/chat/completions.
func (h *Handler) ChatCompletion(c echo.Context) error {
	var req chatCompletionRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
	}

	chatReq := &core.ChatRequest{
		Provider: req.Model,
		Messages: req.Messages,
		Stream:   req.Stream,
	}
	if req.MaxTokens != nil || req.Temperature != nil {
		chatReq.Extra = map[string]any{}
		if req.MaxTokens != nil {
			chatReq.Extra["max_tokens"] = *req.MaxTokens
		}
		if req.Temperature != nil {
			chatReq.Extra["temperature"] = *req.Temperature
		}
	}

	ctx := c.Request().Context()

	if req.DryRun {
		res, err := h.dispatcher.Describe(ctx, chatReq)
		if err != nil {
			return h.handleError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"request":  res.Request,
			"warnings": res.Warnings,
		})
	}

	res, err := h.dispatcher.Dispatch(ctx, chatReq)
	if err != nil {
		return h.handleError(c, err)
	}

	if res.Streaming() {
		return h.streamOut(c, res)
	}

	stop := "stop"
	return c.JSON(http.StatusOK, chatCompletionResponse{
		ID:       completionID(),
		Object:   "chat.completion",
		Created:  time.Now().Unix(),
		Model:    res.Model,
		Provider: res.Provider,
		Choices: []chatChoice{{
			Message:      &core.Message{Role: core.RoleAssistant, Content: res.Text},
			FinishReason: &stop,
		}},
		Warnings: res.Warnings,
	})
}

// streamOut re-encodes provider deltas as OpenAI-style SSE chunks. Once
// headers are out, failures can only be logged and the connection cut so
// the client sees the truncation.
func (h *Handler) streamOut(c echo.Context, res *core.DispatchResult) error {
	defer res.Stream.Close()

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	id := completionID()
	enc := func(delta string) []byte {
		chunk := chatCompletionResponse{
			ID:       id,
			Object:   "chat.completion.chunk",
			Created:  time.Now().Unix(),
			Model:    res.Model,
			Provider: res.Provider,
			Choices: []chatChoice{{
				Delta: &core.Message{Content: delta},
			}},
		}
		data, _ := json.Marshal(chunk)
		return data
	}

	for {
		delta, err := res.Stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			h.logger.Warn("stream ended abnormally", "provider", res.Provider, "err", err)
			return nil
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", enc(delta)); err != nil {
			return nil
		}
		w.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	w.Flush()
	return nil
}

// Health handles GET /health.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ListModels handles GET /v1/models: the dispatchable provider IDs.
func (h *Handler) ListModels(c echo.Context) error {
	ids := h.dispatcher.Providers()
	data := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		data = append(data, map[string]string{"id": id, "object": "model"})
	}
	return c.JSON(http.StatusOK, map[string]any{"object": "list", "data": data})
}

// handleError maps the error taxonomy onto HTTP statuses. Provider errors
// keep the upstream status so clients can distinguish their own rate
// limits from the facade's.
func (h *Handler) handleError(c echo.Context, err error) error {
	var (
		verr *core.ValidationError
		cerr *core.ConfigError
		merr *core.MissingCredentialError
		perr *core.ProviderError
		terr *core.TransportError
		jerr *core.JobFailedError
		polr *core.PollTimeoutError
	)
	switch {
	case errors.As(err, &verr):
		return errorResponse(c, http.StatusBadRequest, "invalid_request", verr.Error())
	case errors.As(err, &cerr):
		return errorResponse(c, http.StatusBadRequest, "config_error", cerr.Error())
	case errors.As(err, &merr):
		// A missing upstream credential is a deployment problem, not the
		// caller's fault.
		return errorResponse(c, http.StatusInternalServerError, "missing_credential", merr.Error())
	case errors.As(err, &perr):
		return errorResponse(c, perr.Status, "provider_error", perr.Message())
	case errors.As(err, &terr):
		return errorResponse(c, http.StatusBadGateway, "transport_error", terr.Error())
	case errors.As(err, &jerr):
		return errorResponse(c, http.StatusBadGateway, "job_failed", jerr.Error())
	case errors.As(err, &polr):
		return errorResponse(c, http.StatusGatewayTimeout, "poll_timeout", polr.Error())
	}

	h.logger.Error("unhandled dispatch error", "err", err)
	return errorResponse(c, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
}

func errorResponse(c echo.Context, status int, errType, message string) error {
	return c.JSON(status, map[string]any{
		"error": map[string]any{
			"type":    errType,
			"message": message,
		},
	})
}

func completionID() string {
	return "chatcmpl-" + uuid.NewString()
}
