package transport

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"llmdispatch/internal/core"
	"llmdispatch/internal/profile"
)

// doPoll submits the job, then either attaches to the job's stream
// endpoint or polls its status document until a terminal state.
func (a *Adapter) doPoll(ctx context.Context, req *PreparedRequest) (*core.DispatchResult, error) {
	spec := req.Mode.Poll
	if spec == nil {
		return nil, &core.ConfigError{Provider: req.Provider, Message: "poll profile has no poll spec"}
	}

	status, header, raw, err := a.exchange(ctx, req, req.Method, req.URL, req.Body)
	if err != nil {
		return nil, err
	}

	job := gjson.ParseBytes(raw)
	jobID := job.Get(spec.JobIDPath).String()
	if jobID == "" {
		return nil, &core.ProviderError{Provider: req.Provider, Status: status, Body: raw}
	}

	var warnings []string
	if req.Stream {
		streamURL := job.Get(spec.StreamURLPath).String()
		if streamURL != "" {
			return a.attachJobStream(ctx, req, streamURL)
		}
		// The job offered no stream endpoint; fall through to polling and
		// tell the caller the delivery changed.
		warnings = append(warnings, "job has no stream endpoint; falling back to polling")
	}

	resultURL := job.Get(spec.ResultURLPath).String()
	if resultURL == "" {
		resultURL = strings.TrimSuffix(req.URL, "/") + "/" + jobID
	}

	text, err := a.pollUntilDone(ctx, req, spec, jobID, resultURL)
	if err != nil {
		return nil, err
	}
	return &core.DispatchResult{
		Provider:   req.Provider,
		Model:      req.Model,
		StatusCode: status,
		Header:     header,
		Text:       text,
		Warnings:   warnings,
	}, nil
}

// pollUntilDone polls the job document until its status equals the
// success or failure value. Status comparison is exact string equality;
// any unrecognized value counts as still pending.
func (a *Adapter) pollUntilDone(ctx context.Context, req *PreparedRequest, spec *profile.PollSpec, jobID, resultURL string) (string, error) {
	interval := spec.Interval
	if interval <= 0 {
		interval = time.Second
	}
	start := time.Now()

	for {
		_, _, raw, err := a.exchange(ctx, req, "GET", resultURL, nil)
		if err != nil {
			return "", err
		}

		doc := gjson.ParseBytes(raw)
		switch doc.Get(spec.StatusPath).String() {
		case spec.SucceedValue:
			return extractOutput(doc.Get(spec.OutputPath)), nil
		case spec.FailValue:
			return "", &core.JobFailedError{Provider: req.Provider, JobID: jobID, Status: spec.FailValue}
		}

		if req.PollBudget > 0 && time.Since(start)+interval > req.PollBudget {
			return "", &core.PollTimeoutError{Provider: req.Provider, JobID: jobID, Waited: time.Since(start)}
		}
		select {
		case <-ctx.Done():
			return "", &core.TransportError{Provider: req.Provider, Err: ctx.Err()}
		case <-time.After(interval):
		}
	}
}

// extractOutput flattens a job's output field. Providers return either a
// single string or an array of string fragments.
func extractOutput(result gjson.Result) string {
	if result.IsArray() {
		var b strings.Builder
		for _, part := range result.Array() {
			b.WriteString(part.String())
		}
		return b.String()
	}
	return result.String()
}

// attachJobStream opens the job's stream endpoint and decodes it with the
// profile's framing.
func (a *Adapter) attachJobStream(ctx context.Context, req *PreparedRequest, streamURL string) (*core.DispatchResult, error) {
	resp, err := a.send(ctx, req, "GET", streamURL, nil, "text/event-stream")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &core.ProviderError{Provider: req.Provider, Status: resp.StatusCode, Body: raw}
	}

	return &core.DispatchResult{
		Provider:   req.Provider,
		Model:      req.Model,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Stream:     a.newStream(req, resp.Body),
	}, nil
}
