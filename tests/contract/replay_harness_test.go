//go:build contract

package contract

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"testing"

	"llmdispatch/internal/credential"
	"llmdispatch/internal/dispatch"
	"llmdispatch/internal/transport"
)

type replayRoute struct {
	statusCode  int
	contentType string
	body        string
}

// replayTransport serves canned responses keyed by "METHOD /request-uri"
// and records every request for header and body assertions.
type replayTransport struct {
	t      *testing.T
	routes map[string]replayRoute

	requests []*http.Request
	bodies   [][]byte
}

func replayKey(method, requestURI string) string {
	return method + " " + requestURI
}

func (rt *replayTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.t.Helper()

	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}
	rt.requests = append(rt.requests, req)
	rt.bodies = append(rt.bodies, body)

	key := replayKey(req.Method, req.URL.RequestURI())
	route, ok := rt.routes[key]
	if !ok {
		missing := fmt.Sprintf(`{"error":{"message":"missing replay route: %s"}}`, key)
		return replayResponse(req, http.StatusNotFound, "application/json", missing), nil
	}

	statusCode := route.statusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}
	contentType := route.contentType
	if contentType == "" {
		contentType = "application/json"
	}
	return replayResponse(req, statusCode, contentType, route.body), nil
}

func replayResponse(req *http.Request, statusCode int, contentType, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Status:     fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		Header:     http.Header{"Content-Type": []string{contentType}},
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Request:    req,
	}
}

// lastRequest returns the most recent request matching the given path, or
// fails the test.
func (rt *replayTransport) lastRequest(path string) (*http.Request, []byte) {
	rt.t.Helper()
	for i := len(rt.requests) - 1; i >= 0; i-- {
		if rt.requests[i].URL.Path == path {
			return rt.requests[i], rt.bodies[i]
		}
	}
	rt.t.Fatalf("no recorded request for path %s", path)
	return nil, nil
}

// newReplayDispatcher wires a dispatcher whose transport serves the given
// routes.
func newReplayDispatcher(t *testing.T, secrets credential.MapResolver, routes map[string]replayRoute) (*dispatch.Dispatcher, *replayTransport) {
	t.Helper()

	rt := &replayTransport{t: t, routes: routes}
	client := &http.Client{Transport: rt}
	d := dispatch.New(dispatch.Options{
		Resolver: secrets,
		Tokens:   credential.NewTokenCache(secrets, client),
		Executor: transport.NewAdapter(client, nil, transport.Hooks{}),
	})
	return d, rt
}
