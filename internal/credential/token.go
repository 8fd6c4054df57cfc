package credential

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"llmdispatch/internal/core"
)

// TokenSource produces a short-lived access token. Verify reports whether
// a fetch could succeed, without running the exchange or touching the
// network.
type TokenSource interface {
	Fetch(ctx context.Context) (string, error)
	Verify() error
}

// TokenCache memoizes token exchange per source name. Each source runs at
// most once per process; concurrent callers for the same source share one
// exchange, and the outcome (token or error) is final for the process.
type TokenCache struct {
	sources map[string]TokenSource

	mu      sync.Mutex
	entries map[string]*tokenEntry
}

type tokenEntry struct {
	once  sync.Once
	token string
	err   error
}

// NewTokenCache returns a cache wired with the builtin token sources.
func NewTokenCache(res Resolver, client *http.Client) *TokenCache {
	if client == nil {
		client = http.DefaultClient
	}
	return &TokenCache{
		sources: map[string]TokenSource{
			"gcloud": &gcloudSource{},
			"ernie":  &ernieSource{resolver: res, client: client},
		},
		entries: make(map[string]*tokenEntry),
	}
}

// Get returns the cached token for the named source, fetching it on first
// use.
func (c *TokenCache) Get(ctx context.Context, source string) (string, error) {
	src, ok := c.sources[source]
	if !ok {
		return "", &core.ConfigError{Message: fmt.Sprintf("unknown token source %q", source)}
	}

	c.mu.Lock()
	e, ok := c.entries[source]
	if !ok {
		e = &tokenEntry{}
		c.entries[source] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.token, e.err = src.Fetch(ctx)
	})
	return e.token, e.err
}

// Verify checks that the named source could fetch a token, without
// performing the exchange. Dry runs use this so no socket or subprocess
// is touched.
func (c *TokenCache) Verify(source string) error {
	src, ok := c.sources[source]
	if !ok {
		return &core.ConfigError{Message: fmt.Sprintf("unknown token source %q", source)}
	}
	return src.Verify()
}

// gcloudSource shells out to the gcloud CLI for a Vertex access token,
// the same token the CLI would use itself.
type gcloudSource struct{}

func (s *gcloudSource) Fetch(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "gcloud", "auth", "print-access-token").Output()
	if err != nil {
		return "", &core.ConfigError{
			Provider: "vertexai-claude",
			Message:  fmt.Sprintf("gcloud auth print-access-token failed: %v", err),
		}
	}
	token := strings.TrimSpace(string(out))
	if token == "" {
		return "", &core.ConfigError{
			Provider: "vertexai-claude",
			Message:  "gcloud returned an empty access token",
		}
	}
	return token, nil
}

// Verify cannot probe gcloud without running it; the binary is only
// consulted at fetch time.
func (s *gcloudSource) Verify() error { return nil }

// ernieSource exchanges a Baidu API key pair for an access token through
// the oauth endpoint.
type ernieSource struct {
	resolver Resolver
	client   *http.Client

	// endpoint is overridable in tests.
	endpoint string
}

const ernieTokenEndpoint = "https://aip.baidubce.com/oauth/2.0/token"

func (s *ernieSource) keys() (apiKey, secretKey string, err error) {
	apiKey, ok := s.resolver.Lookup("ERNIE_API_KEY")
	if !ok {
		return "", "", &core.MissingCredentialError{Provider: "ernie", EnvVar: "ERNIE_API_KEY"}
	}
	secretKey, ok = s.resolver.Lookup("ERNIE_SECRET_KEY")
	if !ok {
		return "", "", &core.MissingCredentialError{Provider: "ernie", EnvVar: "ERNIE_SECRET_KEY"}
	}
	return apiKey, secretKey, nil
}

func (s *ernieSource) Verify() error {
	_, _, err := s.keys()
	return err
}

func (s *ernieSource) Fetch(ctx context.Context) (string, error) {
	apiKey, secretKey, err := s.keys()
	if err != nil {
		return "", err
	}

	endpoint := s.endpoint
	if endpoint == "" {
		endpoint = ernieTokenEndpoint
	}
	q := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {apiKey},
		"client_secret": {secretKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &core.TransportError{Provider: "ernie", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &core.TransportError{Provider: "ernie", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &core.ProviderError{Provider: "ernie", Status: resp.StatusCode, Body: body}
	}

	token := gjson.GetBytes(body, "access_token").String()
	if token == "" {
		return "", &core.ProviderError{Provider: "ernie", Status: resp.StatusCode, Body: body}
	}
	return token, nil
}
