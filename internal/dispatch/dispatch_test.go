package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"llmdispatch/internal/core"
	"llmdispatch/internal/credential"
	"llmdispatch/internal/transport"
)

// captureExecutor records the prepared request instead of sending it.
type captureExecutor struct {
	last *transport.PreparedRequest
}

func (c *captureExecutor) Execute(ctx context.Context, req *transport.PreparedRequest) (*core.DispatchResult, error) {
	c.last = req
	return &core.DispatchResult{Provider: req.Provider, Model: req.Model, Text: "captured"}, nil
}

// raisingExecutor fails the test if dispatch reaches execution.
type raisingExecutor struct{ t *testing.T }

func (r raisingExecutor) Execute(ctx context.Context, req *transport.PreparedRequest) (*core.DispatchResult, error) {
	r.t.Fatal("executor invoked; validation should have failed first")
	return nil, nil
}

func newDispatcher(exec transport.Executor, secrets credential.MapResolver) *Dispatcher {
	return New(Options{
		Resolver: secrets,
		Executor: exec,
		Tokens:   credential.NewTokenCache(secrets, nil),
	})
}

func userMessage(content string) []core.Message {
	return []core.Message{{Role: core.RoleUser, Content: content}}
}

func TestParseSelector(t *testing.T) {
	tests := []struct {
		selector, provider, model string
	}{
		{"openai", "openai", ""},
		{"openai:gpt-4o", "openai", "gpt-4o"},
		{"bedrock:anthropic.claude-3-5-sonnet-20240620-v1:0", "bedrock", "anthropic.claude-3-5-sonnet-20240620-v1:0"},
		{"", "", ""},
	}
	for _, tt := range tests {
		provider, model := ParseSelector(tt.selector)
		if provider != tt.provider || model != tt.model {
			t.Errorf("ParseSelector(%q) = (%q, %q), want (%q, %q)", tt.selector, provider, model, tt.provider, tt.model)
		}
	}
}

func TestDispatch_EmptyMessagesFailsBeforeLookup(t *testing.T) {
	// The provider is bogus on purpose: the empty-request check must win.
	d := newDispatcher(raisingExecutor{t}, credential.MapResolver{})
	_, err := d.Dispatch(context.Background(), &core.ChatRequest{Provider: "no-such-provider"})

	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestDispatch_UnknownProvider(t *testing.T) {
	d := newDispatcher(raisingExecutor{t}, credential.MapResolver{})
	_, err := d.Dispatch(context.Background(), &core.ChatRequest{
		Provider: "no-such-provider",
		Messages: userMessage("hi"),
	})

	var cerr *core.ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
	if cerr.Provider != "no-such-provider" {
		t.Errorf("Provider = %q", cerr.Provider)
	}
}

func TestDispatch_MissingCredentialBeforeExecution(t *testing.T) {
	d := newDispatcher(raisingExecutor{t}, credential.MapResolver{})
	_, err := d.Dispatch(context.Background(), &core.ChatRequest{
		Provider: "openai",
		Messages: userMessage("hi"),
	})

	var merr *core.MissingCredentialError
	if !errors.As(err, &merr) {
		t.Fatalf("err = %v, want MissingCredentialError", err)
	}
	if merr.EnvVar != "OPENAI_API_KEY" {
		t.Errorf("EnvVar = %q", merr.EnvVar)
	}
}

func TestDispatch_ModelResolutionPrecedence(t *testing.T) {
	secrets := credential.MapResolver{
		"OPENAI_API_KEY": "sk-test",
		"OPENAI_MODEL":   "env-model",
	}

	tests := []struct {
		name      string
		selector  string
		reqModel  string
		overrides map[string]string
		want      string
	}{
		{"selector wins", "openai:selector-model", "request-model", map[string]string{"openai": "override-model"}, "selector-model"},
		{"request model next", "openai", "request-model", map[string]string{"openai": "override-model"}, "request-model"},
		{"configured override next", "openai", "", map[string]string{"openai": "override-model"}, "override-model"},
		{"environment next", "openai", "", nil, "env-model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &captureExecutor{}
			d := New(Options{Resolver: secrets, Executor: exec, ModelOverrides: tt.overrides})
			_, err := d.Dispatch(context.Background(), &core.ChatRequest{
				Provider: tt.selector,
				Model:    tt.reqModel,
				Messages: userMessage("hi"),
			})
			if err != nil {
				t.Fatal(err)
			}
			if exec.last.Model != tt.want {
				t.Errorf("model = %q, want %q", exec.last.Model, tt.want)
			}
		})
	}
}

func TestDispatch_ProfileDefaultModel(t *testing.T) {
	exec := &captureExecutor{}
	d := newDispatcher(exec, credential.MapResolver{"OPENAI_API_KEY": "sk-test"})
	_, err := d.Dispatch(context.Background(), &core.ChatRequest{
		Provider: "openai",
		Messages: userMessage("hi"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if exec.last.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want profile default", exec.last.Model)
	}
}

func TestDispatch_PreparedRequestShape(t *testing.T) {
	exec := &captureExecutor{}
	d := newDispatcher(exec, credential.MapResolver{"CLAUDE_API_KEY": "sk-ant"})
	_, err := d.Dispatch(context.Background(), &core.ChatRequest{
		Provider: "claude",
		Messages: []core.Message{
			{Role: core.RoleSystem, Content: "be brief"},
			{Role: core.RoleUser, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	req := exec.last
	if req.URL != "https://api.anthropic.com/v1/messages" {
		t.Errorf("URL = %q", req.URL)
	}
	if got := req.Header.Get("x-api-key"); got != "sk-ant" {
		t.Errorf("x-api-key = %q", got)
	}
	if got := req.Header.Get("anthropic-version"); got != "2023-06-01" {
		t.Errorf("anthropic-version = %q", got)
	}
	if got := gjson.GetBytes(req.Body, "system").String(); got != "be brief" {
		t.Errorf("system = %q", got)
	}
	if req.Response.TextPath != "content.0.text" {
		t.Errorf("TextPath = %q", req.Response.TextPath)
	}
}

func TestDispatch_QueryCredentialInURL(t *testing.T) {
	exec := &captureExecutor{}
	d := newDispatcher(exec, credential.MapResolver{"GEMINI_API_KEY": "AIza-test"})
	_, err := d.Dispatch(context.Background(), &core.ChatRequest{
		Provider: "gemini",
		Stream:   true,
		Messages: userMessage("hi"),
	})
	if err != nil {
		t.Fatal(err)
	}

	url := exec.last.URL
	if !strings.Contains(url, "streamGenerateContent") {
		t.Errorf("URL = %q, want the stream endpoint", url)
	}
	for _, want := range []string{"key=AIza-test", "alt=sse"} {
		if !strings.Contains(url, want) {
			t.Errorf("URL = %q missing %q", url, want)
		}
	}
	if len(exec.last.SecretQuery) != 1 || exec.last.SecretQuery[0] != "key" {
		t.Errorf("SecretQuery = %v", exec.last.SecretQuery)
	}
}

func TestDispatch_TemplateVarMissing(t *testing.T) {
	d := newDispatcher(raisingExecutor{t}, credential.MapResolver{"CLOUDFLARE_API_KEY": "cf-key"})
	_, err := d.Dispatch(context.Background(), &core.ChatRequest{
		Provider: "cloudflare",
		Messages: userMessage("hi"),
	})

	var merr *core.MissingCredentialError
	if !errors.As(err, &merr) {
		t.Fatalf("err = %v, want MissingCredentialError", err)
	}
	if merr.EnvVar != "CLOUDFLARE_ACCOUNT_ID" {
		t.Errorf("EnvVar = %q", merr.EnvVar)
	}
}

func TestDispatch_StreamDowngradeWarning(t *testing.T) {
	exec := &captureExecutor{}
	secrets := credential.MapResolver{
		"AWS_REGION":            "us-east-1",
		"AWS_ACCESS_KEY_ID":     "AKID",
		"AWS_SECRET_ACCESS_KEY": "secret",
	}
	d := newDispatcher(exec, secrets)
	res, err := d.Dispatch(context.Background(), &core.ChatRequest{
		Provider: "bedrock",
		Stream:   true,
		Messages: userMessage("hi"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != WarnStreamDowngrade {
		t.Errorf("Warnings = %v, want [%q]", res.Warnings, WarnStreamDowngrade)
	}
	if exec.last.Signer == nil {
		t.Error("signed profile prepared without a signer")
	}
	if !strings.Contains(exec.last.URL, "bedrock-runtime.us-east-1.amazonaws.com") {
		t.Errorf("URL = %q, want region substituted", exec.last.URL)
	}
}

func TestDispatch_GenericEndpointFallback(t *testing.T) {
	exec := &captureExecutor{}
	d := New(Options{
		Resolver: credential.MapResolver{},
		Executor: exec,
		Generics: map[string]GenericEndpoint{
			"local": {BaseURL: "http://localhost:8080/v1", APIKey: "k", Model: "llama3"},
		},
	})
	_, err := d.Dispatch(context.Background(), &core.ChatRequest{
		Provider: "local",
		Messages: userMessage("hi"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if exec.last.URL != "http://localhost:8080/v1/chat/completions" {
		t.Errorf("URL = %q", exec.last.URL)
	}
	if exec.last.Model != "llama3" {
		t.Errorf("Model = %q, want configured default", exec.last.Model)
	}
	if got := exec.last.Header.Get("Authorization"); got != "Bearer k" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestDispatch_FallbackCatchesUnknownProvider(t *testing.T) {
	exec := &captureExecutor{}
	d := New(Options{
		Resolver: credential.MapResolver{},
		Executor: exec,
		Fallback: GenericEndpoint{BaseURL: "http://gateway:9000/v1", APIKey: "gw", Model: "default-model"},
	})
	_, err := d.Dispatch(context.Background(), &core.ChatRequest{
		Provider: "anything:custom-model",
		Messages: userMessage("hi"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if exec.last.URL != "http://gateway:9000/v1/chat/completions" {
		t.Errorf("URL = %q, want the fallback base URL used exactly", exec.last.URL)
	}
	if exec.last.Provider != "anything" {
		t.Errorf("Provider = %q, want the requested ID preserved", exec.last.Provider)
	}
	if exec.last.Model != "custom-model" {
		t.Errorf("Model = %q, want selector model over fallback default", exec.last.Model)
	}
}

func TestDescribe_NeverExecutesLive(t *testing.T) {
	d := newDispatcher(raisingExecutor{t}, credential.MapResolver{"OPENAI_API_KEY": "sk-secret"})
	res, err := d.Describe(context.Background(), &core.ChatRequest{
		Provider: "openai:gpt-4o",
		Messages: userMessage("hi"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Request == nil {
		t.Fatal("Request description missing")
	}
	if got := res.Request.Header.Get("Authorization"); got != "***" {
		t.Errorf("Authorization = %q, want redacted", got)
	}
	if !strings.Contains(string(res.Request.Body), `"gpt-4o"`) {
		t.Errorf("Body = %s, want resolved model", res.Request.Body)
	}
}

// raisingRoundTripper fails the test on any socket use.
type raisingRoundTripper struct{ t *testing.T }

func (r raisingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	r.t.Errorf("network call during dry-run: %s %s", req.Method, req.URL)
	return nil, errors.New("network call during dry-run")
}

func TestDescribe_TokenExchangeStaysLocal(t *testing.T) {
	secrets := credential.MapResolver{"ERNIE_API_KEY": "ak", "ERNIE_SECRET_KEY": "sk"}
	client := &http.Client{Transport: raisingRoundTripper{t}}
	d := New(Options{
		Resolver: secrets,
		Tokens:   credential.NewTokenCache(secrets, client),
		Executor: raisingExecutor{t},
	})

	res, err := d.Describe(context.Background(), &core.ChatRequest{
		Provider: "ernie",
		Messages: userMessage("hi"),
	})
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(res.Request.URL)
	if err != nil {
		t.Fatal(err)
	}
	if got := u.Query().Get("access_token"); got != "***" {
		t.Errorf("access_token = %q, want placeholder", got)
	}
}

func TestDescribe_TokenExchangeMissingKey(t *testing.T) {
	secrets := credential.MapResolver{"ERNIE_API_KEY": "ak"}
	client := &http.Client{Transport: raisingRoundTripper{t}}
	d := New(Options{
		Resolver: secrets,
		Tokens:   credential.NewTokenCache(secrets, client),
		Executor: raisingExecutor{t},
	})

	_, err := d.Describe(context.Background(), &core.ChatRequest{
		Provider: "ernie",
		Messages: userMessage("hi"),
	})
	var merr *core.MissingCredentialError
	if !errors.As(err, &merr) {
		t.Fatalf("err = %v, want MissingCredentialError", err)
	}
	if merr.EnvVar != "ERNIE_SECRET_KEY" {
		t.Errorf("EnvVar = %q", merr.EnvVar)
	}
}

func TestDescribe_NoSocketsForAnyBuiltin(t *testing.T) {
	secrets := credential.MapResolver{
		"OPENAI_API_KEY":        "k",
		"CLAUDE_API_KEY":        "k",
		"GEMINI_API_KEY":        "k",
		"COHERE_API_KEY":        "k",
		"CLOUDFLARE_API_KEY":    "k",
		"CLOUDFLARE_ACCOUNT_ID": "acct",
		"REPLICATE_API_KEY":     "k",
		"QIANWEN_API_KEY":       "k",
		"ERNIE_API_KEY":         "ak",
		"ERNIE_SECRET_KEY":      "sk",
		"VERTEXAI_PROJECT_ID":   "proj",
		"VERTEXAI_LOCATION":     "us-east5",
		"AWS_REGION":            "us-east-1",
		"AWS_ACCESS_KEY_ID":     "AKID",
		"AWS_SECRET_ACCESS_KEY": "secret",
	}
	client := &http.Client{Transport: raisingRoundTripper{t}}
	d := New(Options{
		Resolver: secrets,
		Tokens:   credential.NewTokenCache(secrets, client),
		Executor: raisingExecutor{t},
	})

	for _, id := range d.Providers() {
		res, err := d.Describe(context.Background(), &core.ChatRequest{
			Provider: id,
			Messages: userMessage("hi"),
		})
		if err != nil {
			t.Errorf("Describe(%q) = %v", id, err)
			continue
		}
		if res.Request == nil {
			t.Errorf("Describe(%q) returned no request description", id)
		}
	}
}

func TestDescribe_ValidationStillFires(t *testing.T) {
	d := newDispatcher(raisingExecutor{t}, credential.MapResolver{"OPENAI_API_KEY": "sk"})
	_, err := d.Describe(context.Background(), &core.ChatRequest{Provider: "openai"})

	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestDispatch_LossyEnvelopeWarningSurfaces(t *testing.T) {
	exec := &captureExecutor{}
	d := newDispatcher(exec, credential.MapResolver{"COHERE_API_KEY": "co-key"})
	res, err := d.Dispatch(context.Background(), &core.ChatRequest{
		Provider: "cohere",
		Messages: []core.Message{
			{Role: core.RoleUser, Content: "first"},
			{Role: core.RoleAssistant, Content: "reply"},
			{Role: core.RoleUser, Content: "second"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) == 0 {
		t.Error("lossy history collapse produced no warning")
	}
}

func TestProviders_IncludesGenerics(t *testing.T) {
	d := New(Options{
		Resolver: credential.MapResolver{},
		Executor: &captureExecutor{},
		Generics: map[string]GenericEndpoint{"local": {BaseURL: "http://localhost:8080/v1"}},
	})
	ids := d.Providers()

	var sawOpenAI, sawLocal bool
	for _, id := range ids {
		sawOpenAI = sawOpenAI || id == "openai"
		sawLocal = sawLocal || id == "local"
	}
	if !sawOpenAI || !sawLocal {
		t.Errorf("Providers() = %v, want builtins and generics", ids)
	}
}
