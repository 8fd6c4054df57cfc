// Package dispatch resolves a chat request against the provider registry
// and runs it through the transport. All local validation and credential
// resolution happens here, before any executor is invoked, so dry-run and
// live dispatch fail identically on bad input.
package dispatch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"llmdispatch/internal/core"
	"llmdispatch/internal/credential"
	"llmdispatch/internal/envelope"
	"llmdispatch/internal/profile"
	"llmdispatch/internal/transport"
)

// WarnStreamDowngrade is reported when the caller asked to stream from a
// provider that only delivers single JSON responses.
const WarnStreamDowngrade = "provider does not support streaming; returning the full response"

// DefaultPollBudget bounds async job polling when the caller sets none.
const DefaultPollBudget = 5 * time.Minute

// GenericEndpoint configures an OpenAI-compatible endpoint that is not in
// the builtin registry: self-hosted gateways, local runtimes.
type GenericEndpoint struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Options configure a Dispatcher. Zero-value fields get working defaults.
type Options struct {
	Registry *profile.Registry
	Resolver credential.Resolver
	Tokens   *credential.TokenCache
	Executor transport.Executor
	Logger   *slog.Logger

	// ModelOverrides pins a model per provider ID, above the profile
	// default but below an explicit selector or request model.
	ModelOverrides map[string]string

	// Generics maps extra provider IDs to OpenAI-compatible endpoints
	// consulted when the registry misses.
	Generics map[string]GenericEndpoint

	// Fallback, when its BaseURL is set, catches every provider ID the
	// registry and Generics do not know. The unknown ID is kept as the
	// provider name in results and errors.
	Fallback GenericEndpoint

	PollBudget time.Duration
}

// Dispatcher is the façade: one Dispatch call per chat completion.
type Dispatcher struct {
	registry   *profile.Registry
	resolver   credential.Resolver
	tokens     *credential.TokenCache
	exec       transport.Executor
	logger     *slog.Logger
	overrides  map[string]string
	generics   map[string]GenericEndpoint
	fallback   GenericEndpoint
	pollBudget time.Duration
}

// New builds a dispatcher from options, filling in defaults.
func New(opts Options) *Dispatcher {
	if opts.Registry == nil {
		opts.Registry = profile.NewRegistry()
	}
	if opts.Resolver == nil {
		opts.Resolver = credential.EnvResolver{}
	}
	if opts.Tokens == nil {
		opts.Tokens = credential.NewTokenCache(opts.Resolver, http.DefaultClient)
	}
	if opts.Executor == nil {
		opts.Executor = transport.NewAdapter(nil, opts.Logger, transport.Hooks{})
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.PollBudget <= 0 {
		opts.PollBudget = DefaultPollBudget
	}
	return &Dispatcher{
		registry:   opts.Registry,
		resolver:   opts.Resolver,
		tokens:     opts.Tokens,
		exec:       opts.Executor,
		logger:     opts.Logger,
		overrides:  opts.ModelOverrides,
		generics:   opts.Generics,
		fallback:   opts.Fallback,
		pollBudget: opts.PollBudget,
	}
}

// ParseSelector splits a "provider[:model]" selector. Everything after the
// first colon is the model, so model names containing colons survive.
func ParseSelector(selector string) (provider, model string) {
	provider, model, _ = strings.Cut(selector, ":")
	return provider, model
}

// Dispatch resolves and executes one chat request.
func (d *Dispatcher) Dispatch(ctx context.Context, req *core.ChatRequest) (*core.DispatchResult, error) {
	return d.dispatch(ctx, req, d.exec, false)
}

// Describe resolves the request and returns the wire-level description
// without sending anything. Validation and credential presence checks run
// exactly as in a live dispatch, but nothing leaves the process: token
// exchange is replaced by a placeholder.
func (d *Dispatcher) Describe(ctx context.Context, req *core.ChatRequest) (*core.DispatchResult, error) {
	return d.dispatch(ctx, req, transport.DryRun{}, true)
}

// Providers lists the dispatchable provider IDs: builtins plus configured
// generic endpoints, sorted.
func (d *Dispatcher) Providers() []string {
	ids := d.registry.IDs()
	for id := range d.generics {
		if _, ok := d.registry.Lookup(id); !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (d *Dispatcher) dispatch(ctx context.Context, req *core.ChatRequest, exec transport.Executor, describe bool) (*core.DispatchResult, error) {
	// A no-message request is rejected before any profile or credential
	// work: no provider accepts it.
	if len(req.Messages) == 0 {
		return nil, core.NewEmptyRequestError()
	}

	prof, err := d.resolveProfile(req.Provider)
	if err != nil {
		return nil, err
	}

	model, err := d.resolveModel(prof, req)
	if err != nil {
		return nil, err
	}

	var warnings []string
	stream := req.Stream
	if stream && prof.Mode.Kind == profile.SyncJSON {
		warnings = append(warnings, WarnStreamDowngrade)
		d.logger.Warn("stream downgraded to sync", "provider", prof.ID)
	}

	body, envWarnings, err := envelope.Serialize(prof, req, model)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, envWarnings...)

	materialize := credential.Materialize
	if describe {
		materialize = credential.MaterializeDescribe
	}
	material, err := materialize(ctx, prof.Auth, prof.ID, d.resolver, d.tokens)
	if err != nil {
		return nil, err
	}

	vars, err := d.resolveVars(prof)
	if err != nil {
		return nil, err
	}

	endpoint := prof.Endpoint(model, stream, vars)
	endpoint, err = applyQuery(endpoint, material.Query)
	if err != nil {
		return nil, &core.ConfigError{Provider: prof.ID, Message: "invalid endpoint URL: " + err.Error()}
	}

	header := http.Header{}
	for name, value := range prof.ExtraHeaders {
		header.Set(name, value)
	}
	for name, value := range material.Headers {
		header.Set(name, value)
	}

	prepared := &transport.PreparedRequest{
		Provider:      prof.ID,
		Model:         model,
		Method:        http.MethodPost,
		URL:           endpoint,
		Header:        header,
		Body:          body,
		Stream:        stream,
		Mode:          prof.Mode,
		Response:      prof.Response,
		Signer:        material.Signer,
		SecretHeaders: material.SecretHeaders,
		SecretQuery:   material.SecretQuery,
		PollBudget:    d.pollBudget,
	}

	ctx, requestID := core.EnsureRequestID(ctx)
	d.logger.Debug("dispatching",
		"request_id", requestID,
		"provider", prof.ID,
		"model", model,
		"mode", string(prof.Mode.Kind),
		"stream", stream)

	res, err := exec.Execute(ctx, prepared)
	if err != nil {
		return nil, err
	}
	res.Warnings = append(warnings, res.Warnings...)
	return res, nil
}

// resolveProfile finds the provider: builtin registry first, then the
// configured generic endpoints, then the catch-all fallback endpoint.
func (d *Dispatcher) resolveProfile(selector string) (profile.Profile, error) {
	providerID, _ := ParseSelector(selector)
	if providerID == "" {
		return profile.Profile{}, &core.ConfigError{Message: "empty provider selector"}
	}
	if prof, ok := d.registry.Lookup(providerID); ok {
		return prof, nil
	}
	g, ok := d.generics[providerID]
	if !ok {
		g = d.fallback
	}
	if g.BaseURL != "" {
		prof := profile.Generic(providerID, g.BaseURL, g.APIKey)
		prof.DefaultModel = g.Model
		return prof, nil
	}
	return profile.Profile{}, core.NewUnknownProviderError(providerID)
}

// resolveModel picks the model by precedence: selector, request model,
// configured override, <PROVIDER>_MODEL environment, profile default.
func (d *Dispatcher) resolveModel(prof profile.Profile, req *core.ChatRequest) (string, error) {
	_, selectorModel := ParseSelector(req.Provider)
	for _, candidate := range []string{selectorModel, req.Model, d.overrides[prof.ID]} {
		if candidate != "" {
			return candidate, nil
		}
	}
	if m, ok := d.resolver.Lookup(prof.ModelEnvVar()); ok {
		return m, nil
	}
	if prof.DefaultModel != "" {
		return prof.DefaultModel, nil
	}
	return "", &core.ConfigError{Provider: prof.ID, Message: "no model specified and the provider has no default"}
}

// resolveVars fills the profile's URL template variables from the secret
// source. A missing variable is a config problem on par with a missing
// key, so it gets the same error type.
func (d *Dispatcher) resolveVars(prof profile.Profile) (map[string]string, error) {
	if len(prof.Vars) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(prof.Vars))
	for _, v := range prof.Vars {
		value, ok := d.resolver.Lookup(v.EnvVar)
		if !ok {
			return nil, &core.MissingCredentialError{Provider: prof.ID, EnvVar: v.EnvVar}
		}
		vars[v.Name] = value
	}
	return vars, nil
}

// applyQuery merges credential query parameters into the endpoint URL,
// preserving any parameters the profile path already carries.
func applyQuery(endpoint string, params map[string]string) (string, error) {
	if len(params) == 0 {
		return endpoint, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for name, value := range params {
		q.Set(name, value)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
