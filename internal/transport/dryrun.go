package transport

import (
	"context"
	"net/http"
	"net/url"

	"llmdispatch/internal/core"
)

const redacted = "***"

// DryRun describes the request that would be sent without opening a
// connection. Credential-bearing headers and query parameters are
// redacted; everything else is reproduced exactly as the live adapter
// would send it.
type DryRun struct{}

func (DryRun) Execute(ctx context.Context, req *PreparedRequest) (*core.DispatchResult, error) {
	header := make(http.Header, len(req.Header)+1)
	for name, values := range req.Header {
		header[name] = append([]string(nil), values...)
	}
	if req.Body != nil && header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/json")
	}
	for _, name := range req.SecretHeaders {
		if header.Get(name) != "" {
			header.Set(name, redacted)
		}
	}
	if req.Signer != nil {
		// The signature itself would leak key material derivation inputs;
		// show that signing happens without computing it.
		header.Set("Authorization", redacted)
	}

	desc := &core.RequestDescription{
		Method:  req.Method,
		URL:     redactQuery(req.URL, req.SecretQuery),
		Header:  header,
		Body:    req.Body,
		Mode:    string(req.Mode.Kind),
		Framing: string(req.Mode.Framing),
	}
	return &core.DispatchResult{
		Provider: req.Provider,
		Model:    req.Model,
		Request:  desc,
	}, nil
}

func redactQuery(rawURL string, secretParams []string) string {
	if len(secretParams) == 0 {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for _, name := range secretParams {
		if q.Has(name) {
			q.Set(name, redacted)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
