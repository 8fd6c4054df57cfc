package credential

import (
	"context"
	"fmt"

	"llmdispatch/internal/core"
	"llmdispatch/internal/profile"
)

// Material is the resolved auth for one outbound request. Headers and
// query parameters are applied as-is; Signer, when set, must be run over
// the final request immediately before sending because signatures are
// time-bound.
type Material struct {
	Headers map[string]string
	Query   map[string]string

	// SecretHeaders and SecretQuery name the entries above that carry
	// secrets. Dry-run output replaces their values with "***".
	SecretHeaders []string
	SecretQuery   []string

	Signer Signer
}

// Materialize resolves an auth variant against the given secret source.
// Token exchange goes through the shared cache so it runs at most once
// per process.
func Materialize(ctx context.Context, auth profile.Auth, providerID string, res Resolver, tokens *TokenCache) (Material, error) {
	return materialize(ctx, auth, providerID, res, tokens, false)
}

// MaterializeDescribe resolves auth for a dry run: identical to
// Materialize except that token exchange is replaced by a presence check
// and a placeholder value, so describing a request never leaves the
// process. Missing credentials still fail exactly as in a live dispatch.
func MaterializeDescribe(ctx context.Context, auth profile.Auth, providerID string, res Resolver, tokens *TokenCache) (Material, error) {
	return materialize(ctx, auth, providerID, res, tokens, true)
}

func materialize(ctx context.Context, auth profile.Auth, providerID string, res Resolver, tokens *TokenCache, describe bool) (Material, error) {
	switch a := auth.(type) {
	case profile.AuthNone:
		return Material{}, nil

	case profile.AuthBearer:
		key := a.Token
		if key == "" && a.EnvVar != "" {
			key, _ = res.Lookup(a.EnvVar)
		}
		if key == "" {
			if a.Optional {
				return Material{}, nil
			}
			return Material{}, &core.MissingCredentialError{Provider: providerID, EnvVar: a.EnvVar}
		}
		name := a.HeaderName()
		return Material{
			Headers:       map[string]string{name: a.HeaderValue(key)},
			SecretHeaders: []string{name},
		}, nil

	case profile.AuthQueryKey:
		key, ok := res.Lookup(a.EnvVar)
		if !ok {
			return Material{}, &core.MissingCredentialError{Provider: providerID, EnvVar: a.EnvVar}
		}
		return Material{
			Query:       map[string]string{a.Param: key},
			SecretQuery: []string{a.Param},
		}, nil

	case profile.AuthSigned:
		region, ok := res.Lookup(a.RegionEnv)
		if !ok {
			return Material{}, &core.MissingCredentialError{Provider: providerID, EnvVar: a.RegionEnv}
		}
		accessKey, ok := res.Lookup(a.KeyEnv)
		if !ok {
			return Material{}, &core.MissingCredentialError{Provider: providerID, EnvVar: a.KeyEnv}
		}
		secretKey, ok := res.Lookup(a.SecretEnv)
		if !ok {
			return Material{}, &core.MissingCredentialError{Provider: providerID, EnvVar: a.SecretEnv}
		}
		return Material{
			Signer: NewSigV4Signer(a.Service, region, accessKey, secretKey),
		}, nil

	case profile.AuthTokenExchange:
		var token string
		if describe {
			if err := tokens.Verify(a.Source); err != nil {
				return Material{}, err
			}
			token = "***"
		} else {
			var err error
			token, err = tokens.Get(ctx, a.Source)
			if err != nil {
				return Material{}, err
			}
		}
		if a.QueryParam != "" {
			return Material{
				Query:       map[string]string{a.QueryParam: token},
				SecretQuery: []string{a.QueryParam},
			}, nil
		}
		return Material{
			Headers:       map[string]string{"Authorization": "Bearer " + token},
			SecretHeaders: []string{"Authorization"},
		}, nil

	default:
		return Material{}, fmt.Errorf("unsupported auth variant %T", auth)
	}
}
