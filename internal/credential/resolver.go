// Package credential resolves a profile's auth variant into concrete
// request material: headers, query parameters, or a request signer.
// Resolution happens before any network I/O so a missing secret fails
// fast, and every secret is tracked so dry-run output can redact it.
package credential

import "os"

// Resolver looks up a named secret. The zero source is the process
// environment; tests substitute a map.
type Resolver interface {
	Lookup(key string) (string, bool)
}

// EnvResolver reads secrets from the process environment.
type EnvResolver struct{}

func (EnvResolver) Lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// MapResolver reads secrets from a fixed map. Used by tests and by
// config-file credential overrides.
type MapResolver map[string]string

func (m MapResolver) Lookup(key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Chain consults resolvers in order and returns the first hit.
type Chain []Resolver

func (c Chain) Lookup(key string) (string, bool) {
	for _, r := range c {
		if v, ok := r.Lookup(key); ok {
			return v, true
		}
	}
	return "", false
}
