package profile

import "sort"

// Registry maps provider IDs to their profiles. Built once at startup;
// lookups are pure and safe for concurrent use.
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry returns a registry populated with the builtin provider table.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[string]Profile, len(builtins))}
	for _, p := range builtins {
		r.profiles[p.ID] = p
	}
	return r
}

// Lookup returns the profile for the given provider ID. The second return
// is false when the ID is unknown; deciding whether that is an error or a
// generic-fallback case is the dispatcher's call.
func (r *Registry) Lookup(id string) (Profile, bool) {
	p, ok := r.profiles[id]
	return p, ok
}

// IDs returns the registered provider IDs, sorted for stable listings.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns all profiles ordered by ID.
func (r *Registry) List() []Profile {
	ids := r.IDs()
	out := make([]Profile, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.profiles[id])
	}
	return out
}

// Generic synthesizes an OpenAI-compatible profile at call time from a
// caller-supplied base URL and key. It is the escape hatch for unknown and
// self-hosted endpoints; the base URL is used exactly as given, with no
// implicit prefixing beyond the standard chat path.
func Generic(id, baseURL, apiKey string) Profile {
	auth := Auth(AuthNone{})
	if apiKey != "" {
		auth = AuthBearer{Token: apiKey}
	}
	return Profile{
		ID:       id,
		BaseURL:  baseURL,
		ChatPath: "/chat/completions",
		Auth:     auth,
		Envelope: EnvelopeSpec{Kind: OpenAIChatArray},
		Mode: CompletionMode{
			Kind:     StreamingChunks,
			Framing:  FramingSSE,
			DoneData: "[DONE]",
		},
		Response: ResponseSpec{
			TextPath:  "choices.0.message.content",
			DeltaPath: "choices.0.delta.content",
		},
	}
}
