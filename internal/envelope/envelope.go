// Package envelope serializes a normalized chat request into the JSON body
// a provider expects. Serialization is pure: no network, no environment.
// Lossy transformations (history collapse, system folding) are reported as
// warnings, never silently applied.
package envelope

import (
	"encoding/json"
	"fmt"
	"strings"

	"llmdispatch/internal/core"
	"llmdispatch/internal/profile"
)

// Warning texts are stable strings so callers and tests can match on them.
const (
	WarnHistoryCollapsed = "conversation history collapsed to the latest user turn"
	WarnSystemFolded     = "system message folded into the first user turn"
)

// Serialize builds the request body for the given profile. The request is
// never mutated. Warnings describe information the target schema cannot
// carry; err is non-nil only for locally invalid requests.
func Serialize(prof profile.Profile, req *core.ChatRequest, model string) ([]byte, []string, error) {
	if len(req.Messages) == 0 {
		return nil, nil, core.NewEmptyRequestError()
	}

	var doc map[string]any
	var warnings []string
	var err error

	switch prof.Envelope.Kind {
	case profile.OpenAIChatArray:
		doc, warnings = buildChatArray(prof.Envelope, req)
	case profile.GeminiPartsArray:
		doc, warnings = buildPartsArray(prof.Envelope, req)
	case profile.CohereSingleMessage:
		doc, warnings = buildSingleMessage(req)
	case profile.RawPromptString:
		doc, warnings = buildRawPrompt(prof.Envelope, req)
	default:
		err = fmt.Errorf("unsupported envelope kind %q", prof.Envelope.Kind)
	}
	if err != nil {
		return nil, nil, err
	}

	if !prof.Envelope.OmitModel && model != "" {
		doc["model"] = model
	}
	if req.Stream && !prof.Envelope.OmitStreamFlag {
		doc["stream"] = true
	}

	mergeExtras(doc, prof, req)

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, err
	}
	return body, warnings, nil
}

// mergeExtras layers the profile's fixed body fields under the caller's
// pass-through parameters. The caller wins on conflict. Placement follows
// the schema: inside the input object for input-wrapped bodies, under
// generationConfig for the parts-array schema, top level otherwise.
func mergeExtras(doc map[string]any, prof profile.Profile, req *core.ChatRequest) {
	if len(prof.ExtraBody) == 0 && len(req.Extra) == 0 {
		return
	}

	target := doc
	switch {
	case prof.Envelope.InputWrap:
		if inner, ok := doc["input"].(map[string]any); ok {
			target = inner
		}
	case prof.Envelope.Kind == profile.GeminiPartsArray:
		inner := map[string]any{}
		doc["generationConfig"] = inner
		target = inner
	}

	for k, v := range prof.ExtraBody {
		if _, taken := target[k]; !taken {
			target[k] = v
		}
	}
	for k, v := range req.Extra {
		target[k] = v
	}
}

func buildChatArray(spec profile.EnvelopeSpec, req *core.ChatRequest) (map[string]any, []string) {
	doc := map[string]any{}
	var warnings []string

	msgs := req.Messages
	if spec.SystemTop {
		var rest []core.Message
		sys := splitSystem(msgs, &rest)
		if sys != "" {
			doc["system"] = sys
		}
		msgs = rest
	}

	out := make([]map[string]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, map[string]string{"role": m.Role, "content": m.Content})
	}
	doc["messages"] = out
	return doc, warnings
}

func buildPartsArray(spec profile.EnvelopeSpec, req *core.ChatRequest) (map[string]any, []string) {
	doc := map[string]any{}
	var warnings []string

	var rest []core.Message
	sys := splitSystem(req.Messages, &rest)

	if sys != "" {
		if spec.SystemInstruction {
			doc["systemInstruction"] = map[string]any{
				"parts": []map[string]string{{"text": sys}},
			}
		} else {
			rest = foldSystemIntoFirstUser(sys, rest)
			warnings = append(warnings, WarnSystemFolded)
		}
	}

	contents := make([]map[string]any, 0, len(rest))
	for _, m := range rest {
		role := m.Role
		if role == core.RoleAssistant {
			role = "model"
		}
		contents = append(contents, map[string]any{
			"role":  role,
			"parts": []map[string]string{{"text": m.Content}},
		})
	}
	doc["contents"] = contents
	return doc, warnings
}

func buildSingleMessage(req *core.ChatRequest) (map[string]any, []string) {
	text, warnings := collapseToPrompt(req)
	return map[string]any{"message": text}, warnings
}

func buildRawPrompt(spec profile.EnvelopeSpec, req *core.ChatRequest) (map[string]any, []string) {
	text, warnings := collapseToPrompt(req)

	field := spec.PromptField
	if field == "" {
		field = "prompt"
	}
	if spec.InputWrap {
		return map[string]any{"input": map[string]any{field: text}}, warnings
	}
	return map[string]any{field: text}, warnings
}

// collapseToPrompt reduces the conversation to a single string for schemas
// without history support: the latest user turn, with any system content
// folded in front. Every dropped turn is reported.
func collapseToPrompt(req *core.ChatRequest) (string, []string) {
	var warnings []string

	var rest []core.Message
	sys := splitSystem(req.Messages, &rest)

	text := req.LastUserContent()
	if text == "" && len(rest) > 0 {
		// No user turn at all; fall back to the latest turn of any role.
		text = rest[len(rest)-1].Content
	}

	dropped := 0
	for _, m := range rest {
		if m.Role == core.RoleUser && m.Content == text {
			continue
		}
		dropped++
	}
	if dropped > 0 {
		warnings = append(warnings, WarnHistoryCollapsed)
	}

	if sys != "" {
		text = sys + "\n\n" + text
		warnings = append(warnings, WarnSystemFolded)
	}
	return text, warnings
}

// splitSystem removes system messages from the conversation and returns
// their concatenated content. The remaining turns keep their order.
func splitSystem(msgs []core.Message, rest *[]core.Message) string {
	var parts []string
	out := make([]core.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == core.RoleSystem {
			parts = append(parts, m.Content)
			continue
		}
		out = append(out, m)
	}
	*rest = out
	return strings.Join(parts, "\n\n")
}

func foldSystemIntoFirstUser(sys string, msgs []core.Message) []core.Message {
	out := make([]core.Message, len(msgs))
	copy(out, msgs)
	for i := range out {
		if out[i].Role == core.RoleUser {
			out[i].Content = sys + "\n\n" + out[i].Content
			return out
		}
	}
	// No user turn to fold into; synthesize one so the instruction is not
	// dropped on the floor.
	return append([]core.Message{{Role: core.RoleUser, Content: sys}}, out...)
}
