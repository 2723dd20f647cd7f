// Package tools recognises structured tool invocations in model output and
// dispatches them to an external executor.
package tools

import (
	"encoding/json"
	"strings"
)

// Invocation is a request to run Tool with Data.
type Invocation struct {
	Tool string         `json:"tool"`
	Data map[string]any `json:"data"`
}

// ParseInvocation reports whether text is a tool invocation of the form
// {"tool": "<name>", "data": {...}}. Any other text, including malformed
// JSON, yields false. A surrounding markdown code fence is tolerated.
func ParseInvocation(text string) (Invocation, bool) {
	s := stripFence(strings.TrimSpace(text))
	if !strings.HasPrefix(s, "{") {
		return Invocation{}, false
	}
	var raw struct {
		Tool *string         `json:"tool"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return Invocation{}, false
	}
	if raw.Tool == nil || strings.TrimSpace(*raw.Tool) == "" {
		return Invocation{}, false
	}
	inv := Invocation{Tool: strings.TrimSpace(*raw.Tool), Data: map[string]any{}}
	if len(raw.Data) > 0 && string(raw.Data) != "null" {
		if err := json.Unmarshal(raw.Data, &inv.Data); err != nil {
			return Invocation{}, false
		}
	}
	return inv, true
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
