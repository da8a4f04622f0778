package narrative

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Separator splits a generator reply into its narrative and JSON sections.
const Separator = "\n===JSON===\n"

// Parse splits raw output into narrative text and a state delta. Only the
// section right after the first separator is parsed; anything after a second
// separator is ignored.
func Parse(raw string) (string, map[string]any, error) {
	parts := strings.Split(raw, Separator)
	if len(parts) < 2 {
		return "", nil, ErrMalformedOutput
	}

	text := strings.TrimSpace(parts[0])
	body := stripFence(strings.TrimSpace(parts[1]))

	var delta map[string]any
	if err := json.Unmarshal([]byte(body), &delta); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDelta, err)
	}
	if delta == nil {
		return "", nil, fmt.Errorf("%w: not a JSON object", ErrInvalidDelta)
	}
	return text, delta, nil
}

// stripFence unwraps a ```json ... ``` block, which models like to add.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
