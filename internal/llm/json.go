package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// fencePattern matches a Markdown code fence, optionally tagged json.
var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")

// ExtractJSON pulls the JSON payload out of a model reply. It accepts a
// bare JSON document, one wrapped in a code fence, or JSON embedded in
// prose, in which case the outermost object or array span is used.
func ExtractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	if json.Valid([]byte(text)) {
		return text, nil
	}

	pairs := [][2]byte{{'{', '}'}, {'[', ']'}}
	// Try whichever bracket opens first so an array of objects is not
	// mistaken for its first element.
	if a, o := strings.IndexByte(text, '['), strings.IndexByte(text, '{'); a >= 0 && (o < 0 || a < o) {
		pairs[0], pairs[1] = pairs[1], pairs[0]
	}
	for _, pair := range pairs {
		start := strings.IndexByte(text, pair[0])
		end := strings.LastIndexByte(text, pair[1])
		if start >= 0 && end > start {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("no JSON found in reply (%d bytes)", len(text))
}

// DecodeJSON extracts the JSON payload from text and unmarshals it into v.
func DecodeJSON(text string, v any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("parsing reply JSON: %w", err)
	}
	return nil
}
