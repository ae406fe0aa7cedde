package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls the first JSON object or array out of a model reply
// and unmarshals it into v. Models routinely wrap JSON in ```json fences
// or surround it with prose despite instructions, so the decoder strips
// fences first and then keeps only the outermost bracket pair.
func ExtractJSON(raw string, v any) error {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return fmt.Errorf("ExtractJSON: no JSON found in model response")
	}
	if err := json.Unmarshal([]byte(clean), v); err != nil {
		return fmt.Errorf("ExtractJSON: unmarshal JSON: %w", err)
	}
	return nil
}

func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return ""
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	// Keep only the outermost object or array, whichever opens first.
	objStart := strings.Index(s, "{")
	arrStart := strings.Index(s, "[")

	switch {
	case objStart != -1 && (arrStart == -1 || objStart < arrStart):
		if end := strings.LastIndex(s, "}"); end > objStart {
			return strings.TrimSpace(s[objStart : end+1])
		}
	case arrStart != -1:
		if end := strings.LastIndex(s, "]"); end > arrStart {
			return strings.TrimSpace(s[arrStart : end+1])
		}
	}
	return ""
}
