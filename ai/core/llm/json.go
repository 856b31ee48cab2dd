package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls a JSON object out of model output. Models frequently wrap
// JSON in markdown code fences or prepend a sentence of prose, so the cleanup
// runs in two passes: strip fences, then fall back to the outermost brace pair.
func ExtractJSON(content string) string {
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if strings.HasPrefix(cleaned, "{") && strings.HasSuffix(cleaned, "}") {
		return cleaned
	}

	// 兜底: 截取首尾花括号之间的内容
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		return cleaned[start : end+1]
	}
	return cleaned
}

// DecodeJSON extracts and unmarshals a JSON object from model output.
// Returns ErrParse when the content holds no decodable object.
func DecodeJSON(content string, out any) error {
	cleaned := ExtractJSON(content)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	return nil
}
