package scorer

import (
	"encoding/json"
	"errors"
	"strings"
)

var errEmptyResponse = errors.New("empty response")

// cleanJSON strips markdown fences and pulls out the outermost JSON
// object from a model response.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// repairTruncatedJSON closes any unclosed brackets or braces in
// truncated JSON so a cut-off response still parses.
func repairTruncatedJSON(text string) string {
	if len(text) == 0 {
		return text
	}

	var stack []byte
	inString := false
	escape := false

	for i := 0; i < len(text); i++ {
		c := text[i]

		if escape {
			escape = false
			continue
		}
		if c == '\\' && inString {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if inString {
		text += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		text += string(stack[i])
	}
	return text
}

func jsonUnmarshal(text string, v any) error {
	if strings.TrimSpace(text) == "" {
		return errEmptyResponse
	}
	return json.Unmarshal([]byte(text), v)
}

// parseJSON attempts a direct parse, then a fence-and-brace cleaned
// parse. When both fail it returns the direct error, which is the one
// worth showing the model.
func parseJSON(text string, v any) error {
	err := json.Unmarshal([]byte(text), v)
	if err == nil {
		return nil
	}
	cleaned := cleanJSON(text)
	if cleaned != "" && json.Unmarshal([]byte(cleaned), v) == nil {
		return nil
	}
	return err
}

func tryUnmarshal(text string, v any) bool {
	return parseJSON(text, v) == nil
}
