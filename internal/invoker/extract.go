package invoker

import (
	"encoding/json"
	"strings"
)

// ExtractJSON pulls a JSON object out of model output. Models often wrap
// the payload in prose or a fenced code block; this tries, in order, the
// whole text, the first fenced block, and the first balanced brace span.
func ExtractJSON(text string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(text)
	if isJSONObject(trimmed) {
		return json.RawMessage(trimmed), true
	}

	if block, ok := fencedBlock(trimmed); ok && isJSONObject(block) {
		return json.RawMessage(block), true
	}

	if span, ok := braceSpan(trimmed); ok && isJSONObject(span) {
		return json.RawMessage(span), true
	}
	return nil, false
}

func isJSONObject(s string) bool {
	if !strings.HasPrefix(s, "{") {
		return false
	}
	var m map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &m) == nil
}

// fencedBlock returns the contents of the first ``` fence, tolerating a
// language tag on the opening line.
func fencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start < 0 {
		return "", false
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		head := strings.TrimSpace(rest[:nl])
		if head == "" || len(head) <= 8 && !strings.ContainsAny(head, "{}") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// braceSpan returns the first balanced {...} span, skipping braces inside
// JSON strings.
func braceSpan(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString:
			if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// ValidateSchema checks that every required top-level field is present in
// the object and returns the first missing field name.
func ValidateSchema(obj json.RawMessage, required []string) (string, bool) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(obj, &m); err != nil {
		return "", false
	}
	for _, field := range required {
		if _, ok := m[field]; !ok {
			return field, false
		}
	}
	return "", true
}
