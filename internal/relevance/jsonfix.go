package relevance

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Deterministic cleanup of near-valid JSON from the model. This is stage
// one of the two-stage parse pipeline: everything here is pure string
// surgery, so the nondeterministic repair round-trip (stage two, in
// engine.go) only runs when this fails.

var trailingCommaRe = regexp.MustCompile(`,\s*([\]}])`)

// stripFences removes markdown code fences around a payload.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop a language tag like "json" on the fence line.
	if i := strings.Index(s, "\n"); i >= 0 {
		first := strings.TrimSpace(s[:i])
		if len(first) <= 10 && !strings.ContainsAny(first, "[]{}") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractSpan pulls the first open..close delimited span out of s,
// auto-closing if the closer never arrives (truncated model output).
func extractSpan(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	// Truncated: close whatever is still open.
	out := strings.TrimRight(s[start:], " \t\n\r,")
	for i := 0; i < depth; i++ {
		out += string(close)
	}
	return out, true
}

// cleanJSON runs the deterministic cleanup for one delimiter pair and
// unmarshals into v. Returns false if the payload is still unparseable.
func cleanJSON(s string, open, close byte, v any) bool {
	s = stripFences(s)
	span, ok := extractSpan(s, open, close)
	if !ok {
		return false
	}
	span = trailingCommaRe.ReplaceAllString(span, "$1")
	return json.Unmarshal([]byte(span), v) == nil
}

// CleanArray recovers a JSON array from messy model output.
func CleanArray(s string, v any) bool {
	return cleanJSON(s, '[', ']', v)
}

// CleanObject recovers a JSON object from messy model output.
func CleanObject(s string, v any) bool {
	return cleanJSON(s, '{', '}', v)
}
