package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencePattern    = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	trailingComma   = regexp.MustCompile(`,(\s*[}\]])`)
	thinkBlock      = regexp.MustCompile(`(?is)<think>.*?</think>`)
	pythonTrue      = regexp.MustCompile(`\bTrue\b`)
	pythonFalse     = regexp.MustCompile(`\bFalse\b`)
	pythonNone      = regexp.MustCompile(`\bNone\b`)
)

// Sanitize repairs the common ways a model's "JSON" response deviates from
// strict JSON before a weak (non-schema-enforced) provider tier is used:
// stripping a surrounding markdown fence, discarding a leading reasoning
// block, replacing Python literal tokens, and dropping trailing commas.
func Sanitize(raw string) string {
	s := strings.TrimSpace(raw)
	s = thinkBlock.ReplaceAllString(s, "")
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = strings.TrimSpace(s)
	s = pythonTrue.ReplaceAllString(s, "true")
	s = pythonFalse.ReplaceAllString(s, "false")
	s = pythonNone.ReplaceAllString(s, "null")
	s = trailingComma.ReplaceAllString(s, "$1")
	return s
}

// ParseJSON sanitizes raw and unmarshals it into v, retrying the
// unsanitized input first so well-formed responses pay no extra cost.
func ParseJSON(raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}
	return json.Unmarshal([]byte(Sanitize(raw)), v)
}
