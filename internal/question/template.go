package question

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ladderflow/engine/internal/models"
)

// placeholderPattern matches {{key}} tokens in a template string, grounded
// on the teacher's template engine (internal/application/template/engine.go)
// but narrowed to flat keys since the question catalogue is closed.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// catalogue maps a question-type token to its template (spec §4.7: "the
// mapping is configuration, not code"). Tokens are named after the
// stage/active-label pair that selects them.
var catalogue = map[string]string{
	"A1.1":                      "Thinking about {{stimulus}}, what specifically do you notice about {{active}}?",
	"A1.2":                      "You mentioned {{parent}} — what features or aspects stand out to you there?",
	"C1.1":                      "Why does {{active}} matter to you?",
	"C1.2":                      "And what does that lead to, in terms of what's important to you?",
	"CV1.1":                     "Why is that important to you, or what does it ultimately mean for you?",
	"expanded_attribute":        "Let's come back to {{parent}} for a moment — is there anything else about it you'd point out?",
	"expanded_consequence":      "Taking a step back from {{parent}}, what does that bring about for you?",
	"expanded_value":            "Just to make sure I follow — why does {{parent}} matter so much to you, deep down?",
	"expanded_idea_question":    "Let's return to {{stimulus}}. What else comes to mind about {{parent}}?",
	"ask_again_for_attributes":  "Before we move on, is there anything else about {{stimulus}} you'd like to mention? So far we've discussed: {{discussed}}.",
	"idea_question":             "What are your first thoughts about {{stimulus}}?",
	"values_limit_acknowledgment": "Thank you, that gives me a clear picture of what matters to you here.",
}

// Render looks up token's template and substitutes vars, returning
// models.ErrTemplateNotFound or models.ErrMissingPlaceholder on failure —
// rendering is strict, never silently drops a placeholder (spec §6 ambient
// error-handling discipline).
func Render(token string, vars map[string]string) (string, error) {
	tmpl, ok := catalogue[token]
	if !ok {
		return "", fmt.Errorf("%w: %s", models.ErrTemplateNotFound, token)
	}

	var missing string
	result := placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := strings.TrimSpace(match[2 : len(match)-2])
		v, ok := vars[key]
		if !ok {
			missing = key
			return match
		}
		return v
	})
	if missing != "" {
		return "", fmt.Errorf("%w: %s", models.ErrMissingPlaceholder, missing)
	}
	return result, nil
}
