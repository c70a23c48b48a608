// Package question implements the Question Generator (component C7, spec
// §4.7): selects a template from the fixed catalogue, builds LLM prompt
// context, and issues a structured-output request for the next interview
// question.
package question

import (
	"context"
	"fmt"
	"strings"

	"github.com/ladderflow/engine/internal/llm"
	"github.com/ladderflow/engine/internal/models"
)

// Generator produces the next interview question via an llm.Client.
type Generator struct {
	client llm.Client
}

// New builds a Generator backed by client.
func New(client llm.Client) *Generator {
	return &Generator{client: client}
}

// Request bundles the prompt-context fields spec §4.7 requires.
type Request struct {
	Topic                string
	Stimulus             string
	Active               *models.Node
	EffectiveParent      *models.Node
	PathToRoot           []*models.Node // active -> root, AUTO/IRRELEVANT not yet filtered
	LatestUserResponse    string         // branch-specific, fetched by trace id by the caller
	Stage                models.Stage
	UnchangedCount        int
	DiscussedAttributes   []string // only consulted for ask_again_for_attributes
	ForcedTopicSwitch     bool
	PreviousActive        *models.Node
	ValuesLimitReached    bool
	// RecheckValuesLimit, when non-nil, is consulted after the LLM call
	// returns to catch the limit being reached mid-generation (spec §4.7
	// "race-check re-tests after LLM response").
	RecheckValuesLimit func() bool
}

// Response is the generator's output for one turn.
type Response struct {
	NextQuestion         string
	AskingIntervieweeFor string
	ThoughtProcess       string
	EndOfInterview       bool
	CompletionReason     models.CompletionReason
	Usage                llm.Usage
}

var nextSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"Next": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"NextQuestion":         map[string]any{"type": "string"},
				"AskingIntervieweeFor": map[string]any{"type": "string"},
				"ThoughtProcess":       map[string]any{"type": "string"},
				"EndOfInterview":       map[string]any{"type": "boolean"},
			},
			"required": []string{"NextQuestion", "AskingIntervieweeFor", "ThoughtProcess", "EndOfInterview"},
		},
	},
	"required": []string{"Next"},
}

// Generate implements spec §4.7 end to end: the values-limit short-circuit,
// template selection (including the expanded strategy), prompt
// construction, the structured LLM call, topic-switch decoration, and the
// post-call race recheck.
func (g *Generator) Generate(ctx context.Context, req Request) (Response, error) {
	if req.ValuesLimitReached {
		return valuesLimitResponse()
	}

	token, err := g.buildToken(req)
	if err != nil {
		return Response{}, err
	}
	vars := g.templateVars(req)
	hint, err := Render(token, vars)
	if err != nil {
		return Response{}, err
	}

	prompt := g.buildPrompt(req, hint)
	messages := []llm.Message{
		{Role: "system", Content: "You are conducting a laddering interview, eliciting attributes, consequences and values behind a stimulus."},
	}
	if token != "ask_again_for_attributes" && req.LatestUserResponse != "" {
		messages = append(messages, llm.Message{Role: "user", Content: req.LatestUserResponse})
	}
	messages = append(messages, llm.Message{Role: "user", Content: prompt})

	resp, err := g.client.CompleteStructured(ctx, llm.StructuredRequest{
		Messages:   messages,
		SchemaName: "next_question",
		Schema:     nextSchema,
	})
	if err != nil {
		return Response{}, err
	}

	var raw struct {
		Next struct {
			NextQuestion         string `json:"NextQuestion"`
			AskingIntervieweeFor string `json:"AskingIntervieweeFor"`
			ThoughtProcess       string `json:"ThoughtProcess"`
			EndOfInterview       bool   `json:"EndOfInterview"`
		} `json:"Next"`
	}
	if err := llm.ParseJSON(resp.RawJSON, &raw); err != nil {
		return Response{}, fmt.Errorf("question: parse next-question response: %w", err)
	}

	if req.RecheckValuesLimit != nil && req.RecheckValuesLimit() {
		return valuesLimitResponse()
	}

	question := raw.Next.NextQuestion
	if req.ForcedTopicSwitch {
		question = topicSwitchSentence(req.PreviousActive, req.Active) + " " + question
	}

	reason := models.CompletionReasonNone
	if raw.Next.EndOfInterview {
		reason = models.CompletionReasonNaturalEnd
	}

	return Response{
		NextQuestion:         question,
		AskingIntervieweeFor: raw.Next.AskingIntervieweeFor,
		ThoughtProcess:       raw.Next.ThoughtProcess,
		EndOfInterview:       raw.Next.EndOfInterview,
		CompletionReason:     reason,
		Usage:                resp.Usage,
	}, nil
}

func valuesLimitResponse() (Response, error) {
	text, err := Render("values_limit_acknowledgment", nil)
	if err != nil {
		return Response{}, err
	}
	return Response{
		NextQuestion:     text,
		EndOfInterview:   true,
		CompletionReason: models.CompletionReasonValuesLimitReached,
	}, nil
}

func (g *Generator) buildToken(req Request) (string, error) {
	if req.Active == nil {
		return "", models.ErrNodeNotFound
	}
	expanded := req.UnchangedCount >= 1 || req.Active.Label == models.LabelIrrelevant
	parentLabel := models.LabelStimulus
	if req.EffectiveParent != nil {
		parentLabel = req.EffectiveParent.Label
	}
	return DeriveToken(TokenInput{
		Stage:                req.Stage,
		ActiveLabel:          req.Active.Label,
		EffectiveParentLabel: parentLabel,
		Expanded:             expanded,
	}), nil
}

func (g *Generator) templateVars(req Request) map[string]string {
	vars := map[string]string{
		"stimulus": req.Stimulus,
	}
	if req.Active != nil {
		vars["active"] = req.Active.Conclusion
	}
	if req.EffectiveParent != nil {
		vars["parent"] = req.EffectiveParent.Conclusion
	}
	vars["discussed"] = strings.Join(req.DiscussedAttributes, ", ")
	return vars
}

// buildPrompt assembles the full context block sent to the LLM: topic,
// stimulus, active label+content, the filtered hierarchical path, the
// parent, stage, and the selected template hint (spec §4.7).
func (g *Generator) buildPrompt(req Request, hint string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\nStimulus: %s\nStage: %s\n", req.Topic, req.Stimulus, req.Stage)
	if req.Active != nil {
		fmt.Fprintf(&b, "Active node (%s): %s\n", req.Active.Label, req.Active.Conclusion)
	}
	if req.EffectiveParent != nil {
		fmt.Fprintf(&b, "Parent node (%s): %s\n", req.EffectiveParent.Label, req.EffectiveParent.Conclusion)
	}
	if path := filterPath(req.PathToRoot); len(path) > 0 {
		b.WriteString("Path to root:\n")
		for i := len(path) - 1; i >= 0; i-- {
			fmt.Fprintf(&b, "  %s: %s\n", path[i].Label, path[i].Conclusion)
		}
	}
	fmt.Fprintf(&b, "\nGuidance: %s\n", hint)
	b.WriteString("Ask one natural follow-up question implementing this guidance.")
	return b.String()
}

// filterPath drops AUTO- synthetic nodes and IRRELEVANT nodes from a
// root-path (spec §4.7).
func filterPath(path []*models.Node) []*models.Node {
	out := make([]*models.Node, 0, len(path))
	for _, n := range path {
		if n.IsAuto() || n.Label == models.LabelIrrelevant {
			continue
		}
		out = append(out, n)
	}
	return out
}

func topicSwitchSentence(previous, next *models.Node) string {
	if previous == nil || next == nil {
		return "Let's move on."
	}
	return fmt.Sprintf("Let's set %q aside for now and turn to %q.", previous.Conclusion, next.Conclusion)
}
