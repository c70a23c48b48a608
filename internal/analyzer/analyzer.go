// Package analyzer implements the Element Analyzer (component C3, spec
// §4.3): an LLM-backed classifier that turns one free-text interviewee
// message into structured elements and causal relations, run in either
// idea-check mode (first content message) or multi-element mode.
package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/ladderflow/engine/internal/llm"
	"github.com/ladderflow/engine/internal/models"
)

const (
	minSummaryLen          = 10
	minIrrelevantSummaryLen = 3
	maxSummaryLen          = 50
)

// IdeaCheck is the result of the first-content-message classification
// (spec §4.3): not-relevant maps to IRRELEVANT, relevant to IDEA.
type IdeaCheck struct {
	IsIdea     bool
	IsRelevant bool
	Summary    string
}

// RelationType is one of the three causal-edge shapes the analyzer may
// report between two elements of the same message (spec §4.3).
type RelationType string

const (
	RelationAttributeToConsequence RelationType = "A->C"
	RelationConsequenceToConsequence RelationType = "C->C"
	RelationConsequenceToValue    RelationType = "C->V"
)

// Element is one classified fragment of the interviewee's message.
type Element struct {
	Category    models.Label // LabelAttribute, LabelConsequence, LabelValue, or LabelIrrelevant
	Summary     string
	TextSegment string
	IsNew       bool
}

// Relation is a causal link between two Elements by index into the
// Elements slice returned alongside it.
type Relation struct {
	SourceIndex int
	TargetIndex int
	Type        RelationType
	Explanation string
}

// Result is the validated output of multi-element mode.
type Result struct {
	Elements  []Element
	Relations []Relation
}

// Analyzer classifies interviewee messages via an llm.Client.
type Analyzer struct {
	client llm.Client
}

// New builds an Analyzer backed by client.
func New(client llm.Client) *Analyzer {
	return &Analyzer{client: client}
}

var ideaCheckSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"is_idea":     map[string]any{"type": "boolean"},
		"is_relevant": map[string]any{"type": "boolean"},
		"summary":     map[string]any{"type": "string"},
	},
	"required": []string{"is_idea", "is_relevant", "summary"},
}

// CheckIdea runs idea-check mode (spec §4.3), invoked only when stage is
// ASKING_FOR_IDEA.
func (a *Analyzer) CheckIdea(ctx context.Context, topic, stimulus, message string) (IdeaCheck, error) {
	prompt := fmt.Sprintf(
		"Topic: %s\nStimulus: %s\nInterviewee message: %q\n\n"+
			"Decide whether this message expresses a relevant idea in response to the stimulus. "+
			"A relevant idea may be vague (is_idea=false, is_relevant=true) or concrete (is_idea=true). "+
			"If the message is off-topic or a non-answer, is_relevant=false. "+
			"Summarize the idea in 4 to 6 words.",
		topic, stimulus, message,
	)
	resp, err := a.client.CompleteStructured(ctx, llm.StructuredRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "You classify interview responses for a laddering interview."},
			{Role: "user", Content: prompt},
		},
		SchemaName: "idea_check",
		Schema:     ideaCheckSchema,
	})
	if err != nil {
		return IdeaCheck{}, err
	}

	var raw struct {
		IsIdea     bool   `json:"is_idea"`
		IsRelevant bool   `json:"is_relevant"`
		Summary    string `json:"summary"`
	}
	if err := llm.ParseJSON(resp.RawJSON, &raw); err != nil {
		return IdeaCheck{}, fmt.Errorf("analyzer: parse idea check: %w", err)
	}
	return IdeaCheck{IsIdea: raw.IsIdea, IsRelevant: raw.IsRelevant, Summary: raw.Summary}, nil
}

var multiElementSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"elements": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"category":       map[string]any{"type": "string", "enum": []string{"A", "C", "V", "IRRELEVANT"}},
					"summary":        map[string]any{"type": "string"},
					"text_segment":   map[string]any{"type": "string"},
					"is_new_element": map[string]any{"type": "boolean"},
				},
				"required": []string{"category", "summary", "text_segment", "is_new_element"},
			},
		},
		"relations": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"source_index":  map[string]any{"type": "integer"},
					"target_index":  map[string]any{"type": "integer"},
					"relation_type": map[string]any{"type": "string", "enum": []string{"A->C", "C->C", "C->V"}},
					"explanation":   map[string]any{"type": "string"},
				},
				"required": []string{"source_index", "target_index", "relation_type", "explanation"},
			},
		},
	},
	"required": []string{"elements", "relations"},
}

// Analyze runs multi-element mode (spec §4.3): classifies message into
// elements and causal relations, enforcing active-label-dependent
// admission rules via the prompt, then validates indices and
// relation-type/label consistency, discarding anything invalid. The
// analyzer intentionally does not consult the live graph beyond
// activeLabel and path; C4 re-checks.
func (a *Analyzer) Analyze(ctx context.Context, topic, stimulus, message string, path []*models.Node, activeLabel models.Label) (Result, error) {
	prompt := a.buildPrompt(topic, stimulus, message, path, activeLabel)
	resp, err := a.client.CompleteStructured(ctx, llm.StructuredRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "You extract laddering-interview elements (attributes, consequences, values) and their causal relations from an interviewee message."},
			{Role: "user", Content: prompt},
		},
		SchemaName: "multi_element",
		Schema:     multiElementSchema,
	})
	if err != nil {
		return Result{}, err
	}

	var raw struct {
		Elements []struct {
			Category     string `json:"category"`
			Summary      string `json:"summary"`
			TextSegment  string `json:"text_segment"`
			IsNewElement bool   `json:"is_new_element"`
		} `json:"elements"`
		Relations []struct {
			SourceIndex  int    `json:"source_index"`
			TargetIndex  int    `json:"target_index"`
			RelationType string `json:"relation_type"`
			Explanation  string `json:"explanation"`
		} `json:"relations"`
	}
	if err := llm.ParseJSON(resp.RawJSON, &raw); err != nil {
		return Result{}, fmt.Errorf("analyzer: parse multi-element: %w", err)
	}

	elements := make([]Element, 0, len(raw.Elements))
	indexMap := make(map[int]int, len(raw.Elements))
	for i, e := range raw.Elements {
		label, ok := categoryLabel(e.Category)
		if !ok {
			continue
		}
		summary := normalizeSummary(label, e.Summary)
		if summary == "" {
			continue
		}
		indexMap[i] = len(elements)
		elements = append(elements, Element{
			Category:    label,
			Summary:     summary,
			TextSegment: e.TextSegment,
			IsNew:       e.IsNewElement,
		})
	}

	relations := make([]Relation, 0, len(raw.Relations))
	for _, r := range raw.Relations {
		if r.SourceIndex < 0 || r.SourceIndex >= len(raw.Elements) {
			continue
		}
		if r.TargetIndex < 0 || r.TargetIndex >= len(raw.Elements) {
			continue
		}
		rt := RelationType(r.RelationType)
		if !relationConsistent(rt, raw.Elements[r.SourceIndex].Category, raw.Elements[r.TargetIndex].Category) {
			continue
		}
		src, okSrc := indexMap[r.SourceIndex]
		tgt, okTgt := indexMap[r.TargetIndex]
		if !okSrc || !okTgt {
			continue
		}
		relations = append(relations, Relation{
			SourceIndex: src,
			TargetIndex: tgt,
			Type:        rt,
			Explanation: r.Explanation,
		})
	}

	return Result{Elements: elements, Relations: relations}, nil
}

func (a *Analyzer) buildPrompt(topic, stimulus, message string, path []*models.Node, activeLabel models.Label) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\nStimulus: %s\n", topic, stimulus)
	b.WriteString("Interview path so far (root to active node):\n")
	for i := len(path) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "  %s: %s\n", path[i].Label, path[i].Conclusion)
	}
	fmt.Fprintf(&b, "Active node label: %s\n", activeLabel)
	fmt.Fprintf(&b, "Interviewee message: %q\n\n", message)

	switch activeLabel {
	case models.LabelIdea:
		b.WriteString("Only ATTRIBUTE (A) elements are admissible here; classify anything else as IRRELEVANT.\n")
	case models.LabelAttribute:
		b.WriteString("Only CONSEQUENCE (C) elements are admissible here.\n")
	case models.LabelConsequence:
		b.WriteString("CONSEQUENCE (C) elements are admissible; a VALUE (V) is admissible only if causally bound to a consequence in this message via a C->V relation.\n")
	}
	b.WriteString("Be conservative: prefer IRRELEVANT over a spurious attribute.\n")
	b.WriteString("For each element give category, a summary, the source text segment, and whether it is newly introduced. For each causal relation give source/target element indices, relation_type, and a brief explanation.")
	return b.String()
}

func categoryLabel(cat string) (models.Label, bool) {
	switch cat {
	case "A":
		return models.LabelAttribute, true
	case "C":
		return models.LabelConsequence, true
	case "V":
		return models.LabelValue, true
	case "IRRELEVANT":
		return models.LabelIrrelevant, true
	default:
		return "", false
	}
}

func relationConsistent(rt RelationType, sourceCat, targetCat string) bool {
	switch rt {
	case RelationAttributeToConsequence:
		return sourceCat == "A" && targetCat == "C"
	case RelationConsequenceToConsequence:
		return sourceCat == "C" && targetCat == "C"
	case RelationConsequenceToValue:
		return sourceCat == "C" && targetCat == "V"
	default:
		return false
	}
}

// normalizeSummary applies the text-lexical normalization rules of spec
// §4.3: summaries below the minimum length are dropped (returns ""),
// summaries over maxSummaryLen are ellipsis-truncated.
func normalizeSummary(label models.Label, summary string) string {
	s := strings.TrimSpace(summary)
	min := minSummaryLen
	if label == models.LabelIrrelevant {
		min = minIrrelevantSummaryLen
	}
	if len(s) < min {
		return ""
	}
	if len(s) > maxSummaryLen {
		s = strings.TrimSpace(s[:maxSummaryLen-1]) + "…"
	}
	return s
}
