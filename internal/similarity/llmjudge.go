package similarity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ladderflow/engine/internal/llm"
	"github.com/ladderflow/engine/internal/models"
)

// LLMJudge adapts an llm.Client into a similarity.Judge, running the
// batched Tier 2 comparison described in spec §4.2: one new node against a
// list of lexical candidates in a single structured call.
type LLMJudge struct {
	client llm.Client
}

// NewLLMJudge wraps client as a Judge.
func NewLLMJudge(client llm.Client) *LLMJudge {
	return &LLMJudge{client: client}
}

var batchSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"verdicts": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"node_id":      map[string]any{"type": "string"},
					"should_merge": map[string]any{"type": "boolean"},
					"confidence":   map[string]any{"type": "integer"},
					"explanation":  map[string]any{"type": "string"},
				},
				"required": []string{"node_id", "should_merge", "confidence", "explanation"},
			},
		},
	},
	"required": []string{"verdicts"},
}

type batchResult struct {
	Verdicts []struct {
		NodeID      string `json:"node_id"`
		ShouldMerge bool   `json:"should_merge"`
		Confidence  int    `json:"confidence"`
		Explanation string `json:"explanation"`
	} `json:"verdicts"`
}

// JudgeBatch implements Judge.
func (j *LLMJudge) JudgeBatch(ctx context.Context, label models.Label, text string, candidates []*models.Node) ([]LLMVerdict, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "New %s element: %q\n\nCandidates:\n", label, text)
	for _, c := range candidates {
		fmt.Fprintf(&b, "- id=%s: %q\n", c.ID, c.Conclusion)
	}
	b.WriteString("\nFor each candidate, judge whether it expresses the same underlying idea as the new element. Return one verdict per candidate, in the same order, each with a confidence 0-100.")

	resp, err := j.client.CompleteStructured(ctx, llm.StructuredRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "You judge semantic equivalence between laddering-interview elements."},
			{Role: "user", Content: b.String()},
		},
		SchemaName: "similarity_batch",
		Schema:     batchSchema,
	})
	if err != nil {
		return nil, err
	}

	var result batchResult
	if err := llm.ParseJSON(resp.RawJSON, &result); err != nil {
		return nil, fmt.Errorf("similarity: parse batch verdict: %w", err)
	}

	out := make([]LLMVerdict, 0, len(result.Verdicts))
	for _, v := range result.Verdicts {
		id, err := uuid.Parse(v.NodeID)
		if err != nil {
			continue
		}
		out = append(out, LLMVerdict{
			NodeID:      id,
			ShouldMerge: v.ShouldMerge,
			Confidence:  v.Confidence,
			Explanation: v.Explanation,
		})
	}
	return out, nil
}
