package similarity

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladderflow/engine/internal/llm"
	"github.com/ladderflow/engine/internal/models"
)

type scriptedClient struct {
	raw string
	err error
}

func (c *scriptedClient) CompleteStructured(_ context.Context, req llm.StructuredRequest) (llm.StructuredResponse, error) {
	if req.SchemaName != "similarity_batch" {
		return llm.StructuredResponse{}, fmt.Errorf("unexpected schema %q", req.SchemaName)
	}
	if c.err != nil {
		return llm.StructuredResponse{}, c.err
	}
	return llm.StructuredResponse{RawJSON: c.raw}, nil
}

func TestLLMJudge_JudgeBatch_ParsesVerdictsInOrder(t *testing.T) {
	n1 := models.NewNode(models.LabelAttribute, "fresh vegetables", 1)
	n2 := models.NewNode(models.LabelAttribute, "low cost", 2)

	raw := fmt.Sprintf(`{"verdicts":[
		{"node_id":%q,"should_merge":true,"confidence":92,"explanation":"same idea"},
		{"node_id":%q,"should_merge":false,"confidence":10,"explanation":"different idea"}
	]}`, n1.ID, n2.ID)

	client := &scriptedClient{raw: raw}
	judge := NewLLMJudge(client)

	verdicts, err := judge.JudgeBatch(context.Background(), models.LabelAttribute, "healthy food", []*models.Node{n1, n2})
	require.NoError(t, err)
	require.Len(t, verdicts, 2)

	assert.Equal(t, n1.ID, verdicts[0].NodeID)
	assert.True(t, verdicts[0].ShouldMerge)
	assert.Equal(t, 92, verdicts[0].Confidence)

	assert.Equal(t, n2.ID, verdicts[1].NodeID)
	assert.False(t, verdicts[1].ShouldMerge)
}

func TestLLMJudge_JudgeBatch_SkipsVerdictWithUnparseableNodeID(t *testing.T) {
	n1 := models.NewNode(models.LabelAttribute, "fresh vegetables", 1)
	raw := fmt.Sprintf(`{"verdicts":[
		{"node_id":"not-a-uuid","should_merge":true,"confidence":50,"explanation":"x"},
		{"node_id":%q,"should_merge":true,"confidence":80,"explanation":"y"}
	]}`, n1.ID)

	client := &scriptedClient{raw: raw}
	judge := NewLLMJudge(client)

	verdicts, err := judge.JudgeBatch(context.Background(), models.LabelAttribute, "healthy food", []*models.Node{n1})
	require.NoError(t, err)
	require.Len(t, verdicts, 1)
	assert.Equal(t, n1.ID, verdicts[0].NodeID)
}

func TestLLMJudge_JudgeBatch_PropagatesClientError(t *testing.T) {
	client := &scriptedClient{err: fmt.Errorf("boom")}
	judge := NewLLMJudge(client)

	_, err := judge.JudgeBatch(context.Background(), models.LabelAttribute, "x", nil)
	assert.Error(t, err)
}

func TestLLMJudge_JudgeBatch_PropagatesMalformedJSON(t *testing.T) {
	client := &scriptedClient{raw: `not json`}
	judge := NewLLMJudge(client)

	_, err := judge.JudgeBatch(context.Background(), models.LabelAttribute, "x", nil)
	assert.Error(t, err)
}
