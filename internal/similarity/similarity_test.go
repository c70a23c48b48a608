package similarity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladderflow/engine/internal/graph"
	"github.com/ladderflow/engine/internal/models"
)

type fakeJudge struct {
	verdicts []LLMVerdict
	err      error
	calls    int
}

func (f *fakeJudge) JudgeBatch(_ context.Context, _ models.Label, _ string, _ []*models.Node) ([]LLMVerdict, error) {
	f.calls++
	return f.verdicts, f.err
}

func TestResolve_NoExistingNodesOfLabel(t *testing.T) {
	g := graph.New("stimulus")
	o := New(DefaultConfig(), nil)
	decision, err := o.Resolve(context.Background(), g, models.LabelAttribute, "fresh produce", g.Active())
	require.NoError(t, err)
	assert.True(t, decision.NoMatch())
}

func TestResolve_ExactSameParentIsDuplicate(t *testing.T) {
	g := graph.New("stimulus")
	root := g.Active()
	idea, err := g.AddChild(root.ID, models.LabelIdea, "idea")
	require.NoError(t, err)
	existing, err := g.AddChild(idea.ID, models.LabelAttribute, "fresh ingredients")
	require.NoError(t, err)

	o := New(DefaultConfig(), nil)
	decision, err := o.Resolve(context.Background(), g, models.LabelAttribute, "fresh ingredients", idea)
	require.NoError(t, err)
	require.NotNil(t, decision.DuplicateToIgnore)
	assert.Equal(t, existing.ID, decision.DuplicateToIgnore.ID)
}

func TestResolve_ExactDifferentParentIsShareTarget(t *testing.T) {
	g := graph.New("stimulus")
	root := g.Active()
	idea1, err := g.AddChild(root.ID, models.LabelIdea, "idea one")
	require.NoError(t, err)
	existing, err := g.AddChild(idea1.ID, models.LabelAttribute, "low cost")
	require.NoError(t, err)

	idea2, err := g.AddChild(root.ID, models.LabelIdea, "idea two")
	require.NoError(t, err)

	o := New(DefaultConfig(), nil)
	decision, err := o.Resolve(context.Background(), g, models.LabelAttribute, "low cost", idea2)
	require.NoError(t, err)
	require.NotNil(t, decision.ShareTarget)
	assert.Equal(t, existing.ID, decision.ShareTarget.ID)
}

func TestResolve_NoSimilarCandidatesIsNoMatch(t *testing.T) {
	g := graph.New("stimulus")
	root := g.Active()
	idea, err := g.AddChild(root.ID, models.LabelIdea, "idea")
	require.NoError(t, err)
	_, err = g.AddChild(idea.ID, models.LabelAttribute, "completely unrelated phrase")
	require.NoError(t, err)

	o := New(DefaultConfig(), nil)
	decision, err := o.Resolve(context.Background(), g, models.LabelAttribute, "totally different topic entirely", idea)
	require.NoError(t, err)
	assert.True(t, decision.NoMatch())
}

func TestResolve_LLMTier_SameParentRejectIsDuplicate(t *testing.T) {
	g := graph.New("stimulus")
	root := g.Active()
	idea, err := g.AddChild(root.ID, models.LabelIdea, "idea")
	require.NoError(t, err)
	existing, err := g.AddChild(idea.ID, models.LabelAttribute, "cheap and affordable pricing")
	require.NoError(t, err)

	judge := &fakeJudge{verdicts: []LLMVerdict{
		{NodeID: existing.ID, ShouldMerge: false, Confidence: 90},
	}}
	o := New(DefaultConfig(), judge)
	decision, err := o.Resolve(context.Background(), g, models.LabelAttribute, "cheap and affordable costs", idea)
	require.NoError(t, err)
	require.NotNil(t, decision.DuplicateToIgnore)
	assert.Equal(t, existing.ID, decision.DuplicateToIgnore.ID)
	assert.Equal(t, 1, judge.calls)
}

func TestResolve_LLMTier_DifferentParentMergeIsShareTarget(t *testing.T) {
	g := graph.New("stimulus")
	root := g.Active()
	idea1, err := g.AddChild(root.ID, models.LabelIdea, "idea one")
	require.NoError(t, err)
	existing, err := g.AddChild(idea1.ID, models.LabelAttribute, "saves time during the week")
	require.NoError(t, err)
	idea2, err := g.AddChild(root.ID, models.LabelIdea, "idea two")
	require.NoError(t, err)

	judge := &fakeJudge{verdicts: []LLMVerdict{
		{NodeID: existing.ID, ShouldMerge: true, Confidence: 80},
	}}
	o := New(DefaultConfig(), judge)
	decision, err := o.Resolve(context.Background(), g, models.LabelAttribute, "saves time every week", idea2)
	require.NoError(t, err)
	require.NotNil(t, decision.ShareTarget)
	assert.Equal(t, existing.ID, decision.ShareTarget.ID)
}

func TestResolve_LLMTier_BelowConfidenceFloorIgnored(t *testing.T) {
	g := graph.New("stimulus")
	root := g.Active()
	idea, err := g.AddChild(root.ID, models.LabelIdea, "idea")
	require.NoError(t, err)
	existing, err := g.AddChild(idea.ID, models.LabelAttribute, "great value for money")
	require.NoError(t, err)

	judge := &fakeJudge{verdicts: []LLMVerdict{
		{NodeID: existing.ID, ShouldMerge: false, Confidence: 10},
	}}
	o := New(DefaultConfig(), judge)
	decision, err := o.Resolve(context.Background(), g, models.LabelAttribute, "great value for the price", idea)
	require.NoError(t, err)
	assert.True(t, decision.NoMatch())
}

func TestResolve_LLMTier_ErrorFallsBackToStep5(t *testing.T) {
	g := graph.New("stimulus")
	root := g.Active()
	idea1, err := g.AddChild(root.ID, models.LabelIdea, "idea one")
	require.NoError(t, err)
	existing, err := g.AddChild(idea1.ID, models.LabelAttribute, "identical text")
	require.NoError(t, err)
	idea2, err := g.AddChild(root.ID, models.LabelIdea, "idea two")
	require.NoError(t, err)

	judge := &fakeJudge{err: assertError{}}
	o := New(DefaultConfig(), judge)
	decision, err := o.Resolve(context.Background(), g, models.LabelAttribute, "identical text", idea2)
	require.NoError(t, err)
	require.NotNil(t, decision.ShareTarget)
	assert.Equal(t, existing.ID, decision.ShareTarget.ID)
}

type assertError struct{}

func (assertError) Error() string { return "judge unavailable" }

func TestLexicalSimilar_Jaccard_PerLabelThreshold(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, lexicalSimilar(cfg, models.LabelAttribute, "fresh local organic produce", "fresh local produce quality"))
	assert.False(t, lexicalSimilar(cfg, models.LabelValue, "family", "self actualization and growth"))
}

func TestDecision_NoMatch(t *testing.T) {
	assert.True(t, Decision{}.NoMatch())
	assert.False(t, Decision{DuplicateToIgnore: &models.Node{}}.NoMatch())
	assert.False(t, Decision{ShareTarget: &models.Node{}}.NoMatch())
}

func TestJaccard(t *testing.T) {
	a := tokenize("fresh local organic", 3)
	b := tokenize("fresh local produce", 3)
	score := jaccard(a, b)
	assert.InDelta(t, 0.5, score, 0.01)
}
