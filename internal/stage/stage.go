// Package stage implements the Stage Controller (component C6, spec §4.6):
// the finite state machine driving interview progression, gated above all
// else by the values-limit predicate.
package stage

import (
	"github.com/expr-lang/expr"

	"github.com/ladderflow/engine/internal/exprcache"
	"github.com/ladderflow/engine/internal/graph"
	"github.com/ladderflow/engine/internal/models"
)

// valuesLimitExpression is compiled once per Controller and cached by
// exprcache, grounded on the teacher's ConditionCache use for workflow edge
// conditions (internal/application/engine/condition_cache.go) but applied
// here to the interview's absolute-priority gate instead.
const valuesLimitExpression = "n_values_max > 0 && value_count >= n_values_max"

// Controller runs the stage FSM for one chat handler.
type Controller struct {
	cache *exprcache.Cache
}

// New builds a Controller backed by cache (shared across chat handlers to
// amortize compilation).
func New(cache *exprcache.Cache) *Controller {
	return &Controller{cache: cache}
}

// ValuesLimitReached evaluates the values-limit gate (spec §4.6): with
// n_values_max > 0, true once the VALUE node count reaches the limit.
func (c *Controller) ValuesLimitReached(cfg models.ChatConfig, g *graph.Graph) (bool, error) {
	program, err := c.cache.Compile(valuesLimitExpression)
	if err != nil {
		return false, err
	}
	env := map[string]any{
		"n_values_max": cfg.NValuesMax,
		"value_count":  len(g.NodesByLabel(models.LabelValue)),
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	b, _ := out.(bool)
	return b, nil
}

// RequiredElementProduced implements the required-element test of spec
// §4.6 for the given active node.
func RequiredElementProduced(g *graph.Graph, active *models.Node) bool {
	if active == nil {
		return false
	}
	switch active.Label {
	case models.LabelIdea:
		return hasTransitiveChild(g, active, models.LabelAttribute) ||
			hasTransitiveChild(g, active, models.LabelConsequence, models.LabelValue)
	case models.LabelAttribute:
		return hasTransitiveChild(g, active, models.LabelConsequence) ||
			hasTransitiveChild(g, active, models.LabelValue)
	case models.LabelConsequence:
		return hasTransitiveChild(g, active, models.LabelConsequence, models.LabelValue)
	case models.LabelIrrelevant:
		return hasAnyNonIrrelevantChild(g, active)
	default:
		return false
	}
}

func hasTransitiveChild(g *graph.Graph, root *models.Node, labels ...models.Label) bool {
	want := make(map[models.Label]bool, len(labels))
	for _, l := range labels {
		want[l] = true
	}
	visited := map[*models.Node]bool{root: true}
	queue := append([]*models.Node(nil), root)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, cid := range n.Children {
			c := g.Get(cid)
			if c == nil || visited[c] {
				continue
			}
			visited[c] = true
			if want[c.Label] {
				return true
			}
			queue = append(queue, c)
		}
	}
	return false
}

func hasAnyNonIrrelevantChild(g *graph.Graph, root *models.Node) bool {
	for _, cid := range root.Children {
		if c := g.Get(cid); c != nil && c.Label != models.LabelIrrelevant {
			return true
		}
	}
	return false
}

// Input bundles everything the FSM needs to compute the next stage.
type Input struct {
	Current                 models.Stage
	Active                  *models.Node
	RequiredProduced         bool
	QueueEmpty               bool
	AskedAgainForAttributes  bool
	TotalNodeCount           int
	MinNodes                 int
	ValuesLimitReached       bool
}

// Result is the outcome of one FSM step.
type Result struct {
	Next                    models.Stage
	CompletionReason        models.CompletionReason
	AskedAgainForAttributes bool
}

// Step advances the FSM (spec §4.6). The values-limit gate has absolute
// priority over every other transition.
func (c *Controller) Step(in Input) Result {
	if in.ValuesLimitReached {
		return c.finish(in.Current, models.StageValuesLimitReached, models.CompletionReasonValuesLimitReached, in.AskedAgainForAttributes)
	}

	switch in.Current {
	case models.StageInitial:
		return c.finish(in.Current, models.StageAskingForIdea, models.CompletionReasonNone, in.AskedAgainForAttributes)

	case models.StageAskingForIdea:
		if in.Active != nil && in.Active.Label == models.LabelIdea {
			return c.finish(in.Current, models.StageAskingForAttributes, models.CompletionReasonNone, in.AskedAgainForAttributes)
		}
		return c.finish(in.Current, models.StageComplete, models.CompletionReasonNaturalEnd, in.AskedAgainForAttributes)

	case models.StageAskingForAttributes, models.StageAskingAgainForAttributes, models.StageAskingAgainForAttributesTooShort:
		return c.stepAttributePhase(in)

	case models.StageAskingForConsequences, models.StageAskingForConsequencesOrValues:
		return c.stepConsequencePhase(in)

	default:
		return c.finish(in.Current, models.StageComplete, models.CompletionReasonNaturalEnd, in.AskedAgainForAttributes)
	}
}

func (c *Controller) stepAttributePhase(in Input) Result {
	if in.QueueEmpty {
		if !in.AskedAgainForAttributes {
			return c.finish(in.Current, models.StageAskingAgainForAttributes, models.CompletionReasonNone, true)
		}
		if !in.RequiredProduced && in.TotalNodeCount < in.MinNodes {
			return c.finish(in.Current, models.StageAskingAgainForAttributesTooShort, models.CompletionReasonNone, in.AskedAgainForAttributes)
		}
		return c.finish(in.Current, models.StageComplete, models.CompletionReasonNaturalEnd, in.AskedAgainForAttributes)
	}
	if in.Active != nil && in.Active.Label == models.LabelConsequence {
		return c.finish(in.Current, models.StageAskingForConsequences, models.CompletionReasonNone, in.AskedAgainForAttributes)
	}
	// Still probing attributes: no stage transition, just continue.
	return Result{Next: in.Current, AskedAgainForAttributes: in.AskedAgainForAttributes}
}

func (c *Controller) stepConsequencePhase(in Input) Result {
	if in.QueueEmpty {
		if !in.AskedAgainForAttributes {
			return c.finish(in.Current, models.StageAskingAgainForAttributes, models.CompletionReasonNone, true)
		}
		return c.finish(in.Current, models.StageComplete, models.CompletionReasonNaturalEnd, in.AskedAgainForAttributes)
	}
	if in.Active != nil && in.Active.Label == models.LabelConsequence {
		return c.finish(in.Current, models.StageAskingForConsequencesOrValues, models.CompletionReasonNone, in.AskedAgainForAttributes)
	}
	// Active is a VALUE: ASKING_FOR_CONSEQUENCES_OR_VALUES self-loops.
	if in.Current == models.StageAskingForConsequencesOrValues {
		return Result{Next: in.Current, AskedAgainForAttributes: in.AskedAgainForAttributes}
	}
	return c.finish(in.Current, models.StageAskingForConsequencesOrValues, models.CompletionReasonNone, in.AskedAgainForAttributes)
}

// finish validates and returns an explicit stage change. Same-stage results
// bypass the transition table (spec §4.6's table has no self-loop entries
// except ASKING_FOR_CONSEQUENCES_OR_VALUES; staying in any other stage
// across a turn is a continuation, not a table-governed transition).
func (c *Controller) finish(from, to models.Stage, reason models.CompletionReason, askedAgain bool) Result {
	if to != from && !models.TransitionAllowed(from, to) {
		// Should not happen for a correctly driven FSM; stay put rather
		// than emit an invalid snapshot.
		return Result{Next: from, AskedAgainForAttributes: askedAgain}
	}
	return Result{Next: to, CompletionReason: reason, AskedAgainForAttributes: askedAgain}
}
