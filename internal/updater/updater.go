// Package updater implements the Tree Updater (component C4, spec §4.4):
// consumes the analyzer's classified elements and relations and mutates a
// chat handler's graph — filtering incomplete chains, pruning off-chain
// consequences, and grafting new nodes via the similarity oracle.
package updater

import (
	"context"

	"github.com/ladderflow/engine/internal/analyzer"
	"github.com/ladderflow/engine/internal/graph"
	"github.com/ladderflow/engine/internal/models"
	"github.com/ladderflow/engine/internal/similarity"
)

// Context carries the graph state the updater needs beyond the raw
// elements: which node is active, and the most recently visited IDEA node
// (for backwards-relation recording, spec §4.4).
type Context struct {
	Active       *models.Node
	RecentIdea   *models.Node // nil if none visited yet
	FirstMessage bool         // true only for the very first content message
}

// Grafted is one node the updater created or reused while applying a
// message's elements, with the category it was grafted as.
type Grafted struct {
	Node     *models.Node
	IsNew    bool
	Category models.Label
}

// Updater applies analyzer output to a graph.
type Updater struct {
	oracle *similarity.Oracle
}

// New builds an Updater backed by oracle.
func New(oracle *similarity.Oracle) *Updater {
	return &Updater{oracle: oracle}
}

// Apply implements the three sub-responsibilities of spec §4.4 in order:
// ACV-chain filtering, consequence pruning, then grafting. Returns the
// nodes grafted or reused: independent elements first, in element order,
// then those produced by relations, in relation order.
func (u *Updater) Apply(ctx context.Context, g *graph.Graph, gctx Context, result analyzer.Result) ([]Grafted, error) {
	elements, relations := filterIncompleteChains(result.Elements, result.Relations)
	if gctx.Active != nil && gctx.Active.Label == models.LabelConsequence {
		elements, relations = pruneOffChainConsequences(elements, relations)
	}
	return u.graft(ctx, g, gctx, elements, relations)
}

// filterIncompleteChains implements spec §4.4(a): if a message produced
// both complete A->...->V chains and free-standing V elements, the
// free-standing Vs (never targeted by any relation) are stripped whenever
// at least one V is reachable from an A through the extracted relations.
func filterIncompleteChains(elements []analyzer.Element, relations []analyzer.Relation) ([]analyzer.Element, []analyzer.Relation) {
	n := len(elements)
	targeted := make([]bool, n)
	adj := make(map[int][]int, n)
	for _, r := range relations {
		targeted[r.TargetIndex] = true
		adj[r.SourceIndex] = append(adj[r.SourceIndex], r.TargetIndex)
	}

	reachableFromA := make([]bool, n)
	for i, e := range elements {
		if e.Category == models.LabelAttribute {
			markReachable(i, adj, reachableFromA)
		}
	}

	anyCompleteChain := false
	for i, e := range elements {
		if e.Category == models.LabelValue && reachableFromA[i] {
			anyCompleteChain = true
			break
		}
	}
	if !anyCompleteChain {
		return elements, relations
	}

	drop := make(map[int]bool)
	for i, e := range elements {
		if e.Category == models.LabelValue && !targeted[i] {
			drop[i] = true
		}
	}
	return dropIndices(elements, relations, drop)
}

// pruneOffChainConsequences implements spec §4.4(b): when the active node
// is a CONSEQUENCE, detected Cs not connected (directly or transitively)
// to any detected V are removed as off-chain digressions.
func pruneOffChainConsequences(elements []analyzer.Element, relations []analyzer.Relation) ([]analyzer.Element, []analyzer.Relation) {
	n := len(elements)
	adj := make(map[int][]int, n)
	for _, r := range relations {
		adj[r.SourceIndex] = append(adj[r.SourceIndex], r.TargetIndex)
	}

	reachesV := make([]bool, n)
	var dfs func(i int, visiting map[int]bool) bool
	dfs = func(i int, visiting map[int]bool) bool {
		if visiting[i] {
			return false
		}
		visiting[i] = true
		if elements[i].Category == models.LabelValue {
			return true
		}
		for _, next := range adj[i] {
			if dfs(next, visiting) {
				return true
			}
		}
		return false
	}

	drop := make(map[int]bool)
	for i, e := range elements {
		if e.Category != models.LabelConsequence {
			continue
		}
		if !dfs(i, map[int]bool{}) {
			reachesV[i] = false
			drop[i] = true
		} else {
			reachesV[i] = true
		}
	}
	return dropIndices(elements, relations, drop)
}

func markReachable(start int, adj map[int][]int, reachable []bool) {
	if reachable[start] {
		return
	}
	reachable[start] = true
	for _, next := range adj[start] {
		markReachable(next, adj, reachable)
	}
}

// dropIndices removes the elements named in drop and every relation that
// touches one of them, then remaps the remaining relation indices.
func dropIndices(elements []analyzer.Element, relations []analyzer.Relation, drop map[int]bool) ([]analyzer.Element, []analyzer.Relation) {
	if len(drop) == 0 {
		return elements, relations
	}
	remap := make(map[int]int, len(elements))
	kept := make([]analyzer.Element, 0, len(elements))
	for i, e := range elements {
		if drop[i] {
			continue
		}
		remap[i] = len(kept)
		kept = append(kept, e)
	}
	keptRel := make([]analyzer.Relation, 0, len(relations))
	for _, r := range relations {
		if drop[r.SourceIndex] || drop[r.TargetIndex] {
			continue
		}
		keptRel = append(keptRel, analyzer.Relation{
			SourceIndex: remap[r.SourceIndex],
			TargetIndex: remap[r.TargetIndex],
			Type:        r.Type,
			Explanation: r.Explanation,
		})
	}
	return kept, keptRel
}

// graft implements spec §4.4(c): independent elements are grafted
// individually; relation sources are resolved first, then new targets are
// grafted under them, subject to the active-label special cases.
func (u *Updater) graft(ctx context.Context, g *graph.Graph, gctx Context, elements []analyzer.Element, relations []analyzer.Relation) ([]Grafted, error) {
	touched := make(map[int]bool, len(elements))
	for _, r := range relations {
		touched[r.SourceIndex] = true
		touched[r.TargetIndex] = true
	}

	var out []Grafted

	for i, e := range elements {
		if touched[i] || !e.IsNew {
			continue
		}
		node, isNew, err := u.graftElement(ctx, g, gctx, e, nil)
		if err != nil {
			continue
		}
		out = append(out, Grafted{Node: node, IsNew: isNew, Category: e.Category})
		u.recordBackwards(g, gctx, e.Category, node)
	}

	for _, r := range relations {
		src := elements[r.SourceIndex]
		tgt := elements[r.TargetIndex]

		skipSourceOnly := false
		skipWhole := false
		if gctx.Active != nil {
			switch gctx.Active.Label {
			case models.LabelAttribute:
				if src.Category == models.LabelAttribute || src.Category == models.LabelConsequence {
					skipSourceOnly = true
				}
			case models.LabelConsequence:
				switch src.Category {
				case models.LabelConsequence, models.LabelValue:
					skipSourceOnly = true
				case models.LabelAttribute:
					skipWhole = true
				}
			}
		}
		if skipWhole {
			continue
		}

		var sourceNode *models.Node
		var explicitParent *models.Node
		if !skipSourceOnly {
			n, isNew, err := u.graftElement(ctx, g, gctx, src, nil)
			if err != nil {
				continue
			}
			sourceNode = n
			explicitParent = n
			if isNew {
				out = append(out, Grafted{Node: n, IsNew: true, Category: src.Category})
			}
		}

		if !tgt.IsNew {
			continue
		}
		n, isNew, err := u.graftElement(ctx, g, gctx, tgt, explicitParent)
		if err != nil {
			continue
		}
		out = append(out, Grafted{Node: n, IsNew: isNew, Category: tgt.Category})

		u.recordBackwards(g, gctx, src.Category, sourceNode)
	}

	return out, nil
}

// recordBackwards implements spec §4.4's backwards-relation recording: an
// A discovered while active is C records itself on the active C, and the
// most recently visited IDEA also records it.
func (u *Updater) recordBackwards(g *graph.Graph, gctx Context, category models.Label, node *models.Node) {
	if node == nil || category != models.LabelAttribute {
		return
	}
	if gctx.Active == nil || gctx.Active.Label != models.LabelConsequence {
		return
	}
	gctx.Active.AddBackwardsRelation(node.ID)
	if gctx.RecentIdea != nil {
		gctx.RecentIdea.AddBackwardsRelation(node.ID)
	}
}

// graftElement resolves or creates a single element's node, per spec
// §4.2/§4.4. explicitParent, when non-nil, overrides normal parent
// selection (used when grafting a relation's target under its source).
func (u *Updater) graftElement(ctx context.Context, g *graph.Graph, gctx Context, e analyzer.Element, explicitParent *models.Node) (*models.Node, bool, error) {
	if e.Category == models.LabelIrrelevant {
		return u.graftIrrelevant(g, gctx, e)
	}

	parent := explicitParent
	if parent == nil {
		parent = u.selectParent(g, gctx, e.Category)
	}
	if parent == nil {
		return nil, false, models.ErrNodeNotFound
	}

	decision, err := u.oracle.Resolve(ctx, g, e.Category, e.Summary, parent)
	if err != nil {
		decision = similarity.Decision{}
	}
	if decision.DuplicateToIgnore != nil {
		return decision.DuplicateToIgnore, false, nil
	}
	if decision.ShareTarget != nil {
		if g.IsAncestorOf(decision.ShareTarget, parent) {
			return nil, false, models.ErrCyclicDependency
		}
		if _, err := g.AddExistingAsChild(parent.ID, decision.ShareTarget.ID); err != nil {
			return nil, false, err
		}
		return decision.ShareTarget, false, nil
	}

	node, err := g.AddChild(parent.ID, e.Category, e.Summary)
	if err != nil {
		return nil, false, err
	}
	return node, true, nil
}

// graftIrrelevant implements spec §4.4's IRRELEVANT handling: stack onto an
// already-irrelevant active node, else hang a new dummy off it.
func (u *Updater) graftIrrelevant(g *graph.Graph, gctx Context, e analyzer.Element) (*models.Node, bool, error) {
	if gctx.Active == nil {
		return nil, false, models.ErrNodeNotFound
	}
	if gctx.Active.Label == models.LabelIrrelevant {
		gctx.Active.Conclusion = models.StackConclusion(gctx.Active.Conclusion, e.Summary)
		return gctx.Active, false, nil
	}
	node, err := g.AddChild(gctx.Active.ID, models.LabelIrrelevant, e.Summary)
	if err != nil {
		return nil, false, err
	}
	return node, true, nil
}

// TransformDummy implements the "on the next relevant answer" half of spec
// §4.4's IRRELEVANT handling: converts a stacked dummy node in place into
// newLabel, inheriting its trace and replacing its parent linkage. If the
// dummy's sole parent is the STIMULUS root the new label is forced to
// IDEA; otherwise standard parent search is used.
func (u *Updater) TransformDummy(g *graph.Graph, gctx Context, dummy *models.Node, newLabel models.Label, newConclusion string) error {
	parent := g.LatestParent(dummy)
	if parent != nil && parent.Label == models.LabelStimulus {
		newLabel = models.LabelIdea
	} else {
		if p := u.selectParent(g, gctx, newLabel); p != nil {
			parent = p
		}
	}
	if parent == nil {
		return models.ErrNodeNotFound
	}
	return g.Transform(dummy, newLabel, newConclusion, parent)
}

// selectParent implements spec §4.4's fallback chain: hierarchy match
// (active node's label already matches the required immediate parent),
// then semantic search (the most recently created matching node anywhere
// in the graph), then auto-generated intermediate nodes bridging the gap
// from the active node.
func (u *Updater) selectParent(g *graph.Graph, gctx Context, category models.Label) *models.Node {
	if gctx.FirstMessage {
		// First content message: parent is always the active STIMULUS.
		return gctx.Active
	}

	active := gctx.Active
	switch category {
	case models.LabelAttribute:
		if active != nil && active.Label == models.LabelIdea {
			return active
		}
		if n := latestByLabel(g, models.LabelIdea); n != nil {
			return n
		}
	case models.LabelConsequence:
		if active != nil && (active.Label == models.LabelAttribute || active.Label == models.LabelConsequence) {
			return active
		}
		if n := latestAmongLabels(g, models.LabelAttribute, models.LabelConsequence); n != nil {
			return n
		}
	case models.LabelValue:
		if active != nil && active.Label == models.LabelConsequence {
			return active
		}
		if n := latestByLabel(g, models.LabelConsequence); n != nil {
			return n
		}
	}

	if active == nil {
		return nil
	}
	return u.generateAutoChain(g, active, category)
}

func latestByLabel(g *graph.Graph, label models.Label) *models.Node {
	var latest *models.Node
	for _, n := range g.NodesByLabel(label) {
		if latest == nil || n.CreatedSeq > latest.CreatedSeq {
			latest = n
		}
	}
	return latest
}

func latestAmongLabels(g *graph.Graph, labels ...models.Label) *models.Node {
	var latest *models.Node
	for _, l := range labels {
		if n := latestByLabel(g, l); n != nil && (latest == nil || n.CreatedSeq > latest.CreatedSeq) {
			latest = n
		}
	}
	return latest
}

// hierarchyOrder is the fixed label sequence the auto-generation fallback
// walks down to bridge a gap (spec §4.4 example: "V under A -> create
// AUTO-C between").
var hierarchyOrder = []models.Label{
	models.LabelStimulus,
	models.LabelIdea,
	models.LabelAttribute,
	models.LabelConsequence,
	models.LabelValue,
}

func nextHierarchyLabel(from models.Label) (models.Label, bool) {
	for i, l := range hierarchyOrder {
		if l == from && i+1 < len(hierarchyOrder) {
			return hierarchyOrder[i+1], true
		}
	}
	return "", false
}

// generateAutoChain inserts synthetic AUTO- nodes from active down toward
// target, stopping as soon as the current node can legally parent target.
func (u *Updater) generateAutoChain(g *graph.Graph, active *models.Node, target models.Label) *models.Node {
	cur := active
	for i := 0; i < len(hierarchyOrder); i++ {
		if models.EdgeAllowed(cur.Label, target) {
			return cur
		}
		next, ok := nextHierarchyLabel(cur.Label)
		if !ok {
			return cur
		}
		child, err := g.AddChild(cur.ID, next, models.AutoPrefix+string(next))
		if err != nil {
			return cur
		}
		cur = child
	}
	return cur
}
