// Package worklist implements the priority queue driving interview
// progression (component C5, spec §4.5): an ordered worklist of
// STIMULUS/ATTRIBUTE/CONSEQUENCE nodes plus an active-node pointer tracked
// separately, with retry/exhaustion bookkeeping per active node.
package worklist

import (
	"github.com/google/uuid"

	"github.com/ladderflow/engine/internal/graph"
	"github.com/ladderflow/engine/internal/models"
)

type entry struct {
	node           *models.Node
	unchangedCount int
}

// Queue is one chat handler's worklist. Not safe for concurrent use from
// multiple goroutines; callers serialize per session (spec §6).
type Queue struct {
	entries         []*entry
	activeUnchanged int
	maxUnchanged    int // -1 means unbounded (MAX_UNCHANGED_COUNT)
}

// New builds an empty Queue with the given retry ceiling.
func New(maxUnchanged int) *Queue {
	return &Queue{maxUnchanged: maxUnchanged}
}

// Enqueue adds node to the worklist per spec §4.5's insertion policy.
// Returns false (no-op) if node's label is not queueable or it is already
// present.
func (q *Queue) Enqueue(node *models.Node) bool {
	if node == nil || !node.Label.Queueable() {
		return false
	}
	if q.contains(node.ID) {
		return false
	}

	switch node.Label {
	case models.LabelConsequence:
		q.entries = append([]*entry{{node: node}}, q.entries...)
	case models.LabelAttribute:
		idx := q.lastIndexOfLabel(models.LabelAttribute)
		if idx < 0 {
			idx = q.lastIndexOfLabel(models.LabelConsequence)
		}
		q.insertAfter(idx, &entry{node: node})
	default:
		q.entries = append(q.entries, &entry{node: node})
	}
	return true
}

func (q *Queue) contains(id uuid.UUID) bool {
	for _, e := range q.entries {
		if e.node.ID == id {
			return true
		}
	}
	return false
}

func (q *Queue) lastIndexOfLabel(label models.Label) int {
	for i := len(q.entries) - 1; i >= 0; i-- {
		if q.entries[i].node.Label == label {
			return i
		}
	}
	return -1
}

// insertAfter inserts e at position idx+1 (idx == -1 inserts at the front).
func (q *Queue) insertAfter(idx int, e *entry) {
	pos := idx + 1
	q.entries = append(q.entries, nil)
	copy(q.entries[pos+1:], q.entries[pos:])
	q.entries[pos] = e
}

// Len reports the number of entries waiting (excluding the active node).
func (q *Queue) Len() int { return len(q.entries) }

// AdvanceResult reports the outcome of forcing the worklist forward.
type AdvanceResult struct {
	Next           *models.Node
	PreviousActive *models.Node
	TopicSwitch    bool
}

// Advance pops the front entry and makes it active in g, first removing any
// residual IRRELEVANT active node (spec §4.5). Returns a zero-value
// AdvanceResult with Next == nil if the queue is empty.
func (q *Queue) Advance(g *graph.Graph) AdvanceResult {
	prev := g.Active()
	if prev != nil && prev.Label == models.LabelIrrelevant {
		_ = g.RemoveNode(prev)
	}
	if len(q.entries) == 0 {
		return AdvanceResult{PreviousActive: prev}
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	g.SetActive(e.node)
	q.activeUnchanged = e.unchangedCount
	return AdvanceResult{Next: e.node, PreviousActive: prev}
}

// RegisterTurn records whether the active node's required element was
// produced this turn (spec §4.5/§4.6). It returns true when the retry
// ceiling is reached and the caller must force advancement, reporting a
// topic-switch event.
func (q *Queue) RegisterTurn(produced bool) bool {
	if produced {
		q.activeUnchanged = 0
		return false
	}
	q.activeUnchanged++
	return q.maxUnchanged >= 0 && q.activeUnchanged >= q.maxUnchanged
}

// ForceAdvance advances the worklist and marks the result as a topic
// switch, for callers that already decided (via RegisterTurn) to force it.
func (q *Queue) ForceAdvance(g *graph.Graph) AdvanceResult {
	res := q.Advance(g)
	res.TopicSwitch = res.Next != nil
	return res
}

// ActiveUnchangedCount reports the active node's current retry count.
func (q *Queue) ActiveUnchangedCount() int { return q.activeUnchanged }

// Snapshot renders the queue into its persisted form (spec §6).
func (q *Queue) Snapshot(active *models.Node) models.QueueSnapshot {
	snap := models.QueueSnapshot{ActiveNodeUnchangedCount: q.activeUnchanged}
	for _, e := range q.entries {
		snap.Queue = append(snap.Queue, models.QueueEntrySnapshot{
			Node:           stub(e.node),
			UnchangedCount: e.unchangedCount,
		})
	}
	if active != nil {
		s := stub(active)
		snap.ActiveNode = &s
	}
	return snap
}

func stub(n *models.Node) models.NodeStub {
	return models.NodeStub{ID: n.ID, Label: n.Label, Conclusion: n.Conclusion}
}

// Restore rebuilds a Queue from its persisted form, resolving each stub
// back to the live node via resolve (typically g.Get).
func Restore(snap models.QueueSnapshot, maxUnchanged int, resolve func(uuid.UUID) *models.Node) *Queue {
	q := New(maxUnchanged)
	q.activeUnchanged = snap.ActiveNodeUnchangedCount
	for _, qe := range snap.Queue {
		if n := resolve(qe.Node.ID); n != nil {
			q.entries = append(q.entries, &entry{node: n, unchangedCount: qe.UnchangedCount})
		}
	}
	return q
}
