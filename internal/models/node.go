package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TraceElement associates a node with the chat interaction that produced it.
// Purely for audit/debug; never affects graph semantics (spec §3).
type TraceElement struct {
	InteractionID string    `json:"interaction_id,omitempty"`
	NodeID        uuid.UUID `json:"node_id,omitempty"`
}

// Node is one vertex of the per-stimulus means-end-chain DAG. Nodes are
// addressed by stable id and stored in an arena (see internal/graph); parent
// and child links are id slices, not pointers, so the arena can be dumped
// directly for serialization (spec §9 design notes).
type Node struct {
	ID                 uuid.UUID      `json:"id"`
	Label              Label          `json:"label"`
	Conclusion         string         `json:"conclusion"`
	CreatedSeq         int64          `json:"-"`
	CreatedAtNanos     int64          `json:"created_ns"`
	Trace              []TraceElement `json:"trace"`
	ValuePathCompleted bool           `json:"is_value_path_completed"`
	Parents            []uuid.UUID    `json:"parents"`
	Children           []uuid.UUID    `json:"children"`
	BackwardsRelations []uuid.UUID    `json:"backwards_relations,omitempty"`
}

// NewNode constructs a node with a fresh id and the given creation order.
func NewNode(label Label, conclusion string, seq int64) *Node {
	return &Node{
		ID:             uuid.New(),
		Label:          label,
		Conclusion:     conclusion,
		CreatedSeq:     seq,
		CreatedAtNanos: time.Now().UnixNano(),
		Trace:          nil,
		Parents:        nil,
		Children:       nil,
	}
}

// IsAuto reports whether this is a synthetic intermediate node inserted to
// repair a type-hierarchy gap.
func (n *Node) IsAuto() bool {
	return strings.HasPrefix(n.Conclusion, AutoPrefix)
}

// Clone returns a deep copy safe to mutate independently of the original,
// used by export/serialization so reorganization never touches live state.
func (n *Node) Clone() *Node {
	c := *n
	c.Trace = append([]TraceElement(nil), n.Trace...)
	c.Parents = append([]uuid.UUID(nil), n.Parents...)
	c.Children = append([]uuid.UUID(nil), n.Children...)
	c.BackwardsRelations = append([]uuid.UUID(nil), n.BackwardsRelations...)
	return &c
}

func containsUUID(s []uuid.UUID, id uuid.UUID) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

func appendUniqueUUID(s []uuid.UUID, id uuid.UUID) []uuid.UUID {
	if containsUUID(s, id) {
		return s
	}
	return append(s, id)
}

func removeUUID(s []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := s[:0:0]
	for _, v := range s {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// AddParent links parent -> n, deduplicating.
func (n *Node) addParent(parentID uuid.UUID) {
	n.Parents = appendUniqueUUID(n.Parents, parentID)
}

// AddChild links n -> child, deduplicating.
func (n *Node) addChild(childID uuid.UUID) {
	n.Children = appendUniqueUUID(n.Children, childID)
}

// HasParent reports whether parentID is a direct parent of n.
func (n *Node) HasParent(parentID uuid.UUID) bool {
	return containsUUID(n.Parents, parentID)
}

// HasChild reports whether childID is a direct child of n.
func (n *Node) HasChild(childID uuid.UUID) bool {
	return containsUUID(n.Children, childID)
}

// AddBackwardsRelation records a node discovered in reverse hierarchical
// order (spec §4.4), materialized only at export time.
func (n *Node) AddBackwardsRelation(id uuid.UUID) {
	n.BackwardsRelations = appendUniqueUUID(n.BackwardsRelations, id)
}

const stackMarker = "| STACK-"

// StackDepth returns the number of times an IRRELEVANT conclusion has been
// stacked (spec §4.4/§9 open question: canonical form is "| STACK-k: ...").
func StackDepth(conclusion string) int {
	return strings.Count(conclusion, stackMarker)
}

// StackConclusion appends a new stacked summary onto an existing IRRELEVANT
// node's conclusion text, preserving the canonical "| STACK-k: <summary>"
// format. k is 1-based and counts the stacking operation being performed.
func StackConclusion(conclusion, newSummary string) string {
	k := StackDepth(conclusion) + 1
	var b strings.Builder
	b.WriteString(conclusion)
	b.WriteString(stackMarker)
	b.WriteString(strconv.Itoa(k))
	b.WriteString(": ")
	b.WriteString(newSummary)
	return b.String()
}
