// Package export implements the serialization-time tree reorganization
// spec §4.1 describes: backwards relations resolved into forward edges,
// and per-stimulus trees merged under a synthetic TOPIC root for the
// client-facing response (spec §6 "Response Tree field"). Purely a
// read-side transform; it never mutates the live graph.
package export

import (
	"github.com/google/uuid"

	"github.com/ladderflow/engine/internal/models"
)

// Reorganize clones nodes and resolves backwards relations into forward
// parent-child edges: each non-IDEA node carrying backwards relations
// reparents the target away from any IDEA ancestor onto itself; IDEA nodes
// are processed last, re-attaching reverse attributes as forward children
// (spec §3 "Serialization", §4.1).
func Reorganize(nodes []*models.Node) []*models.Node {
	byID := make(map[uuid.UUID]*models.Node, len(nodes))
	clones := make([]*models.Node, 0, len(nodes))
	for _, n := range nodes {
		c := n.Clone()
		byID[c.ID] = c
		clones = append(clones, c)
	}

	var ideaOwners []*models.Node
	for _, n := range clones {
		if n.Label == models.LabelIdea {
			ideaOwners = append(ideaOwners, n)
			continue
		}
		reattach(byID, n)
	}
	for _, n := range ideaOwners {
		reattach(byID, n)
	}
	return clones
}

// reattach moves each of owner's backwards-relation targets so that owner
// becomes its forward parent, detaching the target from any IDEA ancestor
// it previously hung under.
func reattach(byID map[uuid.UUID]*models.Node, owner *models.Node) {
	for _, targetID := range owner.BackwardsRelations {
		target, ok := byID[targetID]
		if !ok {
			continue
		}
		for _, pid := range target.Parents {
			if parent, ok := byID[pid]; ok && parent.Label == models.LabelIdea {
				parent.Children = removeID(parent.Children, target.ID)
			}
		}
		target.Parents = []uuid.UUID{owner.ID}
		if !containsID(owner.Children, target.ID) {
			owner.Children = append(owner.Children, target.ID)
		}
	}
}

func containsID(s []uuid.UUID, id uuid.UUID) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(s []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := s[:0:0]
	for _, v := range s {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// StimulusTree is one chat handler's worth of input to Merge.
type StimulusTree struct {
	Stimulus   string
	RootID     uuid.UUID
	Nodes      []*models.Node
	OrderIndex *int
}

// Merge builds the client-facing merged tree: a synthetic TOPIC root with
// each stimulus's reorganized root as a child (spec §6).
func Merge(topic string, trees []StimulusTree) models.MergedTree {
	merged := models.MergedTree{RootLabel: models.LabelTopic, Topic: topic}
	for _, t := range trees {
		reorganized := Reorganize(t.Nodes)
		var root *models.Node
		for _, n := range reorganized {
			if n.ID == t.RootID {
				root = n
				break
			}
		}
		if root == nil {
			continue
		}
		merged.Subroots = append(merged.Subroots, &models.MergedSubroot{
			Node:       root,
			Nodes:      reorganized,
			OrderIndex: t.OrderIndex,
		})
	}
	return merged
}
