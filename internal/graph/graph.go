// Package graph implements the typed multi-parent DAG that backs one
// stimulus's means-end-chain (component C1 of the interview engine, spec
// §4.1). Nodes live in an arena keyed by id; parent/child links are id
// slices so the whole arena can be dumped directly for serialization,
// grounded on the teacher's execution-state arena pattern
// (pkg/engine/execution_state.go: maps keyed by node id, guarded by a
// single RWMutex).
package graph

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ladderflow/engine/internal/models"
)

// Graph is one stimulus's node arena: acyclic, multi-parent, indexed by
// label for similarity/retrieval lookups (spec §3, §4.1).
type Graph struct {
	mu         sync.RWMutex
	nodes      map[uuid.UUID]*models.Node
	labelIndex map[models.Label][]uuid.UUID
	rootID     uuid.UUID
	activeID   uuid.UUID
	seq        int64
}

// New creates a graph rooted at a single STIMULUS node and sets it active.
func New(stimulusConclusion string) *Graph {
	g := &Graph{
		nodes:      make(map[uuid.UUID]*models.Node),
		labelIndex: make(map[models.Label][]uuid.UUID),
	}
	root := g.newNodeLocked(models.LabelStimulus, stimulusConclusion)
	g.rootID = root.ID
	g.activeID = root.ID
	return g
}

func (g *Graph) newNodeLocked(label models.Label, conclusion string) *models.Node {
	g.seq++
	n := models.NewNode(label, conclusion, g.seq)
	g.nodes[n.ID] = n
	g.labelIndex[label] = append(g.labelIndex[label], n.ID)
	return n
}

// RootID returns the stimulus root node's id.
func (g *Graph) RootID() uuid.UUID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rootID
}

// Get returns the node for id, or nil if absent.
func (g *Graph) Get(id uuid.UUID) *models.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Active returns the currently active node.
func (g *Graph) Active() *models.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[g.activeID]
}

// SetActive makes node the active node. No-op if node is nil or unknown.
func (g *Graph) SetActive(node *models.Node) {
	if node == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[node.ID]; ok {
		g.activeID = node.ID
	}
}

// AddChild creates a new node as a child of parent, validating the type
// hierarchy (spec §3). Returns models.ErrNodeNotFound if parent is unknown
// and models.ErrInvalidEdge if the label pair is not allowed.
func (g *Graph) AddChild(parentID uuid.UUID, label models.Label, conclusion string) (*models.Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	parent, ok := g.nodes[parentID]
	if !ok {
		return nil, models.ErrNodeNotFound
	}
	if !models.EdgeAllowed(parent.Label, label) {
		return nil, models.ErrInvalidEdge
	}

	child := g.newNodeLocked(label, conclusion)
	child.addParent(parent.ID)
	parent.addChild(child.ID)
	return child, nil
}

// AddExistingAsChild links an already-existing node as an additional child
// of parent (multi-parent sharing, spec §4.2). It is a no-op — returning
// (nil, nil) — if the edge already exists or would create a cycle (node is
// already an ancestor of parent); callers must not treat that as an error,
// per the spec's "silently skipped" conflict policy (§7).
func (g *Graph) AddExistingAsChild(parentID, nodeID uuid.UUID) (*models.Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	parent, ok := g.nodes[parentID]
	if !ok {
		return nil, models.ErrNodeNotFound
	}
	node, ok := g.nodes[nodeID]
	if !ok {
		return nil, models.ErrNodeNotFound
	}
	if parent.ID == node.ID {
		return nil, nil
	}
	if parent.HasChild(node.ID) {
		return nil, nil
	}
	if g.isAncestorOfLocked(node.ID, parent.ID) {
		// node is already an ancestor of parent: adding the edge would
		// create a cycle.
		return nil, nil
	}
	node.addParent(parent.ID)
	parent.addChild(node.ID)
	return node, nil
}

// NodesByLabel returns all nodes of the given label, in creation order.
func (g *Graph) NodesByLabel(label models.Label) []*models.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := g.labelIndex[label]
	out := make([]*models.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := g.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// PathToRoot returns the ancestor path of node via BFS over parents,
// deduplicated, starting with node itself (spec §4.1).
func (g *Graph) PathToRoot(node *models.Node) []*models.Node {
	if node == nil {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := map[uuid.UUID]bool{}
	var order []*models.Node
	queue := []uuid.UUID{node.ID}
	visited[node.ID] = true
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n, ok := g.nodes[id]
		if !ok {
			continue
		}
		order = append(order, n)
		for _, p := range n.Parents {
			if !visited[p] {
				visited[p] = true
				queue = append(queue, p)
			}
		}
	}
	return order
}

// LatestParent returns node's parent with the greatest creation sequence
// number (spec §3: "the latest parent of a node is the one with the
// greatest timestamp").
func (g *Graph) LatestParent(node *models.Node) *models.Node {
	if node == nil {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	var latest *models.Node
	for _, pid := range node.Parents {
		p, ok := g.nodes[pid]
		if !ok {
			continue
		}
		if latest == nil || p.CreatedSeq > latest.CreatedSeq {
			latest = p
		}
	}
	return latest
}

// IsAncestorOf reports whether a is an ancestor of b (a != b, reachable via
// repeated Parents traversal from b).
func (g *Graph) IsAncestorOf(a, b *models.Node) bool {
	if a == nil || b == nil {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.isAncestorOfLocked(a.ID, b.ID)
}

func (g *Graph) isAncestorOfLocked(a, b uuid.UUID) bool {
	if a == b {
		return false
	}
	visited := map[uuid.UUID]bool{b: true}
	queue := []uuid.UUID{b}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n, ok := g.nodes[id]
		if !ok {
			continue
		}
		for _, p := range n.Parents {
			if p == a {
				return true
			}
			if !visited[p] {
				visited[p] = true
				queue = append(queue, p)
			}
		}
	}
	return false
}

// RemoveNode deletes node from the arena. Legal only for IRRELEVANT nodes
// (spec §4.1); unlinks it from every parent and child first.
func (g *Graph) RemoveNode(node *models.Node) error {
	if node == nil {
		return models.ErrNodeNotFound
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[node.ID]; !ok {
		return models.ErrNodeNotFound
	}
	if node.Label != models.LabelIrrelevant {
		return models.ErrNotIrrelevant
	}

	for _, pid := range node.Parents {
		if p, ok := g.nodes[pid]; ok {
			p.Children = removeChildID(p.Children, node.ID)
		}
	}
	for _, cid := range node.Children {
		if c, ok := g.nodes[cid]; ok {
			c.Parents = removeChildID(c.Parents, node.ID)
		}
	}

	delete(g.nodes, node.ID)
	ids := g.labelIndex[node.Label]
	g.labelIndex[node.Label] = removeChildID(ids, node.ID)

	if g.activeID == node.ID {
		g.activeID = uuid.Nil
	}
	return nil
}

func removeChildID(s []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := s[:0:0]
	for _, v := range s {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// MarkValuePathCompleted sets ValuePathCompleted on valueNode and every one
// of its ancestors via iterative upward traversal (spec §4.1, invariant 4).
func (g *Graph) MarkValuePathCompleted(valueNode *models.Node) {
	if valueNode == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	visited := map[uuid.UUID]bool{}
	queue := []uuid.UUID{valueNode.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		n, ok := g.nodes[id]
		if !ok {
			continue
		}
		n.ValuePathCompleted = true
		queue = append(queue, n.Parents...)
	}
}

// Transform converts an IRRELEVANT node in place into a relevant one once a
// follow-up answer resolves it (spec §4.4): the node keeps its id and trace
// but moves to newLabel/newConclusion and is re-parented onto newParent.
// Returns models.ErrNotIrrelevant if node is not currently IRRELEVANT.
func (g *Graph) Transform(node *models.Node, newLabel models.Label, newConclusion string, newParent *models.Node) error {
	if node == nil || newParent == nil {
		return models.ErrNodeNotFound
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[node.ID]; !ok {
		return models.ErrNodeNotFound
	}
	if node.Label != models.LabelIrrelevant {
		return models.ErrNotIrrelevant
	}
	if !models.EdgeAllowed(newParent.Label, newLabel) {
		return models.ErrInvalidEdge
	}

	oldLabel := node.Label
	for _, pid := range node.Parents {
		if p, ok := g.nodes[pid]; ok {
			p.Children = removeChildID(p.Children, node.ID)
		}
	}
	node.Parents = nil

	g.labelIndex[oldLabel] = removeChildID(g.labelIndex[oldLabel], node.ID)
	g.labelIndex[newLabel] = append(g.labelIndex[newLabel], node.ID)

	node.Label = newLabel
	node.Conclusion = newConclusion
	node.addParent(newParent.ID)
	newParent.addChild(node.ID)
	return nil
}

// Restore rebuilds a Graph from a flat node list plus root/active ids
// (spec §6 snapshot format). CreatedSeq is not part of the wire format
// (json:"-"); it is reconstructed here by sorting on CreatedAtNanos so
// LatestParent and the label index retain the original creation order.
// Returns nil if rootID is not present among nodes.
func Restore(rootID, activeID uuid.UUID, nodes []*models.Node) *Graph {
	ordered := append([]*models.Node(nil), nodes...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CreatedAtNanos < ordered[j].CreatedAtNanos
	})

	g := &Graph{
		nodes:      make(map[uuid.UUID]*models.Node),
		labelIndex: make(map[models.Label][]uuid.UUID),
	}
	found := false
	for i, n := range ordered {
		n.CreatedSeq = int64(i + 1)
		g.nodes[n.ID] = n
		g.labelIndex[n.Label] = append(g.labelIndex[n.Label], n.ID)
		if n.ID == rootID {
			found = true
		}
	}
	if !found {
		return nil
	}
	g.seq = int64(len(ordered))
	g.rootID = rootID
	g.activeID = activeID
	return g
}

// AllNodes returns every node in the arena (for invariant checks, export).
func (g *Graph) AllNodes() []*models.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*models.Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}
