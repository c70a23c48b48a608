// Package similarity implements the two-tier equivalence oracle (component
// C2, spec §4.2): a synchronous lexical tier and an optional asynchronous
// LLM batch-judgement tier, combined into a single grafting decision.
package similarity

import (
	"context"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/ladderflow/engine/internal/graph"
	"github.com/ladderflow/engine/internal/models"
)

// Config holds the tunables spec §9 flags as "magic numbers baked into the
// source" that must be exposed: per-label Jaccard thresholds and the LLM
// confidence floor.
type Config struct {
	JaccardThreshold    map[models.Label]float64
	SubstringMaxLen     int
	MinTokenLen         int
	LLMConfidenceFloor  int
}

// DefaultConfig returns the thresholds named in spec §4.2 (A: 0.35,
// C: 0.30, V: 0.25) and confidence floor 70.
func DefaultConfig() Config {
	return Config{
		JaccardThreshold: map[models.Label]float64{
			models.LabelAttribute:   0.35,
			models.LabelConsequence: 0.30,
			models.LabelValue:       0.25,
		},
		SubstringMaxLen:    30,
		MinTokenLen:        3,
		LLMConfidenceFloor: 70,
	}
}

// LLMVerdict is one candidate's Tier 2 judgement (spec §4.2).
type LLMVerdict struct {
	NodeID      uuid.UUID
	ShouldMerge bool
	Confidence  int
	Explanation string
}

// Judge performs the asynchronous batched LLM similarity judgement: one new
// (label, text) against every candidate, returning one verdict per
// candidate in the same order.
type Judge interface {
	JudgeBatch(ctx context.Context, label models.Label, text string, candidates []*models.Node) ([]LLMVerdict, error)
}

// Decision is the outcome of resolving a new element against the graph.
type Decision struct {
	// DuplicateToIgnore, when non-nil, is an existing equivalent node under
	// the same effective parent; the caller must not graft anything.
	DuplicateToIgnore *models.Node
	// ShareTarget, when non-nil, is an existing node under a different
	// parent that the new edge should point at instead of creating a node.
	ShareTarget *models.Node
}

// NoMatch reports whether neither a duplicate nor a share target was found,
// meaning the caller should graft a brand new node.
func (d Decision) NoMatch() bool {
	return d.DuplicateToIgnore == nil && d.ShareTarget == nil
}

// Oracle resolves new (label, text) elements against a graph's existing
// nodes of the same label, per the decision policy in spec §4.2.
type Oracle struct {
	cfg Config
	llm Judge // nil disables Tier 2
}

// New constructs an Oracle. llm may be nil; Tier 2 is then skipped and the
// policy falls back straight to step 5 (spec §4.2 point 4's precondition
// "If LLM is available").
func New(cfg Config, llm Judge) *Oracle {
	return &Oracle{cfg: cfg, llm: llm}
}

type candidate struct {
	node       *models.Node
	sameParent bool
	exact      bool
	similar    bool
}

// Resolve implements the decision policy of spec §4.2 steps 1-6 for a new
// element of the given label and text being grafted under effectiveParent.
func (o *Oracle) Resolve(ctx context.Context, g *graph.Graph, label models.Label, text string, effectiveParent *models.Node) (Decision, error) {
	existing := g.NodesByLabel(label)
	if len(existing) == 0 {
		return Decision{}, nil
	}

	var candidates []candidate
	for _, n := range existing {
		sameParent := effectiveParent != nil && (n.ID == effectiveParent.ID ||
			effectiveParent.HasChild(n.ID) || g.IsAncestorOf(n, effectiveParent))

		exact := lexicalExact(text, n.Conclusion)
		similar := exact || lexicalSimilar(o.cfg, label, text, n.Conclusion)
		if !similar {
			continue
		}

		// Step 2: exact same-parent match short-circuits immediately.
		if sameParent && exact {
			return Decision{DuplicateToIgnore: n}, nil
		}

		candidates = append(candidates, candidate{node: n, sameParent: sameParent, exact: exact, similar: similar})
	}

	if len(candidates) == 0 {
		return Decision{}, nil
	}

	// Step 4: run Tier 2 in one batched call if an LLM judge is wired.
	if o.llm != nil {
		nodes := make([]*models.Node, len(candidates))
		for i, c := range candidates {
			nodes[i] = c.node
		}
		verdicts, err := o.llm.JudgeBatch(ctx, label, text, nodes)
		if err == nil && len(verdicts) == len(candidates) {
			byID := make(map[uuid.UUID]LLMVerdict, len(verdicts))
			for _, v := range verdicts {
				byID[v.NodeID] = v
			}
			for _, c := range candidates {
				v, ok := byID[c.node.ID]
				if !ok || v.Confidence < o.cfg.LLMConfidenceFloor {
					continue
				}
				if c.sameParent && !v.ShouldMerge {
					return Decision{DuplicateToIgnore: c.node}, nil
				}
				if !c.sameParent && v.ShouldMerge {
					return Decision{ShareTarget: c.node}, nil
				}
			}
		}
	}

	// Step 5: fall back to an exact different-parent match as a share
	// target.
	for _, c := range candidates {
		if !c.sameParent && c.exact {
			return Decision{ShareTarget: c.node}, nil
		}
	}

	// Step 6: no match.
	return Decision{}, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func lexicalExact(a, b string) bool {
	return normalize(a) == normalize(b)
}

func lexicalSimilar(cfg Config, label models.Label, a, b string) bool {
	na, nb := normalize(a), normalize(b)
	if na == nb {
		return true
	}
	if len(na) <= cfg.SubstringMaxLen || len(nb) <= cfg.SubstringMaxLen {
		if strings.Contains(na, nb) || strings.Contains(nb, na) {
			return true
		}
	}
	threshold, ok := cfg.JaccardThreshold[label]
	if !ok {
		threshold = 0.30
	}
	return jaccard(tokenize(na, cfg.MinTokenLen), tokenize(nb, cfg.MinTokenLen)) >= threshold
}

func tokenize(s string, minLen int) map[string]struct{} {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len(f) >= minLen {
			out[f] = struct{}{}
		}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
