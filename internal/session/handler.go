// Package session implements the Session Manager: per-session orchestration
// of the graph, queue, stage controller and question generator across
// turns, plus the snapshot cache and persistence wiring described in spec
// §5-§6.
package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ladderflow/engine/internal/analyzer"
	"github.com/ladderflow/engine/internal/graph"
	"github.com/ladderflow/engine/internal/models"
	"github.com/ladderflow/engine/internal/question"
	"github.com/ladderflow/engine/internal/stage"
	"github.com/ladderflow/engine/internal/updater"
	"github.com/ladderflow/engine/internal/worklist"
)

// Deps bundles the components a ChatHandler's turn processing depends on;
// constructed once per process and shared across sessions (stateless per
// request, spec §5).
type Deps struct {
	Analyzer  *analyzer.Analyzer
	Updater   *updater.Updater
	Stage     *stage.Controller
	Generator *question.Generator
}

// ChatHandler owns one stimulus's interview: its graph, worklist, stage,
// chat history and finished flag (spec §3 "Session").
type ChatHandler struct {
	Topic                   string
	Stimulus                string
	SessionID               string
	Graph                   *graph.Graph
	Queue                   *worklist.Queue
	Stage                   models.Stage
	ChatHistory             []models.ChatHistoryEntry
	IsFinished              bool
	AskedAgainForAttributes bool
	Config                  models.ChatConfig
	MessageCount            int
	ContentMessageCount     int
	recentIdea              *models.Node
}

// NewChatHandler creates a fresh chat handler rooted at a STIMULUS node.
func NewChatHandler(sessionID, topic, stimulus string, cfg models.ChatConfig) *ChatHandler {
	return &ChatHandler{
		Topic:     topic,
		Stimulus:  stimulus,
		SessionID: sessionID,
		Graph:     graph.New(stimulus),
		Queue:     worklist.New(cfg.MaxRetries),
		Stage:     models.StageInitial,
		Config:    cfg,
	}
}

// Turn is the result of processing one interviewee message.
type Turn struct {
	Question       question.Response
	GraftedNodes   []updater.Grafted
	TopicSwitch    bool
	PreviousActive *models.Node
}

// ProcessTurn implements spec §5's ordering guarantee: analyze -> graft ->
// queue update -> stage transition -> question generation. Persistence is
// the caller's (Manager's) responsibility, after this returns.
func (h *ChatHandler) ProcessTurn(ctx context.Context, deps Deps, message string) (Turn, error) {
	if h.IsFinished {
		return Turn{}, fmt.Errorf("chat handler for %q is already finished", h.Stimulus)
	}

	interactionID := uuid.New().String()
	h.MessageCount++
	h.recordHistory(interactionID, models.RoleUser, message, nil)

	if h.Stage == models.StageInitial {
		h.Stage = models.StageAskingForIdea
	}

	var turn Turn
	var producedRequired bool
	var queueEmpty bool

	if h.Stage == models.StageAskingForIdea {
		producedRequired = h.processIdeaStage(ctx, deps, message, interactionID, &turn)
	} else {
		producedRequired, queueEmpty = h.processContentStage(ctx, deps, message, interactionID, &turn)
	}
	h.ContentMessageCount++

	valuesLimitReached, _ := deps.Stage.ValuesLimitReached(h.Config, h.Graph)

	result := deps.Stage.Step(stage.Input{
		Current:                 h.Stage,
		Active:                  h.Graph.Active(),
		RequiredProduced:        producedRequired,
		QueueEmpty:              queueEmpty,
		AskedAgainForAttributes: h.AskedAgainForAttributes,
		TotalNodeCount:          len(h.Graph.AllNodes()),
		MinNodes:                h.Config.MinNodes,
		ValuesLimitReached:      valuesLimitReached,
	})
	h.Stage = result.Next
	h.AskedAgainForAttributes = result.AskedAgainForAttributes
	if h.Stage == models.StageComplete || h.Stage == models.StageValuesLimitReached {
		h.IsFinished = true
	}

	active := h.Graph.Active()
	parent := h.Graph.LatestParent(active)
	resp, err := deps.Generator.Generate(ctx, question.Request{
		Topic:               h.Topic,
		Stimulus:            h.Stimulus,
		Active:              active,
		EffectiveParent:     parent,
		PathToRoot:          h.Graph.PathToRoot(active),
		LatestUserResponse:  message,
		Stage:               h.Stage,
		UnchangedCount:      h.Queue.ActiveUnchangedCount(),
		DiscussedAttributes: h.discussedAttributes(),
		ForcedTopicSwitch:   turn.TopicSwitch,
		PreviousActive:      turn.PreviousActive,
		ValuesLimitReached:  valuesLimitReached,
		RecheckValuesLimit: func() bool {
			v, _ := deps.Stage.ValuesLimitReached(h.Config, h.Graph)
			return v
		},
	})
	if err != nil {
		return Turn{}, err
	}
	if resp.EndOfInterview {
		h.IsFinished = true
	}

	h.recordHistory(interactionID, models.RoleSystem, resp.NextQuestion, nodeIDs(turn.GraftedNodes))
	last := &h.ChatHistory[len(h.ChatHistory)-1]
	last.PromptTokens = resp.Usage.PromptTokens
	last.CompletionTokens = resp.Usage.CompletionTokens
	turn.Question = resp
	return turn, nil
}

// processIdeaStage runs C3's idea-check mode (spec §4.3) and grafts the
// resulting IDEA or IRRELEVANT node directly under the STIMULUS root.
func (h *ChatHandler) processIdeaStage(ctx context.Context, deps Deps, message, interactionID string, turn *Turn) bool {
	check, err := deps.Analyzer.CheckIdea(ctx, h.Topic, h.Stimulus, message)
	if err != nil {
		return false
	}
	root := h.Graph.Get(h.Graph.RootID())
	if !check.IsRelevant {
		node, gErr := h.Graph.AddChild(root.ID, models.LabelIrrelevant, check.Summary)
		if gErr == nil {
			turn.GraftedNodes = append(turn.GraftedNodes, updater.Grafted{Node: node, IsNew: true, Category: models.LabelIrrelevant})
		}
		return false
	}
	node, gErr := h.Graph.AddChild(root.ID, models.LabelIdea, check.Summary)
	if gErr != nil {
		return false
	}
	h.Graph.SetActive(node)
	h.recentIdea = node
	turn.GraftedNodes = append(turn.GraftedNodes, updater.Grafted{Node: node, IsNew: true, Category: models.LabelIdea})
	return true
}

// processContentStage runs C3's multi-element mode, transforms a stacked
// IRRELEVANT dummy if the active node is one, applies the Tree Updater,
// enqueues newly grafted queueable nodes, and advances the worklist
// per spec §4.5's advancement rule.
func (h *ChatHandler) processContentStage(ctx context.Context, deps Deps, message, interactionID string, turn *Turn) (producedRequired, queueEmpty bool) {
	active := h.Graph.Active()
	path := h.Graph.PathToRoot(active)

	result, err := deps.Analyzer.Analyze(ctx, h.Topic, h.Stimulus, message, path, active.Label)
	if err != nil {
		return false, h.Queue.Len() == 0
	}

	gctx := updater.Context{Active: active, RecentIdea: h.recentIdea}

	if active.Label == models.LabelIrrelevant {
		if idx := firstNonIrrelevant(result.Elements); idx >= 0 {
			el := result.Elements[idx]
			if err := deps.Updater.TransformDummy(h.Graph, gctx, active, el.Category, el.Summary); err == nil {
				result.Elements = append(result.Elements[:idx], result.Elements[idx+1:]...)
				active = h.Graph.Active() // same node, relabeled
				gctx.Active = active
				turn.GraftedNodes = append(turn.GraftedNodes, updater.Grafted{Node: active, IsNew: false, Category: el.Category})
			}
		}
	}

	grafted, err := deps.Updater.Apply(ctx, h.Graph, gctx, result)
	if err != nil {
		return false, h.Queue.Len() == 0
	}
	turn.GraftedNodes = append(turn.GraftedNodes, grafted...)

	for _, gr := range grafted {
		if gr.IsNew && gr.Node.Label.Queueable() {
			h.Queue.Enqueue(gr.Node)
		}
		if gr.Node.Label == models.LabelValue {
			h.Graph.MarkValuePathCompleted(gr.Node)
		}
		if gr.Node.Label == models.LabelIdea {
			h.recentIdea = gr.Node
		}
	}

	producedRequired = stage.RequiredElementProduced(h.Graph, active)
	forceAdvance := h.Queue.RegisterTurn(producedRequired)

	if producedRequired || forceAdvance {
		var res worklist.AdvanceResult
		if forceAdvance {
			res = h.Queue.ForceAdvance(h.Graph)
		} else {
			res = h.Queue.Advance(h.Graph)
		}
		turn.TopicSwitch = res.TopicSwitch
		turn.PreviousActive = res.PreviousActive
	}

	return producedRequired, h.Queue.Len() == 0
}

func firstNonIrrelevant(elements []analyzer.Element) int {
	for i, e := range elements {
		if e.Category != models.LabelIrrelevant {
			return i
		}
	}
	return -1
}

func (h *ChatHandler) discussedAttributes() []string {
	var out []string
	for _, n := range h.Graph.NodesByLabel(models.LabelAttribute) {
		out = append(out, n.Conclusion)
	}
	return out
}

func (h *ChatHandler) recordHistory(interactionID string, role models.Role, content string, nodeIDs []uuid.UUID) {
	h.ChatHistory = append(h.ChatHistory, models.ChatHistoryEntry{
		InteractionID: interactionID,
		Role:          role,
		Content:       content,
		NodeIDs:       nodeIDs,
	})
}

func nodeIDs(grafted []updater.Grafted) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(grafted))
	for _, g := range grafted {
		out = append(out, g.Node.ID)
	}
	return out
}
