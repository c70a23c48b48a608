package session

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ladderflow/engine/internal/graph"
	"github.com/ladderflow/engine/internal/models"
	"github.com/ladderflow/engine/internal/worklist"
)

// Session holds one session-id's whole interview: a topic, the list of
// stimuli, and one ChatHandler per stimulus (spec §3).
type Session struct {
	SessionID         string
	Topic             string
	Stimuli           []string
	NValuesMax        int
	MaxRetries        int
	Handlers          map[string]*ChatHandler
	PresentationOrder []string
}

// New creates a Session with an empty handler set; handlers are created
// lazily on first message per stimulus.
func New(sessionID, topic string, stimuli []string, nValuesMax, maxRetries int) *Session {
	return &Session{
		SessionID:  sessionID,
		Topic:      topic,
		Stimuli:    stimuli,
		NValuesMax: nValuesMax,
		MaxRetries: maxRetries,
		Handlers:   make(map[string]*ChatHandler),
	}
}

// HandlerFor returns the chat handler for stimulus, creating it (and its
// STIMULUS root) on first access.
func (s *Session) HandlerFor(stimulus string, cfg models.ChatConfig) *ChatHandler {
	if h, ok := s.Handlers[stimulus]; ok {
		return h
	}
	h := NewChatHandler(s.SessionID, s.Topic, stimulus, cfg)
	s.Handlers[stimulus] = h
	return h
}

// ToSnapshot serializes the session to its persisted wire format (spec §6).
func (s *Session) ToSnapshot() models.SessionSnapshot {
	snap := models.SessionSnapshot{
		SessionID:         s.SessionID,
		Topic:             s.Topic,
		Stimuli:           s.Stimuli,
		NValuesMax:        s.NValuesMax,
		MaxRetries:        s.MaxRetries,
		PresentationOrder: s.PresentationOrder,
	}
	for _, stimulus := range s.Stimuli {
		h, ok := s.Handlers[stimulus]
		if !ok {
			continue
		}
		snap.ChatSessions = append(snap.ChatSessions, h.toSnapshot())
	}
	return snap
}

func (h *ChatHandler) toSnapshot() models.ChatHandlerSnapshot {
	nodes := h.Graph.AllNodes()
	active := h.Graph.Active()
	return models.ChatHandlerSnapshot{
		Topic:                   h.Topic,
		Stimulus:                h.Stimulus,
		SessionID:               h.SessionID,
		ChatHistory:             h.ChatHistory,
		Tree: models.TreeSnapshot{
			RootNodeID:   h.Graph.RootID(),
			ActiveNodeID: activeID(active),
			Nodes:        nodes,
		},
		Queue:                   h.Queue.Snapshot(active),
		State: models.StateSnapshot{
			Stage:               h.Stage,
			MessageCount:        h.MessageCount,
			ContentMessageCount: h.ContentMessageCount,
		},
		IsFinished:              h.IsFinished,
		AskedAgainForAttributes: h.AskedAgainForAttributes,
		NValuesMax:              h.Config.NValuesMax,
		MaxRetries:              h.Config.MaxRetries,
		MinNodes:                h.Config.MinNodes,
	}
}

func activeID(n *models.Node) uuid.UUID {
	if n == nil {
		return uuid.Nil
	}
	return n.ID
}

// FromSnapshot reconstructs a Session from its persisted wire format.
func FromSnapshot(snap models.SessionSnapshot) (*Session, error) {
	s := New(snap.SessionID, snap.Topic, snap.Stimuli, snap.NValuesMax, snap.MaxRetries)
	s.PresentationOrder = snap.PresentationOrder
	for _, hs := range snap.ChatSessions {
		h, err := chatHandlerFromSnapshot(hs)
		if err != nil {
			return nil, fmt.Errorf("session: restore handler for %q: %w", hs.Stimulus, err)
		}
		s.Handlers[hs.Stimulus] = h
	}
	return s, nil
}

func chatHandlerFromSnapshot(hs models.ChatHandlerSnapshot) (*ChatHandler, error) {
	g := graph.Restore(hs.Tree.RootNodeID, hs.Tree.ActiveNodeID, hs.Tree.Nodes)
	if g == nil {
		return nil, models.ErrSnapshotCorrupt
	}

	cfg := models.ChatConfig{NValuesMax: hs.NValuesMax, MaxRetries: hs.MaxRetries, MinNodes: hs.MinNodes}
	q := worklist.Restore(hs.Queue, cfg.MaxRetries, g.Get)

	h := &ChatHandler{
		Topic:                   hs.Topic,
		Stimulus:                hs.Stimulus,
		SessionID:               hs.SessionID,
		Graph:                   g,
		Queue:                   q,
		Stage:                   hs.State.Stage,
		ChatHistory:             hs.ChatHistory,
		IsFinished:              hs.IsFinished,
		AskedAgainForAttributes: hs.AskedAgainForAttributes,
		Config:                  cfg,
		MessageCount:            hs.State.MessageCount,
		ContentMessageCount:     hs.State.ContentMessageCount,
	}
	for _, n := range hs.Tree.Nodes {
		if n.Label == models.LabelIdea {
			if h.recentIdea == nil || n.CreatedSeq > h.recentIdea.CreatedSeq {
				h.recentIdea = n
			}
		}
	}
	return h, nil
}
