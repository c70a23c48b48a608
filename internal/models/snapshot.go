package models

import "github.com/google/uuid"

// The types in this file mirror the JSON snapshot format defined in spec §6
// exactly: Session -> []ChatHandlerSnapshot -> {Tree, Queue, State}. This is
// the wire format a Session is written to and reconstructed from.

// NodeStub is the compact node view used inside the queue snapshot, where
// only display fields are needed.
type NodeStub struct {
	ID         uuid.UUID `json:"id"`
	Label      Label     `json:"label"`
	Conclusion string    `json:"conclusion"`
}

// QueueEntrySnapshot is one worklist entry plus its retry metadata.
type QueueEntrySnapshot struct {
	Node           NodeStub `json:"node"`
	UnchangedCount int      `json:"unchanged_count"`
}

// QueueSnapshot is the persisted state of the priority queue (C5).
type QueueSnapshot struct {
	Queue                    []QueueEntrySnapshot `json:"queue"`
	ActiveNode               *NodeStub            `json:"active_node"`
	ActiveNodeUnchangedCount int                  `json:"active_node_unchanged_count"`
}

// StateSnapshot is the persisted state of the stage controller (C6).
type StateSnapshot struct {
	Stage               Stage `json:"stage"`
	MessageCount        int   `json:"message_count"`
	ContentMessageCount int   `json:"content_message_count"`
}

// TreeSnapshot is the persisted state of one chat handler's graph (C1).
type TreeSnapshot struct {
	RootNodeID   uuid.UUID `json:"root_node_id"`
	ActiveNodeID uuid.UUID `json:"active_node_id"`
	Nodes        []*Node   `json:"nodes"`
}

// ChatHandlerSnapshot is the persisted state of one stimulus's interview.
type ChatHandlerSnapshot struct {
	Topic                   string             `json:"topic"`
	Stimulus                string             `json:"stimulus"`
	SessionID               string             `json:"session_id"`
	ChatHistory             []ChatHistoryEntry `json:"chat_history"`
	Tree                    TreeSnapshot       `json:"tree"`
	Queue                   QueueSnapshot      `json:"queue_manager"`
	State                   StateSnapshot      `json:"state_manager"`
	IsFinished              bool               `json:"is_finished"`
	AskedAgainForAttributes bool               `json:"asked_again_for_attributes"`
	NValuesMax              int                `json:"n_values_max"`
	MaxRetries              int                `json:"max_retries"`
	MinNodes                int                `json:"min_nodes"`
}

// SessionSnapshot is the full JSON document persisted per session-id.
type SessionSnapshot struct {
	SessionID         string                `json:"session_id"`
	Topic             string                `json:"topic"`
	Stimuli           []string              `json:"stimuli"`
	NValuesMax        int                   `json:"n_values_max"`
	MaxRetries        int                   `json:"max_retries"`
	ChatSessions      []ChatHandlerSnapshot `json:"chat_sessions"`
	PresentationOrder []string              `json:"presentation_order,omitempty"`
}

// MergedSubroot is one per-stimulus root attached under the synthetic TOPIC
// root in the response Tree field (spec §6).
type MergedSubroot struct {
	Node       *Node  `json:"node"`
	Nodes      []*Node `json:"nodes"`
	OrderIndex *int   `json:"order_index,omitempty"`
}

// MergedTree is the client-facing tree: a synthetic TOPIC root with each
// per-stimulus root as a child, backwards relations already reorganized
// into forward edges (spec §4.1, §6).
type MergedTree struct {
	RootLabel Label            `json:"root_label"`
	Topic     string           `json:"topic"`
	Subroots  []*MergedSubroot `json:"subroots"`
}
