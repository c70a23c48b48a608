package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the speaker of a chat history entry (spec §3).
type Role string

const (
	RoleUser   Role = "user"
	RoleSystem Role = "system"
)

// ChatHistoryEntry is one turn of conversation, tagged with the node ids it
// touched so later prompt construction can fetch "the latest user response
// from the branch-specific recent interactions" (spec §4.7) by trace id.
type ChatHistoryEntry struct {
	InteractionID string      `json:"interaction_id"`
	Role          Role        `json:"role"`
	Content       string      `json:"content"`
	NodeIDs       []uuid.UUID `json:"node_ids"`
	CreatedAt     time.Time   `json:"created_at"`
	// Usage records LLM token accounting for this turn when the entry was
	// produced by a model call (question generation); never shipped to an
	// external telemetry pipeline, kept only for local inspection.
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
}

// ChatConfig holds the per-chat-handler tunables consumed from project
// configuration (spec §3, §6): n_values_max (-1 unlimited), max_retries
// (-1 unbounded, this is MAX_UNCHANGED_COUNT), min_nodes.
type ChatConfig struct {
	NValuesMax int
	MaxRetries int
	MinNodes   int
}
