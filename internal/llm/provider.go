// Package llm provides a structured-chat abstraction over an LLM provider,
// grounded on the teacher's pkg/executor/builtin/llm.go provider interface
// and pkg/models/llm.go response-format types, adapted from a workflow-node
// executor into a direct client used by the analyzer, similarity oracle and
// question generator.
package llm

import (
	"context"
)

// SchemaMode selects how a Client requests structured JSON output, tiered
// from richest to weakest provider support (spec §9 design notes: "the LLM
// client must degrade gracefully across providers").
type SchemaMode int

const (
	// SchemaModeJSONSchema uses a native strict JSON-schema response format.
	SchemaModeJSONSchema SchemaMode = iota
	// SchemaModeJSONObject requests generic JSON-object mode and relies on
	// prompt instructions to shape the payload.
	SchemaModeJSONObject
	// SchemaModePromptOnly asks for JSON purely via prompt instruction, for
	// providers with no structured-output mode at all.
	SchemaModePromptOnly
)

// Message is one turn of a chat completion request.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Usage mirrors the teacher's LLMUsage token accounting (pkg/models/llm.go).
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// StructuredRequest asks the provider for a JSON payload conforming to
// Schema (a JSON-schema document as a map) under the given SchemaName.
type StructuredRequest struct {
	Messages    []Message
	SchemaName  string
	Schema      map[string]any
	Temperature float64
	MaxTokens   int
}

// StructuredResponse is the raw JSON text returned by the provider plus
// token accounting, before application-level parsing/repair.
type StructuredResponse struct {
	RawJSON string
	Usage   Usage
}

// Client is the structured-chat interface every analyzer/oracle/question
// component depends on; concrete providers implement it (see openai.go).
type Client interface {
	CompleteStructured(ctx context.Context, req StructuredRequest) (StructuredResponse, error)
}
