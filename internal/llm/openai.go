package llm

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// knownSchemaHosts lists API hosts confirmed to support native strict
// JSON-schema response formatting. Anything else degrades to JSON-object
// mode, and a handful of known-weak hosts degrade further to prompt-only
// (spec §9: LLM client must degrade gracefully across providers).
var knownSchemaHosts = map[string]bool{
	"api.openai.com": true,
}

var knownPromptOnlyHosts = map[string]bool{
	"localhost":   true,
	"127.0.0.1":   true,
	"ollama":      true,
}

// detectSchemaMode inspects baseURL's host to pick the richest SchemaMode
// the provider behind it is known to support.
func detectSchemaMode(baseURL string) SchemaMode {
	if baseURL == "" {
		return SchemaModeJSONSchema
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return SchemaModeJSONObject
	}
	host := u.Hostname()
	if knownSchemaHosts[host] {
		return SchemaModeJSONSchema
	}
	if knownPromptOnlyHosts[host] {
		return SchemaModePromptOnly
	}
	return SchemaModeJSONObject
}

// OpenAIClient implements Client against the OpenAI chat completions API
// (sashabaranov/go-openai), grounded on the teacher's LLM provider plumbing
// in pkg/executor/builtin/llm.go but trimmed to a single structured-chat
// call shape instead of the workflow-node Execute contract.
type OpenAIClient struct {
	api        *openai.Client
	model      string
	schemaMode SchemaMode
}

// NewOpenAIClient builds a client against baseURL (empty for the default
// OpenAI endpoint) using apiKey and model. The schema mode is auto-detected
// from baseURL's host; pass overrideMode >= 0 to force a tier instead.
func NewOpenAIClient(apiKey, baseURL, model string, overrideMode SchemaMode) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	mode := detectSchemaMode(baseURL)
	if overrideMode >= SchemaModeJSONSchema && overrideMode <= SchemaModePromptOnly {
		mode = overrideMode
	}
	return &OpenAIClient{
		api:        openai.NewClientWithConfig(cfg),
		model:      model,
		schemaMode: mode,
	}
}

// CompleteStructured implements Client.
func (c *OpenAIClient) CompleteStructured(ctx context.Context, req StructuredRequest) (StructuredResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	switch c.schemaMode {
	case SchemaModeJSONSchema:
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.SchemaName,
				Schema: req.Schema,
				Strict: true,
			},
		}
	case SchemaModeJSONObject:
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: "Respond with a single JSON object only, matching: " + schemaHint(req.Schema),
		})
	case SchemaModePromptOnly:
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: "Respond with JSON only, no prose, no markdown fences, matching: " + schemaHint(req.Schema),
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return StructuredResponse{}, fmt.Errorf("llm: chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return StructuredResponse{}, fmt.Errorf("llm: empty choices in response")
	}

	return StructuredResponse{
		RawJSON: strings.TrimSpace(resp.Choices[0].Message.Content),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// schemaHint renders a JSON schema compactly for embedding in a system
// prompt when the provider has no structured-output mode to enforce it.
func schemaHint(schema map[string]any) string {
	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	return "{" + strings.Join(keys, ", ") + "}"
}
