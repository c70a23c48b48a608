package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladderflow/engine/internal/analyzer"
	"github.com/ladderflow/engine/internal/config"
	"github.com/ladderflow/engine/internal/exprcache"
	"github.com/ladderflow/engine/internal/llm"
	"github.com/ladderflow/engine/internal/logger"
	"github.com/ladderflow/engine/internal/models"
	"github.com/ladderflow/engine/internal/question"
	"github.com/ladderflow/engine/internal/session"
	"github.com/ladderflow/engine/internal/similarity"
	"github.com/ladderflow/engine/internal/stage"
	"github.com/ladderflow/engine/internal/updater"
)

// scriptedClient serves pre-queued canned JSON per schema name, grounded on
// the same double used in internal/session's handler tests.
type scriptedClient struct {
	queues map[string][]string
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{queues: make(map[string][]string)}
}

func (c *scriptedClient) push(schema, raw string) {
	c.queues[schema] = append(c.queues[schema], raw)
}

func (c *scriptedClient) CompleteStructured(_ context.Context, req llm.StructuredRequest) (llm.StructuredResponse, error) {
	q := c.queues[req.SchemaName]
	if len(q) == 0 {
		return llm.StructuredResponse{}, fmt.Errorf("scriptedClient: no canned response queued for schema %q", req.SchemaName)
	}
	raw := q[0]
	c.queues[req.SchemaName] = q[1:]
	return llm.StructuredResponse{RawJSON: raw}, nil
}

func newDeps(client llm.Client) session.Deps {
	return session.Deps{
		Analyzer:  analyzer.New(client),
		Updater:   updater.New(similarity.New(similarity.DefaultConfig(), nil)),
		Stage:     stage.New(exprcache.New(8)),
		Generator: question.New(client),
	}
}

// fakeStore is an in-memory session.Store, mirroring the fakeStore used in
// internal/session's manager tests.
type fakeStore struct {
	data map[string][]byte
}

func newFakeStore() *fakeStore { return &fakeStore{data: make(map[string][]byte)} }

func (s *fakeStore) Get(_ context.Context, sessionID string) ([]byte, error) {
	data, ok := s.data[sessionID]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return data, nil
}

func (s *fakeStore) Put(_ context.Context, sessionID string, data []byte) error {
	s.data[sessionID] = data
	return nil
}

func (s *fakeStore) Delete(_ context.Context, sessionID string) error {
	delete(s.data, sessionID)
	return nil
}

func newTestRouter(t *testing.T, client llm.Client, store session.Store) (*gin.Engine, *session.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager := session.NewManager(8, time.Hour, store)
	deps := newDeps(client)
	projects := config.NewProjectRegistry()
	log := logger.New(config.LoggingConfig{Level: "error", Format: "text"})
	handlers := NewInterviewHandlers(manager, deps, projects, log)

	router := gin.New()
	router.Use(Recovery(log))
	interview := router.Group("/interview")
	{
		interview.POST("/chat", handlers.HandleChat)
		interview.POST("/load", handlers.HandleLoad)
		interview.POST("/save_order", handlers.HandleSaveOrder)
		interview.GET("/config/:project_slug", handlers.HandleProjectConfig)
	}
	router.DELETE("/session/:id", handlers.HandleDeleteSession)
	return router, manager
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func ideaCheckJSON(isRelevant bool, summary string) string {
	return fmt.Sprintf(`{"is_relevant":%t,"summary":%q}`, isRelevant, summary)
}

func nextQuestionJSON(q string) string {
	return fmt.Sprintf(`{"Next":{"NextQuestion":%q,"AskingIntervieweeFor":"attribute","ThoughtProcess":"probe","EndOfInterview":false}}`, q)
}

func TestHandleChat_FirstMessageCreatesSessionAndReturnsIdeaNode(t *testing.T) {
	client := newScriptedClient()
	client.push("idea_check", ideaCheckJSON(true, "wants fresh produce"))
	client.push("next_question", nextQuestionJSON("What makes fresh produce matter to you?"))

	store := newFakeStore()
	router, _ := newTestRouter(t, client, store)

	rec := doJSON(t, router, http.MethodPost, "/interview/chat", chatRequest{
		Stimulus:    "organic vegetables",
		Message:     "I want fresh produce",
		ProjectSlug: "acme",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	require.Len(t, resp.Chains, 1)
	assert.Equal(t, models.LabelIdea, resp.Chains[0].Label)
	assert.Equal(t, "What makes fresh produce matter to you?", resp.Next.NextQuestion)
}

func TestHandleChat_UnknownStimulusStillProcessesNewHandler(t *testing.T) {
	client := newScriptedClient()
	client.push("idea_check", ideaCheckJSON(false, "off topic"))
	client.push("next_question", nextQuestionJSON("Let's get back to it."))

	store := newFakeStore()
	router, _ := newTestRouter(t, client, store)

	rec := doJSON(t, router, http.MethodPost, "/interview/chat", chatRequest{
		SessionID:   "sess-known",
		Stimulus:    "organic vegetables",
		Message:     "what's the weather like",
		ProjectSlug: "acme",
	})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleChat_MissingRequiredFieldReturnsValidationError(t *testing.T) {
	client := newScriptedClient()
	store := newFakeStore()
	router, _ := newTestRouter(t, client, store)

	rec := doJSON(t, router, http.MethodPost, "/interview/chat", map[string]string{
		"session_id": "sess-1",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, "VALIDATION_FAILED", apiErr.Code)
}

func TestHandleChat_AnalyzerFailureReturnsAPIError(t *testing.T) {
	client := newScriptedClient() // no canned idea_check response queued
	store := newFakeStore()
	router, _ := newTestRouter(t, client, store)

	rec := doJSON(t, router, http.MethodPost, "/interview/chat", chatRequest{
		Stimulus:    "organic vegetables",
		Message:     "hello",
		ProjectSlug: "acme",
	})
	// processIdeaStage swallows the analyzer error (producedRequired=false)
	// but the generator still needs a next_question response, which is
	// also unqueued, so the turn ultimately fails.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleLoad_UnknownSessionReturnsNotFound(t *testing.T) {
	client := newScriptedClient()
	store := newFakeStore()
	router, _ := newTestRouter(t, client, store)

	rec := doJSON(t, router, http.MethodPost, "/interview/load", loadRequest{
		SessionID:   "ghost",
		ProjectSlug: "acme",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, "SESSION_NOT_FOUND", apiErr.Code)
}

func TestHandleLoad_ReturnsChatHistoryAfterChat(t *testing.T) {
	client := newScriptedClient()
	client.push("idea_check", ideaCheckJSON(true, "wants fresh produce"))
	client.push("next_question", nextQuestionJSON("Why does that matter?"))
	store := newFakeStore()
	router, _ := newTestRouter(t, client, store)

	chatRec := doJSON(t, router, http.MethodPost, "/interview/chat", chatRequest{
		SessionID:   "sess-load",
		Stimulus:    "organic vegetables",
		Message:     "I want fresh produce",
		ProjectSlug: "acme",
	})
	require.Equal(t, http.StatusOK, chatRec.Code)

	loadRec := doJSON(t, router, http.MethodPost, "/interview/load", loadRequest{
		SessionID:   "sess-load",
		ProjectSlug: "acme",
	})
	require.Equal(t, http.StatusOK, loadRec.Code)

	var resp loadResponse
	require.NoError(t, json.Unmarshal(loadRec.Body.Bytes(), &resp))
	assert.Equal(t, "sess-load", resp.SessionID)
	require.Contains(t, resp.ChatHistory, "organic vegetables")
	assert.Len(t, resp.ChatHistory["organic vegetables"], 2) // user + system
}

func TestHandleSaveOrder_PersistsPresentationOrder(t *testing.T) {
	client := newScriptedClient()
	client.push("idea_check", ideaCheckJSON(true, "wants fresh produce"))
	client.push("next_question", nextQuestionJSON("Why does that matter?"))
	store := newFakeStore()
	router, _ := newTestRouter(t, client, store)

	doJSON(t, router, http.MethodPost, "/interview/chat", chatRequest{
		SessionID:   "sess-order",
		Stimulus:    "organic vegetables",
		Message:     "I want fresh produce",
		ProjectSlug: "acme",
	})

	rec := doJSON(t, router, http.MethodPost, "/interview/save_order", saveOrderRequest{
		SessionID:         "sess-order",
		PresentationOrder: []string{"organic vegetables", "locally sourced meat"},
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandleSaveOrder_UnknownSessionReturnsNotFound(t *testing.T) {
	client := newScriptedClient()
	store := newFakeStore()
	router, _ := newTestRouter(t, client, store)

	rec := doJSON(t, router, http.MethodPost, "/interview/save_order", saveOrderRequest{
		SessionID:         "ghost",
		PresentationOrder: []string{"x"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDeleteSession_RemovesSession(t *testing.T) {
	client := newScriptedClient()
	client.push("idea_check", ideaCheckJSON(true, "wants fresh produce"))
	client.push("next_question", nextQuestionJSON("Why does that matter?"))
	store := newFakeStore()
	router, _ := newTestRouter(t, client, store)

	doJSON(t, router, http.MethodPost, "/interview/chat", chatRequest{
		SessionID:   "sess-del",
		Stimulus:    "organic vegetables",
		Message:     "I want fresh produce",
		ProjectSlug: "acme",
	})

	delReq := httptest.NewRequest(http.MethodDelete, "/session/sess-del", nil)
	delRec := httptest.NewRecorder()
	router.ServeHTTP(delRec, delReq)
	assert.Equal(t, http.StatusNoContent, delRec.Code)

	loadRec := doJSON(t, router, http.MethodPost, "/interview/load", loadRequest{
		SessionID:   "sess-del",
		ProjectSlug: "acme",
	})
	assert.Equal(t, http.StatusNotFound, loadRec.Code)
}

func TestHandleProjectConfig_ReturnsDefaultsForUnregisteredSlug(t *testing.T) {
	client := newScriptedClient()
	store := newFakeStore()
	router, _ := newTestRouter(t, client, store)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/interview/config/unregistered", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var defaults config.ProjectDefaults
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &defaults))
	assert.Equal(t, "unregistered", defaults.Slug)
}
