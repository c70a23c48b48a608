package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ladderflow/engine/internal/config"
	"github.com/ladderflow/engine/internal/export"
	"github.com/ladderflow/engine/internal/logger"
	"github.com/ladderflow/engine/internal/models"
	"github.com/ladderflow/engine/internal/session"
)

// InterviewHandlers implements spec §6's HTTP endpoint surface over the
// Session Manager, grounded on the teacher's handler-struct-plus-deps
// pattern (internal/infrastructure/api/rest/handlers_triggers.go).
type InterviewHandlers struct {
	manager  *session.Manager
	deps     session.Deps
	projects *config.ProjectRegistry
	logger   *logger.Logger
}

// NewInterviewHandlers wires the handler set.
func NewInterviewHandlers(manager *session.Manager, deps session.Deps, projects *config.ProjectRegistry, log *logger.Logger) *InterviewHandlers {
	return &InterviewHandlers{manager: manager, deps: deps, projects: projects, logger: log}
}

type chatRequest struct {
	SessionID    string            `json:"session_id"`
	Stimulus     string            `json:"stimulus" binding:"required"`
	Message      string            `json:"message" binding:"required"`
	ProjectSlug  string            `json:"project_slug" binding:"required"`
	TemplateVars map[string]string `json:"template_vars,omitempty"`
}

type nextPayload struct {
	NextQuestion         string                  `json:"next_question"`
	AskingIntervieweeFor string                  `json:"asking_interviewee_for,omitempty"`
	ThoughtProcess       string                  `json:"thought_process,omitempty"`
	EndOfInterview       bool                    `json:"end_of_interview"`
	CompletionReason     models.CompletionReason `json:"completion_reason,omitempty"`
}

type chatResponse struct {
	SessionID string            `json:"session_id"`
	Next      nextPayload       `json:"Next"`
	Chains    []chainEntry      `json:"Chains"`
	Tree      models.MergedTree `json:"Tree"`
}

type chainEntry struct {
	NodeID     uuid.UUID    `json:"node_id"`
	Label      models.Label `json:"label"`
	Conclusion string       `json:"conclusion"`
	IsNew      bool         `json:"is_new"`
}

// HandleChat implements POST /interview/chat (spec §6): processes one
// interviewee message against the named stimulus's chat handler, creating
// the session on first call.
func (h *InterviewHandlers) HandleChat(c *gin.Context) {
	var req chatRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	defaults := h.projects.Resolve(req.ProjectSlug)

	var resp chatResponse
	err := h.manager.WithLock(sessionID, func() error {
		ctx := c.Request.Context()
		sess, loadErr := h.manager.Load(ctx, sessionID)
		if loadErr != nil {
			sess = session.New(sessionID, defaults.Topic, []string{req.Stimulus}, defaults.NValuesMax, defaults.MaxRetries)
		}

		cfg := models.ChatConfig{NValuesMax: defaults.NValuesMax, MaxRetries: defaults.MaxRetries, MinNodes: defaults.MinNodes}
		handler := sess.HandlerFor(req.Stimulus, cfg)

		turn, turnErr := handler.ProcessTurn(ctx, h.deps, req.Message)
		if turnErr != nil {
			return turnErr
		}

		if saveErr := h.manager.Save(ctx, sess); saveErr != nil {
			return saveErr
		}

		resp = chatResponse{
			SessionID: sessionID,
			Next: nextPayload{
				NextQuestion:         turn.Question.NextQuestion,
				AskingIntervieweeFor: turn.Question.AskingIntervieweeFor,
				ThoughtProcess:       turn.Question.ThoughtProcess,
				EndOfInterview:       turn.Question.EndOfInterview,
				CompletionReason:     turn.Question.CompletionReason,
			},
			Tree: export.Merge(sess.Topic, []export.StimulusTree{{
				Stimulus: req.Stimulus,
				RootID:   handler.Graph.RootID(),
				Nodes:    handler.Graph.AllNodes(),
			}}),
		}
		for _, g := range turn.GraftedNodes {
			resp.Chains = append(resp.Chains, chainEntry{
				NodeID:     g.Node.ID,
				Label:      g.Node.Label,
				Conclusion: g.Node.Conclusion,
				IsNew:      g.IsNew,
			})
		}
		return nil
	})
	if err != nil {
		h.logger.Error("chat turn failed", "session_id", sessionID, "stimulus", req.Stimulus, "error", err, "request_id", GetRequestID(c))
		respondAPIError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, resp)
}

type loadRequest struct {
	SessionID   string `json:"session_id" binding:"required"`
	ProjectSlug string `json:"project_slug" binding:"required"`
}

type loadResponse struct {
	SessionID   string                         `json:"session_id"`
	ChatHistory map[string][]models.ChatHistoryEntry `json:"chat_history"`
	Tree        models.MergedTree             `json:"Tree"`
}

// HandleLoad implements POST /interview/load (spec §6): returns full chat
// histories per stimulus plus the merged tree.
func (h *InterviewHandlers) HandleLoad(c *gin.Context) {
	var req loadRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	sess, err := h.manager.Load(c.Request.Context(), req.SessionID)
	if err != nil {
		respondAPIError(c, err)
		return
	}

	resp := loadResponse{SessionID: sess.SessionID, ChatHistory: make(map[string][]models.ChatHistoryEntry)}
	var trees []export.StimulusTree
	for _, stimulus := range sess.Stimuli {
		handler, ok := sess.Handlers[stimulus]
		if !ok {
			continue
		}
		resp.ChatHistory[stimulus] = handler.ChatHistory
		trees = append(trees, export.StimulusTree{
			Stimulus: stimulus,
			RootID:   handler.Graph.RootID(),
			Nodes:    handler.Graph.AllNodes(),
		})
	}
	resp.Tree = export.Merge(sess.Topic, trees)
	respondJSON(c, http.StatusOK, resp)
}

type saveOrderRequest struct {
	SessionID         string   `json:"session_id" binding:"required"`
	PresentationOrder []string `json:"presentation_order" binding:"required"`
}

// HandleSaveOrder implements POST /interview/save_order (spec §6): records
// the per-session presentation order of stimuli.
func (h *InterviewHandlers) HandleSaveOrder(c *gin.Context) {
	var req saveOrderRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	err := h.manager.WithLock(req.SessionID, func() error {
		ctx := c.Request.Context()
		sess, loadErr := h.manager.Load(ctx, req.SessionID)
		if loadErr != nil {
			return loadErr
		}
		sess.PresentationOrder = req.PresentationOrder
		return h.manager.Save(ctx, sess)
	})
	if err != nil {
		respondAPIError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleDeleteSession implements DELETE /session/{id} (spec §6).
func (h *InterviewHandlers) HandleDeleteSession(c *gin.Context) {
	sessionID, ok := getParam(c, "id")
	if !ok {
		return
	}
	if err := h.manager.Delete(c.Request.Context(), sessionID); err != nil {
		respondAPIError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleProjectConfig implements the supplemented read-only
// GET /interview/config/{project_slug}, returning the resolved defaults a
// session would start with (SPEC_FULL.md §3).
func (h *InterviewHandlers) HandleProjectConfig(c *gin.Context) {
	slug, ok := getParam(c, "project_slug")
	if !ok {
		return
	}
	respondJSON(c, http.StatusOK, h.projects.Resolve(slug))
}
