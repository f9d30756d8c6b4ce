package session

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/confusedguy/firstpr-coach/internal/model/chat"
	"github.com/confusedguy/firstpr-coach/internal/render"
	"github.com/confusedguy/firstpr-coach/internal/service/controller"
	"github.com/confusedguy/firstpr-coach/pkg/utils"
)

// Handler exposes the session controller over HTTP.
type Handler struct {
	ctrl     *controller.Controller
	renderer *render.Pipeline
}

// New creates the session handler.
func New(ctrl *controller.Controller, renderer *render.Pipeline) *Handler {
	return &Handler{ctrl: ctrl, renderer: renderer}
}

// RegisterRoutes registers the session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/repository", h.handleSubmitRepository)
	r.Post("/messages", h.handleSendMessage)
	r.Get("/session", h.handleGetSession)
}

type messageView struct {
	Role    chat.Role `json:"role"`
	Content string    `json:"content"`
	HTML    string    `json:"html"`
}

type sessionView struct {
	RepoURL        string        `json:"repoUrl"`
	Skills         []string      `json:"skills"`
	ActiveIssueURL string        `json:"activeIssueUrl"`
	Messages       []messageView `json:"messages"`
}

// handleSubmitRepository runs the repository/skills form flow.
func (h *Handler) handleSubmitRepository(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RepoURL string   `json:"repoUrl"`
		Skills  []string `json:"skills"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.ctrl.SubmitRepository(r.Context(), payload.RepoURL, payload.Skills); err != nil {
		if errors.Is(err, controller.ErrBusy) {
			utils.RespondError(w, http.StatusConflict, "another request is still in flight")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, h.view())
}

// handleSendMessage routes one free-form user message.
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(payload.Content) == "" {
		utils.RespondError(w, http.StatusBadRequest, "content is required")
		return
	}

	if err := h.ctrl.Send(r.Context(), payload.Content); err != nil {
		if errors.Is(err, controller.ErrBusy) {
			utils.RespondError(w, http.StatusConflict, "another request is still in flight")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, h.view())
}

// handleGetSession returns the full session with per-message rendered HTML,
// so a reloading client can replay the transcript exactly as it was.
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.view())
}

func (h *Handler) view() sessionView {
	snapshot := h.ctrl.Session().Snapshot()

	view := sessionView{
		RepoURL:        snapshot.RepoURL,
		Skills:         snapshot.Skills,
		ActiveIssueURL: snapshot.ActiveIssueURL,
		Messages:       make([]messageView, 0, len(snapshot.Messages)),
	}
	if view.Skills == nil {
		view.Skills = []string{}
	}

	for _, msg := range snapshot.Messages {
		html, err := h.renderer.Render(msg.Content)
		if err != nil {
			log.Printf("[session] render failed: %v", err)
			html = ""
		}
		view.Messages = append(view.Messages, messageView{
			Role:    msg.Role,
			Content: msg.Content,
			HTML:    html,
		})
	}
	return view
}
