package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/safeschool/internal/bot"
	"github.com/ayusman/safeschool/internal/store"
)

// TokenHandler serves /api/tokens.
type TokenHandler struct {
	store       *store.Store
	botUsername string
}

// NewTokenHandler creates a TokenHandler. When botUsername is set, issued
// tokens come back with their deep link.
func NewTokenHandler(s *store.Store, botUsername string) *TokenHandler {
	return &TokenHandler{store: s, botUsername: botUsername}
}

// Routes returns the token routes, to be mounted under /api/tokens.
func (h *TokenHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.issue)
	return r
}

type issueTokenRequest struct {
	StudentID string `json:"student_id"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	StudentID string `json:"student_id"`
	Link      string `json:"link,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type listTokensResponse struct {
	Tokens []tokenResponse `json:"tokens"`
}

func (h *TokenHandler) link(token string) string {
	if h.botUsername == "" {
		return ""
	}
	return bot.DeepLink(h.botUsername, token)
}

func (h *TokenHandler) list(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.store.Tokens().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tokens")
		return
	}

	response := listTokensResponse{
		Tokens: make([]tokenResponse, 0, len(tokens)),
	}
	for _, t := range tokens {
		response.Tokens = append(response.Tokens, tokenResponse{
			Token:     t.Token,
			StudentID: t.StudentID,
			Link:      h.link(t.Token),
			CreatedAt: formatTime(t.CreatedAt),
		})
	}

	writeJSON(w, http.StatusOK, response)
}

// issue returns the student's pending token, creating it if needed.
func (h *TokenHandler) issue(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	sid := store.NormalizeStudentID(req.StudentID)
	if sid == "" {
		writeError(w, http.StatusBadRequest, "student_id is required")
		return
	}

	token, err := h.store.Tokens().Issue(sid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		StudentID: sid,
		Link:      h.link(token),
	})
}
