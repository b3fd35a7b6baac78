package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/safeschool/internal/store"
)

// BindingHandler serves /api/bindings.
type BindingHandler struct {
	store *store.Store
}

// NewBindingHandler creates a BindingHandler backed by s.
func NewBindingHandler(s *store.Store) *BindingHandler {
	return &BindingHandler{store: s}
}

// Routes returns the binding routes, to be mounted under /api/bindings.
func (h *BindingHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{studentID}", h.get)
	r.Delete("/{studentID}/{chatID}", h.delete)
	return r
}

type bindingRequest struct {
	StudentID string `json:"student_id"`
	ChatID    int64  `json:"chat_id"`
}

type bindingResponse struct {
	StudentID string `json:"student_id"`
	ChatID    int64  `json:"chat_id"`
	CreatedAt string `json:"created_at,omitempty"`
}

type studentResponse struct {
	StudentID string  `json:"student_id"`
	Chats     []int64 `json:"chats"`
}

type listBindingsResponse struct {
	Bindings []bindingResponse `json:"bindings"`
}

func (h *BindingHandler) list(w http.ResponseWriter, r *http.Request) {
	bindings, err := h.store.Bindings().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list bindings")
		return
	}

	response := listBindingsResponse{
		Bindings: make([]bindingResponse, 0, len(bindings)),
	}
	for _, b := range bindings {
		response.Bindings = append(response.Bindings, bindingResponse{
			StudentID: b.StudentID,
			ChatID:    b.ChatID,
			CreatedAt: formatTime(b.CreatedAt),
		})
	}

	writeJSON(w, http.StatusOK, response)
}

// get returns the destinations of one student. A student with no bindings
// is not an error: it simply has no chats.
func (h *BindingHandler) get(w http.ResponseWriter, r *http.Request) {
	sid := store.NormalizeStudentID(chi.URLParam(r, "studentID"))

	chats, err := h.store.Bindings().Lookup(sid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get bindings")
		return
	}
	if chats == nil {
		chats = []int64{}
	}

	writeJSON(w, http.StatusOK, studentResponse{StudentID: sid, Chats: chats})
}

func (h *BindingHandler) create(w http.ResponseWriter, r *http.Request) {
	var req bindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	sid := store.NormalizeStudentID(req.StudentID)
	if sid == "" {
		writeError(w, http.StatusBadRequest, "student_id is required")
		return
	}
	if req.ChatID == 0 {
		writeError(w, http.StatusBadRequest, "chat_id is required")
		return
	}

	created, err := h.store.Bindings().Bind(sid, req.ChatID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create binding")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, bindingResponse{StudentID: sid, ChatID: req.ChatID})
}

func (h *BindingHandler) delete(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid chat id")
		return
	}

	if err := h.store.Bindings().Unbind(chi.URLParam(r, "studentID"), chatID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Binding not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete binding")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
