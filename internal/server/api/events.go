package api

import (
	"net/http"
	"strconv"

	"github.com/ayusman/safeschool/internal/store"
)

// MaxEventLimit caps the limit query parameter of GET /api/events.
const MaxEventLimit = 500

// EventHandler serves /api/events.
type EventHandler struct {
	store *store.Store
}

// NewEventHandler creates an EventHandler backed by s.
func NewEventHandler(s *store.Store) *EventHandler {
	return &EventHandler{store: s}
}

// EventResponse is the wire form of a notification event, shared with the
// websocket feed.
type EventResponse struct {
	ID           string  `json:"id"`
	StudentID    string  `json:"student_id"`
	Score        float64 `json:"score"`
	OccurredAt   string  `json:"occurred_at"`
	Destinations int     `json:"destinations"`
	Delivered    int     `json:"delivered"`
	Failures     int     `json:"failures"`
}

// NewEventResponse converts a stored event.
func NewEventResponse(e *store.Event) EventResponse {
	return EventResponse{
		ID:           e.ID,
		StudentID:    e.StudentID,
		Score:        e.Score,
		OccurredAt:   formatTime(e.OccurredAt),
		Destinations: e.Destinations,
		Delivered:    e.Delivered,
		Failures:     e.Failures,
	}
}

type listEventsResponse struct {
	Events []EventResponse `json:"events"`
}

// List handles GET /api/events?limit=N, newest first.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, MaxEventLimit)
	}

	events, err := h.store.Events().Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}

	response := listEventsResponse{
		Events: make([]EventResponse, 0, len(events)),
	}
	for _, e := range events {
		response.Events = append(response.Events, NewEventResponse(e))
	}

	writeJSON(w, http.StatusOK, response)
}
