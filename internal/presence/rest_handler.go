package presence

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"labspace/internal/api"
	"labspace/internal/auth"
	"labspace/internal/sessions"
)

type SessionAccess interface {
	Access(ctx context.Context, sessionID, userID uuid.UUID) (*sessions.Access, error)
}

type JSONHandler struct {
	tracker *Tracker
	access  SessionAccess
	log     *zap.Logger
}

func NewJSONHandler(tracker *Tracker, access SessionAccess, log *zap.Logger) *JSONHandler {
	return &JSONHandler{
		tracker: tracker,
		access:  access,
		log:     log,
	}
}

type setPresenceRequest struct {
	Status string `json:"status" validate:"required,oneof=online away offline"`
}

// authorize resolves the caller and checks they belong to the session's group.
func (h *JSONHandler) authorize(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	userID, err := auth.CurrentUser(r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return uuid.Nil, uuid.Nil, false
	}
	sessionID, err := api.PathUUID(r, "id")
	if err != nil {
		api.WriteError(w, h.log, err)
		return uuid.Nil, uuid.Nil, false
	}
	if _, err := h.access.Access(r.Context(), sessionID, userID); err != nil {
		api.WriteError(w, h.log, err)
		return uuid.Nil, uuid.Nil, false
	}
	return userID, sessionID, true
}

func (h *JSONHandler) Set(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var req setPresenceRequest
	if err := api.Decode(r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	if err := h.tracker.SetPresence(r.Context(), sessionID, userID, Status(req.Status)); err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *JSONHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	if err := h.tracker.Heartbeat(r.Context(), sessionID, userID); err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *JSONHandler) ListOnline(w http.ResponseWriter, r *http.Request) {
	_, sessionID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	online, err := h.tracker.ListOnline(r.Context(), sessionID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, online)
}

// SetupJSONRoutes Helper function to set up routes
func SetupJSONRoutes(r *mux.Router, h *JSONHandler) {
	r.HandleFunc("/sessions/{id}/presence", h.Set).Methods("PUT")
	r.HandleFunc("/sessions/{id}/presence", h.ListOnline).Methods("GET")
	r.HandleFunc("/sessions/{id}/presence/heartbeat", h.Heartbeat).Methods("POST")
}
