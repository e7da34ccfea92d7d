package sessions

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"labspace/internal/api"
	"labspace/internal/auth"
)

type JSONHandler struct {
	registry *Registry
	log      *zap.Logger
}

func NewJSONHandler(registry *Registry, log *zap.Logger) *JSONHandler {
	return &JSONHandler{
		registry: registry,
		log:      log,
	}
}

type createSessionRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Status      string `json:"status" validate:"omitempty,oneof=waiting active"`
}

func (h *JSONHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.CurrentUser(r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	groupID, err := api.PathUUID(r, "id")
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	var req createSessionRequest
	if err := api.Decode(r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	s, err := h.registry.CreateSession(r.Context(), CreateSessionInput{
		GroupID:     groupID,
		Title:       req.Title,
		Description: req.Description,
		Status:      Status(req.Status),
	}, userID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, s)
}

func (h *JSONHandler) ListGroupSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.CurrentUser(r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	groupID, err := api.PathUUID(r, "id")
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	sessions, err := h.registry.ListGroupSessions(r.Context(), groupID, userID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, sessions)
}

func (h *JSONHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(userID, sessionID uuid.UUID) (any, int, error) {
		access, err := h.registry.Access(r.Context(), sessionID, userID)
		return access, http.StatusOK, err
	})
}

func (h *JSONHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(userID, sessionID uuid.UUID) (any, int, error) {
		s, err := h.registry.StartSession(r.Context(), sessionID, userID)
		return s, http.StatusOK, err
	})
}

func (h *JSONHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(userID, sessionID uuid.UUID) (any, int, error) {
		s, err := h.registry.CloseSession(r.Context(), sessionID, userID)
		return s, http.StatusOK, err
	})
}

func (h *JSONHandler) Join(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(userID, sessionID uuid.UUID) (any, int, error) {
		p, err := h.registry.JoinSession(r.Context(), sessionID, userID)
		return p, http.StatusOK, err
	})
}

func (h *JSONHandler) Leave(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(userID, sessionID uuid.UUID) (any, int, error) {
		return nil, http.StatusNoContent, h.registry.LeaveSession(r.Context(), sessionID, userID)
	})
}

func (h *JSONHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(userID, sessionID uuid.UUID) (any, int, error) {
		if _, err := h.registry.Access(r.Context(), sessionID, userID); err != nil {
			return nil, 0, err
		}
		participants, err := h.registry.ListParticipants(r.Context(), sessionID)
		return participants, http.StatusOK, err
	})
}

func (h *JSONHandler) withSession(w http.ResponseWriter, r *http.Request, fn func(userID, sessionID uuid.UUID) (any, int, error)) {
	userID, err := auth.CurrentUser(r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	sessionID, err := api.PathUUID(r, "id")
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	body, status, err := fn(userID, sessionID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	api.WriteJSON(w, status, body)
}

// SetupJSONRoutes Helper function to set up routes
func SetupJSONRoutes(r *mux.Router, h *JSONHandler) {
	r.HandleFunc("/groups/{id}/sessions", h.CreateSession).Methods("POST")
	r.HandleFunc("/groups/{id}/sessions", h.ListGroupSessions).Methods("GET")
	r.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	r.HandleFunc("/sessions/{id}/start", h.Start).Methods("POST")
	r.HandleFunc("/sessions/{id}/close", h.Close).Methods("POST")
	r.HandleFunc("/sessions/{id}/join", h.Join).Methods("POST")
	r.HandleFunc("/sessions/{id}/leave", h.Leave).Methods("POST")
	r.HandleFunc("/sessions/{id}/participants", h.ListParticipants).Methods("GET")
}
