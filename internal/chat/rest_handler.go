package chat

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

// SessionAccess authorizes reads: the caller must belong to the session's group.
type SessionAccess interface {
	Access(ctx context.Context, sessionID, userID uuid.UUID) (*sessions.Access, error)
}

type JSONHandler struct {
	store  *Store
	access SessionAccess
	log    *zap.Logger
}

func NewJSONHandler(store *Store, access SessionAccess, log *zap.Logger) *JSONHandler {
	return &JSONHandler{
		store:  store,
		access: access,
		log:    log,
	}
}

type sendMessageRequest struct {
	Content string         `json:"content" validate:"required"`
	ReplyTo *int64         `json:"reply_to,omitempty" validate:"omitempty,gt=0"`
	Meta    map[string]any `json:"metadata,omitempty"`
}

type editMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

func (h *JSONHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.caller(w, r)
	if !ok {
		return
	}
	limit, err := api.QueryInt(r, "limit", defaultPageSize)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	offset, err := api.QueryInt(r, "offset", 0)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	if _, err := h.access.Access(r.Context(), sessionID, userID); err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	messages, err := h.store.List(r.Context(), sessionID, limit, offset)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	if messages == nil {
		messages = []*Message{}
	}
	api.WriteJSON(w, http.StatusOK, messages)
}

func (h *JSONHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := api.Decode(r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	m, err := h.store.Append(r.Context(), AppendRequest{
		SessionID: sessionID,
		SenderID:  &userID,
		Content:   req.Content,
		Type:      TypeUser,
		Metadata:  req.Meta,
		ReplyTo:   req.ReplyTo,
	})
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, m)
}

func (h *JSONHandler) Edit(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.caller(w, r)
	if !ok {
		return
	}
	messageID, err := api.PathInt64(r, "messageID")
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	var req editMessageRequest
	if err := api.Decode(r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	m, err := h.store.Edit(r.Context(), sessionID, messageID, userID, req.Content)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, m)
}

func (h *JSONHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.caller(w, r)
	if !ok {
		return
	}
	messageID, err := api.PathInt64(r, "messageID")
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	if err := h.store.Delete(r.Context(), sessionID, messageID, userID); err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *JSONHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.caller(w, r)
	if !ok {
		return
	}
	messageID, err := api.PathInt64(r, "messageID")
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	if _, err := h.access.Access(r.Context(), sessionID, userID); err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	events, err := h.store.History(r.Context(), sessionID, messageID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, events)
}

func (h *JSONHandler) caller(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
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
	return userID, sessionID, true
}

// SetupJSONRoutes Helper function to set up routes
func SetupJSONRoutes(r *mux.Router, h *JSONHandler) {
	r.HandleFunc("/sessions/{id}/messages", h.List).Methods("GET")
	r.HandleFunc("/sessions/{id}/messages", h.Send).Methods("POST")
	r.HandleFunc("/sessions/{id}/messages/{messageID}", h.Edit).Methods("PATCH")
	r.HandleFunc("/sessions/{id}/messages/{messageID}", h.Delete).Methods("DELETE")
	r.HandleFunc("/sessions/{id}/messages/{messageID}/history", h.History).Methods("GET")
}
