package assistant

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"labspace/internal/api"
	"labspace/internal/auth"
)

type JSONHandler struct {
	service *Service
	log     *zap.Logger
}

func NewJSONHandler(service *Service, log *zap.Logger) *JSONHandler {
	return &JSONHandler{
		service: service,
		log:     log,
	}
}

type askRequest struct {
	Question string `json:"question" validate:"required"`
}

type gateResponse struct {
	CanInvoke bool `json:"can_invoke"`
}

func (h *JSONHandler) CanInvoke(w http.ResponseWriter, r *http.Request) {
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

	ok, err := h.service.CanInvoke(r.Context(), sessionID, userID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, gateResponse{CanInvoke: ok})
}

func (h *JSONHandler) Ask(w http.ResponseWriter, r *http.Request) {
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

	var req askRequest
	if err := api.Decode(r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	question, err := h.service.Ask(r.Context(), sessionID, userID, req.Question)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusAccepted, question)
}

// SetupJSONRoutes Helper function to set up routes
func SetupJSONRoutes(r *mux.Router, h *JSONHandler) {
	r.HandleFunc("/sessions/{id}/assistant", h.CanInvoke).Methods("GET")
	r.HandleFunc("/sessions/{id}/assistant", h.Ask).Methods("POST")
}
