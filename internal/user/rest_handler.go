package user

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"labspace/internal/api"
	"labspace/internal/auth"
)

type JSONHandler struct {
	directory *Directory
	log       *zap.Logger
}

func NewJSONHandler(directory *Directory, log *zap.Logger) *JSONHandler {
	return &JSONHandler{
		directory: directory,
		log:       log,
	}
}

func (h *JSONHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.CurrentUser(r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	u, err := h.directory.Get(r.Context(), userID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, u)
}

func (h *JSONHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.CurrentUser(r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	var req struct {
		Availability string `json:"availability" validate:"required,oneof=available busy offline"`
	}
	if err := api.Decode(r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	if err := h.directory.SetAvailability(r.Context(), userID, Availability(req.Availability)); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetupJSONRoutes Helper function to set up routes
func SetupJSONRoutes(r *mux.Router, h *JSONHandler) {
	r.HandleFunc("/me", h.Me).Methods("GET")
	r.HandleFunc("/me/availability", h.SetAvailability).Methods("PUT")
}
