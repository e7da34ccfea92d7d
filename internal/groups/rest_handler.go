package groups

import (
	"net/http"

	"github.com/google/uuid"
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

type createGroupRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	IsPublic    bool   `json:"is_public"`
}

type updateGroupRequest struct {
	Name             *string `json:"name,omitempty"`
	Description      *string `json:"description,omitempty"`
	IsPublic         *bool   `json:"is_public,omitempty"`
	AssistantEnabled *bool   `json:"assistant_enabled,omitempty"`
}

type joinRequest struct {
	InviteCode string `json:"invite_code" validate:"required"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required"`
}

type inviteRequest struct {
	Email string `json:"email" validate:"required"`
}

type inviteCodeResponse struct {
	InviteCode string `json:"invite_code"`
}

func (h *JSONHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.CurrentUser(r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	var req createGroupRequest
	if err := api.Decode(r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	g, err := h.service.CreateGroup(r.Context(), CreateGroupInput{
		Name:        req.Name,
		Description: req.Description,
		IsPublic:    req.IsPublic,
	}, userID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	api.WriteJSON(w, http.StatusCreated, g)
}

func (h *JSONHandler) ListUserGroups(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.CurrentUser(r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	groups, err := h.service.ListUserGroups(r.Context(), userID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, groups)
}

func (h *JSONHandler) ListPublicGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListPublicGroups(r.Context())
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, groups)
}

func (h *JSONHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	userID, groupID, ok := h.userAndGroup(w, r)
	if !ok {
		return
	}

	g, err := h.service.GetGroup(r.Context(), groupID, userID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, g)
}

func (h *JSONHandler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	userID, groupID, ok := h.userAndGroup(w, r)
	if !ok {
		return
	}

	var req updateGroupRequest
	if err := api.Decode(r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	g, err := h.service.UpdateGroup(r.Context(), groupID, userID, GroupPatch{
		Name:             req.Name,
		Description:      req.Description,
		IsPublic:         req.IsPublic,
		AssistantEnabled: req.AssistantEnabled,
	})
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, g)
}

func (h *JSONHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.CurrentUser(r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	var req joinRequest
	if err := api.Decode(r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	m, err := h.service.JoinByInviteCode(r.Context(), req.InviteCode, userID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, m)
}

func (h *JSONHandler) RegenerateInviteCode(w http.ResponseWriter, r *http.Request) {
	userID, groupID, ok := h.userAndGroup(w, r)
	if !ok {
		return
	}

	code, err := h.service.RegenerateInviteCode(r.Context(), groupID, userID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, inviteCodeResponse{InviteCode: code})
}

func (h *JSONHandler) SendInvite(w http.ResponseWriter, r *http.Request) {
	userID, groupID, ok := h.userAndGroup(w, r)
	if !ok {
		return
	}

	var req inviteRequest
	if err := api.Decode(r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	if err := h.service.SendInvite(r.Context(), groupID, userID, req.Email); err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *JSONHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID, groupID, ok := h.userAndGroup(w, r)
	if !ok {
		return
	}

	members, err := h.service.ListMembers(r.Context(), groupID, userID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, members)
}

func (h *JSONHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	userID, groupID, ok := h.userAndGroup(w, r)
	if !ok {
		return
	}
	targetID, err := api.PathUUID(r, "userID")
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	var req roleRequest
	if err := api.Decode(r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	if err := h.service.UpdateMemberRole(r.Context(), groupID, targetID, Role(req.Role), userID); err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *JSONHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, groupID, ok := h.userAndGroup(w, r)
	if !ok {
		return
	}
	targetID, err := api.PathUUID(r, "userID")
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	if err := h.service.RemoveMember(r.Context(), groupID, targetID, userID); err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *JSONHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID, groupID, ok := h.userAndGroup(w, r)
	if !ok {
		return
	}

	if err := h.service.LeaveGroup(r.Context(), groupID, userID); err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *JSONHandler) userAndGroup(w http.ResponseWriter, r *http.Request) (userID, groupID uuid.UUID, ok bool) {
	uid, err := auth.CurrentUser(r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return userID, groupID, false
	}
	gid, err := api.PathUUID(r, "id")
	if err != nil {
		api.WriteError(w, h.log, err)
		return userID, groupID, false
	}
	return uid, gid, true
}

// SetupJSONRoutes Helper function to set up routes
func SetupJSONRoutes(r *mux.Router, h *JSONHandler) {
	r.HandleFunc("/groups", h.CreateGroup).Methods("POST")
	r.HandleFunc("/groups", h.ListUserGroups).Methods("GET")
	r.HandleFunc("/groups/public", h.ListPublicGroups).Methods("GET")
	r.HandleFunc("/groups/join", h.Join).Methods("POST")
	r.HandleFunc("/groups/{id}", h.GetGroup).Methods("GET")
	r.HandleFunc("/groups/{id}", h.UpdateGroup).Methods("PATCH")
	r.HandleFunc("/groups/{id}/invite-code", h.RegenerateInviteCode).Methods("POST")
	r.HandleFunc("/groups/{id}/invites", h.SendInvite).Methods("POST")
	r.HandleFunc("/groups/{id}/members", h.ListMembers).Methods("GET")
	r.HandleFunc("/groups/{id}/members/{userID}/role", h.UpdateMemberRole).Methods("PUT")
	r.HandleFunc("/groups/{id}/members/{userID}", h.RemoveMember).Methods("DELETE")
	r.HandleFunc("/groups/{id}/leave", h.Leave).Methods("POST")
}
