package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
	"labspace/infrastructure"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorCode is the wire name of an error kind, shared by HTTP bodies and
// websocket error frames.
func ErrorCode(err error) string {
	switch infrastructure.KindOf(err) {
	case infrastructure.ErrValidation:
		return "validation"
	case infrastructure.ErrNotFound:
		return "not_found"
	case infrastructure.ErrConflict:
		return "conflict"
	case infrastructure.ErrPermission:
		return "permission"
	}
	if isUnauthorized(err) {
		return "unauthorized"
	}
	return "internal"
}

func StatusCode(err error) int {
	switch ErrorCode(err) {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "permission":
		return http.StatusForbidden
	case "unauthorized":
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// PublicMessage hides internal failures from callers.
func PublicMessage(err error) string {
	if ErrorCode(err) == "internal" {
		return infrastructure.ErrInternalServer.Error()
	}
	return err.Error()
}

func WriteError(w http.ResponseWriter, log *zap.Logger, err error) {
	status := StatusCode(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
	}
	WriteJSON(w, status, ErrorResponse{Error: PublicMessage(err), Code: ErrorCode(err)})
}

func isUnauthorized(err error) bool {
	return errors.Is(err, infrastructure.ErrUnauthorized) ||
		errors.Is(err, infrastructure.ErrMissingToken) ||
		errors.Is(err, infrastructure.ErrInvalidToken) ||
		errors.Is(err, infrastructure.ErrTokenExpired)
}
