package sessions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"labspace/internal/api"
	"labspace/internal/auth"
)

func post(t *testing.T, h http.Handler, path string, userID uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req = req.WithContext(auth.WithUserID(req.Context(), userID))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestJoinHandlerStatusMapping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	router := mux.NewRouter()
	SetupJSONRoutes(router, NewJSONHandler(f.registry, zap.NewNop()))

	s, err := f.registry.CreateSession(ctx, CreateSessionInput{GroupID: f.group.ID, Title: "Kickoff"}, f.admin)
	require.NoError(t, err)
	join := "/sessions/" + s.ID.String() + "/join"

	cases := []struct {
		name   string
		path   string
		user   uuid.UUID
		status int
		code   string
	}{
		{"outsider", join, f.user(t, "outsider"), http.StatusForbidden, "permission"},
		{"unknown session", "/sessions/" + uuid.NewString() + "/join", f.admin, http.StatusNotFound, "not_found"},
		{"malformed id", "/sessions/abc/join", f.admin, http.StatusBadRequest, "validation"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := post(t, router, tc.path, tc.user)
			assert.Equal(t, tc.status, rec.Code)
			var resp api.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tc.code, resp.Code)
		})
	}

	rec := post(t, router, join, f.admin)
	require.Equal(t, http.StatusOK, rec.Code)
	var p Participant
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	assert.Equal(t, f.admin, p.UserID)

	rec = post(t, router, "/sessions/"+s.ID.String()+"/close", f.admin)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = post(t, router, join, f.admin)
	assert.Equal(t, http.StatusConflict, rec.Code)
	var resp api.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "conflict", resp.Code)
}
