package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"labspace/pkg/jwt"
)

type resolverFunc func(ctx context.Context, identity Identity) (uuid.UUID, error)

func (f resolverFunc) ResolveIdentity(ctx context.Context, identity Identity) (uuid.UUID, error) {
	return f(ctx, identity)
}

func TestAuthenticate(t *testing.T) {
	tokens := jwt.NewJWT([]byte("secret"), "", time.Minute)
	localID := uuid.New()
	var seen Identity
	m := NewMiddleware(tokens, resolverFunc(func(_ context.Context, identity Identity) (uuid.UUID, error) {
		seen = identity
		return localID, nil
	}), zap.NewNop())

	var got uuid.UUID
	h := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := CurrentUser(r)
		require.NoError(t, err)
		got = id
		w.WriteHeader(http.StatusNoContent)
	}))

	token, err := tokens.GenerateToken("ext-42", "Grace", true)
	require.NoError(t, err)

	t.Run("header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, localID, got)
		assert.Equal(t, Identity{ExternalID: "ext-42", DisplayName: "Grace", Guest: true}, seen)
	})

	t.Run("query parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/sessions/x/live?access_token="+token, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
