package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"labspace/infrastructure"
	"labspace/internal/api"
	"labspace/pkg/jwt"
)

type Middleware struct {
	tokens   *jwt.JWT
	resolver Resolver
	log      *zap.Logger
}

func NewMiddleware(tokens *jwt.JWT, resolver Resolver, log *zap.Logger) *Middleware {
	return &Middleware{tokens: tokens, resolver: resolver, log: log}
}

// Authenticate verifies the bearer token and puts the local user id on the
// request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			api.WriteError(w, m.log, infrastructure.ErrMissingToken)
			return
		}

		claims, err := m.tokens.ValidateToken(token)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				api.WriteError(w, m.log, infrastructure.ErrTokenExpired)
				return
			}
			api.WriteError(w, m.log, infrastructure.ErrInvalidToken)
			return
		}

		userID, err := m.resolver.ResolveIdentity(r.Context(), Identity{
			ExternalID:  claims.Subject,
			DisplayName: claims.Name,
			Guest:       claims.Guest,
		})
		if err != nil {
			api.WriteError(w, m.log, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// RequestKey keys rate limiting by the bearer token so users behind one
// address do not share a bucket.
func RequestKey(r *http.Request) string {
	return bearerToken(r)
}

// bearerToken reads the Authorization header. Browsers cannot set headers on
// websocket upgrades, so the access_token query parameter is accepted too.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("access_token")
}

// CurrentUser is used by handlers behind Authenticate.
func CurrentUser(r *http.Request) (uuid.UUID, error) {
	id, ok := UserIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, infrastructure.ErrUnauthorized
	}
	return id, nil
}
