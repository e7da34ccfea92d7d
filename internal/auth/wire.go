package auth

import (
	"time"

	"github.com/google/wire"
	"go.uber.org/zap"
	"labspace/config"
	"labspace/pkg/jwt"
)

// ProvideTokens is a Wire provider function that creates the identity token verifier
func ProvideTokens(cfg *config.Config) *jwt.JWT {
	return jwt.NewJWT(cfg.IDPSigningSecret, cfg.IDPIssuer, time.Hour)
}

func ProvideMiddleware(tokens *jwt.JWT, resolver Resolver, log *zap.Logger) *Middleware {
	return NewMiddleware(tokens, resolver, log)
}

var Set = wire.NewSet(ProvideTokens, ProvideMiddleware)
