package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"labspace/config"
	"labspace/internal/api"
	"labspace/internal/assistant"
	"labspace/internal/auth"
	"labspace/internal/chat"
	"labspace/internal/groups"
	"labspace/internal/livesync"
	"labspace/internal/observability"
	"labspace/internal/presence"
	"labspace/internal/sessions"
	"labspace/internal/user"
)

func newRouter(app *App, cfg *config.Config, log *zap.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(api.Recover(log), api.Logger(log))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")
	r.Handle("/metrics", observability.Handler()).Methods("GET")

	secured := r.NewRoute().Subrouter()
	secured.Use(
		app.Middleware.Authenticate,
		api.RateLimitMiddleware(api.NewRateLimiter(cfg.RateLimitRPS), auth.RequestKey),
	)

	user.SetupJSONRoutes(secured, app.Users)
	groups.SetupJSONRoutes(secured, app.Groups)
	sessions.SetupJSONRoutes(secured, app.Sessions)
	chat.SetupJSONRoutes(secured, app.Messages)
	presence.SetupJSONRoutes(secured, app.Presence)
	assistant.SetupJSONRoutes(secured, app.Assistant)
	livesync.SetupRoutes(secured, app.Live)

	return r
}
