package livesync

import (
	"github.com/google/wire"
	"go.uber.org/zap"
	"labspace/internal/assistant"
	"labspace/internal/chat"
	"labspace/internal/feed"
	"labspace/internal/presence"
	"labspace/internal/realtime"
	"labspace/internal/sessions"
)

func ProvideCoordinator(store *chat.Store, tracker *presence.Tracker, registry *sessions.Registry, subscriber feed.Subscriber, log *zap.Logger) *Coordinator {
	return NewCoordinator(store, tracker, registry, subscriber, DefaultOptions(), log)
}

// ProvideRouter closes every open socket on shutdown.
func ProvideRouter() (*realtime.Router, func()) {
	r := realtime.NewRouter()
	return r, r.Close
}

func ProvideSocketHandler(
	coordinator *Coordinator,
	router *realtime.Router,
	store *chat.Store,
	tracker *presence.Tracker,
	asker *assistant.Service,
	log *zap.Logger,
) *SocketHandler {
	return NewSocketHandler(coordinator, router, store, tracker, asker, log)
}

var Set = wire.NewSet(ProvideCoordinator, ProvideRouter, ProvideSocketHandler)
