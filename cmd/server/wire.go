//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"go.uber.org/zap"
	"labspace/config"
	"labspace/internal/assistant"
	"labspace/internal/auth"
	"labspace/internal/cache"
	"labspace/internal/chat"
	"labspace/internal/database"
	"labspace/internal/email"
	"labspace/internal/feed"
	"labspace/internal/groups"
	"labspace/internal/livesync"
	"labspace/internal/presence"
	"labspace/internal/sessions"
	"labspace/internal/user"
)

var AppSet = wire.NewSet(
	database.Set,
	cache.Set,
	feed.Set,
	user.Set,
	auth.Set,
	email.Set,
	groups.Set,
	sessions.Set,
	chat.Set,
	presence.Set,
	assistant.Set,
	livesync.Set,
	wire.Struct(new(App), "*"),
)

func InitializeApp(cfg *config.Config, log *zap.Logger) (*App, func(), error) {
	wire.Build(AppSet)
	return nil, nil, nil
}
