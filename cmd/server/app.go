package main

import (
	"labspace/internal/assistant"
	"labspace/internal/auth"
	"labspace/internal/chat"
	"labspace/internal/groups"
	"labspace/internal/livesync"
	"labspace/internal/presence"
	"labspace/internal/sessions"
	"labspace/internal/user"
)

// App holds everything main needs to serve.
type App struct {
	Middleware *auth.Middleware

	Users     *user.JSONHandler
	Groups    *groups.JSONHandler
	Sessions  *sessions.JSONHandler
	Messages  *chat.JSONHandler
	Presence  *presence.JSONHandler
	Assistant *assistant.JSONHandler
	Live      *livesync.SocketHandler

	Tracker    *presence.Tracker
	TaskServer *assistant.TaskServer
}
