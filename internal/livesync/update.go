package livesync

import (
	"labspace/internal/chat"
	"labspace/internal/presence"
	"labspace/internal/sessions"
)

type UpdateKind string

const (
	UpdateSnapshot       UpdateKind = "snapshot"
	UpdateMessage        UpdateKind = "message"
	UpdateMessageRemoved UpdateKind = "message_removed"
	UpdatePresence       UpdateKind = "presence"
	UpdateSession        UpdateKind = "session"
)

// Update is one change to a View, in the order the view applied it. Only the
// fields of its kind are set.
type Update struct {
	Kind UpdateKind

	Snapshot  *Snapshot
	Message   *chat.Message
	MessageID int64
	Online    []presence.Record
	Session   *SessionState
}

// Snapshot is the full state of a view.
type Snapshot struct {
	Messages []*chat.Message   `json:"messages"`
	Online   []presence.Record `json:"online"`
	SessionState
}

type SessionState struct {
	Session      *sessions.Session       `json:"session"`
	Participants []*sessions.Participant `json:"participants"`
}

type removed struct {
	MessageID int64 `json:"message_id"`
}
