package feed

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Channel string

const (
	ChannelMessages Channel = "messages"
	ChannelPresence Channel = "presence"
	ChannelSession  Channel = "session"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	// OpRefresh tells a subscriber it may have missed events and must reload
	// everything it derives from the feed.
	OpRefresh Op = "refresh"
)

// RawMessage is the row as written, without denormalized fields such as the
// sender's display name.
type RawMessage struct {
	ID        int64          `json:"id"`
	SessionID uuid.UUID      `json:"session_id"`
	SenderID  *uuid.UUID     `json:"sender_id,omitempty"`
	Content   string         `json:"content"`
	Type      string         `json:"type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	ReplyTo   *int64         `json:"reply_to,omitempty"`
	SentAt    time.Time      `json:"sent_at"`
	EditedAt  *time.Time     `json:"edited_at,omitempty"`
}

type Event struct {
	Channel   Channel     `json:"channel"`
	Op        Op          `json:"op"`
	SessionID uuid.UUID   `json:"session_id"`
	MessageID int64       `json:"message_id,omitempty"`
	Message   *RawMessage `json:"message,omitempty"`
	At        time.Time   `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, sessionID uuid.UUID) (*Subscription, error)
}

type Feed interface {
	Publisher
	Subscriber
	Close() error
}

// Subscription delivers the events of one session until Close is called.
type Subscription struct {
	C     <-chan Event
	close func()
}

func (s *Subscription) Close() {
	s.close()
}
