package chat

import (
	"time"

	"github.com/google/uuid"
	"labspace/internal/feed"
)

type MessageType string

const (
	TypeUser   MessageType = "user"
	TypeAI     MessageType = "ai"
	TypeSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case TypeUser, TypeAI, TypeSystem:
		return true
	}
	return false
}

const (
	maxContentLength = 8000
	defaultPageSize  = 50
	maxPageSize      = 200

	// MetadataRequestedBy names the user an ai message answers. The store
	// re-checks the assistant gate for that user before accepting the message.
	MetadataRequestedBy = "requested_by"
	MetadataSources     = "sources"
)

// UnknownSender is shown when a message's sender cannot be resolved.
const UnknownSender = "unknown"

type Message struct {
	ID         int64          `json:"id"`
	SessionID  uuid.UUID      `json:"session_id"`
	SenderID   *uuid.UUID     `json:"sender_id,omitempty"`
	SenderName string         `json:"sender_name,omitempty"`
	Content    string         `json:"content"`
	Type       MessageType    `json:"type"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	ReplyTo    *int64         `json:"reply_to,omitempty"`
	SentAt     time.Time      `json:"sent_at"`
	EditedAt   *time.Time     `json:"edited_at,omitempty"`
	DeletedAt  *time.Time     `json:"-"`
}

// Raw strips the denormalized fields for the change feed.
func (m *Message) Raw() *feed.RawMessage {
	return &feed.RawMessage{
		ID:        m.ID,
		SessionID: m.SessionID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Type:      string(m.Type),
		Metadata:  m.Metadata,
		ReplyTo:   m.ReplyTo,
		SentAt:    m.SentAt,
		EditedAt:  m.EditedAt,
	}
}

// FromRaw rebuilds a message from a feed payload. Sender names are not part
// of the payload, so SenderName is UnknownSender.
func FromRaw(raw *feed.RawMessage) *Message {
	return &Message{
		ID:         raw.ID,
		SessionID:  raw.SessionID,
		SenderID:   raw.SenderID,
		SenderName: UnknownSender,
		Content:    raw.Content,
		Type:       MessageType(raw.Type),
		Metadata:   raw.Metadata,
		ReplyTo:    raw.ReplyTo,
		SentAt:     raw.SentAt,
		EditedAt:   raw.EditedAt,
	}
}

type AppendRequest struct {
	SessionID uuid.UUID
	SenderID  *uuid.UUID
	Content   string
	Type      MessageType
	Metadata  map[string]any
	ReplyTo   *int64
}

type EventOp string

const (
	EventInsert EventOp = "insert"
	EventUpdate EventOp = "update"
	EventDelete EventOp = "delete"
)

// MessageEvent is one row of a message's audit trail.
type MessageEvent struct {
	ID        int64      `json:"id"`
	MessageID int64      `json:"message_id"`
	SessionID uuid.UUID  `json:"session_id"`
	Op        EventOp    `json:"op"`
	ActorID   *uuid.UUID `json:"actor_id,omitempty"`
	Content   string     `json:"content,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
