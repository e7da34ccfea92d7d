package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"labspace/infrastructure"
	"labspace/internal/feed"
	"labspace/internal/groups"
	"labspace/internal/sessions"
	"labspace/pkg/logger"
)

const (
	assistantName = "Assistant"
	systemName    = "System"
)

type Sessions interface {
	GetSession(ctx context.Context, sessionID uuid.UUID) (*sessions.Session, error)
}

type Memberships interface {
	RoleOf(ctx context.Context, groupID, userID uuid.UUID) (groups.Role, error)
}

type Users interface {
	DisplayNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

// Gate decides whether a user may have the assistant answer in a session.
type Gate interface {
	CanInvokeAI(ctx context.Context, sessionID, userID uuid.UUID) (bool, error)
}

// Store is the per-session message log.
type Store struct {
	repo        Repository
	sessions    Sessions
	memberships Memberships
	users       Users
	gate        Gate
	publisher   feed.Publisher
	log         *zap.Logger
}

func NewStore(repo Repository, sessions Sessions, memberships Memberships, users Users, gate Gate, publisher feed.Publisher, log *zap.Logger) *Store {
	return &Store{
		repo:        repo,
		sessions:    sessions,
		memberships: memberships,
		users:       users,
		gate:        gate,
		publisher:   publisher,
		log:         log,
	}
}

func (s *Store) Append(ctx context.Context, req AppendRequest) (*Message, error) {
	if err := validateContent(req.Content); err != nil {
		return nil, err
	}
	if !req.Type.Valid() {
		return nil, infrastructure.ValidationError("invalid message type %q", req.Type)
	}

	session, err := s.openSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	switch req.Type {
	case TypeUser:
		if req.SenderID == nil {
			return nil, infrastructure.ValidationError("user messages need a sender")
		}
		if err := s.requireMember(ctx, session.GroupID, *req.SenderID); err != nil {
			return nil, err
		}
	case TypeAI:
		if err := s.checkGate(ctx, req); err != nil {
			return nil, err
		}
	case TypeSystem:
		if req.SenderID != nil {
			return nil, infrastructure.ValidationError("system messages have no sender")
		}
	}

	if req.ReplyTo != nil {
		if _, err := s.repo.Get(ctx, req.SessionID, *req.ReplyTo); err != nil {
			if errors.Is(err, infrastructure.ErrNotFound) {
				return nil, infrastructure.ValidationError("reply_to must reference a message of this session")
			}
			return nil, err
		}
	}

	m := &Message{
		SessionID: req.SessionID,
		SenderID:  req.SenderID,
		Content:   req.Content,
		Type:      req.Type,
		Metadata:  req.Metadata,
		ReplyTo:   req.ReplyTo,
	}
	if err := s.repo.Append(ctx, m); err != nil {
		return nil, err
	}

	s.publish(ctx, feed.Event{
		Channel:   feed.ChannelMessages,
		Op:        feed.OpInsert,
		SessionID: m.SessionID,
		MessageID: m.ID,
		Message:   m.Raw(),
	})

	if err := s.denormalize(ctx, []*Message{m}); err != nil {
		return nil, err
	}
	return m, nil
}

// Edit replaces the content of a message. Only its sender may edit it.
func (s *Store) Edit(ctx context.Context, sessionID uuid.UUID, messageID int64, actorID uuid.UUID, content string) (*Message, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}
	if _, err := s.openSession(ctx, sessionID); err != nil {
		return nil, err
	}

	current, err := s.repo.Get(ctx, sessionID, messageID)
	if err != nil {
		return nil, err
	}
	if current.SenderID == nil || *current.SenderID != actorID {
		return nil, infrastructure.PermissionError("only the sender can edit a message")
	}

	m, err := s.repo.Update(ctx, sessionID, messageID, content, time.Now().UTC(), actorID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, feed.Event{
		Channel:   feed.ChannelMessages,
		Op:        feed.OpUpdate,
		SessionID: sessionID,
		MessageID: messageID,
		Message:   m.Raw(),
	})

	if err := s.denormalize(ctx, []*Message{m}); err != nil {
		return nil, err
	}
	return m, nil
}

// Delete hides a message from reads. The sender and group admins may delete.
func (s *Store) Delete(ctx context.Context, sessionID uuid.UUID, messageID int64, actorID uuid.UUID) error {
	session, err := s.openSession(ctx, sessionID)
	if err != nil {
		return err
	}

	current, err := s.repo.Get(ctx, sessionID, messageID)
	if err != nil {
		return err
	}
	if current.SenderID == nil || *current.SenderID != actorID {
		role, err := s.memberships.RoleOf(ctx, session.GroupID, actorID)
		if err != nil && !errors.Is(err, infrastructure.ErrNotFound) {
			return err
		}
		if role != groups.RoleAdmin {
			return infrastructure.PermissionError("only the sender or a group admin can delete a message")
		}
	}

	if err := s.repo.SoftDelete(ctx, sessionID, messageID, time.Now().UTC(), actorID); err != nil {
		return err
	}

	s.publish(ctx, feed.Event{
		Channel:   feed.ChannelMessages,
		Op:        feed.OpDelete,
		SessionID: sessionID,
		MessageID: messageID,
	})
	return nil
}

// List returns a page of the session's messages, oldest first.
func (s *Store) List(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*Message, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	messages, err := s.repo.List(ctx, sessionID, limit, offset)
	if err != nil {
		return nil, err
	}
	return messages, s.denormalize(ctx, messages)
}

// Latest returns the newest n messages, oldest first.
func (s *Store) Latest(ctx context.Context, sessionID uuid.UUID, n int) ([]*Message, error) {
	if n <= 0 {
		n = defaultPageSize
	}
	if n > maxPageSize {
		n = maxPageSize
	}
	messages, err := s.repo.Latest(ctx, sessionID, n)
	if err != nil {
		return nil, err
	}
	return messages, s.denormalize(ctx, messages)
}

func (s *Store) Get(ctx context.Context, sessionID uuid.UUID, messageID int64) (*Message, error) {
	m, err := s.repo.Get(ctx, sessionID, messageID)
	if err != nil {
		return nil, err
	}
	return m, s.denormalize(ctx, []*Message{m})
}

func (s *Store) History(ctx context.Context, sessionID uuid.UUID, messageID int64) ([]*MessageEvent, error) {
	return s.repo.Events(ctx, sessionID, messageID)
}

func (s *Store) openSession(ctx context.Context, sessionID uuid.UUID) (*sessions.Session, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Completed() {
		return nil, infrastructure.ConflictError(errSessionCompleted)
	}
	return session, nil
}

func (s *Store) requireMember(ctx context.Context, groupID, userID uuid.UUID) error {
	_, err := s.memberships.RoleOf(ctx, groupID, userID)
	if errors.Is(err, infrastructure.ErrNotFound) {
		return infrastructure.PermissionError("only group members can post in this session")
	}
	return err
}

func (s *Store) checkGate(ctx context.Context, req AppendRequest) error {
	if req.SenderID != nil {
		return infrastructure.ValidationError("assistant messages have no sender")
	}
	requester, ok := RequestedBy(req.Metadata)
	if !ok {
		return infrastructure.ValidationError("assistant messages need metadata.%s", MetadataRequestedBy)
	}
	allowed, err := s.gate.CanInvokeAI(ctx, req.SessionID, requester)
	if err != nil {
		return fmt.Errorf("check assistant gate: %w", err)
	}
	if !allowed {
		return infrastructure.PermissionError("assistant is not available to this user in this session")
	}
	return nil
}

// RequestedBy reads the requesting user of an assistant message.
func RequestedBy(metadata map[string]any) (uuid.UUID, bool) {
	switch v := metadata[MetadataRequestedBy].(type) {
	case uuid.UUID:
		return v, v != uuid.Nil
	case string:
		id, err := uuid.Parse(v)
		return id, err == nil && id != uuid.Nil
	}
	return uuid.Nil, false
}

func (s *Store) publish(ctx context.Context, ev feed.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warn("publish message event",
			zap.String(logger.FieldSessionID, ev.SessionID.String()),
			zap.Int64(logger.FieldMessageID, ev.MessageID),
			zap.Error(err),
		)
	}
}

// denormalize fills sender names the repository could not join in.
func (s *Store) denormalize(ctx context.Context, messages []*Message) error {
	var missing []uuid.UUID
	for _, m := range messages {
		if m.SenderName == "" && m.SenderID != nil {
			missing = append(missing, *m.SenderID)
		}
	}
	var names map[uuid.UUID]string
	if len(missing) > 0 {
		var err error
		if names, err = s.users.DisplayNames(ctx, missing); err != nil {
			return err
		}
	}
	for _, m := range messages {
		if m.SenderName != "" {
			continue
		}
		switch {
		case m.SenderID != nil:
			if name, ok := names[*m.SenderID]; ok {
				m.SenderName = name
			} else {
				m.SenderName = UnknownSender
			}
		case m.Type == TypeAI:
			m.SenderName = assistantName
		default:
			m.SenderName = systemName
		}
	}
	return nil
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return infrastructure.ValidationError("content must not be empty")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return infrastructure.ValidationError("content must be at most %d characters", maxContentLength)
	}
	return nil
}
