package sessions

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"labspace/infrastructure"
	"labspace/internal/feed"
	"labspace/internal/groups"
	"labspace/pkg/logger"
)

type Memberships interface {
	RoleOf(ctx context.Context, groupID, userID uuid.UUID) (groups.Role, error)
}

type Users interface {
	DisplayNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

type CreateSessionInput struct {
	GroupID     uuid.UUID
	Title       string
	Description string
	// Status is the initial state, waiting or active. Empty means waiting.
	Status Status
}

// Registry owns the session lifecycle: waiting -> active -> completed.
type Registry struct {
	repo        Repository
	memberships Memberships
	users       Users
	publisher   feed.Publisher
	log         *zap.Logger
}

func NewRegistry(repo Repository, memberships Memberships, users Users, publisher feed.Publisher, log *zap.Logger) *Registry {
	return &Registry{
		repo:        repo,
		memberships: memberships,
		users:       users,
		publisher:   publisher,
		log:         log,
	}
}

func (r *Registry) CreateSession(ctx context.Context, in CreateSessionInput, creatorID uuid.UUID) (*Session, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, infrastructure.ValidationError("title must not be empty")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return nil, infrastructure.ValidationError("title must be at most %d characters", maxTitleLength)
	}
	status := in.Status
	if status == "" {
		status = StatusWaiting
	}
	if status != StatusWaiting && status != StatusActive {
		return nil, infrastructure.ValidationError("initial status must be waiting or active")
	}
	if _, err := r.role(ctx, in.GroupID, creatorID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	s := &Session{
		ID:          uuid.New(),
		GroupID:     in.GroupID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		CreatedBy:   creatorID,
		Status:      status,
		CreatedAt:   now,
	}
	if status == StatusActive {
		s.StartedAt = &now
	}

	if err := r.repo.CreateSession(ctx, s); err != nil {
		return nil, err
	}
	r.publish(ctx, s.ID, feed.OpInsert)

	r.log.Info("session created",
		zap.String(logger.FieldSessionID, s.ID.String()),
		zap.String(logger.FieldGroupID, s.GroupID.String()),
		zap.String("status", string(s.Status)),
	)
	return s, nil
}

func (r *Registry) StartSession(ctx context.Context, sessionID, actingUserID uuid.UUID) (*Session, error) {
	current, err := r.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := r.requireManager(ctx, current, actingUserID, "start"); err != nil {
		return nil, err
	}

	s, err := r.repo.Transition(ctx, sessionID, func(s *Session) error {
		return start(s, time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}
	r.publish(ctx, sessionID, feed.OpUpdate)
	r.log.Info("session started", zap.String(logger.FieldSessionID, sessionID.String()))
	return s, nil
}

// CloseSession completes the session and evicts every participant. Closing is
// irreversible.
func (r *Registry) CloseSession(ctx context.Context, sessionID, actingUserID uuid.UUID) (*Session, error) {
	current, err := r.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if current.Completed() {
		return nil, conflictf(errCompleted)
	}
	if err := r.requireManager(ctx, current, actingUserID, "close"); err != nil {
		return nil, err
	}

	s, err := r.repo.Transition(ctx, sessionID, func(s *Session) error {
		return complete(s, time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}
	r.publish(ctx, sessionID, feed.OpUpdate)
	r.log.Info("session closed", zap.String(logger.FieldSessionID, sessionID.String()))
	return s, nil
}

// JoinSession is idempotent: joining twice returns the original participant.
func (r *Registry) JoinSession(ctx context.Context, sessionID, userID uuid.UUID) (*Participant, error) {
	s, err := r.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Completed() {
		return nil, conflictf(errCompleted)
	}
	if _, err := r.role(ctx, s.GroupID, userID); err != nil {
		return nil, err
	}

	p, err := r.repo.Join(ctx, &Participant{SessionID: sessionID, UserID: userID, JoinedAt: time.Now().UTC()})
	if err != nil {
		return nil, err
	}
	if err := r.fillDisplayNames(ctx, []*Participant{p}); err != nil {
		return nil, err
	}
	r.publish(ctx, sessionID, feed.OpUpdate)
	return p, nil
}

func (r *Registry) LeaveSession(ctx context.Context, sessionID, userID uuid.UUID) error {
	if err := r.repo.Leave(ctx, sessionID, userID); err != nil {
		return err
	}
	r.publish(ctx, sessionID, feed.OpUpdate)
	return nil
}

// CanClose reports whether userID could close the session right now.
func (r *Registry) CanClose(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	s, err := r.repo.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	role, err := r.memberships.RoleOf(ctx, s.GroupID, userID)
	if errors.Is(err, infrastructure.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !s.Completed() && canManage(s, userID, role), nil
}

// Access loads a session for a member of its group. Non-members get a
// permission error.
func (r *Registry) Access(ctx context.Context, sessionID, userID uuid.UUID) (*Access, error) {
	s, err := r.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	role, err := r.role(ctx, s.GroupID, userID)
	if err != nil {
		return nil, err
	}
	return &Access{
		Session:  s,
		Role:     role,
		CanClose: !s.Completed() && canManage(s, userID, role),
	}, nil
}

// GetSession returns the session without an access check.
func (r *Registry) GetSession(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	return r.repo.GetSession(ctx, sessionID)
}

func (r *Registry) ListGroupSessions(ctx context.Context, groupID, viewerID uuid.UUID) ([]*Session, error) {
	if _, err := r.role(ctx, groupID, viewerID); err != nil {
		return nil, err
	}
	return r.repo.ListGroupSessions(ctx, groupID)
}

func (r *Registry) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]*Participant, error) {
	participants, err := r.repo.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := r.fillDisplayNames(ctx, participants); err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *Registry) role(ctx context.Context, groupID, userID uuid.UUID) (groups.Role, error) {
	role, err := r.memberships.RoleOf(ctx, groupID, userID)
	if errors.Is(err, infrastructure.ErrNotFound) {
		return "", infrastructure.PermissionError("only group members can access this session")
	}
	return role, err
}

func (r *Registry) requireManager(ctx context.Context, s *Session, userID uuid.UUID, action string) error {
	role, err := r.role(ctx, s.GroupID, userID)
	if err != nil {
		return err
	}
	if !canManage(s, userID, role) {
		return infrastructure.PermissionError("only the session creator or a group admin can %s the session", action)
	}
	return nil
}

// publish is best-effort; the write has already committed.
func (r *Registry) publish(ctx context.Context, sessionID uuid.UUID, op feed.Op) {
	err := r.publisher.Publish(ctx, feed.Event{
		Channel:   feed.ChannelSession,
		Op:        op,
		SessionID: sessionID,
		At:        time.Now().UTC(),
	})
	if err != nil {
		r.log.Warn("publish session event",
			zap.String(logger.FieldSessionID, sessionID.String()),
			zap.Error(err),
		)
	}
}

func (r *Registry) fillDisplayNames(ctx context.Context, participants []*Participant) error {
	var missing []uuid.UUID
	for _, p := range participants {
		if p.DisplayName == "" {
			missing = append(missing, p.UserID)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	names, err := r.users.DisplayNames(ctx, missing)
	if err != nil {
		return err
	}
	for _, p := range participants {
		if p.DisplayName == "" {
			p.DisplayName = names[p.UserID]
		}
	}
	return nil
}
