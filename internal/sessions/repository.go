package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"labspace/infrastructure"
)

type Repository interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)
	ListGroupSessions(ctx context.Context, groupID uuid.UUID) ([]*Session, error)

	// Transition locks the session, applies fn and persists the result. A
	// session that ends up completed loses its participants in the same step.
	Transition(ctx context.Context, id uuid.UUID, fn func(*Session) error) (*Session, error)

	// Join returns the existing participant row when the user already joined.
	Join(ctx context.Context, p *Participant) (*Participant, error)
	Leave(ctx context.Context, sessionID, userID uuid.UUID) error
	ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]*Participant, error)
}

type repository struct {
	*sql.DB
	provider Provider
	saver    Saver
	updater  Updater
	deleter  Deleter
}

func NewRepository(db *sql.DB, storage *PostgresStorage) Repository {
	return &repository{
		DB:       db,
		provider: storage,
		saver:    storage,
		updater:  storage,
		deleter:  storage,
	}
}

func (r *repository) CreateSession(ctx context.Context, s *Session) error {
	err := infrastructure.TimedTransaction(r.DB, ctx, "sessions.create_session", func(tx *sql.Tx) error {
		return r.saver.SaveSession(ctx, tx, s)
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *repository) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	s, err := r.provider.SessionByID(ctx, r.DB, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, infrastructure.NotFoundError(errSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (r *repository) ListGroupSessions(ctx context.Context, groupID uuid.UUID) ([]*Session, error) {
	sessions, err := r.provider.GroupSessions(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group sessions: %w", err)
	}
	return sessions, nil
}

func (r *repository) lock(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*Session, error) {
	s, err := r.provider.LockSession(ctx, tx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, infrastructure.NotFoundError(errSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	return s, nil
}

func (r *repository) Transition(ctx context.Context, id uuid.UUID, fn func(*Session) error) (*Session, error) {
	var out *Session
	err := infrastructure.TimedTransaction(r.DB, ctx, "sessions.transition", func(tx *sql.Tx) error {
		s, err := r.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		if err := r.updater.UpdateStatus(ctx, tx, s); err != nil {
			return fmt.Errorf("update session status: %w", err)
		}
		if s.Completed() {
			if err := r.deleter.DeleteParticipants(ctx, tx, id); err != nil {
				return fmt.Errorf("evict participants: %w", err)
			}
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) Join(ctx context.Context, p *Participant) (*Participant, error) {
	var out *Participant
	err := infrastructure.TimedTransaction(r.DB, ctx, "sessions.join", func(tx *sql.Tx) error {
		s, err := r.lock(ctx, tx, p.SessionID)
		if err != nil {
			return err
		}
		if s.Completed() {
			return conflictf(errCompleted)
		}
		if err := r.saver.SaveParticipant(ctx, tx, p); err != nil {
			return fmt.Errorf("save participant: %w", err)
		}
		out, err = r.provider.Participant(ctx, tx, p.SessionID, p.UserID)
		if err != nil {
			return fmt.Errorf("read participant: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) Leave(ctx context.Context, sessionID, userID uuid.UUID) error {
	return infrastructure.TimedTransaction(r.DB, ctx, "sessions.leave", func(tx *sql.Tx) error {
		s, err := r.lock(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if s.Completed() {
			return conflictf(errCompleted)
		}
		n, err := r.deleter.DeleteParticipant(ctx, tx, sessionID, userID)
		if err != nil {
			return fmt.Errorf("delete participant: %w", err)
		}
		if n == 0 {
			return infrastructure.NotFoundError(errNotParticipant)
		}
		return nil
	})
}

func (r *repository) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]*Participant, error) {
	participants, err := r.provider.Participants(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return participants, nil
}
