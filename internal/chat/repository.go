package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"labspace/infrastructure"
)

const (
	errMessageNotFound  = "message not found"
	errSessionNotFound  = "session not found"
	errSessionCompleted = "session is completed"
)

type Repository interface {
	// Append assigns the message id and sent_at and records an insert event.
	Append(ctx context.Context, m *Message) error
	Get(ctx context.Context, sessionID uuid.UUID, id int64) (*Message, error)
	Update(ctx context.Context, sessionID uuid.UUID, id int64, content string, editedAt time.Time, actorID uuid.UUID) (*Message, error)
	SoftDelete(ctx context.Context, sessionID uuid.UUID, id int64, deletedAt time.Time, actorID uuid.UUID) error
	List(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*Message, error)
	Latest(ctx context.Context, sessionID uuid.UUID, n int) ([]*Message, error)
	Events(ctx context.Context, sessionID uuid.UUID, id int64) ([]*MessageEvent, error)
}

type repository struct {
	*sql.DB
	saver    Saver
	updater  Updater
	provider Provider
}

func NewRepository(db *sql.DB, storage *PostgresStorage) Repository {
	return &repository{
		DB:       db,
		saver:    storage,
		updater:  storage,
		provider: storage,
	}
}

func (r *repository) Append(ctx context.Context, m *Message) error {
	err := infrastructure.TimedTransaction(r.DB, ctx, "chat.append", func(tx *sql.Tx) error {
		if err := r.lockOpenSession(ctx, tx, m.SessionID); err != nil {
			return err
		}
		if err := r.saver.SaveMessage(ctx, tx, m); err != nil {
			return err
		}
		return r.saver.SaveEvent(ctx, tx, &MessageEvent{
			MessageID: m.ID,
			SessionID: m.SessionID,
			Op:        EventInsert,
			ActorID:   m.SenderID,
			Content:   m.Content,
		})
	})
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// lockOpenSession holds a share lock on the session row until tx ends, so a
// concurrent close waits for the write and the write never lands after it.
func (r *repository) lockOpenSession(ctx context.Context, tx *sql.Tx, sessionID uuid.UUID) error {
	completed, err := r.saver.LockSession(ctx, tx, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return infrastructure.NotFoundError(errSessionNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock session: %w", err)
	}
	if completed {
		return infrastructure.ConflictError(errSessionCompleted)
	}
	return nil
}

func (r *repository) Get(ctx context.Context, sessionID uuid.UUID, id int64) (*Message, error) {
	m, err := r.provider.MessageByID(ctx, r.DB, sessionID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, infrastructure.NotFoundError(errMessageNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (r *repository) Update(ctx context.Context, sessionID uuid.UUID, id int64, content string, editedAt time.Time, actorID uuid.UUID) (*Message, error) {
	var out *Message
	err := infrastructure.TimedTransaction(r.DB, ctx, "chat.update", func(tx *sql.Tx) error {
		if err := r.lockOpenSession(ctx, tx, sessionID); err != nil {
			return err
		}
		n, err := r.updater.UpdateContent(ctx, tx, sessionID, id, content, editedAt)
		if err != nil {
			return fmt.Errorf("update message: %w", err)
		}
		if n == 0 {
			return infrastructure.NotFoundError(errMessageNotFound)
		}
		if err := r.saver.SaveEvent(ctx, tx, &MessageEvent{
			MessageID: id,
			SessionID: sessionID,
			Op:        EventUpdate,
			ActorID:   &actorID,
			Content:   content,
		}); err != nil {
			return fmt.Errorf("record update: %w", err)
		}
		out, err = r.provider.MessageByID(ctx, tx, sessionID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) SoftDelete(ctx context.Context, sessionID uuid.UUID, id int64, deletedAt time.Time, actorID uuid.UUID) error {
	return infrastructure.TimedTransaction(r.DB, ctx, "chat.soft_delete", func(tx *sql.Tx) error {
		if err := r.lockOpenSession(ctx, tx, sessionID); err != nil {
			return err
		}
		n, err := r.updater.MarkDeleted(ctx, tx, sessionID, id, deletedAt)
		if err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
		if n == 0 {
			return infrastructure.NotFoundError(errMessageNotFound)
		}
		if err := r.saver.SaveEvent(ctx, tx, &MessageEvent{
			MessageID: id,
			SessionID: sessionID,
			Op:        EventDelete,
			ActorID:   &actorID,
		}); err != nil {
			return fmt.Errorf("record delete: %w", err)
		}
		return nil
	})
}

func (r *repository) List(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*Message, error) {
	messages, err := r.provider.Messages(ctx, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

func (r *repository) Latest(ctx context.Context, sessionID uuid.UUID, n int) ([]*Message, error) {
	messages, err := r.provider.LatestMessages(ctx, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("latest messages: %w", err)
	}
	return messages, nil
}

func (r *repository) Events(ctx context.Context, sessionID uuid.UUID, id int64) ([]*MessageEvent, error) {
	events, err := r.provider.Events(ctx, sessionID, id)
	if err != nil {
		return nil, fmt.Errorf("message events: %w", err)
	}
	return events, nil
}
