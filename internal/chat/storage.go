package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Saver interface {
	// LockSession share-locks the session row and reports whether it is completed.
	LockSession(ctx context.Context, tx *sql.Tx, sessionID uuid.UUID) (bool, error)
	SaveMessage(ctx context.Context, tx *sql.Tx, m *Message) error
	SaveEvent(ctx context.Context, tx *sql.Tx, ev *MessageEvent) error
}

type Updater interface {
	UpdateContent(ctx context.Context, tx *sql.Tx, sessionID uuid.UUID, id int64, content string, editedAt time.Time) (int64, error)
	MarkDeleted(ctx context.Context, tx *sql.Tx, sessionID uuid.UUID, id int64, deletedAt time.Time) (int64, error)
}

type Provider interface {
	MessageByID(ctx context.Context, q queryer, sessionID uuid.UUID, id int64) (*Message, error)
	Messages(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*Message, error)
	LatestMessages(ctx context.Context, sessionID uuid.UUID, n int) ([]*Message, error)
	Events(ctx context.Context, sessionID uuid.UUID, messageID int64) ([]*MessageEvent, error)
}

type PostgresStorage struct {
	db *sql.DB
}

func NewChatPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

const messageColumns = `m.id, m.session_id, m.sender_id, COALESCE(u.display_name, ''), m.content, m.type,
	m.metadata, m.reply_to, m.sent_at, m.edited_at`

const messageFrom = ` FROM chat_messages m LEFT JOIN users u ON u.id = m.sender_id`

func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	m := &Message{}
	var (
		senderID uuid.NullUUID
		metadata []byte
		replyTo  sql.NullInt64
		editedAt sql.NullTime
	)
	err := row.Scan(&m.ID, &m.SessionID, &senderID, &m.SenderName, &m.Content, &m.Type,
		&metadata, &replyTo, &m.SentAt, &editedAt)
	if err != nil {
		return nil, err
	}
	if senderID.Valid {
		m.SenderID = &senderID.UUID
	}
	if replyTo.Valid {
		m.ReplyTo = &replyTo.Int64
	}
	if editedAt.Valid {
		m.EditedAt = &editedAt.Time
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of message %d: %w", m.ID, err)
		}
	}
	return m, nil
}

func encodeMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(metadata)
}

// SaveMessage inserts m and fills in the id and sent_at assigned by the database.
func (s *PostgresStorage) LockSession(ctx context.Context, tx *sql.Tx, sessionID uuid.UUID) (bool, error) {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM sessions WHERE id = $1 FOR SHARE`, sessionID).Scan(&status)
	if err != nil {
		return false, err
	}
	return status == "completed", nil
}

func (s *PostgresStorage) SaveMessage(ctx context.Context, tx *sql.Tx, m *Message) error {
	metadata, err := encodeMetadata(m.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return tx.QueryRowContext(ctx, `
		INSERT INTO chat_messages (session_id, sender_id, content, type, metadata, reply_to)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, sent_at`,
		m.SessionID, m.SenderID, m.Content, m.Type, metadata, m.ReplyTo,
	).Scan(&m.ID, &m.SentAt)
}

func (s *PostgresStorage) SaveEvent(ctx context.Context, tx *sql.Tx, ev *MessageEvent) error {
	return tx.QueryRowContext(ctx, `
		INSERT INTO chat_message_events (message_id, session_id, op, actor_id, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		ev.MessageID, ev.SessionID, ev.Op, ev.ActorID, ev.Content,
	).Scan(&ev.ID, &ev.CreatedAt)
}

func (s *PostgresStorage) UpdateContent(ctx context.Context, tx *sql.Tx, sessionID uuid.UUID, id int64, content string, editedAt time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE chat_messages SET content = $3, edited_at = $4
		WHERE session_id = $1 AND id = $2 AND deleted_at IS NULL`,
		sessionID, id, content, editedAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PostgresStorage) MarkDeleted(ctx context.Context, tx *sql.Tx, sessionID uuid.UUID, id int64, deletedAt time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE chat_messages SET deleted_at = $3
		WHERE session_id = $1 AND id = $2 AND deleted_at IS NULL`,
		sessionID, id, deletedAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PostgresStorage) MessageByID(ctx context.Context, q queryer, sessionID uuid.UUID, id int64) (*Message, error) {
	return scanMessage(q.QueryRowContext(ctx, `SELECT `+messageColumns+messageFrom+`
		WHERE m.session_id = $1 AND m.id = $2 AND m.deleted_at IS NULL`, sessionID, id))
}

func (s *PostgresStorage) Messages(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*Message, error) {
	return s.queryMessages(ctx, `SELECT `+messageColumns+messageFrom+`
		WHERE m.session_id = $1 AND m.deleted_at IS NULL
		ORDER BY m.sent_at, m.id
		LIMIT $2 OFFSET $3`, sessionID, limit, offset)
}

func (s *PostgresStorage) LatestMessages(ctx context.Context, sessionID uuid.UUID, n int) ([]*Message, error) {
	return s.queryMessages(ctx, `SELECT * FROM (
			SELECT `+messageColumns+messageFrom+`
			WHERE m.session_id = $1 AND m.deleted_at IS NULL
			ORDER BY m.sent_at DESC, m.id DESC
			LIMIT $2
		) latest
		ORDER BY sent_at, id`, sessionID, n)
}

func (s *PostgresStorage) queryMessages(ctx context.Context, query string, args ...any) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *PostgresStorage) Events(ctx context.Context, sessionID uuid.UUID, messageID int64) ([]*MessageEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, session_id, op, actor_id, COALESCE(content, ''), created_at
		FROM chat_message_events
		WHERE session_id = $1 AND message_id = $2
		ORDER BY id`,
		sessionID, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*MessageEvent
	for rows.Next() {
		ev := &MessageEvent{}
		var actorID uuid.NullUUID
		if err := rows.Scan(&ev.ID, &ev.MessageID, &ev.SessionID, &ev.Op, &actorID, &ev.Content, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if actorID.Valid {
			ev.ActorID = &actorID.UUID
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
