package sessions

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Saver interface {
	SaveSession(ctx context.Context, tx *sql.Tx, s *Session) error
	SaveParticipant(ctx context.Context, tx *sql.Tx, p *Participant) error
}

type Updater interface {
	UpdateStatus(ctx context.Context, tx *sql.Tx, s *Session) error
}

type Provider interface {
	SessionByID(ctx context.Context, q queryer, id uuid.UUID) (*Session, error)
	LockSession(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*Session, error)
	GroupSessions(ctx context.Context, groupID uuid.UUID) ([]*Session, error)
	Participant(ctx context.Context, q queryer, sessionID, userID uuid.UUID) (*Participant, error)
	Participants(ctx context.Context, sessionID uuid.UUID) ([]*Participant, error)
}

type Deleter interface {
	DeleteParticipant(ctx context.Context, tx *sql.Tx, sessionID, userID uuid.UUID) (int64, error)
	DeleteParticipants(ctx context.Context, tx *sql.Tx, sessionID uuid.UUID) error
}

type PostgresStorage struct {
	db *sql.DB
}

func NewSessionsPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

const sessionColumns = `id, group_id, title, description, created_by, status, started_at, ended_at, created_at`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	s := &Session{}
	var startedAt, endedAt sql.NullTime
	err := row.Scan(&s.ID, &s.GroupID, &s.Title, &s.Description, &s.CreatedBy, &s.Status,
		&startedAt, &endedAt, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		s.StartedAt = &startedAt.Time
	}
	if endedAt.Valid {
		s.EndedAt = &endedAt.Time
	}
	return s, nil
}

func (r *PostgresStorage) SaveSession(ctx context.Context, tx *sql.Tx, s *Session) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, group_id, title, description, created_by, status, started_at, ended_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.GroupID, s.Title, s.Description, s.CreatedBy, s.Status, s.StartedAt, s.EndedAt, s.CreatedAt)
	return err
}

// SaveParticipant is a no-op when the user already participates.
func (r *PostgresStorage) SaveParticipant(ctx context.Context, tx *sql.Tx, p *Participant) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO session_participants (session_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, user_id) DO NOTHING`,
		p.SessionID, p.UserID, p.JoinedAt)
	return err
}

func (r *PostgresStorage) UpdateStatus(ctx context.Context, tx *sql.Tx, s *Session) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE sessions SET status = $2, started_at = $3, ended_at = $4 WHERE id = $1`,
		s.ID, s.Status, s.StartedAt, s.EndedAt)
	return err
}

func (r *PostgresStorage) SessionByID(ctx context.Context, q queryer, id uuid.UUID) (*Session, error) {
	return scanSession(q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
}

// LockSession reads the session row FOR UPDATE so that status checks and the
// writes that depend on them are serialized per session.
func (r *PostgresStorage) LockSession(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*Session, error) {
	return scanSession(tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id))
}

func (r *PostgresStorage) GroupSessions(ctx context.Context, groupID uuid.UUID) ([]*Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE group_id = $1 ORDER BY created_at DESC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *PostgresStorage) Participant(ctx context.Context, q queryer, sessionID, userID uuid.UUID) (*Participant, error) {
	p := &Participant{}
	err := q.QueryRowContext(ctx, `
		SELECT sp.session_id, sp.user_id, u.display_name, sp.joined_at
		FROM session_participants sp
		JOIN users u ON u.id = sp.user_id
		WHERE sp.session_id = $1 AND sp.user_id = $2`,
		sessionID, userID,
	).Scan(&p.SessionID, &p.UserID, &p.DisplayName, &p.JoinedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresStorage) Participants(ctx context.Context, sessionID uuid.UUID) ([]*Participant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sp.session_id, sp.user_id, u.display_name, sp.joined_at
		FROM session_participants sp
		JOIN users u ON u.id = sp.user_id
		WHERE sp.session_id = $1
		ORDER BY sp.joined_at, sp.user_id`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []*Participant
	for rows.Next() {
		p := &Participant{}
		if err := rows.Scan(&p.SessionID, &p.UserID, &p.DisplayName, &p.JoinedAt); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (r *PostgresStorage) DeleteParticipant(ctx context.Context, tx *sql.Tx, sessionID, userID uuid.UUID) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`DELETE FROM session_participants WHERE session_id = $1 AND user_id = $2`, sessionID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresStorage) DeleteParticipants(ctx context.Context, tx *sql.Tx, sessionID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM session_participants WHERE session_id = $1`, sessionID)
	return err
}
