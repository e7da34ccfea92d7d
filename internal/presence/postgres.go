package presence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_presence (session_id, user_id, status, last_seen)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, user_id)
		DO UPDATE SET status = EXCLUDED.status, last_seen = EXCLUDED.last_seen`,
		rec.SessionID, rec.UserID, rec.Status, rec.LastSeen)
	if err != nil {
		return fmt.Errorf("upsert presence: %w", err)
	}
	return nil
}

func (s *PostgresStore) Touch(ctx context.Context, sessionID, userID uuid.UUID, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE session_presence SET last_seen = $3 WHERE session_id = $1 AND user_id = $2`,
		sessionID, userID, at)
	if err != nil {
		return false, fmt.Errorf("touch presence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PostgresStore) List(ctx context.Context, sessionID uuid.UUID) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.session_id, p.user_id, u.display_name, p.status, p.last_seen
		FROM session_presence p
		JOIN users u ON u.id = p.user_id
		WHERE p.session_id = $1
		ORDER BY u.display_name, p.user_id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list presence: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.SessionID, &rec.UserID, &rec.DisplayName, &rec.Status, &rec.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ExpireStale(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE session_presence SET status = 'offline'
		WHERE status <> 'offline' AND last_seen < $1
		RETURNING session_id`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("expire presence: %w", err)
	}
	defer rows.Close()

	seen := make(map[uuid.UUID]bool)
	var changed []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if !seen[id] {
			seen[id] = true
			changed = append(changed, id)
		}
	}
	return changed, rows.Err()
}

func (s *PostgresStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM session_presence WHERE status = 'offline' AND last_seen < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune presence: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
