package groups

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Saver interface {
	SaveGroup(ctx context.Context, tx *sql.Tx, g *Group) error
	SaveMembership(ctx context.Context, tx *sql.Tx, m *Membership) error
}

type Updater interface {
	UpdateGroup(ctx context.Context, tx *sql.Tx, g *Group) (int64, error)
	UpdateInviteCode(ctx context.Context, tx *sql.Tx, groupID uuid.UUID, code string) (int64, error)
	UpdateRole(ctx context.Context, tx *sql.Tx, groupID, userID uuid.UUID, role Role) error
}

type Provider interface {
	GroupByID(ctx context.Context, q queryer, id uuid.UUID) (*Group, error)
	GroupByInviteCode(ctx context.Context, code string) (*Group, error)
	InviteCodeExists(ctx context.Context, code string) (bool, error)
	Membership(ctx context.Context, groupID, userID uuid.UUID) (*Membership, error)
	LockMemberRoles(ctx context.Context, tx *sql.Tx, groupID uuid.UUID) (map[uuid.UUID]Role, error)
	UserGroups(ctx context.Context, userID uuid.UUID) ([]*UserGroup, error)
	Members(ctx context.Context, groupID uuid.UUID) ([]*Membership, error)
	PublicGroups(ctx context.Context) ([]*Group, error)
}

type Deleter interface {
	DeleteMembership(ctx context.Context, tx *sql.Tx, groupID, userID uuid.UUID) error
}

type PostgresStorage struct {
	db *sql.DB
}

func NewGroupsPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

const groupColumns = `g.id, g.name, g.description, g.invite_code, g.is_public, g.assistant_enabled,
	g.created_by, g.created_at, g.updated_at,
	(SELECT COUNT(*) FROM group_members gm WHERE gm.group_id = g.id)`

func scanGroup(row interface{ Scan(...any) error }, g *Group) error {
	return row.Scan(&g.ID, &g.Name, &g.Description, &g.InviteCode, &g.IsPublic, &g.AssistantEnabled,
		&g.CreatedBy, &g.CreatedAt, &g.UpdatedAt, &g.MemberCount)
}

func (s *PostgresStorage) SaveGroup(ctx context.Context, tx *sql.Tx, g *Group) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO groups (id, name, description, invite_code, is_public, assistant_enabled, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		g.ID, g.Name, g.Description, g.InviteCode, g.IsPublic, g.AssistantEnabled, g.CreatedBy, g.CreatedAt, g.UpdatedAt)
	return err
}

func (s *PostgresStorage) SaveMembership(ctx context.Context, tx *sql.Tx, m *Membership) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)`,
		m.GroupID, m.UserID, m.Role, m.JoinedAt)
	return err
}

func (s *PostgresStorage) UpdateGroup(ctx context.Context, tx *sql.Tx, g *Group) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE groups
		SET name = $2, description = $3, is_public = $4, assistant_enabled = $5, updated_at = $6
		WHERE id = $1`,
		g.ID, g.Name, g.Description, g.IsPublic, g.AssistantEnabled, g.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PostgresStorage) UpdateInviteCode(ctx context.Context, tx *sql.Tx, groupID uuid.UUID, code string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE groups SET invite_code = $2, updated_at = NOW() WHERE id = $1`, groupID, code)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PostgresStorage) UpdateRole(ctx context.Context, tx *sql.Tx, groupID, userID uuid.UUID, role Role) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE group_members SET role = $3 WHERE group_id = $1 AND user_id = $2`, groupID, userID, role)
	return err
}

func (s *PostgresStorage) DeleteMembership(ctx context.Context, tx *sql.Tx, groupID, userID uuid.UUID) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	return err
}

func (s *PostgresStorage) GroupByID(ctx context.Context, q queryer, id uuid.UUID) (*Group, error) {
	g := &Group{}
	err := scanGroup(q.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM groups g WHERE g.id = $1`, id), g)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (s *PostgresStorage) GroupByInviteCode(ctx context.Context, code string) (*Group, error) {
	g := &Group{}
	err := scanGroup(s.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM groups g WHERE g.invite_code = $1`, code), g)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (s *PostgresStorage) InviteCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM groups WHERE invite_code = $1)`, code).Scan(&exists)
	return exists, err
}

func (s *PostgresStorage) Membership(ctx context.Context, groupID, userID uuid.UUID) (*Membership, error) {
	m := &Membership{}
	err := s.db.QueryRowContext(ctx, `
		SELECT gm.group_id, gm.user_id, gm.role, gm.joined_at, u.display_name
		FROM group_members gm JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = $1 AND gm.user_id = $2`, groupID, userID).
		Scan(&m.GroupID, &m.UserID, &m.Role, &m.JoinedAt, &m.DisplayName)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// LockMemberRoles locks every membership row of the group for the rest of tx.
func (s *PostgresStorage) LockMemberRoles(ctx context.Context, tx *sql.Tx, groupID uuid.UUID) (map[uuid.UUID]Role, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT user_id, role FROM group_members WHERE group_id = $1 FOR UPDATE`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make(map[uuid.UUID]Role)
	for rows.Next() {
		var id uuid.UUID
		var role Role
		if err := rows.Scan(&id, &role); err != nil {
			return nil, err
		}
		roles[id] = role
	}
	return roles, rows.Err()
}

func (s *PostgresStorage) UserGroups(ctx context.Context, userID uuid.UUID) ([]*UserGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+groupColumns+`, m.role, m.joined_at
		FROM group_members m JOIN groups g ON g.id = m.group_id
		WHERE m.user_id = $1
		ORDER BY m.joined_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*UserGroup
	for rows.Next() {
		ug := &UserGroup{}
		err := rows.Scan(&ug.ID, &ug.Name, &ug.Description, &ug.InviteCode, &ug.IsPublic, &ug.AssistantEnabled,
			&ug.CreatedBy, &ug.CreatedAt, &ug.UpdatedAt, &ug.MemberCount, &ug.Role, &ug.JoinedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, ug)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) Members(ctx context.Context, groupID uuid.UUID) ([]*Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT gm.group_id, gm.user_id, gm.role, gm.joined_at, u.display_name
		FROM group_members gm JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = $1
		ORDER BY gm.joined_at, gm.user_id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Membership
	for rows.Next() {
		m := &Membership{}
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Role, &m.JoinedAt, &m.DisplayName); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) PublicGroups(ctx context.Context) ([]*Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+groupColumns+` FROM groups g WHERE g.is_public ORDER BY g.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Group
	for rows.Next() {
		g := &Group{}
		if err := scanGroup(rows, g); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
