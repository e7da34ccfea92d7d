package groups

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"labspace/infrastructure"
)

var errInviteCodeTaken = errors.New("invite code taken")

const (
	errNotMember     = "user is not a member of this group"
	errGroupNotFound = "group not found"
	errLastAdmin     = "group must keep at least one admin"
)

const inviteCodeConstraint = "groups_invite_code_key"

type Repository interface {
	CreateGroup(ctx context.Context, g *Group, admin *Membership) error
	InviteCodeAvailable(ctx context.Context, code string) (bool, error)
	GetGroup(ctx context.Context, id uuid.UUID) (*Group, error)
	GetGroupByInviteCode(ctx context.Context, code string) (*Group, error)
	UpdateGroup(ctx context.Context, g *Group) error
	SwapInviteCode(ctx context.Context, groupID uuid.UUID, code string) error

	AddMember(ctx context.Context, m *Membership) error
	GetMembership(ctx context.Context, groupID, userID uuid.UUID) (*Membership, error)
	UpdateMemberRole(ctx context.Context, groupID, userID uuid.UUID, role Role) error
	RemoveMember(ctx context.Context, groupID, userID uuid.UUID) error

	ListUserGroups(ctx context.Context, userID uuid.UUID) ([]*UserGroup, error)
	ListMembers(ctx context.Context, groupID uuid.UUID) ([]*Membership, error)
	ListPublicGroups(ctx context.Context) ([]*Group, error)
}

type repository struct {
	*sql.DB
	saver    Saver
	updater  Updater
	provider Provider
	deleter  Deleter
}

func NewRepository(db *sql.DB, storage *PostgresStorage) Repository {
	return &repository{
		DB:       db,
		saver:    storage,
		updater:  storage,
		provider: storage,
		deleter:  storage,
	}
}

func (r *repository) CreateGroup(ctx context.Context, g *Group, admin *Membership) error {
	err := infrastructure.TimedTransaction(r.DB, ctx, "groups.create_group", func(tx *sql.Tx) error {
		if err := r.saver.SaveGroup(ctx, tx, g); err != nil {
			return err
		}
		return r.saver.SaveMembership(ctx, tx, admin)
	})
	if infrastructure.IsUniqueViolation(err, inviteCodeConstraint) {
		return errInviteCodeTaken
	}
	if err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	g.MemberCount = 1
	return nil
}

func (r *repository) InviteCodeAvailable(ctx context.Context, code string) (bool, error) {
	exists, err := r.provider.InviteCodeExists(ctx, code)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

func (r *repository) GetGroup(ctx context.Context, id uuid.UUID) (*Group, error) {
	g, err := r.provider.GroupByID(ctx, r.DB, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, infrastructure.NotFoundError(errGroupNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

func (r *repository) GetGroupByInviteCode(ctx context.Context, code string) (*Group, error) {
	g, err := r.provider.GroupByInviteCode(ctx, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, infrastructure.NotFoundError("invalid invite code")
	}
	if err != nil {
		return nil, fmt.Errorf("get group by invite code: %w", err)
	}
	return g, nil
}

func (r *repository) UpdateGroup(ctx context.Context, g *Group) error {
	return infrastructure.TimedTransaction(r.DB, ctx, "groups.update_group", func(tx *sql.Tx) error {
		n, err := r.updater.UpdateGroup(ctx, tx, g)
		if err != nil {
			return fmt.Errorf("update group: %w", err)
		}
		if n == 0 {
			return infrastructure.NotFoundError(errGroupNotFound)
		}
		return nil
	})
}

func (r *repository) SwapInviteCode(ctx context.Context, groupID uuid.UUID, code string) error {
	err := infrastructure.TimedTransaction(r.DB, ctx, "groups.swap_invite_code", func(tx *sql.Tx) error {
		n, err := r.updater.UpdateInviteCode(ctx, tx, groupID, code)
		if err != nil {
			return err
		}
		if n == 0 {
			return infrastructure.NotFoundError(errGroupNotFound)
		}
		return nil
	})
	if infrastructure.IsUniqueViolation(err, inviteCodeConstraint) {
		return errInviteCodeTaken
	}
	return err
}

func (r *repository) AddMember(ctx context.Context, m *Membership) error {
	err := infrastructure.TimedTransaction(r.DB, ctx, "groups.add_member", func(tx *sql.Tx) error {
		return r.saver.SaveMembership(ctx, tx, m)
	})
	if infrastructure.IsUniqueViolation(err, "") {
		return infrastructure.ConflictError("already a member")
	}
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (r *repository) GetMembership(ctx context.Context, groupID, userID uuid.UUID) (*Membership, error) {
	m, err := r.provider.Membership(ctx, groupID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, infrastructure.NotFoundError(errNotMember)
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

func (r *repository) UpdateMemberRole(ctx context.Context, groupID, userID uuid.UUID, role Role) error {
	return infrastructure.TimedTransaction(r.DB, ctx, "groups.update_member_role", func(tx *sql.Tx) error {
		roles, err := r.provider.LockMemberRoles(ctx, tx, groupID)
		if err != nil {
			return fmt.Errorf("lock members: %w", err)
		}
		if _, ok := roles[userID]; !ok {
			return infrastructure.NotFoundError(errNotMember)
		}
		roles[userID] = role
		if !adminGuard(roles) {
			return infrastructure.ConflictError(errLastAdmin)
		}
		return r.updater.UpdateRole(ctx, tx, groupID, userID, role)
	})
}

func (r *repository) RemoveMember(ctx context.Context, groupID, userID uuid.UUID) error {
	return infrastructure.TimedTransaction(r.DB, ctx, "groups.remove_member", func(tx *sql.Tx) error {
		roles, err := r.provider.LockMemberRoles(ctx, tx, groupID)
		if err != nil {
			return fmt.Errorf("lock members: %w", err)
		}
		if _, ok := roles[userID]; !ok {
			return infrastructure.NotFoundError(errNotMember)
		}
		delete(roles, userID)
		if !adminGuard(roles) {
			return infrastructure.ConflictError(errLastAdmin)
		}
		return r.deleter.DeleteMembership(ctx, tx, groupID, userID)
	})
}

func (r *repository) ListUserGroups(ctx context.Context, userID uuid.UUID) ([]*UserGroup, error) {
	return r.provider.UserGroups(ctx, userID)
}

func (r *repository) ListMembers(ctx context.Context, groupID uuid.UUID) ([]*Membership, error) {
	return r.provider.Members(ctx, groupID)
}

func (r *repository) ListPublicGroups(ctx context.Context) ([]*Group, error) {
	return r.provider.PublicGroups(ctx)
}
