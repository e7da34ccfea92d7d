package groups

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"labspace/infrastructure"
	"labspace/internal/invite"
	"labspace/internal/user"
	"labspace/pkg/logger"
)

// createAttempts bounds retries when a freshly generated code loses the race
// to the unique constraint between the availability check and the insert.
const createAttempts = 3

var validate = validator.New()

type Users interface {
	Get(ctx context.Context, id uuid.UUID) (*user.User, error)
	DisplayNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

type InviteMailer interface {
	SendInviteCode(to, groupName, inviterName, inviteCode string) error
}

type CreateGroupInput struct {
	Name        string
	Description string
	IsPublic    bool
}

type Service struct {
	repo   Repository
	codes  *invite.Generator
	users  Users
	mailer InviteMailer
	log    *zap.Logger
}

func NewService(repo Repository, codes *invite.Generator, users Users, mailer InviteMailer, log *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		codes:  codes,
		users:  users,
		mailer: mailer,
		log:    log,
	}
}

func (s *Service) CreateGroup(ctx context.Context, in CreateGroupInput, creatorID uuid.UUID) (*Group, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return nil, err
	}
	description := strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return nil, infrastructure.ValidationError("description must be at most %d characters", maxDescriptionLength)
	}

	creator, err := s.users.Get(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if !creator.CanCreateGroups {
		return nil, infrastructure.PermissionError("this account cannot create groups")
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		code, err := s.codes.GenerateUnique(ctx, s.repo.InviteCodeAvailable)
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		g := &Group{
			ID:               uuid.New(),
			Name:             name,
			Description:      description,
			InviteCode:       code,
			IsPublic:         in.IsPublic,
			AssistantEnabled: true,
			CreatedBy:        creatorID,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		admin := &Membership{GroupID: g.ID, UserID: creatorID, Role: RoleAdmin, JoinedAt: now}

		err = s.repo.CreateGroup(ctx, g, admin)
		if errors.Is(err, errInviteCodeTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.log.Info("group created",
			zap.String(logger.FieldGroupID, g.ID.String()),
			zap.String(logger.FieldUserID, creatorID.String()),
		)
		return g, nil
	}
	return nil, fmt.Errorf("create group: %w", invite.ErrCodeSpaceExhausted)
}

func (s *Service) JoinByInviteCode(ctx context.Context, code string, userID uuid.UUID) (*Membership, error) {
	code = invite.Normalize(code)
	if !invite.IsValid(code) {
		return nil, infrastructure.NotFoundError("invalid invite code")
	}
	if _, err := s.users.Get(ctx, userID); err != nil {
		return nil, err
	}

	g, err := s.repo.GetGroupByInviteCode(ctx, code)
	if err != nil {
		return nil, err
	}

	m := &Membership{GroupID: g.ID, UserID: userID, Role: RoleMember, JoinedAt: time.Now().UTC()}
	if err := s.repo.AddMember(ctx, m); err != nil {
		return nil, err
	}

	s.log.Info("member joined",
		zap.String(logger.FieldGroupID, g.ID.String()),
		zap.String(logger.FieldUserID, userID.String()),
	)
	return m, nil
}

func (s *Service) UpdateMemberRole(ctx context.Context, groupID, userID uuid.UUID, newRole Role, actingUserID uuid.UUID) error {
	if err := s.requireRole(ctx, groupID, actingUserID, RoleAdmin); err != nil {
		return err
	}
	if !newRole.Valid() {
		return infrastructure.ValidationError("invalid role %q", newRole)
	}
	return s.repo.UpdateMemberRole(ctx, groupID, userID, newRole)
}

// RemoveMember is admin-only, except that removing yourself is leaving.
func (s *Service) RemoveMember(ctx context.Context, groupID, userID, actingUserID uuid.UUID) error {
	if userID != actingUserID {
		if err := s.requireRole(ctx, groupID, actingUserID, RoleAdmin); err != nil {
			return err
		}
	}
	return s.repo.RemoveMember(ctx, groupID, userID)
}

func (s *Service) LeaveGroup(ctx context.Context, groupID, userID uuid.UUID) error {
	return s.repo.RemoveMember(ctx, groupID, userID)
}

func (s *Service) RegenerateInviteCode(ctx context.Context, groupID, actingUserID uuid.UUID) (string, error) {
	if err := s.requireRole(ctx, groupID, actingUserID, RoleAdmin); err != nil {
		return "", err
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		// A code that is available is by definition different from the
		// group's current one.
		code, err := s.codes.GenerateUnique(ctx, s.repo.InviteCodeAvailable)
		if err != nil {
			return "", err
		}
		err = s.repo.SwapInviteCode(ctx, groupID, code)
		if errors.Is(err, errInviteCodeTaken) {
			continue
		}
		if err != nil {
			return "", err
		}
		s.log.Info("invite code regenerated", zap.String(logger.FieldGroupID, groupID.String()))
		return code, nil
	}
	return "", fmt.Errorf("regenerate invite code: %w", invite.ErrCodeSpaceExhausted)
}

func (s *Service) UpdateGroup(ctx context.Context, groupID, actingUserID uuid.UUID, patch GroupPatch) (*Group, error) {
	if err := s.requireRole(ctx, groupID, actingUserID, RoleAdmin); err != nil {
		return nil, err
	}
	g, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		if g.Name, err = validateName(*patch.Name); err != nil {
			return nil, err
		}
	}
	if patch.Description != nil {
		description := strings.TrimSpace(*patch.Description)
		if utf8.RuneCountInString(description) > maxDescriptionLength {
			return nil, infrastructure.ValidationError("description must be at most %d characters", maxDescriptionLength)
		}
		g.Description = description
	}
	if patch.IsPublic != nil {
		g.IsPublic = *patch.IsPublic
	}
	if patch.AssistantEnabled != nil {
		g.AssistantEnabled = *patch.AssistantEnabled
	}
	g.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateGroup(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// GetGroup returns the group as viewerID may see it: members see the invite
// code, outsiders only see public groups and never the code.
func (s *Service) GetGroup(ctx context.Context, groupID, viewerID uuid.UUID) (*Group, error) {
	g, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetMembership(ctx, groupID, viewerID); err != nil {
		if !errors.Is(err, infrastructure.ErrNotFound) {
			return nil, err
		}
		if !g.IsPublic {
			return nil, infrastructure.NotFoundError(errGroupNotFound)
		}
		g.InviteCode = ""
	}
	return g, nil
}

// Lookup returns a group without viewer checks, for internal callers.
func (s *Service) Lookup(ctx context.Context, groupID uuid.UUID) (*Group, error) {
	return s.repo.GetGroup(ctx, groupID)
}

func (s *Service) ListUserGroups(ctx context.Context, userID uuid.UUID) ([]*UserGroup, error) {
	return s.repo.ListUserGroups(ctx, userID)
}

func (s *Service) ListMembers(ctx context.Context, groupID, viewerID uuid.UUID) ([]*Membership, error) {
	if _, err := s.RoleOf(ctx, groupID, viewerID); err != nil {
		if errors.Is(err, infrastructure.ErrNotFound) {
			return nil, infrastructure.PermissionError("only members can list members")
		}
		return nil, err
	}
	members, err := s.repo.ListMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.fillDisplayNames(ctx, members); err != nil {
		return nil, err
	}
	return members, nil
}

func (s *Service) ListPublicGroups(ctx context.Context) ([]*Group, error) {
	groups, err := s.repo.ListPublicGroups(ctx)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		g.InviteCode = ""
	}
	return groups, nil
}

// RoleOf returns userID's role in the group, or a NotFound error when the
// user is not a member.
func (s *Service) RoleOf(ctx context.Context, groupID, userID uuid.UUID) (Role, error) {
	m, err := s.repo.GetMembership(ctx, groupID, userID)
	if err != nil {
		return "", err
	}
	return m.Role, nil
}

// SendInvite e-mails the group's current invite code. Admins and mentors may
// invite.
func (s *Service) SendInvite(ctx context.Context, groupID, actingUserID uuid.UUID, email string) error {
	email = strings.TrimSpace(email)
	if err := validate.Var(email, "required,email"); err != nil {
		return infrastructure.ValidationError("invalid e-mail address")
	}

	role, err := s.RoleOf(ctx, groupID, actingUserID)
	if err != nil {
		if errors.Is(err, infrastructure.ErrNotFound) {
			return infrastructure.PermissionError("only admins and mentors can send invites")
		}
		return err
	}
	if role != RoleAdmin && role != RoleMentor {
		return infrastructure.PermissionError("only admins and mentors can send invites")
	}

	g, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	inviter, err := s.users.Get(ctx, actingUserID)
	if err != nil {
		return err
	}

	if err := s.mailer.SendInviteCode(email, g.Name, inviter.DisplayName, g.InviteCode); err != nil {
		return fmt.Errorf("send invite: %w", err)
	}
	s.log.Info("invite sent", zap.String(logger.FieldGroupID, groupID.String()))
	return nil
}

func (s *Service) requireRole(ctx context.Context, groupID, userID uuid.UUID, role Role) error {
	got, err := s.RoleOf(ctx, groupID, userID)
	if errors.Is(err, infrastructure.ErrNotFound) || (err == nil && got != role) {
		return infrastructure.PermissionError("requires %s role", role)
	}
	return err
}

func (s *Service) fillDisplayNames(ctx context.Context, members []*Membership) error {
	var missing []uuid.UUID
	for _, m := range members {
		if m.DisplayName == "" {
			missing = append(missing, m.UserID)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	names, err := s.users.DisplayNames(ctx, missing)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.DisplayName == "" {
			m.DisplayName = names[m.UserID]
		}
	}
	return nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", infrastructure.ValidationError("name must not be empty")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", infrastructure.ValidationError("name must be at most %d characters", maxNameLength)
	}
	return name, nil
}
