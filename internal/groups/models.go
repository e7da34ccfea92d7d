package groups

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMentor Role = "mentor"
	RoleMember Role = "member"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleMentor, RoleMember:
		return true
	}
	return false
}

const (
	maxNameLength        = 100
	maxDescriptionLength = 1000
)

type Group struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	InviteCode       string    `json:"invite_code,omitempty"`
	IsPublic         bool      `json:"is_public"`
	AssistantEnabled bool      `json:"assistant_enabled"`
	CreatedBy        uuid.UUID `json:"created_by"`
	MemberCount      int       `json:"member_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Membership struct {
	GroupID     uuid.UUID `json:"group_id"`
	UserID      uuid.UUID `json:"user_id"`
	Role        Role      `json:"role"`
	DisplayName string    `json:"display_name,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}

// UserGroup is a group as seen by one of its members.
type UserGroup struct {
	Group
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// GroupPatch holds the admin-editable settings; nil fields are left alone.
type GroupPatch struct {
	Name             *string
	Description      *string
	IsPublic         *bool
	AssistantEnabled *bool
}

// adminGuard reports whether members, after a change, still satisfy the
// rule that a non-empty group keeps at least one admin.
func adminGuard(members map[uuid.UUID]Role) bool {
	if len(members) == 0 {
		return true
	}
	for _, role := range members {
		if role == RoleAdmin {
			return true
		}
	}
	return false
}
