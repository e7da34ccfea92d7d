package assistant

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"labspace/infrastructure"
	"labspace/internal/groups"
	"labspace/internal/sessions"
)

type Sessions interface {
	GetSession(ctx context.Context, sessionID uuid.UUID) (*sessions.Session, error)
}

type Groups interface {
	Lookup(ctx context.Context, groupID uuid.UUID) (*groups.Group, error)
	RoleOf(ctx context.Context, groupID, userID uuid.UUID) (groups.Role, error)
}

// Gate decides who may have the assistant answer in a session.
type Gate struct {
	sessions Sessions
	groups   Groups
}

func NewGate(sessions Sessions, groups Groups) *Gate {
	return &Gate{sessions: sessions, groups: groups}
}

// CanInvokeAI is true when the session is open, userID belongs to its group
// and the group has the assistant enabled. Only infrastructure failures are
// returned as errors; an unknown session is simply false.
func (g *Gate) CanInvokeAI(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	s, err := g.sessions.GetSession(ctx, sessionID)
	if errors.Is(err, infrastructure.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if s.Completed() {
		return false, nil
	}

	if _, err := g.groups.RoleOf(ctx, s.GroupID, userID); err != nil {
		if errors.Is(err, infrastructure.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	group, err := g.groups.Lookup(ctx, s.GroupID)
	if errors.Is(err, infrastructure.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return group.AssistantEnabled, nil
}
