package sessions

import (
	"time"

	"github.com/google/uuid"
	"labspace/internal/groups"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

const maxTitleLength = 200

type Session struct {
	ID          uuid.UUID  `json:"id"`
	GroupID     uuid.UUID  `json:"group_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	CreatedBy   uuid.UUID  `json:"created_by"`
	Status      Status     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (s *Session) Completed() bool {
	return s.Status == StatusCompleted
}

type Participant struct {
	SessionID   uuid.UUID `json:"session_id"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Access is a session as seen by one member of its group.
type Access struct {
	Session  *Session    `json:"session"`
	Role     groups.Role `json:"role"`
	CanClose bool        `json:"can_close"`
}

// canManage reports whether userID may start or close s given their group role.
func canManage(s *Session, userID uuid.UUID, role groups.Role) bool {
	return s.CreatedBy == userID || role == groups.RoleAdmin
}

// start moves a waiting session to active.
func start(s *Session, at time.Time) error {
	switch s.Status {
	case StatusActive:
		return conflictf("session is already active")
	case StatusCompleted:
		return conflictf(errCompleted)
	}
	s.Status = StatusActive
	s.StartedAt = &at
	return nil
}

// complete moves s to its terminal state. It is not reversible.
func complete(s *Session, at time.Time) error {
	if s.Completed() {
		return conflictf(errCompleted)
	}
	if s.StartedAt == nil {
		s.StartedAt = &at
	}
	s.Status = StatusCompleted
	s.EndedAt = &at
	return nil
}
