package presence

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusOffline:
		return true
	}
	return false
}

type Record struct {
	SessionID   uuid.UUID `json:"session_id"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Status      Status    `json:"status"`
	LastSeen    time.Time `json:"last_seen"`
}

// liveAt reports whether r counts as present at now given the lease ttl.
func (r Record) liveAt(now time.Time, ttl time.Duration) bool {
	return r.Status != StatusOffline && !r.LastSeen.Before(now.Add(-ttl))
}
