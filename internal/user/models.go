package user

import (
	"time"

	"github.com/google/uuid"
)

type Availability string

const (
	Available Availability = "available"
	Busy      Availability = "busy"
	Offline   Availability = "offline"
)

func (a Availability) Valid() bool {
	switch a {
	case Available, Busy, Offline:
		return true
	}
	return false
}

type User struct {
	ID              uuid.UUID    `json:"id"`
	ExternalID      string       `json:"-"`
	DisplayName     string       `json:"display_name"`
	Availability    Availability `json:"availability"`
	CanCreateGroups bool         `json:"can_create_groups"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}
