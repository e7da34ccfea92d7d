package storage

import (
	"time"

	"github.com/google/uuid"
)

// User is the gorm mapping of the users table created by the migrations.
type User struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	ExternalID      string    `gorm:"column:external_id;uniqueIndex;not null"`
	DisplayName     string    `gorm:"column:display_name;not null"`
	Availability    string    `gorm:"column:availability;not null"`
	CanCreateGroups bool      `gorm:"column:can_create_groups;not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (User) TableName() string {
	return "users"
}
