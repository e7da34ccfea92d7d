package user

import "labspace/internal/user/storage"

func ConvertDBUserToUser(dbUser *storage.User) *User {
	return &User{
		ID:              dbUser.ID,
		ExternalID:      dbUser.ExternalID,
		DisplayName:     dbUser.DisplayName,
		Availability:    Availability(dbUser.Availability),
		CanCreateGroups: dbUser.CanCreateGroups,
		CreatedAt:       dbUser.CreatedAt,
		UpdatedAt:       dbUser.UpdatedAt,
	}
}

func ConvertUserToDbUser(u *User) *storage.User {
	return &storage.User{
		ID:              u.ID,
		ExternalID:      u.ExternalID,
		DisplayName:     u.DisplayName,
		Availability:    string(u.Availability),
		CanCreateGroups: u.CanCreateGroups,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}
