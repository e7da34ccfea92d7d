package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"labspace/infrastructure"
	"labspace/internal/user/storage"
)

var ErrUserNotFound = errors.New("user not found")

type Repository interface {
	Create(ctx context.Context, user *User) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByExternalID(ctx context.Context, externalID string) (*User, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*User, error)
	UpdateAvailability(ctx context.Context, id uuid.UUID, availability Availability) error
}

type repository struct {
	userSaver    storage.Saver
	userProvider storage.Provider
	userUpdater  storage.Updater
}

func NewRepository(
	userSaver storage.Saver,
	userProvider storage.Provider,
	userUpdater storage.Updater,
) Repository {
	return &repository{
		userSaver:    userSaver,
		userProvider: userProvider,
		userUpdater:  userUpdater,
	}
}

func (r *repository) Create(ctx context.Context, user *User) (*User, error) {
	dbUser := ConvertUserToDbUser(user)
	if err := r.userSaver.SaveUser(ctx, dbUser); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, infrastructure.ConflictError("user already exists")
		}
		return nil, fmt.Errorf("save user: %w", err)
	}
	return ConvertDBUserToUser(dbUser), nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	dbUser, err := r.userProvider.UserByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return ConvertDBUserToUser(dbUser), nil
}

func (r *repository) GetByExternalID(ctx context.Context, externalID string) (*User, error) {
	dbUser, err := r.userProvider.UserByExternalID(ctx, externalID)
	if err != nil {
		return nil, notFound(err)
	}
	return ConvertDBUserToUser(dbUser), nil
}

func (r *repository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*User, error) {
	dbUsers, err := r.userProvider.UsersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	users := make(map[uuid.UUID]*User, len(dbUsers))
	for _, dbUser := range dbUsers {
		users[dbUser.ID] = ConvertDBUserToUser(dbUser)
	}
	return users, nil
}

func (r *repository) UpdateAvailability(ctx context.Context, id uuid.UUID, availability Availability) error {
	n, err := r.userUpdater.UpdateAvailability(ctx, id, string(availability))
	if err != nil {
		return fmt.Errorf("update availability: %w", err)
	}
	if n == 0 {
		return infrastructure.NotFoundError("%s", ErrUserNotFound)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return infrastructure.NotFoundError("%s", ErrUserNotFound)
	}
	return fmt.Errorf("load user: %w", err)
}
