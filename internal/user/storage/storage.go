package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"labspace/infrastructure"
)

var ErrDuplicate = errors.New("duplicate user")

type Saver interface {
	SaveUser(ctx context.Context, user *User) error
}

type Provider interface {
	UserByID(ctx context.Context, id uuid.UUID) (*User, error)
	UserByExternalID(ctx context.Context, externalID string) (*User, error)
	UsersByIDs(ctx context.Context, ids []uuid.UUID) ([]*User, error)
}

type Updater interface {
	UpdateAvailability(ctx context.Context, id uuid.UUID, availability string) (int64, error)
}

type GormStorage struct {
	db *gorm.DB
}

func NewUserGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

func (s *GormStorage) SaveUser(ctx context.Context, user *User) error {
	err := s.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) || infrastructure.IsUniqueViolation(err, "") {
		return ErrDuplicate
	}
	return err
}

func (s *GormStorage) UserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *GormStorage) UserByExternalID(ctx context.Context, externalID string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *GormStorage) UsersByIDs(ctx context.Context, ids []uuid.UUID) ([]*User, error) {
	var users []*User
	if len(ids) == 0 {
		return users, nil
	}
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	return users, err
}

func (s *GormStorage) UpdateAvailability(ctx context.Context, id uuid.UUID, availability string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update("availability", availability)
	return res.RowsAffected, res.Error
}
