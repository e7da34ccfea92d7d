package user

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"labspace/infrastructure"
)

// MemoryRepository keeps users in process. Used by the memory backend and tests.
type MemoryRepository struct {
	mu         sync.RWMutex
	byID       map[uuid.UUID]*User
	byExternal map[string]uuid.UUID
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:       make(map[uuid.UUID]*User),
		byExternal: make(map[string]uuid.UUID),
	}
}

func (r *MemoryRepository) Create(_ context.Context, user *User) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byExternal[user.ExternalID]; ok {
		return nil, infrastructure.ConflictError("user already exists")
	}
	if _, ok := r.byID[user.ID]; ok {
		return nil, infrastructure.ConflictError("user already exists")
	}
	u := *user
	r.byID[u.ID] = &u
	r.byExternal[u.ExternalID] = u.ID
	out := u
	return &out, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, infrastructure.NotFoundError("%s", ErrUserNotFound)
	}
	out := *u
	return &out, nil
}

func (r *MemoryRepository) GetByExternalID(ctx context.Context, externalID string) (*User, error) {
	r.mu.RLock()
	id, ok := r.byExternal[externalID]
	r.mu.RUnlock()
	if !ok {
		return nil, infrastructure.NotFoundError("%s", ErrUserNotFound)
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryRepository) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[uuid.UUID]*User, len(ids))
	for _, id := range ids {
		if u, ok := r.byID[id]; ok {
			cp := *u
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *MemoryRepository) UpdateAvailability(_ context.Context, id uuid.UUID, availability Availability) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return infrastructure.NotFoundError("%s", ErrUserNotFound)
	}
	u.Availability = availability
	u.UpdatedAt = time.Now()
	return nil
}
