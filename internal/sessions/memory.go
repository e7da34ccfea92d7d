package sessions

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"labspace/infrastructure"
)

type MemoryRepository struct {
	mu           sync.RWMutex
	sessions     map[uuid.UUID]*Session
	participants map[uuid.UUID]map[uuid.UUID]*Participant
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions:     make(map[uuid.UUID]*Session),
		participants: make(map[uuid.UUID]map[uuid.UUID]*Participant),
	}
}

func copySession(s *Session) *Session {
	cp := *s
	return &cp
}

func (r *MemoryRepository) CreateSession(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.ID]; exists {
		return infrastructure.ConflictError("session already exists")
	}
	r.sessions[s.ID] = copySession(s)
	r.participants[s.ID] = make(map[uuid.UUID]*Participant)
	return nil
}

func (r *MemoryRepository) GetSession(_ context.Context, id uuid.UUID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, infrastructure.NotFoundError(errSessionNotFound)
	}
	return copySession(s), nil
}

// WithOpenSession runs fn while holding the session table read lock, so the
// session cannot complete until fn returns.
func (r *MemoryRepository) WithOpenSession(_ context.Context, id uuid.UUID, fn func() error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return infrastructure.NotFoundError(errSessionNotFound)
	}
	if s.Completed() {
		return infrastructure.ConflictError(errCompleted)
	}
	return fn()
}

func (r *MemoryRepository) ListGroupSessions(_ context.Context, groupID uuid.UUID) ([]*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Session
	for _, s := range r.sessions {
		if s.GroupID == groupID {
			out = append(out, copySession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) Transition(_ context.Context, id uuid.UUID, fn func(*Session) error) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[id]
	if !ok {
		return nil, infrastructure.NotFoundError(errSessionNotFound)
	}
	s := copySession(stored)
	if err := fn(s); err != nil {
		return nil, err
	}
	r.sessions[id] = s
	if s.Completed() {
		r.participants[id] = make(map[uuid.UUID]*Participant)
	}
	return copySession(s), nil
}

func (r *MemoryRepository) Join(_ context.Context, p *Participant) (*Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[p.SessionID]
	if !ok {
		return nil, infrastructure.NotFoundError(errSessionNotFound)
	}
	if s.Completed() {
		return nil, conflictf(errCompleted)
	}
	if existing, ok := r.participants[p.SessionID][p.UserID]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *p
	r.participants[p.SessionID][p.UserID] = &cp
	out := cp
	return &out, nil
}

func (r *MemoryRepository) Leave(_ context.Context, sessionID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return infrastructure.NotFoundError(errSessionNotFound)
	}
	if s.Completed() {
		return conflictf(errCompleted)
	}
	if _, ok := r.participants[sessionID][userID]; !ok {
		return infrastructure.NotFoundError(errNotParticipant)
	}
	delete(r.participants[sessionID], userID)
	return nil
}

func (r *MemoryRepository) ListParticipants(_ context.Context, sessionID uuid.UUID) ([]*Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Participant, 0, len(r.participants[sessionID]))
	for _, p := range r.participants[sessionID] {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID.String() < out[j].UserID.String()
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}
