package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]map[uuid.UUID]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[uuid.UUID]map[uuid.UUID]Record)}
}

func (s *MemoryStore) Upsert(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.sessions[rec.SessionID]
	if !ok {
		rows = make(map[uuid.UUID]Record)
		s.sessions[rec.SessionID] = rows
	}
	rec.DisplayName = ""
	rows[rec.UserID] = rec
	return nil
}

func (s *MemoryStore) Touch(_ context.Context, sessionID, userID uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID][userID]
	if !ok {
		return false, nil
	}
	rec.LastSeen = at
	s.sessions[sessionID][userID] = rec
	return true, nil
}

func (s *MemoryStore) List(_ context.Context, sessionID uuid.UUID) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.sessions[sessionID]))
	for _, rec := range s.sessions[sessionID] {
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemoryStore) ExpireStale(_ context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed []uuid.UUID
	for sessionID, rows := range s.sessions {
		touched := false
		for userID, rec := range rows {
			if rec.Status != StatusOffline && rec.LastSeen.Before(cutoff) {
				rec.Status = StatusOffline
				rows[userID] = rec
				touched = true
			}
		}
		if touched {
			changed = append(changed, sessionID)
		}
	}
	return changed, nil
}

func (s *MemoryStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for sessionID, rows := range s.sessions {
		for userID, rec := range rows {
			if rec.Status == StatusOffline && rec.LastSeen.Before(cutoff) {
				delete(rows, userID)
				removed++
			}
		}
		if len(rows) == 0 {
			delete(s.sessions, sessionID)
		}
	}
	return removed, nil
}
