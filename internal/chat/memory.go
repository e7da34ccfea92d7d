package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"labspace/infrastructure"
)

// SessionGuard runs fn only while the session exists and cannot complete.
type SessionGuard interface {
	WithOpenSession(ctx context.Context, sessionID uuid.UUID, fn func() error) error
}

// MemoryRepository assigns ids from one counter for all sessions, like the
// BIGSERIAL column it stands in for. Writes run under the guard when one is
// set, mirroring the session row lock of the Postgres repository.
type MemoryRepository struct {
	guard    SessionGuard
	mu       sync.RWMutex
	nextID   int64
	nextEvID int64
	messages map[int64]*Message
	sessions map[uuid.UUID][]int64
	events   map[int64][]*MessageEvent
}

func NewMemoryRepository(guard SessionGuard) *MemoryRepository {
	return &MemoryRepository{
		guard:    guard,
		messages: make(map[int64]*Message),
		sessions: make(map[uuid.UUID][]int64),
		events:   make(map[int64][]*MessageEvent),
	}
}

func copyMessage(m *Message) *Message {
	cp := *m
	if m.Metadata != nil {
		cp.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func (r *MemoryRepository) guarded(ctx context.Context, sessionID uuid.UUID, fn func() error) error {
	if r.guard == nil {
		return fn()
	}
	return r.guard.WithOpenSession(ctx, sessionID, fn)
}

func (r *MemoryRepository) record(ev *MessageEvent) {
	r.nextEvID++
	ev.ID = r.nextEvID
	ev.CreatedAt = time.Now().UTC()
	r.events[ev.MessageID] = append(r.events[ev.MessageID], ev)
}

func (r *MemoryRepository) Append(ctx context.Context, m *Message) error {
	return r.guarded(ctx, m.SessionID, func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.nextID++
		m.ID = r.nextID
		m.SentAt = time.Now().UTC()
		r.messages[m.ID] = copyMessage(m)
		r.sessions[m.SessionID] = append(r.sessions[m.SessionID], m.ID)
		r.record(&MessageEvent{MessageID: m.ID, SessionID: m.SessionID, Op: EventInsert, ActorID: m.SenderID, Content: m.Content})
		return nil
	})
}

// live returns the stored message unless it is missing, deleted or belongs
// to another session. Callers hold the lock.
func (r *MemoryRepository) live(sessionID uuid.UUID, id int64) (*Message, bool) {
	m, ok := r.messages[id]
	if !ok || m.SessionID != sessionID || m.DeletedAt != nil {
		return nil, false
	}
	return m, true
}

func (r *MemoryRepository) Get(_ context.Context, sessionID uuid.UUID, id int64) (*Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.live(sessionID, id)
	if !ok {
		return nil, infrastructure.NotFoundError(errMessageNotFound)
	}
	return copyMessage(m), nil
}

func (r *MemoryRepository) Update(ctx context.Context, sessionID uuid.UUID, id int64, content string, editedAt time.Time, actorID uuid.UUID) (*Message, error) {
	var out *Message
	err := r.guarded(ctx, sessionID, func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		m, ok := r.live(sessionID, id)
		if !ok {
			return infrastructure.NotFoundError(errMessageNotFound)
		}
		m.Content = content
		m.EditedAt = &editedAt
		r.record(&MessageEvent{MessageID: id, SessionID: sessionID, Op: EventUpdate, ActorID: &actorID, Content: content})
		out = copyMessage(m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MemoryRepository) SoftDelete(ctx context.Context, sessionID uuid.UUID, id int64, deletedAt time.Time, actorID uuid.UUID) error {
	return r.guarded(ctx, sessionID, func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		m, ok := r.live(sessionID, id)
		if !ok {
			return infrastructure.NotFoundError(errMessageNotFound)
		}
		m.DeletedAt = &deletedAt
		r.record(&MessageEvent{MessageID: id, SessionID: sessionID, Op: EventDelete, ActorID: &actorID})
		return nil
	})
}

func (r *MemoryRepository) visible(sessionID uuid.UUID) []*Message {
	var out []*Message
	for _, id := range r.sessions[sessionID] {
		if m, ok := r.live(sessionID, id); ok {
			out = append(out, copyMessage(m))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SentAt.Before(out[j].SentAt)
	})
	return out
}

func (r *MemoryRepository) List(_ context.Context, sessionID uuid.UUID, limit, offset int) ([]*Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.visible(sessionID)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *MemoryRepository) Latest(_ context.Context, sessionID uuid.UUID, n int) ([]*Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.visible(sessionID)
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func (r *MemoryRepository) Events(_ context.Context, sessionID uuid.UUID, id int64) ([]*MessageEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*MessageEvent
	for _, ev := range r.events[id] {
		if ev.SessionID == sessionID {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}
