package feed

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"labspace/internal/observability"
)

const DefaultBuffer = 64

type subscriber struct {
	mu         sync.Mutex
	ch         chan Event
	sessionID  uuid.UUID
	closed     bool
	overflowed bool
}

// deliver never blocks. When the buffer is about to fill, the last slot is
// used for a refresh event and later events are dropped until the
// subscriber has drained it.
func (s *subscriber) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.overflowed {
		if len(s.ch) > 0 {
			return
		}
		s.overflowed = false
	}
	if len(s.ch) < cap(s.ch)-1 {
		s.ch <- ev
		return
	}
	s.ch <- Event{Op: OpRefresh, SessionID: s.sessionID, At: time.Now().UTC()}
	s.overflowed = true
	observability.FeedOverflows.Inc()
}

func (s *subscriber) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Hub fans events out to in-process subscribers of a session.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[uuid.UUID]map[*subscriber]struct{}
	buffer int
	closed bool
}

func NewHub(buffer int) *Hub {
	if buffer < 2 {
		buffer = DefaultBuffer
	}
	return &Hub{
		rooms:  make(map[uuid.UUID]map[*subscriber]struct{}),
		buffer: buffer,
	}
}

func (h *Hub) Publish(_ context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	observability.FeedEvents.WithLabelValues(string(ev.Channel), string(ev.Op)).Inc()
	h.dispatch(ev)
	return nil
}

func (h *Hub) dispatch(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.rooms[ev.SessionID] {
		sub.deliver(ev)
	}
}

// broadcastRefresh asks every subscriber to reload, used after the upstream
// stream may have lost events.
func (h *Hub) broadcastRefresh() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	now := time.Now().UTC()
	for sessionID, room := range h.rooms {
		for sub := range room {
			sub.deliver(Event{Op: OpRefresh, SessionID: sessionID, At: now})
		}
	}
}

func (h *Hub) Subscribe(_ context.Context, sessionID uuid.UUID) (*Subscription, error) {
	sub := &subscriber{ch: make(chan Event, h.buffer), sessionID: sessionID}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.shutdown()
		return &Subscription{C: sub.ch, close: func() {}}, nil
	}
	room := h.rooms[sessionID]
	if room == nil {
		room = make(map[*subscriber]struct{})
		h.rooms[sessionID] = room
	}
	room[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return &Subscription{
		C: sub.ch,
		close: func() {
			once.Do(func() {
				h.unsubscribe(sessionID, sub)
				sub.shutdown()
			})
		},
	}, nil
}

func (h *Hub) unsubscribe(sessionID uuid.UUID, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[sessionID]
	if room == nil {
		return
	}
	delete(room, sub)
	if len(room) == 0 {
		delete(h.rooms, sessionID)
	}
}

// Close ends every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[uuid.UUID]map[*subscriber]struct{})
	h.closed = true
	h.mu.Unlock()

	for _, room := range rooms {
		for sub := range room {
			sub.shutdown()
		}
	}
	return nil
}
