package realtime

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"labspace/internal/observability"
)

type seat struct {
	sessionID uuid.UUID
	userID    uuid.UUID
}

// Router tracks the open sockets per session. A user holds at most one
// socket per session; attaching a second one closes the first.
type Router struct {
	mu    sync.RWMutex
	seats map[seat]*Connection
	rooms map[uuid.UUID]map[uuid.UUID]*Connection // session -> connection id -> connection
}

func NewRouter() *Router {
	return &Router{
		seats: make(map[seat]*Connection),
		rooms: make(map[uuid.UUID]map[uuid.UUID]*Connection),
	}
}

// Attach registers conn and starts its write loop.
func (r *Router) Attach(conn *Connection) {
	key := seat{sessionID: conn.SessionID, userID: conn.UserID}

	r.mu.Lock()
	previous := r.seats[key]
	if previous != nil {
		r.detachLocked(previous)
	}
	r.seats[key] = conn
	room := r.rooms[conn.SessionID]
	if room == nil {
		room = make(map[uuid.UUID]*Connection)
		r.rooms[conn.SessionID] = room
	}
	room[conn.ID] = conn
	observability.LiveSockets.Inc()
	r.mu.Unlock()

	conn.Start()

	if previous != nil {
		previous.Close(CloseReplaced, "replaced by a newer connection")
	}
}

// Detach forgets conn if it is still tracked.
func (r *Router) Detach(conn *Connection) {
	r.mu.Lock()
	r.detachLocked(conn)
	r.mu.Unlock()
}

// Count returns the number of sockets open on a session.
func (r *Router) Count(sessionID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[sessionID])
}

// Close disconnects every tracked socket.
func (r *Router) Close() {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.seats))
	for _, conn := range r.seats {
		conns = append(conns, conn)
	}
	r.seats = make(map[seat]*Connection)
	r.rooms = make(map[uuid.UUID]map[uuid.UUID]*Connection)
	observability.LiveSockets.Sub(float64(len(conns)))
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Close(websocket.CloseGoingAway, "server shutdown")
	}
}

func (r *Router) detachLocked(conn *Connection) {
	key := seat{sessionID: conn.SessionID, userID: conn.UserID}
	if current, ok := r.seats[key]; ok && current.ID == conn.ID {
		delete(r.seats, key)
	}
	room := r.rooms[conn.SessionID]
	if room == nil {
		return
	}
	if _, ok := room[conn.ID]; !ok {
		return
	}
	delete(room, conn.ID)
	observability.LiveSockets.Dec()
	if len(room) == 0 {
		delete(r.rooms, conn.SessionID)
	}
}
