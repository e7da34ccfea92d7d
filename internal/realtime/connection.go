package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait   = 10 * time.Second
	pingPeriod  = 30 * time.Second
	sendBuffer  = 128
	ReadTimeout = 60 * time.Second
	// MaxFrameSize caps inbound frames; message content is far smaller.
	MaxFrameSize = 64 << 10
)

// CloseReplaced is sent to a socket superseded by a newer one for the same
// user and session.
const CloseReplaced = 4001

var ErrClosed = errors.New("connection closed")

// Connection owns the write side of one websocket. Send is safe for
// concurrent use; reads stay with the caller.
type Connection struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	SessionID uuid.UUID

	ws    *websocket.Conn
	send  chan []byte
	once  sync.Once
	close chan struct{}
}

func NewConnection(sessionID, userID uuid.UUID, ws *websocket.Conn) *Connection {
	return &Connection{
		ID:        uuid.New(),
		UserID:    userID,
		SessionID: sessionID,
		ws:        ws,
		send:      make(chan []byte, sendBuffer),
		close:     make(chan struct{}),
	}
}

// Start launches the write loop. It must be called exactly once.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.close
}

// Send enqueues payload. A client too slow to drain its buffer is
// disconnected instead of stalling the sender.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.close:
		return ErrClosed
	default:
	}
	select {
	case <-c.close:
		return ErrClosed
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.CloseTryAgainLater, "send buffer full")
		return errors.New("connection buffer exceeded")
	}
}

func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.close)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.close:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}
