package livesync

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"labspace/infrastructure"
	"labspace/internal/api"
	"labspace/internal/auth"
	"labspace/internal/chat"
	"labspace/internal/presence"
	"labspace/internal/realtime"
)

const (
	inboundRate  = rate.Limit(10)
	inboundBurst = 20
)

type MessageWriter interface {
	Append(ctx context.Context, req chat.AppendRequest) (*chat.Message, error)
	Edit(ctx context.Context, sessionID uuid.UUID, messageID int64, actorID uuid.UUID, content string) (*chat.Message, error)
	Delete(ctx context.Context, sessionID uuid.UUID, messageID int64, actorID uuid.UUID) error
}

type PresenceWriter interface {
	SetPresence(ctx context.Context, sessionID, userID uuid.UUID, status presence.Status) error
	Heartbeat(ctx context.Context, sessionID, userID uuid.UUID) error
}

// Asker starts an assistant turn for a question.
type Asker interface {
	Ask(ctx context.Context, sessionID, userID uuid.UUID, question string) (*chat.Message, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Sockets authenticate with a bearer token, not cookies.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type SocketHandler struct {
	coordinator *Coordinator
	router      *realtime.Router
	messages    MessageWriter
	presence    PresenceWriter
	asker       Asker
	log         *zap.Logger
}

func NewSocketHandler(coordinator *Coordinator, router *realtime.Router, messages MessageWriter, presence PresenceWriter, asker Asker, log *zap.Logger) *SocketHandler {
	return &SocketHandler{
		coordinator: coordinator,
		router:      router,
		messages:    messages,
		presence:    presence,
		asker:       asker,
		log:         log,
	}
}

// Live opens a view of the session and streams it over a websocket. Errors
// found before the upgrade are plain HTTP errors.
func (h *SocketHandler) Live(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.CurrentUser(r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	sessionID, err := api.PathUUID(r, "id")
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	ctx := r.Context()
	view, err := h.coordinator.Open(ctx, sessionID, userID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	defer view.Close()

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response.
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := realtime.NewConnection(sessionID, userID, ws)
	h.router.Attach(conn)
	defer func() {
		h.router.Detach(conn)
		conn.Close(websocket.CloseNormalClosure, "view closed")
	}()

	go h.forward(view, conn)
	h.readLoop(ctx, ws, conn)
}

func (h *SocketHandler) forward(view *View, conn *realtime.Connection) {
	for u := range view.Updates() {
		payload, err := encodeUpdate(u)
		if err != nil {
			h.log.Error("encode live update", zap.String("kind", string(u.Kind)), zap.Error(err))
			continue
		}
		if err := conn.Send(payload); err != nil {
			return
		}
	}
}

func (h *SocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, conn *realtime.Connection) {
	ws.SetReadLimit(realtime.MaxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(realtime.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(realtime.ReadTimeout))
	})

	limiter := rate.NewLimiter(inboundRate, inboundBurst)
	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket closed", zap.Error(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(realtime.ReadTimeout))

		in, err := realtime.Decode(payload)
		if err != nil {
			h.reply(conn, "", nil, infrastructure.ValidationError("malformed frame"))
			continue
		}
		if !limiter.Allow() {
			h.reply(conn, in.Ref, nil, infrastructure.ValidationError("too many frames, slow down"))
			continue
		}
		data, err := h.dispatch(ctx, conn, in)
		h.reply(conn, in.Ref, data, err)
	}
}

func (h *SocketHandler) dispatch(ctx context.Context, conn *realtime.Connection, in realtime.Inbound) (any, error) {
	sessionID, userID := conn.SessionID, conn.UserID

	switch in.Type {
	case realtime.FrameSend:
		return h.messages.Append(ctx, chat.AppendRequest{
			SessionID: sessionID,
			SenderID:  &userID,
			Content:   in.Content,
			Type:      chat.TypeUser,
			Metadata:  in.Metadata,
			ReplyTo:   in.ReplyTo,
		})
	case realtime.FrameEdit:
		return h.messages.Edit(ctx, sessionID, in.MessageID, userID, in.Content)
	case realtime.FrameDelete:
		return nil, h.messages.Delete(ctx, sessionID, in.MessageID, userID)
	case realtime.FramePresence:
		return nil, h.presence.SetPresence(ctx, sessionID, userID, presence.Status(in.Status))
	case realtime.FrameHeartbeat:
		return nil, h.presence.Heartbeat(ctx, sessionID, userID)
	case realtime.FrameAsk:
		return h.asker.Ask(ctx, sessionID, userID, in.Content)
	}
	return nil, infrastructure.ValidationError("unknown frame type %q", in.Type)
}

// reply answers one inbound frame with an ack or an error frame.
func (h *SocketHandler) reply(conn *realtime.Connection, ref string, data any, err error) {
	var (
		payload []byte
		encErr  error
	)
	if err != nil {
		if api.ErrorCode(err) == "internal" {
			h.log.Error("live request failed", zap.Error(err))
		}
		payload, encErr = realtime.Encode(realtime.FrameError, ref, realtime.ErrorData{
			Code:  api.ErrorCode(err),
			Error: api.PublicMessage(err),
		})
	} else {
		payload, encErr = realtime.Encode(realtime.FrameAck, ref, data)
	}
	if encErr != nil {
		h.log.Error("encode live reply", zap.Error(encErr))
		return
	}
	_ = conn.Send(payload)
}

func encodeUpdate(u Update) ([]byte, error) {
	switch u.Kind {
	case UpdateSnapshot:
		return realtime.Encode(realtime.FrameSnapshot, "", u.Snapshot)
	case UpdateMessage:
		return realtime.Encode(realtime.FrameMessage, "", u.Message)
	case UpdateMessageRemoved:
		return realtime.Encode(realtime.FrameMessageRemoved, "", removed{MessageID: u.MessageID})
	case UpdatePresence:
		online := u.Online
		if online == nil {
			online = []presence.Record{}
		}
		return realtime.Encode(realtime.FramePresenceList, "", online)
	default:
		return realtime.Encode(realtime.FrameSession, "", u.Session)
	}
}

// SetupRoutes Helper function to set up routes
func SetupRoutes(r *mux.Router, h *SocketHandler) {
	r.HandleFunc("/sessions/{id}/live", h.Live).Methods("GET")
}
