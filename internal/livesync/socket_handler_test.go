package livesync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"labspace/infrastructure"
	"labspace/internal/auth"
	"labspace/internal/chat"
	"labspace/internal/realtime"
)

type noAsker struct{}

func (noAsker) Ask(context.Context, uuid.UUID, uuid.UUID, string) (*chat.Message, error) {
	return nil, infrastructure.PermissionError("assistant is disabled")
}

type frame struct {
	Type string          `json:"type"`
	Ref  string          `json:"ref"`
	Data json.RawMessage `json:"data"`
}

type liveServer struct {
	*httptest.Server
	router *realtime.Router
}

// newLiveServer serves the live route; the caller is taken from the user
// query parameter in place of a bearer token.
func newLiveServer(t *testing.T, f *fixture) *liveServer {
	t.Helper()
	router := realtime.NewRouter()
	r := mux.NewRouter()
	SetupRoutes(r, NewSocketHandler(f.coord, router, f.store, f.tracker, noAsker{}, zap.NewNop()))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if id, err := uuid.Parse(req.URL.Query().Get("user")); err == nil {
			req = req.WithContext(auth.WithUserID(req.Context(), id))
		}
		r.ServeHTTP(w, req)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(router.Close)
	return &liveServer{Server: srv, router: router}
}

func (s *liveServer) dial(t *testing.T, sessionID, userID uuid.UUID) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/sessions/" + sessionID.String() + "/live?user=" + userID.String()
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Cleanup(func() { _ = ws.Close() })
	}
	return ws, resp, err
}

func readFrame(t *testing.T, ws *websocket.Conn) (frame, error) {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(waitFor))
	var fr frame
	_, payload, err := ws.ReadMessage()
	if err != nil {
		return fr, err
	}
	require.NoError(t, json.Unmarshal(payload, &fr))
	return fr, nil
}

// awaitFrame skips frames until match accepts one.
func awaitFrame(t *testing.T, ws *websocket.Conn, match func(frame) bool) frame {
	t.Helper()
	for {
		fr, err := readFrame(t, ws)
		require.NoError(t, err)
		if match(fr) {
			return fr
		}
	}
}

func TestLiveSocketRoundTrip(t *testing.T) {
	f := newFixture(t)
	srv := newLiveServer(t, f)

	ws, _, err := srv.dial(t, f.session.ID, f.admin)
	require.NoError(t, err)

	first, err := readFrame(t, ws)
	require.NoError(t, err)
	assert.Equal(t, realtime.FrameSnapshot, first.Type)

	require.NoError(t, ws.WriteJSON(realtime.Inbound{Type: realtime.FrameSend, Ref: "r1", Content: "hello"}))

	var acked, delivered *chat.Message
	for acked == nil || delivered == nil {
		fr := awaitFrame(t, ws, func(fr frame) bool {
			return (fr.Type == realtime.FrameAck && fr.Ref == "r1") || fr.Type == realtime.FrameMessage
		})
		var m chat.Message
		require.NoError(t, json.Unmarshal(fr.Data, &m))
		if fr.Type == realtime.FrameAck {
			acked = &m
		} else {
			delivered = &m
		}
	}
	assert.Equal(t, acked.ID, delivered.ID)
	assert.Equal(t, "hello", delivered.Content)
	assert.Equal(t, "admin", delivered.SenderName)

	require.NoError(t, ws.WriteJSON(realtime.Inbound{Type: "shout", Ref: "r2"}))
	fr := awaitFrame(t, ws, func(fr frame) bool { return fr.Ref == "r2" })
	require.Equal(t, realtime.FrameError, fr.Type)
	var e realtime.ErrorData
	require.NoError(t, json.Unmarshal(fr.Data, &e))
	assert.Equal(t, "validation", e.Code)

	require.NoError(t, ws.WriteJSON(realtime.Inbound{Type: realtime.FrameEdit, Ref: "r3", MessageID: acked.ID, Content: ""}))
	fr = awaitFrame(t, ws, func(fr frame) bool { return fr.Ref == "r3" })
	require.Equal(t, realtime.FrameError, fr.Type)

	_, err = f.registry.CloseSession(context.Background(), f.session.ID, f.admin)
	require.NoError(t, err)
	awaitFrame(t, ws, func(fr frame) bool { return fr.Type == realtime.FrameSession })

	require.NoError(t, ws.WriteJSON(realtime.Inbound{Type: realtime.FrameSend, Ref: "r4", Content: "too late"}))
	fr = awaitFrame(t, ws, func(fr frame) bool { return fr.Ref == "r4" })
	require.Equal(t, realtime.FrameError, fr.Type)
	require.NoError(t, json.Unmarshal(fr.Data, &e))
	assert.Equal(t, "conflict", e.Code)
}

func TestLiveSocketRefusesOutsiderBeforeUpgrade(t *testing.T) {
	f := newFixture(t)
	srv := newLiveServer(t, f)

	_, resp, err := srv.dial(t, f.session.ID, f.user(t, "outsider"))
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = srv.dial(t, uuid.New(), f.admin)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLiveSocketReplacesPreviousConnection(t *testing.T) {
	f := newFixture(t)
	srv := newLiveServer(t, f)
	a := f.member(t, "a")

	old, _, err := srv.dial(t, f.session.ID, a)
	require.NoError(t, err)
	_, err = readFrame(t, old)
	require.NoError(t, err)

	current, _, err := srv.dial(t, f.session.ID, a)
	require.NoError(t, err)
	first, err := readFrame(t, current)
	require.NoError(t, err)
	assert.Equal(t, realtime.FrameSnapshot, first.Type)

	for {
		_, err = readFrame(t, old)
		if err != nil {
			break
		}
	}
	assert.True(t, websocket.IsCloseError(err, realtime.CloseReplaced), "got %v", err)
	assert.Equal(t, 1, srv.router.Count(f.session.ID))

	// The replaced view closing must not mark the user offline.
	require.Never(t, func() bool {
		online, err := f.tracker.ListOnline(context.Background(), f.session.ID)
		return err != nil || len(online) != 1
	}, 200*time.Millisecond, tick)
}
