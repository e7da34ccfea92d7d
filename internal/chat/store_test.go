package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"labspace/infrastructure"
	"labspace/internal/auth"
	"labspace/internal/feed"
	"labspace/internal/groups"
	"labspace/internal/invite"
	"labspace/internal/sessions"
	"labspace/internal/user"
)

type noMail struct{}

func (noMail) SendInviteCode(string, string, string, string) error { return nil }

type gateFunc func(ctx context.Context, sessionID, userID uuid.UUID) (bool, error)

func (f gateFunc) CanInvokeAI(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	return f(ctx, sessionID, userID)
}

type fixture struct {
	store    *Store
	registry *sessions.Registry
	groups   *groups.Service
	dir      *user.Directory
	hub      *feed.Hub
	group    *groups.Group
	session  *sessions.Session
	admin    uuid.UUID
	allowAI  bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()

	f := &fixture{hub: feed.NewHub(feed.DefaultBuffer), allowAI: true}
	t.Cleanup(func() { _ = f.hub.Close() })

	f.dir = user.NewDirectory(user.NewMemoryRepository(), true, log)
	f.groups = groups.NewService(groups.NewMemoryRepository(), invite.NewGenerator(), f.dir, noMail{}, log)
	sessionRepo := sessions.NewMemoryRepository()
	f.registry = sessions.NewRegistry(sessionRepo, f.groups, f.dir, f.hub, log)
	gate := gateFunc(func(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
		return f.allowAI, nil
	})
	f.store = NewStore(NewMemoryRepository(sessionRepo), f.registry, f.groups, f.dir, gate, f.hub, log)

	f.admin = f.user(t, "admin")
	g, err := f.groups.CreateGroup(ctx, groups.CreateGroupInput{Name: "Lab X"}, f.admin)
	require.NoError(t, err)
	f.group = g
	s, err := f.registry.CreateSession(ctx, sessions.CreateSessionInput{GroupID: g.ID, Title: "Kickoff"}, f.admin)
	require.NoError(t, err)
	f.session = s
	return f
}

func (f *fixture) user(t *testing.T, name string) uuid.UUID {
	t.Helper()
	id, err := f.dir.ResolveIdentity(context.Background(), auth.Identity{ExternalID: "idp|" + name, DisplayName: name})
	require.NoError(t, err)
	return id
}

func (f *fixture) member(t *testing.T, name string) uuid.UUID {
	t.Helper()
	id := f.user(t, name)
	_, err := f.groups.JoinByInviteCode(context.Background(), f.group.InviteCode, id)
	require.NoError(t, err)
	return id
}

func (f *fixture) say(t *testing.T, sender uuid.UUID, content string) *Message {
	t.Helper()
	m, err := f.store.Append(context.Background(), AppendRequest{
		SessionID: f.session.ID,
		SenderID:  &sender,
		Content:   content,
		Type:      TypeUser,
	})
	require.NoError(t, err)
	return m
}

func TestAppendAssignsIncreasingIDs(t *testing.T) {
	f := newFixture(t)
	a := f.member(t, "a")

	first := f.say(t, a, "hello")
	second := f.say(t, f.admin, "hi")

	assert.Greater(t, second.ID, first.ID)
	assert.Equal(t, "a", first.SenderName)
	assert.Equal(t, "admin", second.SenderName)
	assert.False(t, first.SentAt.IsZero())
}

func TestAppendConcurrentIDsAreUnique(t *testing.T) {
	f := newFixture(t)
	a := f.member(t, "a")
	b := f.member(t, "b")

	const perSender = 20
	var (
		mu  sync.Mutex
		ids = make(map[int64]bool)
		wg  sync.WaitGroup
	)
	for _, sender := range []uuid.UUID{a, b} {
		wg.Add(1)
		go func(sender uuid.UUID) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				m, err := f.store.Append(context.Background(), AppendRequest{
					SessionID: f.session.ID, SenderID: &sender, Content: "x", Type: TypeUser,
				})
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				ids[m.ID] = true
				mu.Unlock()
			}
		}(sender)
	}
	wg.Wait()
	assert.Len(t, ids, 2*perSender)
}

func TestAppendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	outsider := f.user(t, "outsider")

	_, err := f.store.Append(ctx, AppendRequest{SessionID: f.session.ID, SenderID: &f.admin, Content: "  ", Type: TypeUser})
	assert.ErrorIs(t, err, infrastructure.ErrValidation)

	_, err = f.store.Append(ctx, AppendRequest{SessionID: f.session.ID, SenderID: &f.admin, Content: "x", Type: "bot"})
	assert.ErrorIs(t, err, infrastructure.ErrValidation)

	_, err = f.store.Append(ctx, AppendRequest{SessionID: f.session.ID, SenderID: &outsider, Content: "x", Type: TypeUser})
	assert.ErrorIs(t, err, infrastructure.ErrPermission)

	_, err = f.store.Append(ctx, AppendRequest{SessionID: uuid.New(), SenderID: &f.admin, Content: "x", Type: TypeUser})
	assert.ErrorIs(t, err, infrastructure.ErrNotFound)

	missing := int64(999)
	_, err = f.store.Append(ctx, AppendRequest{SessionID: f.session.ID, SenderID: &f.admin, Content: "x", Type: TypeUser, ReplyTo: &missing})
	assert.ErrorIs(t, err, infrastructure.ErrValidation)
}

func TestAppendToCompletedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.registry.CloseSession(ctx, f.session.ID, f.admin)
	require.NoError(t, err)

	_, err = f.store.Append(ctx, AppendRequest{SessionID: f.session.ID, SenderID: &f.admin, Content: "late", Type: TypeUser})
	assert.ErrorIs(t, err, infrastructure.ErrConflict)
}

// closingSessions completes the session right after handing it out, so the
// store's status check always passes and the write must still be refused.
type closingSessions struct {
	registry *sessions.Registry
	closer   uuid.UUID
	armed    bool
}

func (c *closingSessions) GetSession(ctx context.Context, sessionID uuid.UUID) (*sessions.Session, error) {
	s, err := c.registry.GetSession(ctx, sessionID)
	if err == nil && c.armed {
		if _, err := c.registry.CloseSession(ctx, sessionID, c.closer); err != nil {
			return nil, err
		}
	}
	return s, err
}

func TestWritesRacingSessionCloseAreRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kept := f.say(t, f.admin, "before close")

	racing := &closingSessions{registry: f.registry, closer: f.admin}
	f.store.sessions = racing

	racing.armed = true
	_, err := f.store.Append(ctx, AppendRequest{SessionID: f.session.ID, SenderID: &f.admin, Content: "late", Type: TypeUser})
	assert.ErrorIs(t, err, infrastructure.ErrConflict)

	s, err := f.registry.GetSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, sessions.StatusCompleted, s.Status)

	messages, err := f.store.List(ctx, f.session.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, kept.ID, messages[0].ID)

	// The repository refuses edits and deletes on its own as well.
	_, err = f.store.repo.Update(ctx, f.session.ID, kept.ID, "rewritten", time.Now().UTC(), f.admin)
	assert.ErrorIs(t, err, infrastructure.ErrConflict)
	err = f.store.repo.SoftDelete(ctx, f.session.ID, kept.ID, time.Now().UTC(), f.admin)
	assert.ErrorIs(t, err, infrastructure.ErrConflict)
}

func TestAppendAIRechecksGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := AppendRequest{
		SessionID: f.session.ID,
		Content:   "answer",
		Type:      TypeAI,
		Metadata:  map[string]any{MetadataRequestedBy: f.admin.String()},
	}

	f.allowAI = false
	_, err := f.store.Append(ctx, req)
	assert.ErrorIs(t, err, infrastructure.ErrPermission)

	f.allowAI = true
	m, err := f.store.Append(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, TypeAI, m.Type)
	assert.Equal(t, assistantName, m.SenderName)

	_, err = f.store.Append(ctx, AppendRequest{SessionID: f.session.ID, Content: "answer", Type: TypeAI})
	assert.ErrorIs(t, err, infrastructure.ErrValidation)
}

func TestEditAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.member(t, "a")
	b := f.member(t, "b")
	m := f.say(t, a, "draft")

	_, err := f.store.Edit(ctx, f.session.ID, m.ID, b, "hijack")
	assert.ErrorIs(t, err, infrastructure.ErrPermission)

	edited, err := f.store.Edit(ctx, f.session.ID, m.ID, a, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Content)
	require.NotNil(t, edited.EditedAt)

	assert.ErrorIs(t, f.store.Delete(ctx, f.session.ID, m.ID, b), infrastructure.ErrPermission)
	require.NoError(t, f.store.Delete(ctx, f.session.ID, m.ID, f.admin))

	_, err = f.store.Get(ctx, f.session.ID, m.ID)
	assert.ErrorIs(t, err, infrastructure.ErrNotFound)

	history, err := f.store.History(ctx, f.session.ID, m.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []EventOp{EventInsert, EventUpdate, EventDelete},
		[]EventOp{history[0].Op, history[1].Op, history[2].Op})
	assert.Equal(t, "final", history[1].Content)
}

func TestListAndLatest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.member(t, "a")

	var ids []int64
	for _, content := range []string{"one", "two", "three", "four"} {
		ids = append(ids, f.say(t, a, content).ID)
	}

	page, err := f.store.List(ctx, f.session.ID, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[1], page[0].ID)
	assert.Equal(t, ids[2], page[1].ID)

	latest, err := f.store.Latest(ctx, f.session.ID, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, ids[2], latest[0].ID)
	assert.Equal(t, ids[3], latest[1].ID)
	assert.Equal(t, "a", latest[1].SenderName)
}

func TestMutationsArePublished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.hub.Subscribe(ctx, f.session.ID)
	require.NoError(t, err)
	defer sub.Close()

	m := f.say(t, f.admin, "hello")
	_, err = f.store.Edit(ctx, f.session.ID, m.ID, f.admin, "hello again")
	require.NoError(t, err)
	require.NoError(t, f.store.Delete(ctx, f.session.ID, m.ID, f.admin))

	var ops []feed.Op
	for len(ops) < 3 {
		select {
		case ev := <-sub.C:
			if ev.Channel != feed.ChannelMessages {
				continue
			}
			assert.Equal(t, m.ID, ev.MessageID)
			ops = append(ops, ev.Op)
			if ev.Op == feed.OpInsert {
				require.NotNil(t, ev.Message)
				assert.Equal(t, "hello", ev.Message.Content)
			}
		case <-time.After(time.Second):
			t.Fatalf("got %v, want three message events", ops)
		}
	}
	assert.Equal(t, []feed.Op{feed.OpInsert, feed.OpUpdate, feed.OpDelete}, ops)
}

func TestRequestedBy(t *testing.T) {
	id := uuid.New()

	got, ok := RequestedBy(map[string]any{MetadataRequestedBy: id.String()})
	assert.True(t, ok)
	assert.Equal(t, id, got)

	got, ok = RequestedBy(map[string]any{MetadataRequestedBy: id})
	assert.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = RequestedBy(map[string]any{MetadataRequestedBy: "nope"})
	assert.False(t, ok)
	_, ok = RequestedBy(nil)
	assert.False(t, ok)
}
