package assistant

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"labspace/infrastructure"
	"labspace/internal/auth"
	"labspace/internal/chat"
	"labspace/internal/feed"
	"labspace/internal/groups"
	"labspace/internal/invite"
	"labspace/internal/sessions"
	"labspace/internal/user"
)

type noMail struct{}

func (noMail) SendInviteCode(string, string, string, string) error { return nil }

type responderFunc func(ctx context.Context, sessionID uuid.UUID, question string) (Answer, error)

func (f responderFunc) AskQuestion(ctx context.Context, sessionID uuid.UUID, question string) (Answer, error) {
	return f(ctx, sessionID, question)
}

type fixture struct {
	dir      *user.Directory
	groups   *groups.Service
	registry *sessions.Registry
	store    *chat.Store
	gate     *Gate
	group    *groups.Group
	session  *sessions.Session
	admin    uuid.UUID
	asked    []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()
	hub := feed.NewHub(feed.DefaultBuffer)
	t.Cleanup(func() { _ = hub.Close() })

	f := &fixture{}
	f.dir = user.NewDirectory(user.NewMemoryRepository(), true, log)
	f.groups = groups.NewService(groups.NewMemoryRepository(), invite.NewGenerator(), f.dir, noMail{}, log)
	sessionRepo := sessions.NewMemoryRepository()
	f.registry = sessions.NewRegistry(sessionRepo, f.groups, f.dir, hub, log)
	f.gate = NewGate(f.registry, f.groups)
	f.store = chat.NewStore(chat.NewMemoryRepository(sessionRepo), f.registry, f.groups, f.dir, f.gate, hub, log)

	f.admin = f.user(t, "admin")
	g, err := f.groups.CreateGroup(ctx, groups.CreateGroupInput{Name: "Lab X"}, f.admin)
	require.NoError(t, err)
	f.group = g
	s, err := f.registry.CreateSession(ctx, sessions.CreateSessionInput{GroupID: g.ID, Title: "Kickoff", Status: sessions.StatusActive}, f.admin)
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

func (f *fixture) setAssistant(t *testing.T, enabled bool) {
	t.Helper()
	_, err := f.groups.UpdateGroup(context.Background(), f.group.ID, f.admin, groups.GroupPatch{AssistantEnabled: &enabled})
	require.NoError(t, err)
}

func (f *fixture) worker(responder Responder) *Worker {
	return NewWorker(f.gate, responder, f.store, zap.NewNop())
}

func (f *fixture) answering(text string, sources ...string) Responder {
	return responderFunc(func(_ context.Context, _ uuid.UUID, question string) (Answer, error) {
		f.asked = append(f.asked, question)
		return Answer{Text: text, Sources: sources}, nil
	})
}

func (f *fixture) messages(t *testing.T) []*chat.Message {
	t.Helper()
	msgs, err := f.store.List(context.Background(), f.session.ID, 50, 0)
	require.NoError(t, err)
	return msgs
}

func TestGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	outsider := f.user(t, "outsider")

	ok, err := f.gate.CanInvokeAI(ctx, f.session.ID, f.admin)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.gate.CanInvokeAI(ctx, f.session.ID, outsider)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.gate.CanInvokeAI(ctx, uuid.New(), f.admin)
	require.NoError(t, err)
	assert.False(t, ok, "unknown session")

	f.setAssistant(t, false)
	ok, err = f.gate.CanInvokeAI(ctx, f.session.ID, f.admin)
	require.NoError(t, err)
	assert.False(t, ok, "assistant disabled")

	f.setAssistant(t, true)
	_, err = f.registry.CloseSession(ctx, f.session.ID, f.admin)
	require.NoError(t, err)
	ok, err = f.gate.CanInvokeAI(ctx, f.session.ID, f.admin)
	require.NoError(t, err)
	assert.False(t, ok, "completed session")
}

func TestAskAppendsQuestionAndAnswer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dispatcher := NewInlineDispatcher(f.worker(f.answering("Use a buffer at pH 7.", "doi:10.1000/xyz")), zap.NewNop())
	svc := NewService(f.gate, f.store, dispatcher, zap.NewNop())

	question, err := svc.Ask(ctx, f.session.ID, f.admin, "Which buffer?")
	require.NoError(t, err)
	assert.Equal(t, chat.TypeUser, question.Type)
	dispatcher.Wait()

	msgs := f.messages(t)
	require.Len(t, msgs, 2)
	reply := msgs[1]
	assert.Equal(t, chat.TypeAI, reply.Type)
	assert.Nil(t, reply.SenderID)
	assert.Equal(t, "Use a buffer at pH 7.", reply.Content)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, question.ID, *reply.ReplyTo)

	requester, ok := chat.RequestedBy(reply.Metadata)
	require.True(t, ok)
	assert.Equal(t, f.admin, requester)
	assert.Equal(t, []string{"doi:10.1000/xyz"}, reply.Metadata[chat.MetadataSources])
	assert.Equal(t, []string{"Which buffer?"}, f.asked)
}

func TestAskRejectedWhenGateClosed(t *testing.T) {
	f := newFixture(t)
	f.setAssistant(t, false)
	svc := NewService(f.gate, f.store, NewInlineDispatcher(f.worker(f.answering("x")), zap.NewNop()), zap.NewNop())

	_, err := svc.Ask(context.Background(), f.session.ID, f.admin, "anyone?")
	assert.ErrorIs(t, err, infrastructure.ErrPermission)
	assert.Empty(t, f.messages(t))
}

func TestWorkerRechecksGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	question, err := f.store.Append(ctx, chat.AppendRequest{SessionID: f.session.ID, SenderID: &f.admin, Content: "q", Type: chat.TypeUser})
	require.NoError(t, err)

	f.setAssistant(t, false)
	err = f.worker(f.answering("too late")).Handle(ctx, Turn{SessionID: f.session.ID, RequestedBy: f.admin, QuestionID: question.ID, Question: "q"})
	require.NoError(t, err)

	assert.Len(t, f.messages(t), 1)
	assert.Empty(t, f.asked)
}

func TestWorkerPostsNoticeWhenUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	question, err := f.store.Append(ctx, chat.AppendRequest{SessionID: f.session.ID, SenderID: &f.admin, Content: "q", Type: chat.TypeUser})
	require.NoError(t, err)

	err = f.worker(unavailableResponder{}).Handle(ctx, Turn{SessionID: f.session.ID, RequestedBy: f.admin, QuestionID: question.ID, Question: "q"})
	require.NoError(t, err)

	msgs := f.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.TypeSystem, msgs[1].Type)
}

func TestWorkerReturnsResponderFailure(t *testing.T) {
	f := newFixture(t)
	failing := responderFunc(func(context.Context, uuid.UUID, string) (Answer, error) {
		return Answer{}, errors.New("upstream timeout")
	})

	err := f.worker(failing).Handle(context.Background(), Turn{SessionID: f.session.ID, RequestedBy: f.admin, Question: "q"})
	assert.Error(t, err)
	assert.Empty(t, f.messages(t))
}

func TestProcessTask(t *testing.T) {
	f := newFixture(t)
	w := f.worker(f.answering("queued answer"))

	task, err := NewTurnTask(Turn{SessionID: f.session.ID, RequestedBy: f.admin, Question: "from the queue"})
	require.NoError(t, err)
	assert.Equal(t, TaskTurn, task.Type())
	require.NoError(t, w.ProcessTask(context.Background(), task))
	assert.Equal(t, []string{"from the queue"}, f.asked)

	err = w.ProcessTask(context.Background(), asynq.NewTask(TaskTurn, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestParseAnswer(t *testing.T) {
	a := parseAnswer(`{"answer": "42", "sources": ["hitchhiker"]}`)
	assert.Equal(t, "42", a.Text)
	assert.Equal(t, []string{"hitchhiker"}, a.Sources)

	a = parseAnswer("  plain text  ")
	assert.Equal(t, "plain text", a.Text)
	assert.Empty(t, a.Sources)
}

func TestBuildPromptAddsQuestionOnce(t *testing.T) {
	recent := []*chat.Message{
		{Type: chat.TypeUser, SenderName: "ada", Content: "hello"},
		{Type: chat.TypeAI, Content: "hi"},
		{Type: chat.TypeUser, SenderName: "ada", Content: "why?"},
	}
	prompt := buildPrompt(recent, "why?")
	require.Len(t, prompt, 4)
	assert.Equal(t, "ada: why?", prompt[3].Content)

	prompt = buildPrompt(recent[:2], "why?")
	require.Len(t, prompt, 4)
	assert.Equal(t, "why?", prompt[3].Content)
}
