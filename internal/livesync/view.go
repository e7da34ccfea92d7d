package livesync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
	"labspace/infrastructure"
	"labspace/internal/chat"
	"labspace/internal/feed"
	"labspace/internal/observability"
	"labspace/internal/presence"
	"labspace/internal/sessions"
	"labspace/pkg/logger"
)

// View is one client's reconciled state of a session: messages ordered by
// id, the online set, the participants and the session status.
type View struct {
	SessionID uuid.UUID
	UserID    uuid.UUID

	c       *Coordinator
	sub     *feed.Subscription
	cancel  context.CancelFunc
	updates chan Update
	log     *zap.Logger

	limiter         *rate.Limiter
	reloads         singleflight.Group
	presencePending atomic.Bool

	wg        sync.WaitGroup
	closeOnce sync.Once

	mu           sync.RWMutex
	messages     []*chat.Message
	online       []presence.Record
	session      *sessions.Session
	participants []*sessions.Participant
}

func newView(c *Coordinator, sessionID, userID uuid.UUID, sub *feed.Subscription, cancel context.CancelFunc) *View {
	return &View{
		SessionID: sessionID,
		UserID:    userID,
		c:         c,
		sub:       sub,
		cancel:    cancel,
		updates:   make(chan Update, updatesBuffer),
		log: c.log.With(
			zap.String(logger.FieldSessionID, sessionID.String()),
			zap.String(logger.FieldUserID, userID.String()),
		),
		limiter: rate.NewLimiter(c.opts.ReloadRate, c.opts.ReloadBurst),
	}
}

// Updates is closed after Close.
func (v *View) Updates() <-chan Update {
	return v.updates
}

// Close stops following the session and, unless another view of the same
// user is still open, marks the user offline. The offline write is best
// effort and bounded by a short timeout.
func (v *View) Close() {
	v.closeOnce.Do(func() {
		v.cancel()
		v.sub.Close()
		v.wg.Wait()
		close(v.updates)
		observability.LiveViews.Dec()

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		v.c.release(ctx, v.SessionID, v.UserID)
	})
}

func (v *View) Messages() []*chat.Message {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]*chat.Message(nil), v.messages...)
}

func (v *View) Online() []presence.Record {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]presence.Record(nil), v.online...)
}

func (v *View) Session() *sessions.Session {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.session
}

func (v *View) Participants() []*sessions.Participant {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]*sessions.Participant(nil), v.participants...)
}

func (v *View) snapshot() *Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return &Snapshot{
		Messages: append([]*chat.Message{}, v.messages...),
		Online:   append([]presence.Record{}, v.online...),
		SessionState: SessionState{
			Session:      v.session,
			Participants: append([]*sessions.Participant{}, v.participants...),
		},
	}
}

func (v *View) sessionState() *SessionState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return &SessionState{
		Session:      v.session,
		Participants: append([]*sessions.Participant{}, v.participants...),
	}
}

func (v *View) run(ctx context.Context) {
	defer v.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-v.sub.C:
			if !ok {
				return
			}
			v.handle(ctx, ev)
		}
	}
}

func (v *View) handle(ctx context.Context, ev feed.Event) {
	if ev.Op == feed.OpRefresh {
		v.refresh(ctx)
		return
	}
	switch ev.Channel {
	case feed.ChannelMessages:
		switch ev.Op {
		case feed.OpInsert:
			v.onInsert(ctx, ev)
		case feed.OpUpdate:
			v.onUpdate(ctx, ev)
		case feed.OpDelete:
			v.onDelete(ctx, ev)
		}
	case feed.ChannelPresence:
		v.requestPresenceReload(ctx)
	case feed.ChannelSession:
		if err := v.reloadSession(ctx); err != nil {
			v.log.Warn("session reload failed", zap.Error(err))
			return
		}
		v.emit(ctx, Update{Kind: UpdateSession, Session: v.sessionState()})
	}
}

// onInsert trusts the store over the notification: it re-reads the newest
// messages and merges them by id. When that read fails the notification
// payload is shown with an unknown sender rather than dropped.
func (v *View) onInsert(ctx context.Context, ev feed.Event) {
	if ev.MessageID != 0 && v.has(ev.MessageID) {
		return
	}

	var fresh []*chat.Message
	err := infrastructure.Retry(ctx, v.c.opts.Retry, func() error {
		var err error
		fresh, err = v.c.messages.Latest(ctx, v.SessionID, v.c.opts.FetchSize)
		return err
	})
	if err != nil {
		v.log.Warn("message fetch failed, using notification payload",
			zap.Int64(logger.FieldMessageID, ev.MessageID),
			zap.Error(err),
		)
		fresh = nil
	}

	if ev.MessageID != 0 && !containsID(fresh, ev.MessageID) {
		if ev.Message == nil {
			v.log.Warn("message insert could not be resolved", zap.Int64(logger.FieldMessageID, ev.MessageID))
		} else {
			fresh = append(fresh, chat.FromRaw(ev.Message))
			observability.MessageFetchFallbacks.Inc()
		}
	}

	for _, m := range v.merge(fresh) {
		v.emit(ctx, Update{Kind: UpdateMessage, Message: m})
	}
}

func (v *View) onUpdate(ctx context.Context, ev feed.Event) {
	if !v.has(ev.MessageID) {
		return
	}

	content, editedAt := "", ev.At
	if ev.Message != nil {
		content = ev.Message.Content
		if ev.Message.EditedAt != nil {
			editedAt = *ev.Message.EditedAt
		}
	} else {
		var m *chat.Message
		err := infrastructure.Retry(ctx, v.c.opts.Retry, func() error {
			var err error
			m, err = v.c.messages.Get(ctx, v.SessionID, ev.MessageID)
			return err
		})
		if err != nil {
			v.log.Warn("edited message fetch failed", zap.Int64(logger.FieldMessageID, ev.MessageID), zap.Error(err))
			return
		}
		content = m.Content
		if m.EditedAt != nil {
			editedAt = *m.EditedAt
		}
	}

	v.mu.Lock()
	i, ok := v.indexOf(ev.MessageID)
	if !ok {
		v.mu.Unlock()
		return
	}
	patched := *v.messages[i]
	patched.Content = content
	patched.EditedAt = &editedAt
	v.messages[i] = &patched
	v.mu.Unlock()

	v.emit(ctx, Update{Kind: UpdateMessage, Message: &patched})
}

func (v *View) onDelete(ctx context.Context, ev feed.Event) {
	v.mu.Lock()
	i, ok := v.indexOf(ev.MessageID)
	if ok {
		v.messages = append(v.messages[:i], v.messages[i+1:]...)
	}
	v.mu.Unlock()

	if ok {
		v.emit(ctx, Update{Kind: UpdateMessageRemoved, MessageID: ev.MessageID})
	}
}

// requestPresenceReload schedules a full reload of the online set. Requests
// made while a reload is running or throttled are folded into one more
// reload after it, so the last reload always starts after the last request.
func (v *View) requestPresenceReload(ctx context.Context) {
	v.presencePending.Store(true)
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		for v.presencePending.Load() && ctx.Err() == nil {
			_, _, _ = v.reloads.Do("presence", func() (any, error) {
				for v.presencePending.Swap(false) {
					if err := v.limiter.Wait(ctx); err != nil {
						return nil, err
					}
					if err := v.reloadPresence(ctx); err != nil {
						v.log.Warn("presence reload failed", zap.Error(err))
						continue
					}
					v.emit(ctx, Update{Kind: UpdatePresence, Online: v.Online()})
				}
				return nil, nil
			})
		}
	}()
}

func (v *View) reloadPresence(ctx context.Context) error {
	var online []presence.Record
	err := infrastructure.Retry(ctx, v.c.opts.Retry, func() error {
		var err error
		online, err = v.c.presence.ListOnline(ctx, v.SessionID)
		return err
	})
	if err != nil {
		return err
	}
	observability.PresenceReloads.Inc()

	v.mu.Lock()
	v.online = online
	v.mu.Unlock()
	return nil
}

func (v *View) reloadSession(ctx context.Context) error {
	var (
		s            *sessions.Session
		participants []*sessions.Participant
	)
	err := infrastructure.Retry(ctx, v.c.opts.Retry, func() error {
		var err error
		if s, err = v.c.sessions.GetSession(ctx, v.SessionID); err != nil {
			return err
		}
		participants, err = v.c.sessions.ListParticipants(ctx, v.SessionID)
		return err
	})
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.session = s
	v.participants = participants
	v.mu.Unlock()
	return nil
}

// load replaces the whole state.
func (v *View) load(ctx context.Context) error {
	messages, err := v.c.messages.Latest(ctx, v.SessionID, snapshotSize)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	if err := v.reloadSession(ctx); err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if err := v.reloadPresence(ctx); err != nil {
		return fmt.Errorf("load presence: %w", err)
	}

	v.mu.Lock()
	v.messages = sortedByID(messages)
	v.mu.Unlock()
	return nil
}

// refresh runs after the feed reports lost events.
func (v *View) refresh(ctx context.Context) {
	if err := v.load(ctx); err != nil {
		v.log.Warn("view refresh failed", zap.Error(err))
		return
	}
	v.emit(ctx, Update{Kind: UpdateSnapshot, Snapshot: v.snapshot()})
}

func (v *View) emit(ctx context.Context, u Update) {
	select {
	case v.updates <- u:
	case <-ctx.Done():
	}
}

// merge adds the messages whose id is not present yet and returns them in
// id order.
func (v *View) merge(fresh []*chat.Message) []*chat.Message {
	v.mu.Lock()
	defer v.mu.Unlock()

	var added []*chat.Message
	for _, m := range sortedByID(fresh) {
		i, ok := v.indexOf(m.ID)
		if ok {
			continue
		}
		v.messages = append(v.messages, nil)
		copy(v.messages[i+1:], v.messages[i:])
		v.messages[i] = m
		added = append(added, m)
	}
	return added
}

func (v *View) has(id int64) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.indexOf(id)
	return ok
}

// indexOf needs v.mu held. When id is absent it returns the insert position.
func (v *View) indexOf(id int64) (int, bool) {
	i := sort.Search(len(v.messages), func(i int) bool { return v.messages[i].ID >= id })
	return i, i < len(v.messages) && v.messages[i].ID == id
}

func containsID(messages []*chat.Message, id int64) bool {
	for _, m := range messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

func sortedByID(messages []*chat.Message) []*chat.Message {
	out := append([]*chat.Message(nil), messages...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
