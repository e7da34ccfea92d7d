package livesync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"labspace/infrastructure"
	"labspace/internal/chat"
	"labspace/internal/feed"
	"labspace/internal/observability"
	"labspace/internal/presence"
	"labspace/internal/sessions"
)

const (
	// DefaultFetchSize is how many of the newest messages an insert
	// notification re-reads.
	DefaultFetchSize = 20
	snapshotSize     = 200
	updatesBuffer    = 64
	closeTimeout     = 2 * time.Second

	DefaultReloadRate  = rate.Limit(5)
	DefaultReloadBurst = 1
)

type Messages interface {
	Latest(ctx context.Context, sessionID uuid.UUID, n int) ([]*chat.Message, error)
	Get(ctx context.Context, sessionID uuid.UUID, messageID int64) (*chat.Message, error)
}

type Presence interface {
	SetPresenceBestEffort(ctx context.Context, sessionID, userID uuid.UUID, status presence.Status)
	ListOnline(ctx context.Context, sessionID uuid.UUID) ([]presence.Record, error)
}

type Sessions interface {
	Access(ctx context.Context, sessionID, userID uuid.UUID) (*sessions.Access, error)
	GetSession(ctx context.Context, sessionID uuid.UUID) (*sessions.Session, error)
	ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]*sessions.Participant, error)
}

type Options struct {
	FetchSize   int
	ReloadRate  rate.Limit
	ReloadBurst int
	Retry       infrastructure.RetryPolicy
}

func DefaultOptions() Options {
	return Options{
		FetchSize:   DefaultFetchSize,
		ReloadRate:  DefaultReloadRate,
		ReloadBurst: DefaultReloadBurst,
		Retry:       infrastructure.DefaultRetryPolicy,
	}
}

type seat struct {
	sessionID uuid.UUID
	userID    uuid.UUID
}

// Coordinator opens live views of sessions.
type Coordinator struct {
	messages Messages
	presence Presence
	sessions Sessions
	feed     feed.Subscriber
	opts     Options
	log      *zap.Logger

	mu    sync.Mutex
	seats map[seat]int // open views per user and session
}

func NewCoordinator(messages Messages, presence Presence, sessions Sessions, subscriber feed.Subscriber, opts Options, log *zap.Logger) *Coordinator {
	if opts.FetchSize <= 0 {
		opts.FetchSize = DefaultFetchSize
	}
	if opts.ReloadRate <= 0 {
		opts.ReloadRate = DefaultReloadRate
	}
	if opts.ReloadBurst <= 0 {
		opts.ReloadBurst = DefaultReloadBurst
	}
	return &Coordinator{
		messages: messages,
		presence: presence,
		sessions: sessions,
		feed:     subscriber,
		opts:     opts,
		log:      log,
		seats:    make(map[seat]int),
	}
}

// Open checks that userID belongs to the session's group, marks them online
// and returns a view that follows the session until Close or until ctx is
// done. The first update on the view is always a snapshot.
func (c *Coordinator) Open(ctx context.Context, sessionID, userID uuid.UUID) (*View, error) {
	access, err := c.sessions.Access(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	// Subscribe before loading so nothing written in between is missed.
	sub, err := c.feed.Subscribe(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("subscribe to session %s: %w", sessionID, err)
	}

	c.acquire(sessionID, userID)
	if !access.Session.Completed() {
		c.presence.SetPresenceBestEffort(ctx, sessionID, userID, presence.StatusOnline)
	}

	viewCtx, cancel := context.WithCancel(ctx)
	v := newView(c, sessionID, userID, sub, cancel)
	if err := v.load(ctx); err != nil {
		cancel()
		sub.Close()
		c.release(context.WithoutCancel(ctx), sessionID, userID)
		return nil, err
	}
	v.updates <- Update{Kind: UpdateSnapshot, Snapshot: v.snapshot()}

	observability.LiveViews.Inc()
	v.wg.Add(1)
	go v.run(viewCtx)
	return v, nil
}

func (c *Coordinator) acquire(sessionID, userID uuid.UUID) {
	c.mu.Lock()
	c.seats[seat{sessionID, userID}]++
	c.mu.Unlock()
}

func (c *Coordinator) openViews(sessionID, userID uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seats[seat{sessionID, userID}]
}

// release drops one view of the user. Only the last view to go marks the
// user offline, so a reconnect or a second tab keeps them online.
func (c *Coordinator) release(ctx context.Context, sessionID, userID uuid.UUID) {
	key := seat{sessionID, userID}
	c.mu.Lock()
	c.seats[key]--
	last := c.seats[key] <= 0
	if last {
		delete(c.seats, key)
	}
	c.mu.Unlock()
	if !last {
		return
	}

	c.presence.SetPresenceBestEffort(ctx, sessionID, userID, presence.StatusOffline)
	// A view opened while the offline write was in flight may have written
	// online first; restore it.
	if c.openViews(sessionID, userID) > 0 {
		c.presence.SetPresenceBestEffort(ctx, sessionID, userID, presence.StatusOnline)
	}
}
