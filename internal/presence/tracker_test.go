package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"labspace/infrastructure"
	"labspace/internal/feed"
)

type staticNames map[uuid.UUID]string

func (n staticNames) DisplayNames(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(ids))
	for _, id := range ids {
		if name, ok := n[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

type clock struct{ at time.Time }

func (c *clock) now() time.Time { return c.at }

func newTracker(t *testing.T, names staticNames) (*Tracker, *feed.Hub, *clock) {
	t.Helper()
	hub := feed.NewHub(feed.DefaultBuffer)
	t.Cleanup(func() { _ = hub.Close() })
	tr := NewTracker(NewMemoryStore(), names, hub, time.Minute, zap.NewNop())
	c := &clock{at: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	tr.now = c.now
	return tr, hub, c
}

func userIDs(records []Record) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(records))
	for _, r := range records {
		out = append(out, r.UserID)
	}
	return out
}

func TestSetPresenceLastWriterWins(t *testing.T) {
	ada, bob := uuid.New(), uuid.New()
	tr, _, _ := newTracker(t, staticNames{ada: "Ada", bob: "Bob"})
	ctx := context.Background()
	session := uuid.New()

	require.NoError(t, tr.SetPresence(ctx, session, bob, StatusOnline))
	require.NoError(t, tr.SetPresence(ctx, session, ada, StatusOnline))
	require.NoError(t, tr.SetPresence(ctx, session, ada, StatusAway))

	online, err := tr.ListOnline(ctx, session)
	require.NoError(t, err)
	require.Len(t, online, 2)
	assert.Equal(t, "Ada", online[0].DisplayName)
	assert.Equal(t, StatusAway, online[0].Status)
	assert.Equal(t, "Bob", online[1].DisplayName)

	require.NoError(t, tr.SetPresence(ctx, session, bob, StatusOffline))
	online, err = tr.ListOnline(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{ada}, userIDs(online))

	assert.ErrorIs(t, tr.SetPresence(ctx, session, ada, "busy"), infrastructure.ErrValidation)
}

func TestStaleLeaseReadsOffline(t *testing.T) {
	ada := uuid.New()
	tr, _, c := newTracker(t, staticNames{ada: "Ada"})
	ctx := context.Background()
	session := uuid.New()

	require.NoError(t, tr.SetPresence(ctx, session, ada, StatusOnline))

	c.at = c.at.Add(59 * time.Second)
	online, err := tr.ListOnline(ctx, session)
	require.NoError(t, err)
	assert.Len(t, online, 1)

	c.at = c.at.Add(2 * time.Second)
	online, err = tr.ListOnline(ctx, session)
	require.NoError(t, err)
	assert.Empty(t, online)
}

func TestHeartbeatExtendsLease(t *testing.T) {
	ada := uuid.New()
	tr, _, c := newTracker(t, staticNames{ada: "Ada"})
	ctx := context.Background()
	session := uuid.New()

	require.NoError(t, tr.Heartbeat(ctx, session, ada))
	online, err := tr.ListOnline(ctx, session)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, StatusOnline, online[0].Status)

	require.NoError(t, tr.SetPresence(ctx, session, ada, StatusAway))
	c.at = c.at.Add(50 * time.Second)
	require.NoError(t, tr.Heartbeat(ctx, session, ada))
	c.at = c.at.Add(50 * time.Second)

	online, err = tr.ListOnline(ctx, session)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, StatusAway, online[0].Status)
}

func TestSweepMarksStaleOfflineAndPublishes(t *testing.T) {
	ada, bob := uuid.New(), uuid.New()
	tr, hub, c := newTracker(t, staticNames{ada: "Ada", bob: "Bob"})
	ctx := context.Background()
	session := uuid.New()

	require.NoError(t, tr.SetPresence(ctx, session, ada, StatusOnline))
	c.at = c.at.Add(45 * time.Second)
	require.NoError(t, tr.SetPresence(ctx, session, bob, StatusOnline))
	c.at = c.at.Add(30 * time.Second)

	sub, err := hub.Subscribe(ctx, session)
	require.NoError(t, err)
	defer sub.Close()

	n, err := tr.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	select {
	case ev := <-sub.C:
		assert.Equal(t, feed.ChannelPresence, ev.Channel)
	case <-time.After(time.Second):
		t.Fatal("sweep did not publish")
	}

	records, err := tr.store.List(ctx, session)
	require.NoError(t, err)
	statuses := make(map[uuid.UUID]Status)
	for _, r := range records {
		statuses[r.UserID] = r.Status
	}
	assert.Equal(t, StatusOffline, statuses[ada])
	assert.Equal(t, StatusOnline, statuses[bob])

	n, err = tr.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepPrunesLongOfflineRows(t *testing.T) {
	ada, bob := uuid.New(), uuid.New()
	tr, _, c := newTracker(t, staticNames{ada: "Ada", bob: "Bob"})
	ctx := context.Background()
	session := uuid.New()
	start := c.at

	require.NoError(t, tr.SetPresence(ctx, session, ada, StatusOffline))
	c.at = start.Add(4 * time.Minute)
	require.NoError(t, tr.SetPresence(ctx, session, bob, StatusOnline))

	c.at = start.Add(5 * time.Minute)
	_, err := tr.Sweep(ctx)
	require.NoError(t, err)
	records, err := tr.store.List(ctx, session)
	require.NoError(t, err)
	assert.Len(t, records, 2, "recently offline rows are kept")

	// Ada was last seen eleven ttls ago; Bob's lease expired but he was seen
	// seven ttls ago, so his offline row stays.
	c.at = start.Add(11 * time.Minute)
	_, err = tr.Sweep(ctx)
	require.NoError(t, err)
	records, err = tr.store.List(ctx, session)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, bob, records[0].UserID)
	assert.Equal(t, StatusOffline, records[0].Status)

	// A heartbeat after pruning brings the user back.
	require.NoError(t, tr.Heartbeat(ctx, session, ada))
	online, err := tr.ListOnline(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{ada}, userIDs(online))
}

type failingStore struct {
	Store
	calls int
}

func (s *failingStore) Upsert(context.Context, Record) error {
	s.calls++
	return errors.New("connection reset")
}

func TestSetPresenceBestEffortRetriesAndSwallows(t *testing.T) {
	hub := feed.NewHub(feed.DefaultBuffer)
	defer hub.Close()
	store := &failingStore{Store: NewMemoryStore()}
	tr := NewTracker(store, staticNames{}, hub, time.Minute, zap.NewNop())

	tr.SetPresenceBestEffort(context.Background(), uuid.New(), uuid.New(), StatusOffline)
	assert.Equal(t, int(infrastructure.DefaultRetryPolicy.Attempts), store.calls)
}
