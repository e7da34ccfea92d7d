package feed

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return Event{}
	}
}

func TestHubScopesBySession(t *testing.T) {
	h := NewHub(8)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	subA, err := h.Subscribe(ctx, a)
	require.NoError(t, err)
	defer subA.Close()
	subB, err := h.Subscribe(ctx, b)
	require.NoError(t, err)
	defer subB.Close()

	require.NoError(t, h.Publish(ctx, Event{Channel: ChannelMessages, Op: OpInsert, SessionID: a, MessageID: 1}))

	ev := recv(t, subA)
	assert.Equal(t, int64(1), ev.MessageID)
	assert.False(t, ev.At.IsZero())

	select {
	case ev := <-subB.C:
		t.Fatalf("unexpected event for other session: %+v", ev)
	default:
	}
}

func TestHubOverflowQueuesRefresh(t *testing.T) {
	h := NewHub(4)
	ctx := context.Background()
	session := uuid.New()
	sub, err := h.Subscribe(ctx, session)
	require.NoError(t, err)
	defer sub.Close()

	for i := int64(1); i <= 10; i++ {
		require.NoError(t, h.Publish(ctx, Event{Channel: ChannelMessages, Op: OpInsert, SessionID: session, MessageID: i}))
	}

	var got []Event
	for i := 0; i < 4; i++ {
		got = append(got, recv(t, sub))
	}
	assert.Equal(t, int64(1), got[0].MessageID)
	assert.Equal(t, int64(3), got[2].MessageID)
	assert.Equal(t, OpRefresh, got[3].Op)

	// Drained: delivery resumes normally.
	require.NoError(t, h.Publish(ctx, Event{Channel: ChannelMessages, Op: OpInsert, SessionID: session, MessageID: 11}))
	assert.Equal(t, int64(11), recv(t, sub).MessageID)
}

func TestHubCloseEndsSubscriptions(t *testing.T) {
	h := NewHub(4)
	sub, err := h.Subscribe(context.Background(), uuid.New())
	require.NoError(t, err)

	require.NoError(t, h.Close())
	_, ok := <-sub.C
	assert.False(t, ok)
	sub.Close()
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	h := NewHub(4)
	session := uuid.New()
	sub, err := h.Subscribe(context.Background(), session)
	require.NoError(t, err)
	sub.Close()
	sub.Close()

	require.NoError(t, h.Publish(context.Background(), Event{SessionID: session}))
	_, ok := <-sub.C
	assert.False(t, ok)
}
