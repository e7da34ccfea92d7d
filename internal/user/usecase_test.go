package user

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"labspace/infrastructure"
	"labspace/internal/auth"
)

func newDirectory(t *testing.T) *Directory {
	t.Helper()
	return NewDirectory(NewMemoryRepository(), true, zap.NewNop())
}

func TestResolveProvisionsOnce(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	first, err := d.Resolve(ctx, auth.Identity{ExternalID: "idp|1", DisplayName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", first.DisplayName)
	assert.Equal(t, Available, first.Availability)
	assert.True(t, first.CanCreateGroups)

	again, err := d.Resolve(ctx, auth.Identity{ExternalID: "idp|1", DisplayName: "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
}

func TestResolveGuestCannotCreateGroups(t *testing.T) {
	d := newDirectory(t)
	u, err := d.Resolve(context.Background(), auth.Identity{ExternalID: "guest-7", Guest: true})
	require.NoError(t, err)
	assert.False(t, u.CanCreateGroups)
	assert.Equal(t, "guest-7", u.DisplayName)
}

func TestResolveConcurrentFirstLogin(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := d.ResolveIdentity(ctx, auth.Identity{ExternalID: "idp|race"})
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestResolveRejectsEmptySubject(t *testing.T) {
	_, err := newDirectory(t).Resolve(context.Background(), auth.Identity{})
	assert.ErrorIs(t, err, infrastructure.ErrValidation)
}

func TestSetAvailability(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()
	u, err := d.Resolve(ctx, auth.Identity{ExternalID: "idp|2"})
	require.NoError(t, err)

	require.NoError(t, d.SetAvailability(ctx, u.ID, Busy))
	got, err := d.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, Busy, got.Availability)

	assert.ErrorIs(t, d.SetAvailability(ctx, u.ID, "sleeping"), infrastructure.ErrValidation)
	assert.ErrorIs(t, d.SetAvailability(ctx, uuid.New(), Busy), infrastructure.ErrNotFound)
}

func TestDisplayNames(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()
	a, err := d.Resolve(ctx, auth.Identity{ExternalID: "a", DisplayName: "Alice"})
	require.NoError(t, err)
	b, err := d.Resolve(ctx, auth.Identity{ExternalID: "b", DisplayName: "Bob"})
	require.NoError(t, err)

	names, err := d.DisplayNames(ctx, []uuid.UUID{a.ID, b.ID, a.ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]string{a.ID: "Alice", b.ID: "Bob"}, names)
}
