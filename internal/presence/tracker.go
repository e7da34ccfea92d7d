package presence

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"labspace/infrastructure"
	"labspace/internal/feed"
	"labspace/internal/observability"
	"labspace/pkg/logger"
)

const (
	DefaultTTL = 60 * time.Second
	// pruneAfter is how many ttls an offline row is kept before it is deleted.
	pruneAfter = 10
)

type Users interface {
	DisplayNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

// Tracker treats presence as a lease: a record whose LastSeen is older than
// the ttl reads as offline whether or not the sweep has run yet.
type Tracker struct {
	store     Store
	users     Users
	publisher feed.Publisher
	ttl       time.Duration
	now       func() time.Time
	log       *zap.Logger
}

func NewTracker(store Store, users Users, publisher feed.Publisher, ttl time.Duration, log *zap.Logger) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		store:     store,
		users:     users,
		publisher: publisher,
		ttl:       ttl,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log,
	}
}

func (t *Tracker) TTL() time.Duration {
	return t.ttl
}

// SetPresence records userID's status in the session. Callers must pass the
// authenticated user; nobody writes another user's row.
func (t *Tracker) SetPresence(ctx context.Context, sessionID, userID uuid.UUID, status Status) error {
	if !status.Valid() {
		return infrastructure.ValidationError("invalid presence status %q", status)
	}
	err := t.store.Upsert(ctx, Record{
		SessionID: sessionID,
		UserID:    userID,
		Status:    status,
		LastSeen:  t.now(),
	})
	if err != nil {
		return err
	}
	t.publish(ctx, sessionID)
	return nil
}

// Heartbeat extends the lease without changing the status. A user with no
// row is recorded online.
func (t *Tracker) Heartbeat(ctx context.Context, sessionID, userID uuid.UUID) error {
	ok, err := t.store.Touch(ctx, sessionID, userID, t.now())
	if err != nil {
		return err
	}
	if !ok {
		return t.SetPresence(ctx, sessionID, userID, StatusOnline)
	}
	return nil
}

// SetPresenceBestEffort retries SetPresence with backoff and only logs a
// final failure.
func (t *Tracker) SetPresenceBestEffort(ctx context.Context, sessionID, userID uuid.UUID, status Status) {
	err := infrastructure.Retry(ctx, infrastructure.DefaultRetryPolicy, func() error {
		return t.SetPresence(ctx, sessionID, userID, status)
	})
	if err != nil {
		t.log.Warn("presence write dropped",
			zap.String(logger.FieldSessionID, sessionID.String()),
			zap.String(logger.FieldUserID, userID.String()),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

// ListOnline returns the users currently present, sorted by display name.
func (t *Tracker) ListOnline(ctx context.Context, sessionID uuid.UUID) ([]Record, error) {
	records, err := t.store.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := t.now()
	online := make([]Record, 0, len(records))
	for _, rec := range records {
		if rec.liveAt(now, t.ttl) {
			online = append(online, rec)
		}
	}
	if err := t.fillDisplayNames(ctx, online); err != nil {
		return nil, err
	}
	sort.Slice(online, func(i, j int) bool {
		if online[i].DisplayName == online[j].DisplayName {
			return online[i].UserID.String() < online[j].UserID.String()
		}
		return online[i].DisplayName < online[j].DisplayName
	})
	return online, nil
}

// Sweep marks expired leases offline and notifies each affected session.
// Rows that have been offline for pruneAfter ttls are deleted; they are
// invisible to readers, so that needs no notification.
func (t *Tracker) Sweep(ctx context.Context) (int, error) {
	now := t.now()
	changed, err := t.store.ExpireStale(ctx, now.Add(-t.ttl))
	for _, sessionID := range changed {
		t.publish(ctx, sessionID)
	}
	observability.PresenceExpired.Add(float64(len(changed)))
	if err != nil {
		return len(changed), err
	}

	pruned, err := t.store.Prune(ctx, now.Add(-pruneAfter*t.ttl))
	if pruned > 0 {
		t.log.Debug("pruned offline presence rows", zap.Int("rows", pruned))
	}
	return len(changed), err
}

// RunSweeper calls Sweep every ttl/2 until ctx is done.
func (t *Tracker) RunSweeper(ctx context.Context) error {
	ticker := time.NewTicker(t.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := t.Sweep(ctx)
			if err != nil {
				t.log.Error("presence sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				t.log.Debug("presence sweep", zap.Int("sessions", n))
			}
		}
	}
}

func (t *Tracker) publish(ctx context.Context, sessionID uuid.UUID) {
	err := t.publisher.Publish(ctx, feed.Event{
		Channel:   feed.ChannelPresence,
		Op:        feed.OpUpdate,
		SessionID: sessionID,
		At:        t.now(),
	})
	if err != nil {
		t.log.Warn("publish presence event",
			zap.String(logger.FieldSessionID, sessionID.String()),
			zap.Error(err),
		)
	}
}

func (t *Tracker) fillDisplayNames(ctx context.Context, records []Record) error {
	var missing []uuid.UUID
	for _, rec := range records {
		if rec.DisplayName == "" {
			missing = append(missing, rec.UserID)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	names, err := t.users.DisplayNames(ctx, missing)
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].DisplayName == "" {
			records[i].DisplayName = names[records[i].UserID]
		}
	}
	return nil
}
