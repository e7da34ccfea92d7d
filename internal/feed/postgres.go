package feed

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"labspace/internal/observability"
	"labspace/pkg/logger"
)

const (
	notifyChannel = "labspace_feed"
	// Postgres rejects NOTIFY payloads of 8000 bytes or more.
	maxPayload = 7900
)

// PostgresFeed publishes with pg_notify and delivers what the listener
// receives through a local Hub, so every server instance sees every write.
type PostgresFeed struct {
	db       *sql.DB
	listener *pq.Listener
	hub      *Hub
	log      *zap.Logger
	done     chan struct{}
}

func NewPostgresFeed(db *sql.DB, url string, log *zap.Logger) (*PostgresFeed, error) {
	f := &PostgresFeed{
		db:   db,
		hub:  NewHub(DefaultBuffer),
		log:  log,
		done: make(chan struct{}),
	}

	f.listener = pq.NewListener(url, 100*time.Millisecond, 10*time.Second, f.onListenerEvent)
	if err := f.listener.Listen(notifyChannel); err != nil {
		_ = f.listener.Close()
		return nil, fmt.Errorf("feed: listen %s: %w", notifyChannel, err)
	}

	go f.run()
	return f, nil
}

func (f *PostgresFeed) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("feed: encode event: %w", err)
	}
	if len(payload) > maxPayload {
		// Subscribers fall back to fetching the row by id.
		ev.Message = nil
		if payload, err = json.Marshal(ev); err != nil {
			return fmt.Errorf("feed: encode event: %w", err)
		}
	}

	if _, err := f.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(payload)); err != nil {
		return fmt.Errorf("feed: notify: %w", err)
	}
	observability.FeedEvents.WithLabelValues(string(ev.Channel), string(ev.Op)).Inc()
	return nil
}

func (f *PostgresFeed) Subscribe(ctx context.Context, sessionID uuid.UUID) (*Subscription, error) {
	return f.hub.Subscribe(ctx, sessionID)
}

func (f *PostgresFeed) run() {
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-f.done:
			return
		case n, ok := <-f.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// Connection was re-established; anything sent meanwhile is gone.
				f.hub.broadcastRefresh()
				continue
			}
			var ev Event
			if err := json.Unmarshal([]byte(n.Extra), &ev); err != nil {
				f.log.Warn("dropping malformed feed notification", zap.Error(err))
				continue
			}
			f.hub.dispatch(ev)
		case <-ping.C:
			go func() {
				if err := f.listener.Ping(); err != nil {
					f.log.Warn("feed listener ping failed", zap.Error(err))
				}
			}()
		}
	}
}

func (f *PostgresFeed) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
		f.log.Warn("feed listener connection problem", zap.Error(err), zap.String(logger.FieldChannel, notifyChannel))
	case pq.ListenerEventReconnected:
		f.log.Info("feed listener reconnected")
	}
}

func (f *PostgresFeed) Close() error {
	close(f.done)
	err := f.listener.Close()
	_ = f.hub.Close()
	return err
}
