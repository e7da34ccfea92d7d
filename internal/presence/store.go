package presence

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists one presence row per (session, user).
type Store interface {
	// Upsert overwrites the row; the last writer wins.
	Upsert(ctx context.Context, rec Record) error
	// Touch refreshes LastSeen and reports whether a row existed.
	Touch(ctx context.Context, sessionID, userID uuid.UUID, at time.Time) (bool, error)
	List(ctx context.Context, sessionID uuid.UUID) ([]Record, error)
	// ExpireStale marks rows not seen since cutoff offline and returns the
	// sessions it changed.
	ExpireStale(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
	// Prune deletes offline rows last seen before cutoff and returns how many
	// it removed.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}
