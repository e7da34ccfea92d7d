package presence

import (
	"fmt"

	"github.com/google/wire"
	"go.uber.org/zap"
	"labspace/config"
	"labspace/internal/cache"
	"labspace/internal/database"
	"labspace/internal/feed"
	"labspace/internal/sessions"
	"labspace/internal/user"
)

func ProvideStore(cfg *config.Config, db *database.Database, redis *cache.RedisCache) (Store, error) {
	switch cfg.PresenceBackend {
	case config.BackendMemory:
		return NewMemoryStore(), nil
	case config.BackendRedis:
		if redis == nil {
			return nil, fmt.Errorf("redis presence backend needs REDIS_URL")
		}
		return NewRedisStore(redis), nil
	default:
		return NewPostgresStore(db.SQL), nil
	}
}

func ProvideTracker(store Store, directory *user.Directory, publisher feed.Publisher, cfg *config.Config, log *zap.Logger) *Tracker {
	return NewTracker(store, directory, publisher, cfg.PresenceTTL, log)
}

func ProvideJsonHandler(tracker *Tracker, registry *sessions.Registry, log *zap.Logger) *JSONHandler {
	return NewJSONHandler(tracker, registry, log)
}

var Set = wire.NewSet(ProvideStore, ProvideTracker, ProvideJsonHandler)
