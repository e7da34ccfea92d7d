package chat

import (
	"github.com/google/wire"
	"go.uber.org/zap"
	"labspace/config"
	"labspace/internal/database"
	"labspace/internal/feed"
	"labspace/internal/groups"
	"labspace/internal/sessions"
	"labspace/internal/user"
)

// ProvideRepository shares the session store's lock with the memory backend
// so that writes cannot interleave with a session closing.
func ProvideRepository(cfg *config.Config, db *database.Database, sessionRepo sessions.Repository) Repository {
	if cfg.StoreBackend == config.BackendMemory {
		guard, _ := sessionRepo.(SessionGuard)
		return NewMemoryRepository(guard)
	}
	return NewRepository(db.SQL, NewChatPostgresStorage(db.SQL))
}

// ProvideStore needs a Gate binding from the injector.
func ProvideStore(
	repo Repository,
	registry *sessions.Registry,
	memberships *groups.Service,
	directory *user.Directory,
	gate Gate,
	publisher feed.Publisher,
	log *zap.Logger,
) *Store {
	return NewStore(repo, registry, memberships, directory, gate, publisher, log)
}

func ProvideJsonHandler(store *Store, registry *sessions.Registry, log *zap.Logger) *JSONHandler {
	return NewJSONHandler(store, registry, log)
}

var Set = wire.NewSet(ProvideRepository, ProvideStore, ProvideJsonHandler)
