package sessions

import (
	"github.com/google/wire"
	"go.uber.org/zap"
	"labspace/config"
	"labspace/internal/database"
	"labspace/internal/feed"
	"labspace/internal/groups"
	"labspace/internal/user"
)

// ProvideRepository is a Wire provider function that creates a Repository
func ProvideRepository(cfg *config.Config, db *database.Database) Repository {
	if cfg.StoreBackend == config.BackendMemory {
		return NewMemoryRepository()
	}
	return NewRepository(db.SQL, NewSessionsPostgresStorage(db.SQL))
}

func ProvideRegistry(repo Repository, memberships *groups.Service, directory *user.Directory, publisher feed.Publisher, log *zap.Logger) *Registry {
	return NewRegistry(repo, memberships, directory, publisher, log)
}

func ProvideJsonHandler(registry *Registry, log *zap.Logger) *JSONHandler {
	return NewJSONHandler(registry, log)
}

var Set = wire.NewSet(ProvideRepository, ProvideRegistry, ProvideJsonHandler)
