package user

import (
	"github.com/google/wire"
	"go.uber.org/zap"
	"labspace/config"
	"labspace/internal/auth"
	"labspace/internal/database"
	"labspace/internal/user/storage"
)

func ProvideJsonHandler(directory *Directory, log *zap.Logger) *JSONHandler {
	return NewJSONHandler(directory, log)
}

func ProvideDirectory(userRepo Repository, cfg *config.Config, log *zap.Logger) *Directory {
	return NewDirectory(userRepo, cfg.DefaultCanCreateGroups, log)
}

// ProvideRepository picks the gorm-backed repository or the in-memory one
func ProvideRepository(cfg *config.Config, db *database.Database) Repository {
	if cfg.StoreBackend == config.BackendMemory {
		return NewMemoryRepository()
	}
	s := storage.NewUserGormStorage(db.Gorm)
	return NewRepository(s, s, s)
}

func ProvideResolver(directory *Directory) auth.Resolver {
	return directory
}

var Set = wire.NewSet(ProvideRepository, ProvideDirectory, ProvideResolver, ProvideJsonHandler)
