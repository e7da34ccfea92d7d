package groups

import (
	"github.com/google/wire"
	"go.uber.org/zap"
	"labspace/config"
	"labspace/internal/database"
	"labspace/internal/email"
	"labspace/internal/invite"
	"labspace/internal/user"
)

func ProvideRepository(cfg *config.Config, db *database.Database) Repository {
	if cfg.StoreBackend == config.BackendMemory {
		return NewMemoryRepository()
	}
	return NewRepository(db.SQL, NewGroupsPostgresStorage(db.SQL))
}

func ProvideService(repo Repository, codes *invite.Generator, directory *user.Directory, mailer email.InviteSender, log *zap.Logger) *Service {
	return NewService(repo, codes, directory, mailer, log)
}

func ProvideJsonHandler(service *Service, log *zap.Logger) *JSONHandler {
	return NewJSONHandler(service, log)
}

var Set = wire.NewSet(ProvideRepository, invite.NewGenerator, ProvideService, ProvideJsonHandler)
