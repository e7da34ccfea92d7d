package database

import (
	"context"

	"github.com/google/wire"
	"go.uber.org/zap"
	"labspace/config"
)

// ProvideDatabase connects and migrates when a backend needs Postgres.
func ProvideDatabase(cfg *config.Config, log *zap.Logger) (*Database, func(), error) {
	if !cfg.UsesPostgres() {
		return Memory(), func() {}, nil
	}
	ctx := context.Background()
	db, err := NewDatabase(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx, log); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, func() { _ = db.Close() }, nil
}

var Set = wire.NewSet(ProvideDatabase)
