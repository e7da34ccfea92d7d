package cache

import (
	"context"

	"github.com/google/wire"
	"go.uber.org/zap"
	"labspace/config"
)

// ProvideRedis connects when REDIS_URL is set and returns nil otherwise.
func ProvideRedis(cfg *config.Config, log *zap.Logger) (*RedisCache, func(), error) {
	if cfg.RedisURL == "" {
		return nil, func() {}, nil
	}
	c, err := NewRedisCache(context.Background(), cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	log.Info("connected to redis")
	return c, func() { _ = c.Close() }, nil
}

var Set = wire.NewSet(ProvideRedis)
