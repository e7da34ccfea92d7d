package feed

import (
	"github.com/google/wire"
	"go.uber.org/zap"
	"labspace/config"
	"labspace/internal/database"
)

// ProvideFeed is a Wire provider function that creates the change feed for the configured backend
func ProvideFeed(cfg *config.Config, db *database.Database, log *zap.Logger) (Feed, func(), error) {
	if cfg.FeedBackend == config.BackendMemory {
		hub := NewHub(DefaultBuffer)
		return hub, func() { _ = hub.Close() }, nil
	}
	f, err := NewPostgresFeed(db.SQL, db.URL, log)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func ProvidePublisher(f Feed) Publisher {
	return f
}

func ProvideSubscriber(f Feed) Subscriber {
	return f
}

var Set = wire.NewSet(ProvideFeed, ProvidePublisher, ProvideSubscriber)
