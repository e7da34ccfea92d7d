package assistant

import (
	"github.com/google/wire"
	"go.uber.org/zap"
	"labspace/config"
	"labspace/internal/chat"
	"labspace/internal/groups"
	"labspace/internal/sessions"
)

func ProvideGate(registry *sessions.Registry, memberships *groups.Service) *Gate {
	return NewGate(registry, memberships)
}

// ProvideResponder is a Wire provider function that picks OpenAI when an API key is configured
func ProvideResponder(cfg *config.Config, store *chat.Store, log *zap.Logger) Responder {
	if cfg.OpenAIAPIKey == "" {
		log.Warn("OPENAI_API_KEY not set, assistant turns will be answered with a notice")
		return unavailableResponder{}
	}
	return NewOpenAIResponder(cfg.OpenAIAPIKey, cfg.OpenAIModel, store, log)
}

func ProvideWorker(gate *Gate, responder Responder, store *chat.Store, log *zap.Logger) *Worker {
	return NewWorker(gate, responder, store, log)
}

// ProvideDispatcher queues turns in Redis when REDIS_URL is set and runs them in process otherwise.
func ProvideDispatcher(cfg *config.Config, worker *Worker, log *zap.Logger) (Dispatcher, func(), error) {
	if cfg.RedisURL == "" {
		d := NewInlineDispatcher(worker, log)
		return d, d.Wait, nil
	}
	d, err := NewAsynqDispatcher(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return d, func() { _ = d.Close() }, nil
}

// ProvideTaskServer returns nil when there is no queue to consume.
func ProvideTaskServer(cfg *config.Config, worker *Worker, log *zap.Logger) (*TaskServer, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	return NewTaskServer(cfg.RedisURL, cfg.AssistantConcurrency, worker, log)
}

func ProvideService(gate *Gate, store *chat.Store, dispatcher Dispatcher, log *zap.Logger) *Service {
	return NewService(gate, store, dispatcher, log)
}

func ProvideJsonHandler(service *Service, log *zap.Logger) *JSONHandler {
	return NewJSONHandler(service, log)
}

var Set = wire.NewSet(
	ProvideGate,
	ProvideResponder,
	ProvideWorker,
	ProvideDispatcher,
	ProvideTaskServer,
	ProvideService,
	ProvideJsonHandler,
	wire.Bind(new(chat.Gate), new(*Gate)),
)
