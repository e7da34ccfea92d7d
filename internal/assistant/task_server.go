package assistant

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TaskServer consumes queued turns.
type TaskServer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewTaskServer(redisURL string, concurrency int, worker *Worker, log *zap.Logger) (*TaskServer, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse REDIS_URL: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{turnQueue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Warn("asynq task failed", zap.String("type", task.Type()), zap.Error(err))
		}),
		Logger: log.Sugar(),
	})
	mux := asynq.NewServeMux()
	mux.Handle(TaskTurn, worker)
	return &TaskServer{server: srv, mux: mux}, nil
}

// Run blocks until ctx is done, then shuts the server down.
func (s *TaskServer) Run(ctx context.Context) error {
	if err := s.server.Start(s.mux); err != nil {
		return fmt.Errorf("start task server: %w", err)
	}
	<-ctx.Done()
	s.server.Shutdown()
	return nil
}
