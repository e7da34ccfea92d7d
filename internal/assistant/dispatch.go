package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	turnTimeout  = 60 * time.Second
	turnMaxRetry = 3
	turnQueue    = "assistant"
)

// Dispatcher hands a turn to whatever runs the Worker.
type Dispatcher interface {
	Dispatch(ctx context.Context, turn Turn) error
}

// AsynqDispatcher queues turns in Redis for the task server.
type AsynqDispatcher struct {
	client *asynq.Client
}

func NewAsynqDispatcher(redisURL string) (*AsynqDispatcher, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse REDIS_URL: %w", err)
	}
	return &AsynqDispatcher{client: asynq.NewClient(opt)}, nil
}

func NewTurnTask(turn Turn) (*asynq.Task, error) {
	payload, err := json.Marshal(turn)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTurn, payload), nil
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, turn Turn) error {
	task, err := NewTurnTask(turn)
	if err != nil {
		return fmt.Errorf("encode %s: %w", TaskTurn, err)
	}
	_, err = d.client.EnqueueContext(ctx, task,
		asynq.Queue(turnQueue),
		asynq.MaxRetry(turnMaxRetry),
		asynq.Timeout(turnTimeout),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TaskTurn, err)
	}
	return nil
}

func (d *AsynqDispatcher) Close() error {
	return d.client.Close()
}

// InlineDispatcher runs turns on goroutines of this process. Turns are lost
// on restart.
type InlineDispatcher struct {
	worker *Worker
	log    *zap.Logger
	wg     sync.WaitGroup
}

func NewInlineDispatcher(worker *Worker, log *zap.Logger) *InlineDispatcher {
	return &InlineDispatcher{worker: worker, log: log}
}

func (d *InlineDispatcher) Dispatch(_ context.Context, turn Turn) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
		defer cancel()
		if err := d.worker.Handle(ctx, turn); err != nil {
			d.log.Error("assistant turn failed", zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until every dispatched turn has finished.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}
