package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"labspace/infrastructure"
	"labspace/internal/chat"
	"labspace/internal/observability"
	"labspace/pkg/logger"
)

const (
	// TaskTurn is the queue task that produces one assistant reply.
	TaskTurn = "assistant:turn"

	MetadataReplyTo = "reply_to"
)

// Turn is the payload of an assistant job.
type Turn struct {
	SessionID   uuid.UUID `json:"session_id"`
	RequestedBy uuid.UUID `json:"requested_by"`
	QuestionID  int64     `json:"question_id"`
	Question    string    `json:"question"`
}

type Appender interface {
	Append(ctx context.Context, req chat.AppendRequest) (*chat.Message, error)
}

type Checker interface {
	CanInvokeAI(ctx context.Context, sessionID, userID uuid.UUID) (bool, error)
}

// Worker turns a question into an ai message.
type Worker struct {
	gate      Checker
	responder Responder
	messages  Appender
	log       *zap.Logger
}

func NewWorker(gate Checker, responder Responder, messages Appender, log *zap.Logger) *Worker {
	return &Worker{
		gate:      gate,
		responder: responder,
		messages:  messages,
		log:       log,
	}
}

// Handle answers the turn. The gate is checked again because the group may
// have disabled the assistant or the session may have closed since the
// question was asked. Outcomes that a retry cannot change return nil.
func (w *Worker) Handle(ctx context.Context, turn Turn) error {
	log := w.log.With(
		zap.String(logger.FieldSessionID, turn.SessionID.String()),
		zap.String(logger.FieldUserID, turn.RequestedBy.String()),
		zap.Int64(logger.FieldMessageID, turn.QuestionID),
	)

	allowed, err := w.gate.CanInvokeAI(ctx, turn.SessionID, turn.RequestedBy)
	if err != nil {
		observability.AssistantTurns.WithLabelValues("failed").Inc()
		return fmt.Errorf("check assistant gate: %w", err)
	}
	if !allowed {
		observability.AssistantTurns.WithLabelValues("denied").Inc()
		log.Info("assistant turn dropped, gate closed")
		return nil
	}

	answer, err := w.responder.AskQuestion(ctx, turn.SessionID, turn.Question)
	if errors.Is(err, ErrUnavailable) {
		observability.AssistantTurns.WithLabelValues("unavailable").Inc()
		return w.notice(ctx, turn, "The assistant is not available on this server.")
	}
	if err != nil {
		observability.AssistantTurns.WithLabelValues("failed").Inc()
		return fmt.Errorf("ask responder: %w", err)
	}

	sources := answer.Sources
	if sources == nil {
		sources = []string{}
	}
	replyTo := turn.QuestionID
	_, err = w.messages.Append(ctx, chat.AppendRequest{
		SessionID: turn.SessionID,
		Content:   answer.Text,
		Type:      chat.TypeAI,
		Metadata: map[string]any{
			chat.MetadataRequestedBy: turn.RequestedBy.String(),
			chat.MetadataSources:     sources,
			MetadataReplyTo:          replyTo,
		},
		ReplyTo: replyIfSet(replyTo),
	})
	if err != nil {
		if infrastructure.KindOf(err) != nil {
			observability.AssistantTurns.WithLabelValues("denied").Inc()
			log.Info("assistant reply rejected", zap.Error(err))
			return nil
		}
		observability.AssistantTurns.WithLabelValues("failed").Inc()
		return fmt.Errorf("append assistant reply: %w", err)
	}

	observability.AssistantTurns.WithLabelValues("answered").Inc()
	log.Info("assistant answered", zap.Int("sources", len(sources)))
	return nil
}

// ProcessTask makes Worker an asynq.Handler.
func (w *Worker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var turn Turn
	if err := json.Unmarshal(t.Payload(), &turn); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", TaskTurn, err, asynq.SkipRetry)
	}
	return w.Handle(ctx, turn)
}

func (w *Worker) notice(ctx context.Context, turn Turn, text string) error {
	_, err := w.messages.Append(ctx, chat.AppendRequest{
		SessionID: turn.SessionID,
		Content:   text,
		Type:      chat.TypeSystem,
		ReplyTo:   replyIfSet(turn.QuestionID),
	})
	if err != nil && infrastructure.KindOf(err) == nil {
		return fmt.Errorf("append assistant notice: %w", err)
	}
	return nil
}

func replyIfSet(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}
