package assistant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"labspace/infrastructure"
	"labspace/internal/chat"
	"labspace/pkg/logger"
)

// Service is the entry point for asking the assistant.
type Service struct {
	gate       Checker
	messages   Appender
	dispatcher Dispatcher
	log        *zap.Logger
}

func NewService(gate Checker, messages Appender, dispatcher Dispatcher, log *zap.Logger) *Service {
	return &Service{
		gate:       gate,
		messages:   messages,
		dispatcher: dispatcher,
		log:        log,
	}
}

func (s *Service) CanInvoke(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	return s.gate.CanInvokeAI(ctx, sessionID, userID)
}

// Ask posts question as userID's message and schedules the reply. The
// returned message is the question; the answer arrives later as an ai
// message replying to it.
func (s *Service) Ask(ctx context.Context, sessionID, userID uuid.UUID, question string) (*chat.Message, error) {
	allowed, err := s.gate.CanInvokeAI(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("check assistant gate: %w", err)
	}
	if !allowed {
		return nil, infrastructure.PermissionError("assistant is not available to this user in this session")
	}

	m, err := s.messages.Append(ctx, chat.AppendRequest{
		SessionID: sessionID,
		SenderID:  &userID,
		Content:   question,
		Type:      chat.TypeUser,
	})
	if err != nil {
		return nil, err
	}

	turn := Turn{
		SessionID:   sessionID,
		RequestedBy: userID,
		QuestionID:  m.ID,
		Question:    m.Content,
	}
	if err := s.dispatcher.Dispatch(ctx, turn); err != nil {
		return nil, fmt.Errorf("dispatch assistant turn: %w", err)
	}

	s.log.Debug("assistant turn dispatched",
		zap.String(logger.FieldSessionID, sessionID.String()),
		zap.Int64(logger.FieldMessageID, m.ID),
	)
	return m, nil
}
