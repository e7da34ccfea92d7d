package assistant

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrUnavailable means no responder is configured. Retrying will not help.
var ErrUnavailable = errors.New("assistant is not configured")

type Answer struct {
	Text    string   `json:"answer"`
	Sources []string `json:"sources"`
}

// Responder answers a question asked in a session.
type Responder interface {
	AskQuestion(ctx context.Context, sessionID uuid.UUID, question string) (Answer, error)
}

type unavailableResponder struct{}

func (unavailableResponder) AskQuestion(context.Context, uuid.UUID, string) (Answer, error) {
	return Answer{}, ErrUnavailable
}
