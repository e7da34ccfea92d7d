package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"labspace/internal/chat"
	"labspace/pkg/logger"
)

const (
	historySize = 20

	systemPrompt = `You are the research assistant of a lab group's live session.
Answer the last question using the conversation for context.
Reply with a JSON object {"answer": string, "sources": [string]} where sources
lists the papers, datasets or links the answer relies on (empty if none).`
)

// History reads the recent conversation of a session.
type History interface {
	Latest(ctx context.Context, sessionID uuid.UUID, n int) ([]*chat.Message, error)
}

type OpenAIResponder struct {
	client  *openai.Client
	model   string
	history History
	log     *zap.Logger
}

func NewOpenAIResponder(apiKey, model string, history History, log *zap.Logger) *OpenAIResponder {
	return &OpenAIResponder{
		client:  openai.NewClient(apiKey),
		model:   model,
		history: history,
		log:     log,
	}
}

func (o *OpenAIResponder) AskQuestion(ctx context.Context, sessionID uuid.UUID, question string) (Answer, error) {
	recent, err := o.history.Latest(ctx, sessionID, historySize)
	if err != nil {
		return Answer{}, fmt.Errorf("load conversation: %w", err)
	}

	req := openai.ChatCompletionRequest{
		Model:          o.model,
		Messages:       buildPrompt(recent, question),
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	o.log.Debug("asking openai", zap.String("model", o.model), zap.String(logger.FieldSessionID, sessionID.String()))
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Answer{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Answer{}, fmt.Errorf("openai returned no choices")
	}
	return parseAnswer(resp.Choices[0].Message.Content), nil
}

func buildPrompt(recent []*chat.Message, question string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(recent)+2)
	out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	for _, m := range recent {
		switch m.Type {
		case chat.TypeAI:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content})
		case chat.TypeUser:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: m.SenderName + ": " + m.Content,
			})
		}
	}
	// The question is usually the newest message already.
	if n := len(recent); n == 0 || recent[n-1].Content != question {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: question})
	}
	return out
}

// parseAnswer accepts a plain text reply when the model ignores the format.
func parseAnswer(content string) Answer {
	var a Answer
	if err := json.Unmarshal([]byte(content), &a); err == nil && strings.TrimSpace(a.Text) != "" {
		return a
	}
	return Answer{Text: strings.TrimSpace(content)}
}
