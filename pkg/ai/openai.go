package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"chatbuddy/pkg/domain"
)

// DefaultModel is used when no model is configured.
const DefaultModel = openai.GPT3Dot5Turbo

// ChatClient is the subset of *openai.Client used here; tests substitute it.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAICompleter calls an OpenAI-compatible chat completions endpoint.
type OpenAICompleter struct {
	client ChatClient
	model  string
}

// NewOpenAIClient builds a go-openai client. baseURL may be empty for the
// public API or point at any OpenAI-compatible server, e.g. "http://localhost:8000/v1".
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(strings.TrimSpace(apiKey))
	if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// NewOpenAICompleter wraps client. An empty model falls back to DefaultModel.
func NewOpenAICompleter(client ChatClient, model string) (*OpenAICompleter, error) {
	if client == nil {
		return nil, errors.New("openai client required")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	return &OpenAICompleter{client: client, model: model}, nil
}

// Complete sends history in order and returns the first choice as an
// assistant turn.
func (c *OpenAICompleter) Complete(ctx context.Context, history []domain.Message) (domain.Message, error) {
	if len(history) == 0 {
		return domain.Message{}, errors.New("completion history is empty")
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, msg := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.Message{}, ErrEmptyCompletion
	}
	reply := resp.Choices[0].Message
	if reply.Role != "" && reply.Role != openai.ChatMessageRoleAssistant {
		return domain.Message{}, fmt.Errorf("unexpected reply role %q", reply.Role)
	}
	if strings.TrimSpace(reply.Content) == "" {
		return domain.Message{}, ErrEmptyCompletion
	}
	return domain.Message{Role: domain.RoleAssistant, Content: reply.Content}, nil
}
