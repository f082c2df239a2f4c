package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Chat roles accepted by CreateChatCompletion.
const (
	RoleSystem = openai.ChatMessageRoleSystem
	RoleUser   = openai.ChatMessageRoleUser
)

// ChatMessage is a single prompt message.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatOptions tunes a completion call.
type ChatOptions struct {
	MaxTokens   int
	Temperature float32
}

// ChatAPI defines the interface for chat completions
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, messages []ChatMessage, opts ChatOptions) (string, error)
}

// CreateChatCompletion sends one completion request and returns the first choice's text.
func (a *OpenAIAdapter) CreateChatCompletion(ctx context.Context, messages []ChatMessage, opts ChatOptions) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       a.chatModel,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrMalformedResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateAnswer runs a chat completion and rejects empty answers.
func (c *Client) GenerateAnswer(ctx context.Context, messages []ChatMessage, opts ChatOptions) (string, error) {
	if len(messages) == 0 {
		return "", ErrEmptyText
	}

	answer, err := c.chat.CreateChatCompletion(ctx, messages, opts)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("%w: empty completion", ErrMalformedResponse)
	}
	return answer, nil
}
