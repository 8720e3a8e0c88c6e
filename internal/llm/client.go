// Package llm wraps the chat-completion provider behind a small client.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"

	"teamchat/internal/config"
	"teamchat/internal/observability"
)

// Client issues single non-streaming completion calls. No internal timeout:
// callers own cancellation through ctx.
type Client struct {
	client openai.Client
	model  string
}

// NewClient builds a completion client from provider config.
func NewClient(cfg config.OpenAI) *Client {
	options := []option.RequestOption{}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey == "" {
		logrus.Info("OPENAI_API_KEY is not set, will try unauthenticated access")
	} else {
		options = append(options, option.WithAPIKey(cfg.APIKey))
	}

	return &Client{client: openai.NewClient(options...), model: cfg.ChatModel}
}

// Chat sends a system instruction plus user data and returns the model text.
func (c *Client) Chat(ctx context.Context, instructions, data string) (string, error) {
	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(instructions),
			openai.UserMessage(data),
		},
		Model: c.model,
	})
	observability.ObserveLLMRequest(time.Since(start), err == nil)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no content choices")
	}
	return resp.Choices[0].Message.Content, nil
}
