package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"rag-kb/internal/metrics"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
}

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	cfg    OpenAIConfig
	logger *zap.Logger

	once   sync.Once
	client *openai.Client
}

func NewOpenAIClient(cfg OpenAIConfig, logger *zap.Logger) *OpenAIClient {
	return &OpenAIClient{cfg: cfg, logger: logger}
}

func (c *OpenAIClient) api() *openai.Client {
	c.once.Do(func() {
		clientCfg := openai.DefaultConfig(c.cfg.APIKey)
		if c.cfg.BaseURL != "" {
			clientCfg.BaseURL = c.cfg.BaseURL
		}
		c.client = openai.NewClientWithConfig(clientCfg)
		c.logger.Info("Completion client initialized", zap.String("model", c.cfg.Model))
	})
	return c.client
}

func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt, contextMessage, userMessage string) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
	}
	if contextMessage != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: contextMessage})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userMessage})

	resp, err := c.api().CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		metrics.CompletionRequestsTotal.WithLabelValues("openai", "error").Inc()
		return "", completionError(err)
	}
	if len(resp.Choices) == 0 {
		metrics.CompletionRequestsTotal.WithLabelValues("openai", "error").Inc()
		return "", fmt.Errorf("%w: no choices in response", ErrCompletionService)
	}

	metrics.CompletionRequestsTotal.WithLabelValues("openai", "ok").Inc()
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) Close() error { return nil }

func completionError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: status %d: %s", ErrCompletionService, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: status %d: %v", ErrCompletionService, reqErr.HTTPStatusCode, reqErr.Err)
	}
	return fmt.Errorf("%w: %w", ErrCompletionService, err)
}
