package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"rag-kb/internal/metrics"

	"github.com/Role1776/gigago"
	"go.uber.org/zap"
)

type GigaChatConfig struct {
	APIKey             string
	Scope              string
	Model              string
	InsecureSkipVerify bool
}

// GigaChatClient completes through Sber GigaChat. The SDK client performs
// an OAuth exchange when created, so creation is deferred to the first call
// and retried on the next call if it fails.
type GigaChatClient struct {
	cfg    GigaChatConfig
	logger *zap.Logger

	mu     sync.Mutex
	client *gigago.Client
}

func NewGigaChatClient(cfg GigaChatConfig, logger *zap.Logger) *GigaChatClient {
	if cfg.Model == "" {
		cfg.Model = "GigaChat"
	}
	return &GigaChatClient{cfg: cfg, logger: logger}
}

func (c *GigaChatClient) api(ctx context.Context) (*gigago.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	opts := []gigago.Option{
		gigago.WithCustomScope(c.cfg.Scope),
	}
	if c.cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		c.logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, c.cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GigaChat client: %w", err)
	}
	c.client = client
	c.logger.Info("GigaChat client initialized", zap.String("model", c.cfg.Model))
	return client, nil
}

// Complete folds the preamble and the context block into the model's system
// instruction and sends the user message as the only turn.
func (c *GigaChatClient) Complete(ctx context.Context, systemPrompt, contextMessage, userMessage string) (string, error) {
	client, err := c.api(ctx)
	if err != nil {
		metrics.CompletionRequestsTotal.WithLabelValues("gigachat", "error").Inc()
		return "", fmt.Errorf("%w: %w", ErrCompletionService, err)
	}

	model := client.GenerativeModel(c.cfg.Model)
	model.SystemInstruction = systemInstruction(systemPrompt, contextMessage)
	model.Temperature = 0.7

	resp, err := model.Generate(ctx, []gigago.Message{
		{Role: gigago.RoleUser, Content: userMessage},
	})
	if err != nil {
		metrics.CompletionRequestsTotal.WithLabelValues("gigachat", "error").Inc()
		return "", fmt.Errorf("%w: %w", ErrCompletionService, err)
	}
	if len(resp.Choices) == 0 {
		metrics.CompletionRequestsTotal.WithLabelValues("gigachat", "error").Inc()
		return "", fmt.Errorf("%w: no choices in response", ErrCompletionService)
	}

	metrics.CompletionRequestsTotal.WithLabelValues("gigachat", "ok").Inc()
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func systemInstruction(systemPrompt, contextMessage string) string {
	if contextMessage == "" {
		return systemPrompt
	}
	return systemPrompt + "\n\n" + contextMessage
}

func (c *GigaChatClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	return nil
}
