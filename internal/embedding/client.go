// Package embedding wraps an OpenAI-compatible embeddings endpoint.
package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"rag-kb/internal/metrics"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var (
	ErrEmbeddingService  = errors.New("embedding service error")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Config holds the embedding provider settings.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
}

// Client turns text into fixed-length vectors. The underlying HTTP client
// is built on first use and shared afterwards.
type Client struct {
	cfg    Config
	logger *zap.Logger

	once   sync.Once
	client *openai.Client
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	return &Client{cfg: cfg, logger: logger}
}

// Dimension is the vector length every result is checked against.
func (c *Client) Dimension() int {
	return c.cfg.Dimension
}

func (c *Client) api() *openai.Client {
	c.once.Do(func() {
		clientCfg := openai.DefaultConfig(c.cfg.APIKey)
		if c.cfg.BaseURL != "" {
			clientCfg.BaseURL = c.cfg.BaseURL
		}
		c.client = openai.NewClientWithConfig(clientCfg)
		c.logger.Info("Embedding client initialized",
			zap.String("model", c.cfg.Model),
			zap.Int("dimension", c.cfg.Dimension),
		)
	})
	return c.client
}

// Embed returns the vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch sends all texts in one request and returns one vector per
// input, in input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          openai.EmbeddingModel(c.cfg.Model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if c.cfg.Dimension > 0 {
		req.Dimensions = c.cfg.Dimension
	}

	start := time.Now()
	resp, err := c.api().CreateEmbeddings(ctx, req)
	metrics.EmbeddingRequestDuration.WithLabelValues(c.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(c.cfg.Model, "error").Inc()
		return nil, parseAPIError(err)
	}

	vectors, err := c.collect(resp.Data, len(texts))
	metrics.EmbeddingRequestsTotal.WithLabelValues(c.cfg.Model, metrics.Status(err)).Inc()
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

func (c *Client) collect(data []openai.Embedding, want int) ([][]float32, error) {
	if len(data) != want {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrEmbeddingService, len(data), want)
	}

	sorted := make([]openai.Embedding, len(data))
	copy(sorted, data)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	vectors := make([][]float32, want)
	for i, e := range sorted {
		if e.Index != i {
			return nil, fmt.Errorf("%w: unexpected embedding index %d", ErrEmbeddingService, e.Index)
		}
		if c.cfg.Dimension > 0 && len(e.Embedding) != c.cfg.Dimension {
			return nil, fmt.Errorf("%w: got %d, configured %d", ErrDimensionMismatch, len(e.Embedding), c.cfg.Dimension)
		}
		vectors[i] = e.Embedding
	}
	return vectors, nil
}

// parseAPIError keeps the provider's status and message; everything is
// reported as ErrEmbeddingService.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("%w: status %d: %s", ErrEmbeddingService, reqErr.HTTPStatusCode, detail)
		}
		return fmt.Errorf("%w: status %d: %v", ErrEmbeddingService, reqErr.HTTPStatusCode, reqErr.Err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: status %d: %s", ErrEmbeddingService, apiErr.HTTPStatusCode, apiErr.Message)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrEmbeddingService, err)
	}
	return fmt.Errorf("%w: %v", ErrEmbeddingService, err)
}

// extractDetail reads the "detail" field some OpenAI-compatible gateways
// return instead of the standard error object.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		return parsed.Detail
	}
	return ""
}
