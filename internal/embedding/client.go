package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cms-engine/internal/config"
	"github.com/cms-engine/pkg/logger"
	"github.com/cms-engine/pkg/ratelimit"
)

// ErrDimensionMismatch is returned when the provider's vectors do not
// match the configured dimension. Mismatched vectors are rejected, never
// padded or truncated.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Client is an HTTP client for an OpenAI-compatible embeddings endpoint
type Client struct {
	baseURL       string
	apiKey        string
	model         string
	dimension     int
	maxBatchSize  int
	retryAttempts int
	retryCooldown time.Duration
	httpClient    *http.Client
	rateLimiter   *ratelimit.MultiLimiter
	log           *logger.Logger
}

// NewClient creates a new embedding client
func NewClient(cfg config.EmbeddingConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Client {
	batch := cfg.MaxBatchSize
	if batch <= 0 {
		batch = 128
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	cooldown := cfg.RetryCooldown
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &Client{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		model:         cfg.Model,
		dimension:     cfg.Dimension,
		maxBatchSize:  batch,
		retryAttempts: attempts,
		retryCooldown: cooldown,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		rateLimiter: limiter,
		log:         log.WithComponent("embedding"),
	}
}

// Dimension returns the configured vector width
func (c *Client) Dimension() int {
	return c.dimension
}

// MaxBatchSize returns the provider batch ceiling per request
func (c *Client) MaxBatchSize() int {
	return c.maxBatchSize
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed returns one vector per input text, splitting requests that exceed
// the provider batch ceiling into multiple calls.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, int, error) {
	if len(texts) == 0 {
		return nil, 0, nil
	}

	vectors := make([][]float32, 0, len(texts))
	totalTokens := 0

	for start := 0; start < len(texts); start += c.maxBatchSize {
		end := start + c.maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, tokens, err := c.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, totalTokens, err
		}
		vectors = append(vectors, batch...)
		totalTokens += tokens
	}

	return vectors, totalTokens, nil
}

// EmbedOne embeds a single text
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, _, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vectors))
	}
	return vectors[0], nil
}

// EmbedBatch embeds up to MaxBatchSize texts in one API call. Vectors are
// returned in input order and validated against the configured dimension.
// 429/503 responses are retried after a fixed cooldown, bounded by the
// configured attempt count; other error classes are not retried.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, int, error) {
	if len(texts) > c.maxBatchSize {
		return nil, 0, fmt.Errorf("batch of %d exceeds provider ceiling %d", len(texts), c.maxBatchSize)
	}

	if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterEmbedding); err != nil {
		return nil, 0, fmt.Errorf("rate limit error: %w", err)
	}

	body, err := json.Marshal(embeddingRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		c.log.Debug().
			Int("texts", len(texts)).
			Int("attempt", attempt).
			Msg("Requesting embeddings")

		vectors, tokens, status, err := c.embedOnce(ctx, body, len(texts))
		if err == nil {
			return vectors, tokens, nil
		}

		lastErr = err
		if !retryableStatus(status) || attempt == c.retryAttempts {
			break
		}

		c.log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("cooldown", c.retryCooldown).
			Msg("Embedding API rate limited, waiting before retry")

		select {
		case <-time.After(c.retryCooldown):
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}

	return nil, 0, lastErr
}

// retryableStatus reports whether the response status is a rate-limit or
// overloaded condition worth a cooldown retry
func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// embedOnce performs a single embeddings request. The response status is
// returned alongside the error so the caller can decide on a retry.
func (c *Client) embedOnce(ctx context.Context, body []byte, want int) ([][]float32, int, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, 0, resp.StatusCode, fmt.Errorf("embedding API error (status %d): %s", resp.StatusCode, string(raw))
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, 0, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Data) != want {
		return nil, 0, resp.StatusCode, fmt.Errorf("expected %d embeddings, got %d", want, len(result.Data))
	}

	vectors := make([][]float32, want)
	for _, item := range result.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, 0, resp.StatusCode, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		if c.dimension > 0 && len(item.Embedding) != c.dimension {
			return nil, 0, resp.StatusCode, fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, c.dimension, len(item.Embedding))
		}
		vectors[item.Index] = item.Embedding
	}

	c.log.Debug().
		Int("vectors", len(vectors)).
		Int("tokens", result.Usage.TotalTokens).
		Msg("Embeddings received")

	return vectors, result.Usage.TotalTokens, resp.StatusCode, nil
}
