package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/cms-engine/internal/config"
	"github.com/cms-engine/pkg/logger"
	"github.com/cms-engine/pkg/ratelimit"
)

// Client wraps the Anthropic SDK client
type Client struct {
	client        anthropic.Client
	model         string
	maxTokens     int
	temperature   float64
	retryAttempts int
	retryCooldown time.Duration
	rateLimiter   *ratelimit.MultiLimiter
	log           *logger.Logger
}

// Turn is one prior exchange turn passed as conversation history
type Turn struct {
	Role    string // user or assistant
	Content string
}

// NewClient creates a new Anthropic client. Extra request options are
// passed through to the SDK, which lets callers point the client at a
// different endpoint.
func NewClient(cfg config.AnthropicConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger, opts ...option.RequestOption) *Client {
	options := append([]option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}, opts...)
	client := anthropic.NewClient(options...)

	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	cooldown := cfg.RetryCooldown
	if cooldown <= 0 {
		cooldown = time.Minute
	}

	return &Client{
		client:        client,
		model:         cfg.Model,
		maxTokens:     cfg.MaxTokens,
		temperature:   cfg.Temperature,
		retryAttempts: attempts,
		retryCooldown: cooldown,
		rateLimiter:   limiter,
		log:           log.WithComponent("ai"),
	}
}

// Complete sends a single-turn message to Claude and returns the response text
func (c *Client) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	return c.CompleteWithHistory(ctx, systemPrompt, nil, userMessage)
}

// CompleteWithHistory sends a message with prior conversation turns.
// 429/503 responses are retried after a fixed cooldown, bounded by the
// configured attempt count; other error classes are not retried.
func (c *Client) CompleteWithHistory(ctx context.Context, systemPrompt string, history []Turn, userMessage string) (string, error) {
	if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterAnthropic); err != nil {
		return "", fmt.Errorf("rate limit error: %w", err)
	}

	messages := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, turn := range history {
		role := anthropic.MessageParamRoleUser
		if turn.Role == "assistant" {
			role = anthropic.MessageParamRoleAssistant
		}
		messages = append(messages, anthropic.MessageParam{
			Role: role,
			Content: []anthropic.ContentBlockParamUnion{
				anthropic.NewTextBlock(turn.Content),
			},
		})
	}
	messages = append(messages, anthropic.MessageParam{
		Role: anthropic.MessageParamRoleUser,
		Content: []anthropic.ContentBlockParamUnion{
			anthropic.NewTextBlock(userMessage),
		},
	})

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		System: []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: systemPrompt,
			},
		},
		Messages: messages,
	}
	if c.temperature > 0 {
		params.Temperature = anthropic.Float(c.temperature)
	}

	var lastErr error
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		c.log.Debug().
			Str("model", c.model).
			Int("attempt", attempt).
			Msg("Sending request to Claude")

		message, err := c.client.Messages.New(ctx, params)
		if err == nil {
			var response string
			for _, block := range message.Content {
				textBlock := block.AsText()
				if textBlock.Text != "" {
					response += textBlock.Text
				}
			}

			c.log.Debug().
				Int("input_tokens", int(message.Usage.InputTokens)).
				Int("output_tokens", int(message.Usage.OutputTokens)).
				Msg("Received Claude response")

			return response, nil
		}

		lastErr = err
		if !isRetryable(err) || attempt == c.retryAttempts {
			break
		}

		c.log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("cooldown", c.retryCooldown).
			Msg("Claude API rate limited, waiting before retry")

		select {
		case <-time.After(c.retryCooldown):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	c.log.Error().Err(lastErr).Msg("Claude API error")
	return "", fmt.Errorf("claude API error: %w", lastErr)
}

// isRetryable reports whether the error is a rate-limit or overloaded
// response worth a cooldown retry
func isRetryable(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode == http.StatusServiceUnavailable
	}
	return false
}
