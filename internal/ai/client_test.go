package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cms-engine/internal/config"
	"github.com/cms-engine/pkg/logger"
	"github.com/cms-engine/pkg/ratelimit"
)

func testLimiter() *ratelimit.MultiLimiter {
	limiter := ratelimit.NewMultiLimiter()
	limiter.AddLimiter(ratelimit.LimiterAnthropic, 1000, 1000)
	return limiter
}

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return NewClient(config.AnthropicConfig{
		APIKey:        "test-key",
		Model:         "test-model",
		MaxTokens:     1024,
		Temperature:   0.7,
		RetryAttempts: 1,
	}, testLimiter(), logger.New(logger.Config{Level: "disabled", Format: "json"}),
		option.WithBaseURL(srv.URL))
}

// messageReply writes a minimal messages API response carrying text
func messageReply(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	reply := map[string]interface{}{
		"id":          "msg_test",
		"type":        "message",
		"role":        "assistant",
		"model":       "test-model",
		"stop_reason": "end_turn",
		"content": []map[string]string{
			{"type": "text", "text": text},
		},
		"usage": map[string]int{"input_tokens": 10, "output_tokens": 20},
	}
	json.NewEncoder(w).Encode(reply)
}

func TestRewriteFallsBackOnAPIFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"type":"error","error":{"type":"api_error","message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(t, srv)

	title, content := c.Rewrite(context.Background(), "Original title", "<p>Original body</p>", "vi")

	assert.Equal(t, "Original title", title)
	assert.Equal(t, "<p>Original body</p>", content)
	assert.Equal(t, 1, calls)
}

func TestRewriteUsesTaggedReply(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		messageReply(w, "TITLE: Thủ tục mới\nCONTENT: <p>Nội dung mới</p>")
	}))
	defer srv.Close()

	c := testClient(t, srv)

	title, content := c.Rewrite(context.Background(), "Old title", "<p>Old body</p>", "vi")

	assert.Equal(t, "Thủ tục mới", title)
	assert.Equal(t, "<p>Nội dung mới</p>", content)

	var req map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &req))
	assert.Equal(t, "test-model", req["model"])
	assert.Equal(t, 0.7, req["temperature"])
}

func TestCompleteRetriesRateLimit(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, `{"type":"error","error":{"type":"rate_limit_error","message":"rate limited"}}`, http.StatusTooManyRequests)
			return
		}
		messageReply(w, "hello")
	}))
	defer srv.Close()

	c := NewClient(config.AnthropicConfig{
		APIKey:        "test-key",
		Model:         "test-model",
		MaxTokens:     1024,
		RetryAttempts: 2,
		RetryCooldown: time.Millisecond,
	}, testLimiter(), logger.New(logger.Config{Level: "disabled", Format: "json"}),
		option.WithBaseURL(srv.URL))

	response, err := c.Complete(context.Background(), "system", "user")

	require.NoError(t, err)
	assert.Equal(t, "hello", response)
	assert.Equal(t, 2, calls)
}

func TestCompleteDoesNotRetryBadRequest(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(config.AnthropicConfig{
		APIKey:        "test-key",
		Model:         "test-model",
		MaxTokens:     1024,
		RetryAttempts: 3,
		RetryCooldown: time.Millisecond,
	}, testLimiter(), logger.New(logger.Config{Level: "disabled", Format: "json"}),
		option.WithBaseURL(srv.URL))

	_, err := c.Complete(context.Background(), "system", "user")

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestTranslateFailsOnAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"type":"error","error":{"type":"api_error","message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(t, srv)

	tr, err := c.Translate(context.Background(), "en", "Tiêu đề", "Tóm tắt", "<p>Thân bài</p>")

	require.Error(t, err)
	assert.Nil(t, tr)
}
