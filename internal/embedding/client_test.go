package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cms-engine/internal/config"
	"github.com/cms-engine/pkg/logger"
	"github.com/cms-engine/pkg/ratelimit"
)

func testLimiter() *ratelimit.MultiLimiter {
	limiter := ratelimit.NewMultiLimiter()
	limiter.AddLimiter(ratelimit.LimiterEmbedding, 1000, 1000)
	return limiter
}

func testClient(t *testing.T, srv *httptest.Server, dimension, maxBatch int) *Client {
	t.Helper()
	return NewClient(config.EmbeddingConfig{
		BaseURL:       srv.URL,
		APIKey:        "test-key",
		Model:         "test-model",
		Dimension:     dimension,
		MaxBatchSize:  maxBatch,
		RetryAttempts: 1,
	}, testLimiter(), logger.New(logger.Config{Level: "disabled", Format: "json"}))
}

// embedServer answers every request with dim-wide vectors, one per input,
// and records the batch sizes it saw.
func embedServer(t *testing.T, dim int, batches *[]int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*batches = append(*batches, len(req.Input))

		resp := map[string]interface{}{
			"usage": map[string]int{"total_tokens": len(req.Input) * 3},
		}
		data := make([]map[string]interface{}, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]interface{}{
				"index":     i,
				"embedding": make([]float32, dim),
			}
		}
		resp["data"] = data
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestEmbedSplitsOversizedBatches(t *testing.T) {
	var batches []int
	srv := embedServer(t, 4, &batches)
	defer srv.Close()

	c := testClient(t, srv, 4, 2)

	texts := []string{"a", "b", "c", "d", "e"}
	vectors, tokens, err := c.Embed(context.Background(), texts)

	require.NoError(t, err)
	assert.Len(t, vectors, 5)
	assert.Equal(t, []int{2, 2, 1}, batches)
	assert.Equal(t, 15, tokens)
}

func TestEmbedEmptyInput(t *testing.T) {
	c := testClient(t, httptest.NewServer(http.NotFoundHandler()), 4, 2)

	vectors, tokens, err := c.Embed(context.Background(), nil)

	require.NoError(t, err)
	assert.Nil(t, vectors)
	assert.Zero(t, tokens)
}

func TestEmbedBatchRejectsOversizedBatch(t *testing.T) {
	var batches []int
	srv := embedServer(t, 4, &batches)
	defer srv.Close()

	c := testClient(t, srv, 4, 2)

	_, _, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})

	assert.Error(t, err)
	assert.Empty(t, batches)
}

func TestEmbedDimensionMismatch(t *testing.T) {
	var batches []int
	srv := embedServer(t, 3, &batches)
	defer srv.Close()

	c := testClient(t, srv, 4, 128)

	_, _, err := c.EmbedBatch(context.Background(), []string{"a"})

	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestEmbedBatchOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Reply out of order; the client must reorder by index
		fmt.Fprint(w, `{
			"data": [
				{"index": 1, "embedding": [2, 2]},
				{"index": 0, "embedding": [1, 1]}
			],
			"usage": {"total_tokens": 6}
		}`)
	}))
	defer srv.Close()

	c := testClient(t, srv, 2, 128)

	vectors, tokens, err := c.EmbedBatch(context.Background(), []string{"first", "second"})

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1}, vectors[0])
	assert.Equal(t, []float32{2, 2}, vectors[1])
	assert.Equal(t, 6, tokens)
}

func TestEmbedBatchAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testClient(t, srv, 4, 128)

	_, _, err := c.EmbedBatch(context.Background(), []string{"a"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestEmbedBatchRetriesRateLimit(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{
			"data": [{"index": 0, "embedding": [1, 2, 3, 4]}],
			"usage": {"total_tokens": 3}
		}`)
	}))
	defer srv.Close()

	c := NewClient(config.EmbeddingConfig{
		BaseURL:       srv.URL,
		APIKey:        "test-key",
		Model:         "test-model",
		Dimension:     4,
		MaxBatchSize:  128,
		RetryAttempts: 2,
		RetryCooldown: time.Millisecond,
	}, testLimiter(), logger.New(logger.Config{Level: "disabled", Format: "json"}))

	vectors, tokens, err := c.EmbedBatch(context.Background(), []string{"a"})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []float32{1, 2, 3, 4}, vectors[0])
	assert.Equal(t, 3, tokens)
}

func TestEmbedBatchRetryAttemptsBounded(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error": "overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(config.EmbeddingConfig{
		BaseURL:       srv.URL,
		APIKey:        "test-key",
		Model:         "test-model",
		Dimension:     4,
		MaxBatchSize:  128,
		RetryAttempts: 3,
		RetryCooldown: time.Millisecond,
	}, testLimiter(), logger.New(logger.Config{Level: "disabled", Format: "json"}))

	_, _, err := c.EmbedBatch(context.Background(), []string{"a"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, 3, calls)
}

func TestEmbedBatchDoesNotRetryClientError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error": "bad request"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(config.EmbeddingConfig{
		BaseURL:       srv.URL,
		APIKey:        "test-key",
		Model:         "test-model",
		Dimension:     4,
		MaxBatchSize:  128,
		RetryAttempts: 3,
		RetryCooldown: time.Millisecond,
	}, testLimiter(), logger.New(logger.Config{Level: "disabled", Format: "json"}))

	_, _, err := c.EmbedBatch(context.Background(), []string{"a"})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestEmbedOne(t *testing.T) {
	var batches []int
	srv := embedServer(t, 4, &batches)
	defer srv.Close()

	c := testClient(t, srv, 4, 128)

	vec, err := c.EmbedOne(context.Background(), "hello")

	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, []int{1}, batches)
}
