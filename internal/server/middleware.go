package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/cms-engine/pkg/logger"
)

// RequestIDHeader is the header carrying the per-request correlation id
const RequestIDHeader = "X-Request-ID"

// AdminTokenHeader is the shared-secret header for operator endpoints
const AdminTokenHeader = "X-Admin-Token"

// RequestID assigns a correlation id to every request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDHeader, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// AdminAuth rejects requests without the operator shared secret. The
// compare is constant-time.
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(AdminTokenHeader)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			respondError(c, http.StatusUnauthorized, CodeUnauthorized, "Invalid or missing admin token")
			c.Abort()
			return
		}
		c.Next()
	}
}

// Counter is a fixed-window request counter. Atomicity lives in the
// backing store so any replica may serve any request.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter counts in Redis with INCR + first-write EXPIRE
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter creates a Redis-backed counter
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (rc *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := rc.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// MemoryCounter is the single-replica fallback when Redis is not
// configured. Counts reset when their window elapses, and expired
// windows are swept on access so the map stays bounded by active keys.
type MemoryCounter struct {
	mu        sync.Mutex
	windows   map[string]*memoryWindow
	lastSweep time.Time
}

type memoryWindow struct {
	count   int64
	started time.Time
	window  time.Duration
}

// NewMemoryCounter creates an in-process counter
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{windows: make(map[string]*memoryWindow)}
}

func (mc *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	w, ok := mc.windows[key]
	if !ok || now.Sub(w.started) >= window {
		w = &memoryWindow{started: now, window: window}
		mc.windows[key] = w
	}
	w.count++

	if now.Sub(mc.lastSweep) >= window {
		for k, old := range mc.windows {
			if now.Sub(old.started) >= old.window {
				delete(mc.windows, k)
			}
		}
		mc.lastSweep = now
	}

	return w.count, nil
}

// RateLimit enforces a fixed request count per window, keyed by client IP.
// A counter failure fails open: availability over strictness for public
// endpoints.
func RateLimit(counter Counter, limit int, window time.Duration, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "rl:" + c.FullPath() + ":" + c.ClientIP()

		n, err := counter.Incr(c.Request.Context(), key, window)
		if err != nil {
			log.Warn().Err(err).Msg("Rate limit counter unavailable, allowing request")
			c.Next()
			return
		}

		if n > int64(limit) {
			respondError(c, http.StatusTooManyRequests, CodeRateLimited, "Too many requests. Please try again later.")
			c.Abort()
			return
		}
		c.Next()
	}
}
