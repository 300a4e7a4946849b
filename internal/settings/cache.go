package settings

import (
	"context"
	"sync"
	"time"

	"github.com/cms-engine/internal/storage"
)

// KeyChatSystemPrompt is the operator override for the chat system
// prompt; an empty or missing value keeps the built-in one.
const KeyChatSystemPrompt = "chat_system_prompt"

// entry is a cached value with its fetch time, so the lifetime and
// invalidation rule are explicit rather than hidden in a module variable.
type entry struct {
	value     string
	fetchedAt time.Time
}

// Cache reads operator settings through a TTL cache in front of the
// repository. Safe for concurrent use.
type Cache struct {
	repository storage.Repository
	ttl        time.Duration

	mu      sync.Mutex
	entries map[string]entry

	now func() time.Time // overridable in tests
}

// NewCache creates a settings cache with the given TTL
func NewCache(repository storage.Repository, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		repository: repository,
		ttl:        ttl,
		entries:    make(map[string]entry),
		now:        time.Now,
	}
}

// GetOrRefresh returns the cached value for key, refreshing it from the
// repository when the entry is older than the TTL or absent. A failed
// refresh returns the error; stale values are not served silently.
func (c *Cache) GetOrRefresh(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()

	if ok && c.now().Sub(e.fetchedAt) < c.ttl {
		return e.value, nil
	}

	value, err := c.repository.GetSetting(ctx, key)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[key] = entry{value: value, fetchedAt: c.now()}
	c.mu.Unlock()

	return value, nil
}

// Invalidate drops a cached entry so the next read refreshes
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Set writes a setting through to the repository and updates the cache
func (c *Cache) Set(ctx context.Context, key, value string) error {
	if err := c.repository.SaveSetting(ctx, key, value); err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[key] = entry{value: value, fetchedAt: c.now()}
	c.mu.Unlock()
	return nil
}
