package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cms-engine/internal/storage"
)

type fakeRepo struct {
	storage.Repository

	values map[string]string
	err    error
	reads  int
	writes int
}

func (f *fakeRepo) GetSetting(_ context.Context, key string) (string, error) {
	f.reads++
	if f.err != nil {
		return "", f.err
	}
	return f.values[key], nil
}

func (f *fakeRepo) SaveSetting(_ context.Context, key, value string) error {
	f.writes++
	if f.err != nil {
		return f.err
	}
	f.values[key] = value
	return nil
}

func TestGetOrRefreshCachesWithinTTL(t *testing.T) {
	repo := &fakeRepo{values: map[string]string{"k": "v1"}}
	c := NewCache(repo, time.Minute)

	for i := 0; i < 3; i++ {
		v, err := c.GetOrRefresh(context.Background(), "k")
		require.NoError(t, err)
		assert.Equal(t, "v1", v)
	}

	assert.Equal(t, 1, repo.reads)
}

func TestGetOrRefreshExpires(t *testing.T) {
	repo := &fakeRepo{values: map[string]string{"k": "v1"}}
	c := NewCache(repo, time.Minute)

	clock := time.Now()
	c.now = func() time.Time { return clock }

	v, err := c.GetOrRefresh(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	// Value changes behind the cache; still within TTL, the stale value is served
	repo.values["k"] = "v2"
	v, err = c.GetOrRefresh(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	clock = clock.Add(2 * time.Minute)
	v, err = c.GetOrRefresh(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
	assert.Equal(t, 2, repo.reads)
}

func TestGetOrRefreshPropagatesError(t *testing.T) {
	repo := &fakeRepo{err: errors.New("db down")}
	c := NewCache(repo, time.Minute)

	_, err := c.GetOrRefresh(context.Background(), "k")

	assert.Error(t, err)
}

func TestInvalidateForcesRefresh(t *testing.T) {
	repo := &fakeRepo{values: map[string]string{"k": "v1"}}
	c := NewCache(repo, time.Hour)

	_, err := c.GetOrRefresh(context.Background(), "k")
	require.NoError(t, err)

	repo.values["k"] = "v2"
	c.Invalidate("k")

	v, err := c.GetOrRefresh(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
}

func TestSetWritesThrough(t *testing.T) {
	repo := &fakeRepo{values: map[string]string{}}
	c := NewCache(repo, time.Hour)

	require.NoError(t, c.Set(context.Background(), "k", "fresh"))
	assert.Equal(t, 1, repo.writes)

	// The cached entry serves reads without touching the repository
	v, err := c.GetOrRefresh(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
	assert.Zero(t, repo.reads)
}

func TestSetFailureLeavesCacheUntouched(t *testing.T) {
	repo := &fakeRepo{values: map[string]string{"k": "old"}, err: errors.New("db down")}
	c := NewCache(repo, time.Hour)

	assert.Error(t, c.Set(context.Background(), "k", "new"))

	repo.err = nil
	v, err := c.GetOrRefresh(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "old", v)
}
