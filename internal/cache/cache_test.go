package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Value string `json:"value"`
}

func newTestCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	dir := t.TempDir()
	c, err := New(dir, time.Hour, opts...)
	require.NoError(t, err)
	return c
}

func TestCache_SetThenGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := Key("get_company", map[string]any{"corp_code": "00126380"})

	err := c.Set(ctx, key, "get_company", payload{Value: "samsung"})
	require.NoError(t, err)

	var out payload
	found, err := c.Get(ctx, key, &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "samsung", out.Value)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Saves)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestCache_MissWhenAbsent(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	var out payload
	found, err := c.Get(ctx, "nonexistent", &out)
	require.NoError(t, err)
	assert.False(t, found)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Misses)
}

func TestKey_StableUnderParamOrder(t *testing.T) {
	k1 := Key("search_disclosures", map[string]any{"a": 1, "b": 2})
	k2 := Key("search_disclosures", map[string]any{"b": 2, "a": 1})
	assert.Equal(t, k1, k2)

	k3 := Key("search_disclosures", map[string]any{"a": 1, "b": 3})
	assert.NotEqual(t, k1, k3)
}

func TestCache_ExpiredEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, time.Millisecond)
	require.NoError(t, err)

	ctx := context.Background()
	key := Key("op", map[string]any{"x": 1})
	require.NoError(t, c.Set(ctx, key, "op", payload{Value: "stale"}))

	time.Sleep(10 * time.Millisecond)

	var out payload
	found, err := c.Get(ctx, key, &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_CorruptedDiskEntryIsSelfHealed(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, time.Hour)
	require.NoError(t, err)

	key := "deadbeef"
	path := c.shardPath(key)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o644))

	var out payload
	found, err := c.Get(context.Background(), key, &out)
	require.NoError(t, err)
	assert.False(t, found)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCache_MemoryTierEvictsOldestOverLimit(t *testing.T) {
	c := newTestCache(t, WithMemoryLimit(2))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		key := Key("op", map[string]any{"i": i})
		require.NoError(t, c.Set(ctx, key, "op", payload{Value: "v"}))
	}

	stats := c.Stats()
	assert.Equal(t, 2, stats.MemoryEntries)

	var out payload
	firstKey := Key("op", map[string]any{"i": 0})
	found, err := c.Get(ctx, firstKey, &out)
	require.NoError(t, err)
	assert.True(t, found, "entry evicted from memory is still served from the disk tier")
	assert.Equal(t, int64(0), c.Stats().Misses)
}

func TestCache_NegativeUpstreamEmptyDefaultSkipsWrite(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := Key("search_disclosures", map[string]any{"q": "none"})

	require.NoError(t, c.Set(ctx, key, "search_disclosures", []string{}))

	var out []string
	found, err := c.Get(ctx, key, &out)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, int64(0), c.Stats().Saves)
}

func TestCache_NegativeUpstreamEmptyEnabledStoresIt(t *testing.T) {
	c := newTestCache(t, WithNegativeUpstreamEmpty(true))
	ctx := context.Background()
	key := Key("search_disclosures", map[string]any{"q": "none"})

	require.NoError(t, c.Set(ctx, key, "search_disclosures", []string{}))

	var out []string
	found, err := c.Get(ctx, key, &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(1), c.Stats().Saves)
}

func TestCache_GetOrLoadCallsLoaderOnceOnMiss(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := Key("op", map[string]any{"x": 1})

	calls := 0
	load := func(ctx context.Context) (any, error) {
		calls++
		return payload{Value: "loaded"}, nil
	}

	var out payload
	require.NoError(t, c.GetOrLoad(ctx, key, "op", &out, load))
	assert.Equal(t, "loaded", out.Value)
	assert.Equal(t, 1, calls)

	var out2 payload
	require.NoError(t, c.GetOrLoad(ctx, key, "op", &out2, load))
	assert.Equal(t, "loaded", out2.Value)
	assert.Equal(t, 1, calls, "second call should hit cache, not invoke loader again")
}

func TestCache_ClearAll(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		key := Key("op", map[string]any{"i": i})
		require.NoError(t, c.Set(ctx, key, "op", payload{Value: "v"}))
	}

	removed, err := c.Clear(0)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Equal(t, 0, c.Stats().MemoryEntries)
}

func TestCache_ClearOlderThan(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	oldKey := Key("op", map[string]any{"i": "old"})
	require.NoError(t, c.Set(ctx, oldKey, "op", payload{Value: "old"}))

	path := c.shardPath(oldKey)
	oldTime := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(path, oldTime, oldTime))

	newKey := Key("op", map[string]any{"i": "new"})
	require.NoError(t, c.Set(ctx, newKey, "op", payload{Value: "new"}))

	removed, err := c.Clear(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	newPath := c.shardPath(newKey)
	_, statErr = os.Stat(newPath)
	assert.NoError(t, statErr)
}
