package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/tarif/internal/cache"
	"github.com/tournevent/tarif/internal/clock"
)

func TestTTLCache_FreshUntilTTL(t *testing.T) {
	fake := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c := cache.NewTTLCache[string](10*time.Minute, fake)

	c.Set("k", "v")

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	fake.Advance(10 * time.Minute)
	_, ok = c.Get("k")
	assert.True(t, ok, "entry is fresh while now-fetchedAt <= ttl")

	fake.Advance(time.Nanosecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestTTLCache_GetStale(t *testing.T) {
	fake := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c := cache.NewTTLCache[int](time.Minute, fake)

	c.Set("k", 7)
	fake.Advance(time.Hour)

	entry, ok := c.GetStale("k")
	require.True(t, ok)
	assert.Equal(t, 7, entry.Data)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), entry.FetchedAt)
}

func TestTTLCache_SetOverwrites(t *testing.T) {
	fake := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c := cache.NewTTLCache[[]int](time.Minute, fake)

	c.Set("k", []int{1, 2})
	fake.Advance(30 * time.Second)
	c.Set("k", []int{3})

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []int{3}, got)

	fake.Advance(45 * time.Second)
	_, ok = c.Get("k")
	assert.True(t, ok, "refresh resets fetchedAt")
}

func TestTTLCache_Invalidate(t *testing.T) {
	c := cache.NewTTLCache[string](time.Minute, nil)
	c.Set("a", "1")
	c.Set("b", "2")

	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
}

func TestTTLCache_Sweep(t *testing.T) {
	fake := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c := cache.NewTTLCache[string](time.Minute, fake)

	c.Set("old", "x")
	fake.Advance(2 * time.Hour)
	c.Set("new", "y")

	assert.Equal(t, 1, c.Sweep(time.Hour))
	_, ok := c.GetStale("old")
	assert.False(t, ok)
	_, ok = c.GetStale("new")
	assert.True(t, ok)
}

func TestGroup_InvalidateAll(t *testing.T) {
	a := cache.NewTTLCache[string](time.Minute, nil)
	b := cache.NewTTLCache[int](time.Minute, nil)
	a.Set("x", "1")
	b.Set("y", 2)

	var g cache.Group
	g.Add(a, b)
	g.InvalidateAll()

	assert.Equal(t, 0, a.Len())
	assert.Equal(t, 0, b.Len())
}

func TestTTLs_For(t *testing.T) {
	ttls := cache.DefaultTTLs()
	assert.Equal(t, 30*time.Minute, ttls.For(cache.CategoryReference))
	assert.Equal(t, time.Hour, ttls.For(cache.CategoryFees))
	assert.Equal(t, 5*time.Minute, ttls.For(cache.CategorySearch))
	assert.Zero(t, ttls.For(cache.Category("unknown")))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "yalidine|16|31", cache.Key(" Yalidine ", "16", "", "31"))
}

func TestMemorySnapshot_RoundTrip(t *testing.T) {
	s := cache.NewMemorySnapshot()
	ctx := context.Background()

	var missing map[string]int
	ok, err := s.Load(ctx, "none", &missing)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, "k", map[string]int{"a": 1}))
	var got map[string]int
	ok, err = s.Load(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]int{"a": 1}, got)
}

func TestNewRedisSnapshot_RequiresAddr(t *testing.T) {
	_, err := cache.NewRedisSnapshot(cache.RedisSnapshotConfig{})
	assert.Error(t, err)
}
