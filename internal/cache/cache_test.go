package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSetRoundTrip(t *testing.T) {
	c := New(10)
	c.Set("a", 1, 0)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestGetMissing(t *testing.T) {
	c := New(10)
	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestExpiryRemovesOnRead(t *testing.T) {
	c := New(10)
	c.Set("a", 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.False(t, c.Has("a"))
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Get("a") // touch a, making b the LRU
	c.Set("c", 3, 0)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted as least-recently-used")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestPruneRemovesOnlyExpired(t *testing.T) {
	c := New(10)
	c.Set("short", 1, time.Millisecond)
	c.Set("long", 2, time.Hour)
	time.Sleep(5 * time.Millisecond)

	removed := c.Prune()
	assert.Equal(t, 1, removed)
	assert.True(t, c.Has("long"))
	assert.False(t, c.Has("short"))
}

func TestStatsTracksHitsAndMisses(t *testing.T) {
	c := New(10)
	c.Set("a", 1, 0)
	c.Get("a")
	c.Get("missing")

	s := c.Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, 1, s.Size)
}

func TestClearResetsEverything(t *testing.T) {
	c := New(10)
	c.Set("a", 1, 0)
	c.Get("a")
	c.Clear()

	s := c.Stats()
	assert.Equal(t, 0, s.Size)
	assert.Equal(t, int64(0), s.Hits)
	assert.False(t, c.Has("a"))
}

func TestDeleteRemovesKey(t *testing.T) {
	c := New(10)
	c.Set("a", 1, 0)
	c.Delete("a")
	assert.False(t, c.Has("a"))
}

func TestKeyNamespacing(t *testing.T) {
	assert.Equal(t, "file:1:src/main.go", FileKey(1, "src/main.go"))
	assert.Equal(t, "learning:7:auth", LearningKey(7, "auth"))
}
