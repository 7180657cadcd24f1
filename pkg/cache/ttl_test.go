package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGet(t *testing.T) {
	c := New[string](time.Minute, time.Minute)
	defer c.Close()

	c.Set("k", "v")

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestGetMissing(t *testing.T) {
	c := New[string](time.Minute, time.Minute)
	defer c.Close()

	_, ok := c.Get("nope")
	assert.False(t, ok)

	hits, misses := c.Stats()
	assert.Equal(t, int64(0), hits)
	assert.Equal(t, int64(1), misses)
}

func TestEntriesExpire(t *testing.T) {
	c := New[string](10*time.Millisecond, time.Hour)
	defer c.Close()

	c.Set("k", "v")
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestSetWithTTLOverridesDefault(t *testing.T) {
	c := New[string](time.Hour, time.Hour)
	defer c.Close()

	c.SetWithTTL("short", "v", 10*time.Millisecond)
	c.Set("long", "v")

	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("short")
	assert.False(t, ok)
	_, ok = c.Get("long")
	assert.True(t, ok)
}

func TestSetWithTTLRejectsNonPositive(t *testing.T) {
	c := New[string](time.Minute, time.Minute)
	defer c.Close()

	c.SetWithTTL("k", "v", 0)
	assert.Equal(t, 0, c.Len())
}

func TestDelete(t *testing.T) {
	c := New[string](time.Minute, time.Minute)
	defer c.Close()

	c.Set("k", "v")
	c.Delete("k")

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestSweeperRemovesExpired(t *testing.T) {
	c := New[string](5*time.Millisecond, 10*time.Millisecond)
	defer c.Close()

	c.Set("a", "1")
	c.Set("b", "2")

	deadline := time.Now().Add(time.Second)
	for c.Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper never removed expired entries")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := New[string](time.Minute, time.Minute)
	c.Close()
	c.Close()
}
