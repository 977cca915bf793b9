package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestTTLCache_GetFreshAndExpired(t *testing.T) {
	t.Parallel()

	c := NewTTL(50*time.Millisecond, 16)
	c.Set("k", 42)

	v, ok := c.Get("k")
	if !ok {
		t.Fatalf("expected fresh hit")
	}
	if v.(int) != 42 {
		t.Fatalf("expected 42, got %v", v)
	}

	time.Sleep(70 * time.Millisecond)

	if _, ok = c.Get("k"); ok {
		t.Fatalf("expected miss after TTL")
	}

	// stale read still works
	sv, storedAt, ok := c.GetStale("k")
	if !ok {
		t.Fatalf("expected stale value to survive")
	}
	if sv.(int) != 42 {
		t.Fatalf("expected stale 42, got %v", sv)
	}
	if storedAt.IsZero() {
		t.Fatalf("storedAt must be set")
	}
}

func TestTTLCache_LRUEviction(t *testing.T) {
	t.Parallel()

	c := NewTTL(time.Minute, 3)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// touch "a" so "b" becomes the oldest
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("a must be present")
	}

	c.Set("d", 4)

	if _, ok := c.Get("b"); ok {
		t.Fatalf("b must be evicted as least recently used")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Fatalf("%s must survive eviction", k)
		}
	}
	if c.Len() != 3 {
		t.Fatalf("expected len=3, got %d", c.Len())
	}
}

func TestTTLCache_PurgeExpired(t *testing.T) {
	t.Parallel()

	c := NewTTL(30*time.Millisecond, 64)
	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("k-%d", i), i)
	}

	time.Sleep(50 * time.Millisecond)
	c.Set("fresh", 1)

	removed := c.PurgeExpired()
	if removed != 10 {
		t.Fatalf("expected 10 purged, got %d", removed)
	}
	if c.Len() != 1 {
		t.Fatalf("expected only fresh entry left, len=%d", c.Len())
	}
}

func TestTTLCache_SetOverwrites(t *testing.T) {
	t.Parallel()

	c := NewTTL(time.Minute, 8)
	c.Set("k", "old")
	c.Set("k", "new")

	v, ok := c.Get("k")
	if !ok || v.(string) != "new" {
		t.Fatalf("expected overwrite, got %v ok=%v", v, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("overwrite must not grow cache, len=%d", c.Len())
	}
}

func TestTTLCache_Defaults(t *testing.T) {
	t.Parallel()

	c := NewTTL(0, 0)
	if c.ttl != time.Minute {
		t.Fatalf("expected default ttl 1m, got %s", c.ttl)
	}
	if c.max != 1024 {
		t.Fatalf("expected default max 1024, got %d", c.max)
	}
}
