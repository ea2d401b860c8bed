package cache

import (
	"testing"
	"time"
)

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[string, int]().(*ttlCache[string, int])
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, 0)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1, got %v %v", v, ok)
	}

	now = now.Add(time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected a to expire")
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Fatalf("entries without ttl must not expire")
	}
	if c.Len() != 1 {
		t.Fatalf("expected expired entry to be removed, len=%d", c.Len())
	}

	c.Delete("b")
	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected b to be deleted")
	}
}

func TestBoundedTTLCache(t *testing.T) {
	c := NewBoundedTTLCache[string, int](2).(*ttlCache[string, int])
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", 1, time.Second)
	c.Set("b", 2, time.Hour)
	c.Set("c", 3, time.Hour)
	if _, ok := c.Get("c"); ok {
		t.Fatalf("full cache must refuse new keys")
	}

	now = now.Add(2 * time.Second)
	c.Set("c", 3, time.Hour)
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Fatalf("expected sweep to make room for c")
	}
	c.Set("b", 20, time.Hour)
	if v, _ := c.Get("b"); v != 20 {
		t.Fatalf("existing keys must always be updatable")
	}
}
