package cache

import (
	"testing"
	"time"
)

func TestGetReturnsStoredValue(t *testing.T) {
	c := NewTTL[string, int](4, time.Minute)
	c.Set("a", 1)

	got, ok := c.Get("a")
	if !ok || got != 1 {
		t.Fatalf("Get(a) = %d, %v; want 1, true", got, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("Get(missing) reported a hit")
	}
}

func TestExpiredEntryIsAMiss(t *testing.T) {
	c := NewTTL[string, int](4, time.Minute)
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	c.Set("a", 1)
	clock = clock.Add(59 * time.Second)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("entry expired before ttl elapsed")
	}

	clock = clock.Add(2 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Fatal("entry survived past ttl")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after expiry read, want 0", c.Len())
	}
}

func TestSetEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewTTL[string, int](2, time.Minute)
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	c.Set("a", 1)
	clock = clock.Add(time.Second)
	c.Set("b", 2)

	// Touch a so b becomes the eviction candidate.
	clock = clock.Add(time.Second)
	c.Get("a")

	clock = clock.Add(time.Second)
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("least recently used entry was not evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("recently used entry was evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("new entry missing after eviction")
	}
}

func TestSetExistingKeyDoesNotEvict(t *testing.T) {
	c := NewTTL[string, int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)

	if got, _ := c.Get("a"); got != 10 {
		t.Errorf("Get(a) = %d, want 10", got)
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatal("sibling entry evicted by overwrite")
	}
}

func TestDelete(t *testing.T) {
	c := NewTTL[string, int](4, time.Minute)
	c.Set("a", 1)
	c.Delete("a")

	if _, ok := c.Get("a"); ok {
		t.Fatal("deleted entry still present")
	}
	c.Delete("a") // deleting an absent key is a no-op
}
