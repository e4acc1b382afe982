// pkg/cache/cache_test.go
package cache

import "testing"

func TestCacheGetPut(t *testing.T) {
	c := New(2)
	c.Put(1, "a")
	c.Put(2, "b")

	v, ok := c.Get(1)
	if !ok || v != "a" {
		t.Errorf("Get(1) = %v, %v, want a, true", v, ok)
	}
	if _, ok := c.Get(99); ok {
		t.Error("Get(99) should miss")
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2)
	c.Put(1, "a")
	c.Put(2, "b")
	c.Get(1) // 1 is now most-recently-used, 2 is least
	c.Put(3, "c")

	if _, ok := c.Get(2); ok {
		t.Error("offset 2 should have been evicted")
	}
	if _, ok := c.Get(1); !ok {
		t.Error("offset 1 should still be cached")
	}
	if _, ok := c.Get(3); !ok {
		t.Error("offset 3 should be cached")
	}
}

func TestCachePinPreventsEviction(t *testing.T) {
	c := New(1)
	c.Put(1, "a")
	c.Pin(1)
	c.Put(2, "b") // would normally evict 1

	if _, ok := c.Get(1); !ok {
		t.Error("pinned entry should not have been evicted")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1: the unpinned entry 2 is evicted instead of pinned 1", c.Len())
	}

	c.Unpin(1)
	c.Put(3, "c")
	if _, ok := c.Get(1); ok {
		t.Error("entry should evict once unpinned and a new insert forces eviction")
	}
}

func TestCacheInvalidate(t *testing.T) {
	c := New(4)
	c.Put(1, "a")
	c.Invalidate(1)
	if _, ok := c.Get(1); ok {
		t.Error("Get after Invalidate should miss")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestCachePutReplacesExisting(t *testing.T) {
	c := New(4)
	c.Put(1, "a")
	c.Put(1, "b")
	v, ok := c.Get(1)
	if !ok || v != "b" {
		t.Errorf("Get(1) = %v, %v, want b, true", v, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}
