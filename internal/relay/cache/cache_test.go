package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	if err := c.Set(ctx, "tree", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, hit, err := c.Get(ctx, "tree")
	if err != nil || !hit || string(data) != "v1" {
		t.Fatalf("Get = %q, %v, %v", data, hit, err)
	}

	now = now.Add(2 * time.Minute)
	if _, hit, _ := c.Get(ctx, "tree"); hit {
		t.Error("expired entry returned")
	}

	if err := c.Set(ctx, "forever", []byte("x"), 0); err != nil {
		t.Fatal(err)
	}
	now = now.Add(24 * time.Hour)
	if _, hit, _ := c.Get(ctx, "forever"); !hit {
		t.Error("entry without ttl expired")
	}

	if err := c.Delete(ctx, "forever"); err != nil {
		t.Fatal(err)
	}
	if _, hit, _ := c.Get(ctx, "forever"); hit {
		t.Error("deleted entry returned")
	}
}

func TestMemoryCacheCopiesInput(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	buf := []byte("abc")
	_ = c.Set(ctx, "k", buf, time.Minute)
	buf[0] = 'z'

	data, _, _ := c.Get(ctx, "k")
	if string(data) != "abc" {
		t.Errorf("cache aliased caller buffer: %q", data)
	}
}

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	if err := c.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}
	if data, hit, err := c.Get(ctx, "k"); hit || data != nil || err != nil {
		t.Errorf("NullCache.Get = %q, %v, %v", data, hit, err)
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	if err := SetJSON(ctx, c, "p", payload{Name: "hall", Count: 3}, time.Minute); err != nil {
		t.Fatal(err)
	}
	var got payload
	hit, err := GetJSON(ctx, c, "p", &got)
	if err != nil || !hit || got.Name != "hall" || got.Count != 3 {
		t.Errorf("GetJSON = %+v, %v, %v", got, hit, err)
	}

	_ = c.Set(ctx, "broken", []byte("{"), time.Minute)
	hit, err = GetJSON(ctx, c, "broken", &got)
	if hit || err != nil {
		t.Errorf("corrupt entry: hit=%v err=%v", hit, err)
	}
	if _, still, _ := c.Get(ctx, "broken"); still {
		t.Error("corrupt entry not evicted")
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()

	c, err := Open(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(NullCache); !ok {
		t.Errorf("ttl 0 -> %T, want NullCache", c)
	}

	c, err = Open(ctx, "", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*MemoryCache); !ok {
		t.Errorf("no redis url -> %T, want *MemoryCache", c)
	}

	if _, err := Open(ctx, "::not a url", time.Minute); err == nil {
		t.Error("invalid redis url accepted")
	}
}
