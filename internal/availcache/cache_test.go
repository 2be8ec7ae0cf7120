package availcache

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct {
	current time.Time
}

func (clock *fakeClock) Now() time.Time { return clock.current }

func TestMemoryHitUntilTTL(test *testing.T) {
	test.Parallel()
	clock := &fakeClock{current: time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)}
	cache := NewMemory(15*time.Second, clock.Now)
	ctx := context.Background()

	_, generation, _ := cache.Get(ctx, "room=2")
	cache.Set(ctx, "room=2", generation, []byte(`{"occupied":{}}`))
	value, _, ok := cache.Get(ctx, "room=2")
	if !ok || string(value) != `{"occupied":{}}` {
		test.Fatalf("expected hit, got %q ok=%v", value, ok)
	}

	clock.current = clock.current.Add(14 * time.Second)
	if _, _, ok := cache.Get(ctx, "room=2"); !ok {
		test.Fatalf("expected hit before ttl")
	}
	clock.current = clock.current.Add(time.Second)
	if _, _, ok := cache.Get(ctx, "room=2"); ok {
		test.Fatalf("expected miss at ttl")
	}
}

func TestMemoryInvalidateDropsEntries(test *testing.T) {
	test.Parallel()
	cache := NewMemory(time.Minute, nil)
	ctx := context.Background()
	_, generation, _ := cache.Get(ctx, "a")
	cache.Set(ctx, "a", generation, []byte("1"))
	cache.Set(ctx, "b", generation, []byte("2"))

	cache.Invalidate(ctx)

	_, fresh, ok := cache.Get(ctx, "a")
	if ok {
		test.Fatalf("expected miss after invalidate")
	}
	if fresh == generation {
		test.Fatalf("expected invalidate to advance the generation")
	}
	cache.Set(ctx, "a", fresh, []byte("3"))
	value, _, ok := cache.Get(ctx, "a")
	if !ok || string(value) != "3" {
		test.Fatalf("expected fresh entry, got %q ok=%v", value, ok)
	}
}

func TestMemoryReturnsCopies(test *testing.T) {
	test.Parallel()
	cache := NewMemory(0, nil)
	ctx := context.Background()
	original := []byte("abc")
	_, generation, _ := cache.Get(ctx, "k")
	cache.Set(ctx, "k", generation, original)
	original[0] = 'x'

	value, _, _ := cache.Get(ctx, "k")
	if string(value) != "abc" {
		test.Fatalf("stored value changed with caller slice: %q", value)
	}
	value[1] = 'y'
	again, _, _ := cache.Get(ctx, "k")
	if string(again) != "abc" {
		test.Fatalf("stored value changed with returned slice: %q", again)
	}
}

func TestNoopAlwaysMisses(test *testing.T) {
	test.Parallel()
	var cache Cache = Noop{}
	ctx := context.Background()
	cache.Set(ctx, "k", 0, []byte("v"))
	_, generation, ok := cache.Get(ctx, "k")
	if ok {
		test.Fatalf("noop cache returned a hit")
	}
	if generation != UnknownGeneration {
		test.Fatalf("expected unknown generation, got %d", generation)
	}
	cache.Invalidate(ctx)
}

func TestMemoryIgnoresResponsesComputedBeforeInvalidate(test *testing.T) {
	test.Parallel()
	cache := NewMemory(time.Minute, nil)
	ctx := context.Background()

	_, seen, ok := cache.Get(ctx, "room=all")
	if ok {
		test.Fatalf("expected initial miss")
	}
	cache.Invalidate(ctx)
	cache.Set(ctx, "room=all", seen, []byte(`{"occupied":{}}`))

	if value, _, ok := cache.Get(ctx, "room=all"); ok {
		test.Fatalf("expected response from the previous generation to be discarded, got %q", value)
	}
}

func TestRedisSetSkipsUnknownGeneration(test *testing.T) {
	test.Parallel()
	cache := NewRedis(nil, "", 0, nil)
	cache.Set(context.Background(), "room=2", UnknownGeneration, []byte("{}"))
}

func TestNewRedisClientRequiresAddr(test *testing.T) {
	test.Parallel()
	if _, err := NewRedisClient(context.Background(), RedisConfig{}); err == nil {
		test.Fatalf("expected error for empty addr")
	}
}

func TestRedisKeys(test *testing.T) {
	test.Parallel()
	cache := NewRedis(nil, "", 0, nil)
	if cache.generationKey() != "roomhold:availability:generation" {
		test.Fatalf("unexpected generation key %q", cache.generationKey())
	}
	if got := cache.entryKey(7, "room=2&from=2025-06-01"); got != "roomhold:availability:7:room=2&from=2025-06-01" {
		test.Fatalf("unexpected entry key %q", got)
	}
	if cache.ttl != DefaultTTL {
		test.Fatalf("expected default ttl, got %s", cache.ttl)
	}
}
