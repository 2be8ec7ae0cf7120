// Package availcache holds short-lived copies of availability responses.
// Entries are namespaced by a generation number; every booking or block write bumps the
// generation so stale entries stop matching immediately. Get reports the generation it read
// and Set stores nothing once that generation has moved on, so a response computed before a
// write is never cached after it. The TTL bounds staleness for writes made by other processes
// that share no cache.
package availcache

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is the staleness bound for cached availability.
const DefaultTTL = 15 * time.Second

// Generation identifies the cache namespace a lookup observed.
type Generation int64

// UnknownGeneration is reported when the generation could not be read; Set ignores it.
const UnknownGeneration Generation = -1

// Cache stores encoded availability responses. Implementations never return errors:
// a backend failure reads as a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, Generation, bool)
	Set(ctx context.Context, key string, seen Generation, value []byte)
	Invalidate(ctx context.Context)
}

// Noop caches nothing.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, Generation, bool) {
	return nil, UnknownGeneration, false
}
func (Noop) Set(context.Context, string, Generation, []byte) {}
func (Noop) Invalidate(context.Context)                      {}

type memoryEntry struct {
	generation Generation
	value      []byte
	expiresAt  time.Time
}

// Memory is an in-process Cache for single-instance deployments.
type Memory struct {
	mu         sync.Mutex
	ttl        time.Duration
	now        func() time.Time
	generation Generation
	entries    map[string]memoryEntry
}

// NewMemory builds a Memory cache. A non-positive ttl falls back to DefaultTTL; a nil now uses time.Now.
func NewMemory(ttl time.Duration, now func() time.Time) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Memory{ttl: ttl, now: now, entries: make(map[string]memoryEntry)}
}

func (cache *Memory) Get(_ context.Context, key string) ([]byte, Generation, bool) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	entry, ok := cache.entries[key]
	if !ok {
		return nil, cache.generation, false
	}
	if entry.generation != cache.generation || !cache.now().Before(entry.expiresAt) {
		delete(cache.entries, key)
		return nil, cache.generation, false
	}
	return append([]byte(nil), entry.value...), cache.generation, true
}

func (cache *Memory) Set(_ context.Context, key string, seen Generation, value []byte) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	if seen != cache.generation {
		return
	}
	cache.entries[key] = memoryEntry{
		generation: cache.generation,
		value:      append([]byte(nil), value...),
		expiresAt:  cache.now().Add(cache.ttl),
	}
}

// Invalidate drops every entry.
func (cache *Memory) Invalidate(context.Context) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.generation++
	cache.entries = make(map[string]memoryEntry)
}
