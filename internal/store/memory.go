package store

import (
	"context"
	"strings"
	"sync"
	"time"
)

// entry is a stored value with expiry metadata.
type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
	createdAt time.Time
}

// isExpired checks whether the entry's TTL has elapsed.
func (e *entry) isExpired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is an in-process Store with per-key TTLs. It is the default
// backend for single-process deployments and the workhorse of the test suite.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	maxSize int
}

// DefaultMaxEntries bounds the memory backend; mappings are small, and a
// conversation rarely masks more than a handful of fields.
const DefaultMaxEntries = 10000

// NewMemoryStore creates an in-memory store holding at most maxSize entries.
func NewMemoryStore(maxSize int) *MemoryStore {
	if maxSize <= 0 {
		maxSize = DefaultMaxEntries
	}
	return &MemoryStore{
		entries: make(map[string]*entry),
		maxSize: maxSize,
	}
}

// Set upserts a value with TTL.
func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Evict expired entries if at capacity
	if len(s.entries) >= s.maxSize {
		s.evictExpiredLocked()
	}

	// If still at capacity, evict the oldest entry
	if len(s.entries) >= s.maxSize {
		s.evictOldestLocked()
	}

	e := &entry{value: value, createdAt: time.Now()}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

// Get retrieves a value, treating expired entries as absent.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	e, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return "", ErrNotFound
	}

	if e.isExpired(time.Now()) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return "", ErrNotFound
	}

	return e.value, nil
}

// Keys lists live keys with the given prefix.
func (s *MemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for key, e := range s.entries {
		if strings.HasPrefix(key, prefix) && !e.isExpired(now) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// DeleteByPrefix removes all entries with keys starting with prefix.
func (s *MemoryStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
			count++
		}
	}
	return count, nil
}

// Close is a no-op for the memory backend.
func (s *MemoryStore) Close() error {
	return nil
}

// Size returns the number of entries, expired included.
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// evictExpiredLocked removes all expired entries (must hold write lock)
func (s *MemoryStore) evictExpiredLocked() {
	now := time.Now()
	for key, e := range s.entries {
		if e.isExpired(now) {
			delete(s.entries, key)
		}
	}
}

// evictOldestLocked removes the oldest entry (must hold write lock)
func (s *MemoryStore) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	first := true

	for key, e := range s.entries {
		if first || e.createdAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.createdAt
			first = false
		}
	}

	if oldestKey != "" {
		delete(s.entries, oldestKey)
	}
}
