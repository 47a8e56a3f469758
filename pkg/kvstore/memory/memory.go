// Package memory provides an in-memory kvstore backend for tests and
// single-process development. Expired records are dropped on read and
// reaped opportunistically on write.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/zipcase/zipcase/pkg/kvstore"
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero = never
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore implements kvstore.Store with a mutex-guarded map.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[kvstore.Key]entry
	clock clockwork.Clock
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(clockwork.NewRealClock())
}

// NewMemoryStoreWithClock creates a store whose expiry decisions follow
// the given clock. Tests pass a fake clock to step through TTLs.
func NewMemoryStoreWithClock(clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{
		items: make(map[kvstore.Key]entry),
		clock: clock,
	}
}

// Get returns the document stored at key, or kvstore.ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, key kvstore.Key) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()

	if !ok || e.expired(s.clock.Now()) {
		return nil, kvstore.ErrNotFound
	}

	value := make([]byte, len(e.value))
	copy(value, e.value)
	return value, nil
}

// BatchGet returns the live documents for the given keys.
func (s *MemoryStore) BatchGet(ctx context.Context, keys []kvstore.Key) (map[kvstore.Key][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	results := make(map[kvstore.Key][]byte, len(keys))

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, key := range keys {
		e, ok := s.items[key]
		if !ok || e.expired(now) {
			continue
		}
		value := make([]byte, len(e.value))
		copy(value, e.value)
		results[key] = value
	}
	return results, nil
}

// Put stores a document with no expiry.
func (s *MemoryStore) Put(ctx context.Context, key kvstore.Key, value []byte) error {
	return s.put(ctx, key, value, time.Time{})
}

// PutWithTTL stores a document that expires ttl from now.
func (s *MemoryStore) PutWithTTL(ctx context.Context, key kvstore.Key, value []byte, ttl time.Duration) error {
	return s.put(ctx, key, value, s.clock.Now().Add(ttl))
}

func (s *MemoryStore) put(ctx context.Context, key kvstore.Key, value []byte, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	s.items[key] = entry{value: stored, expiresAt: expiresAt}
	s.reapLocked()
	s.mu.Unlock()
	return nil
}

// Delete removes a record. Deleting an absent key is not an error.
func (s *MemoryStore) Delete(ctx context.Context, key kvstore.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// Close releases nothing.
func (s *MemoryStore) Close() error {
	return nil
}

// Len reports the number of live records. Intended for tests.
func (s *MemoryStore) Len() int {
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.items {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// reapLocked drops expired entries. Caller holds the write lock.
func (s *MemoryStore) reapLocked() {
	now := s.clock.Now()
	for key, e := range s.items {
		if e.expired(now) {
			delete(s.items, key)
		}
	}
}
