package nonce

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore implements Store with an in-process map. Useful for
// tests and single-instance deployments without Redis.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

// Compile-time interface compliance check
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory consumed-nonce store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultLifespan
	}
	return &MemoryStore{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) key(token, address string) string {
	return strings.ToLower(address) + ":" + token
}

// Reserve reserves a nonce, failing if it is already held and unexpired.
func (s *MemoryStore) Reserve(_ context.Context, token, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.key(token, address)
	if expiry, held := s.entries[key]; held && s.now().Before(expiry) {
		return ErrAlreadyUsed
	}
	s.entries[key] = s.now().Add(s.ttl)
	return nil
}

// MarkUsed refreshes the reservation's expiry. The entry itself
// already blocks reuse.
func (s *MemoryStore) MarkUsed(_ context.Context, token, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[s.key(token, address)] = s.now().Add(s.ttl)
	return nil
}

// Release drops the reservation so the nonce may be retried.
func (s *MemoryStore) Release(_ context.Context, token, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, s.key(token, address))
	return nil
}
