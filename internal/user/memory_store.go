package user

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore implements Store with in-process maps. Used by tests and
// as a reference for the Store contract.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]*User
	meta  map[string]map[string]string
}

// Compile-time interface compliance check
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*User),
		meta:  make(map[string]map[string]string),
	}
}

func (s *MemoryStore) FindByAddress(_ context.Context, address string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[strings.ToLower(address)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *MemoryStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(u.Address)
	if _, exists := s.users[key]; exists {
		return ErrAlreadyExists
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	copied := *u
	copied.Address = key
	s.users[key] = &copied
	return nil
}

func (s *MemoryStore) UpdateDisplayName(_ context.Context, address, displayName string) error {
	return s.mutate(address, func(u *User) { u.DisplayName = displayName })
}

func (s *MemoryStore) UpdateRole(_ context.Context, address, role string) error {
	return s.mutate(address, func(u *User) { u.Role = role })
}

func (s *MemoryStore) UpdateProfileField(_ context.Context, address, field, value string) error {
	return s.mutate(address, func(u *User) {
		switch field {
		case MetaKeyEmail:
			u.Email = value
		case MetaKeyURL:
			u.URL = value
		}
	})
}

func (s *MemoryStore) SetMeta(_ context.Context, address, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := strings.ToLower(address)
	if s.meta[addr] == nil {
		s.meta[addr] = make(map[string]string)
	}
	s.meta[addr][key] = value
	return nil
}

func (s *MemoryStore) GetMeta(_ context.Context, address, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.meta[strings.ToLower(address)][key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *MemoryStore) mutate(address string, fn func(*User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[strings.ToLower(address)]
	if !ok {
		return ErrNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}
