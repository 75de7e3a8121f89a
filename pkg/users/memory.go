package users

import (
	"context"
	"sync"

	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// MemoryStore is a Store for tests and single-process development.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]User)}
}

func (s *MemoryStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Email]; ok {
		return sserr.DuplicateIdentity(u.Email)
	}
	s.users[u.Email] = *u
	return nil
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[email]
	if !ok {
		return nil, sserr.New(sserr.CodeNotFoundUser, "user not found")
	}
	return &u, nil
}

var _ Store = (*MemoryStore)(nil)
