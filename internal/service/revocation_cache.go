package service

import (
	"context"
	"sync"
	"time"
)

// RevocationCacheStore remembers revoked access token hashes until the token
// would have expired anyway. A miss is not authoritative.
type RevocationCacheStore interface {
	Contains(ctx context.Context, tokenHash string) (bool, error)
	Add(ctx context.Context, tokenHash string, ttl time.Duration) error
}

type NoopRevocationCacheStore struct{}

func NewNoopRevocationCacheStore() *NoopRevocationCacheStore {
	return &NoopRevocationCacheStore{}
}

func (s *NoopRevocationCacheStore) Contains(context.Context, string) (bool, error) {
	return false, nil
}

func (s *NoopRevocationCacheStore) Add(context.Context, string, time.Duration) error {
	return nil
}

type InMemoryRevocationCacheStore struct {
	mu    sync.RWMutex
	store map[string]time.Time
	now   func() time.Time
}

func NewInMemoryRevocationCacheStore() *InMemoryRevocationCacheStore {
	return &InMemoryRevocationCacheStore{
		store: make(map[string]time.Time),
		now:   time.Now,
	}
}

func (s *InMemoryRevocationCacheStore) Contains(_ context.Context, tokenHash string) (bool, error) {
	now := s.now().UTC()
	s.mu.RLock()
	expiresAt, ok := s.store[tokenHash]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !expiresAt.After(now) {
		s.mu.Lock()
		if current, ok := s.store[tokenHash]; ok && current.Equal(expiresAt) {
			delete(s.store, tokenHash)
		}
		s.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (s *InMemoryRevocationCacheStore) Add(_ context.Context, tokenHash string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[tokenHash] = s.now().UTC().Add(ttl)
	return nil
}
