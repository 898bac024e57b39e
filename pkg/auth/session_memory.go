package auth

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// MemorySessionStore keeps sessions in a size-bounded, expiring LRU. It is
// suitable for single-instance deployments and tests.
type MemorySessionStore struct {
	cache *lru.LRU[string, Session]
}

// NewMemorySessionStore creates a store holding up to size sessions, each
// evicted after ttl.
func NewMemorySessionStore(size int, ttl time.Duration) *MemorySessionStore {
	if size <= 0 {
		size = 10000
	}
	return &MemorySessionStore{cache: lru.NewLRU[string, Session](size, nil, ttl)}
}

func (s *MemorySessionStore) Save(_ context.Context, sess *Session) error {
	s.cache.Add(sess.TokenHash, *sess)
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, tokenHash string) (*Session, error) {
	sess, ok := s.cache.Get(tokenHash)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, tokenHash string) error {
	if !s.cache.Remove(tokenHash) {
		return ErrSessionNotFound
	}
	return nil
}

var _ SessionStore = (*MemorySessionStore)(nil)
