// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package dedup

import (
	"context"
	"sync"
	"time"
)

// sweepEvery is the number of writes between two sweeps of expired markers.
const sweepEvery = 1024

// MemoryStore is a process local Store. Markers are lost on restart and
// are not shared between workers. Expired markers are swept every
// sweepEvery writes, so the map stays bounded by the live markers.
type MemoryStore struct {
	mu      sync.Mutex
	expires map[string]time.Time
	writes  int
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		expires: map[string]time.Time{},
		now:     time.Now,
	}
}

func (s *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live(key) {
		return false, nil
	}
	s.set(key, ttl)
	return true, nil
}

func (s *MemoryStore) Mark(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.set(key, ttl)
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := s.live(key)
	delete(s.expires, key)
	return found, nil
}

// Len returns the number of markers held, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expires)
}

// Purge drops expired markers and returns how many were removed.
func (s *MemoryStore) Purge(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purge(), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// set and purge must be called with mu held.
func (s *MemoryStore) set(key string, ttl time.Duration) {
	s.expires[key] = s.now().Add(ttl)
	s.writes++
	if s.writes >= sweepEvery {
		s.writes = 0
		s.purge()
	}
}

func (s *MemoryStore) purge() int64 {
	var n int64
	now := s.now()
	for key, exp := range s.expires {
		if !now.Before(exp) {
			delete(s.expires, key)
			n++
		}
	}
	return n
}

// live must be called with mu held.
func (s *MemoryStore) live(key string) bool {
	exp, ok := s.expires[key]
	return ok && s.now().Before(exp)
}
