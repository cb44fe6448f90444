// Package memory provides the in-memory blacklist store.
// It is suitable for development, testing, and single-instance deployments.
package memory

import (
	"context"
	"sync"
	"time"
)

// Store is an in-memory implementation of storage.BlacklistStore.
type Store struct {
	mu      sync.RWMutex
	entries map[string]time.Time // sender ID -> expiry
}

// New creates an empty in-memory blacklist store.
func New() *Store {
	return &Store{entries: make(map[string]time.Time)}
}

// Add blocks senderID until expiresAt.
func (s *Store) Add(_ context.Context, senderID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[senderID] = expiresAt
	return nil
}

// Contains reports whether senderID is blocked at the given time.
// Expired entries are removed lazily.
func (s *Store) Contains(_ context.Context, senderID string, now time.Time) (bool, error) {
	s.mu.RLock()
	expiry, ok := s.entries[senderID]
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if !expiry.After(now) {
		s.mu.Lock()
		// Re-check under the write lock: the entry may have been replaced.
		if cur, ok := s.entries[senderID]; ok && !cur.After(now) {
			delete(s.entries, senderID)
		}
		s.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// Remove unblocks senderID.
func (s *Store) Remove(_ context.Context, senderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, senderID)
	return nil
}

// Sweep deletes expired entries and returns the number removed.
func (s *Store) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, expiry := range s.entries {
		if !expiry.After(now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of entries still active at the given time.
func (s *Store) Count(_ context.Context, now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, expiry := range s.entries {
		if expiry.After(now) {
			n++
		}
	}
	return n, nil
}
