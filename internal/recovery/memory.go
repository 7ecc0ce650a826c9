package recovery

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps tokens in a process-local map.
// Tokens do not survive a restart and are not shared between instances.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Put stores entry under token, replacing any previous entry.
func (s *MemoryStore) Put(_ context.Context, token string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = entry
	return nil
}

// Get returns the entry for token without removing it.
func (s *MemoryStore) Get(_ context.Context, token string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[token]
	if !ok {
		return Entry{}, ErrTokenNotFound
	}
	return entry, nil
}

// Take removes and returns the entry for token.
func (s *MemoryStore) Take(_ context.Context, token string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[token]
	if !ok {
		return Entry{}, ErrTokenNotFound
	}
	delete(s.entries, token)
	return entry, nil
}

// Delete removes token. Missing tokens are not an error.
func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, token)
	return nil
}

// Len returns the number of stored tokens, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes entries expired at now and returns how many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for token, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, token)
			removed++
		}
	}
	return removed
}

// Run sweeps expired entries every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}
