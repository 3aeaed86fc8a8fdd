package cache

import (
	"context"
	"sync"
	"time"

	"github.com/wsiviewer/backend/internal/domain/viewer"
)

// DefaultCleanupInterval is how often expired sessions are purged.
const DefaultCleanupInterval = 5 * time.Minute

type sessionEntry struct {
	state     viewer.SessionState
	expiresAt time.Time // zero = never
}

func (e sessionEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// InMemorySessionStore implements viewer.SessionStore using an in-memory map.
// Sessions are not shared across process instances.
type InMemorySessionStore struct {
	mu        sync.RWMutex
	entries   map[string]sessionEntry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemorySessionStore creates a store that purges expired sessions every
// cleanupInterval.
func NewInMemorySessionStore(cleanupInterval time.Duration) *InMemorySessionStore {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	store := &InMemorySessionStore{
		entries:  make(map[string]sessionEntry),
		stopChan: make(chan struct{}),
	}

	store.wg.Add(1)
	go store.cleanupLoop(cleanupInterval)

	return store
}

// Get returns a copy of the stored session.
func (s *InMemorySessionStore) Get(_ context.Context, id string) (viewer.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok || e.expired(time.Now()) {
		return viewer.SessionState{}, viewer.ErrSessionNotFound
	}
	return e.state.Clone(), nil
}

// Save stores a copy of the session. A non-positive ttl keeps it until deleted.
func (s *InMemorySessionStore) Save(_ context.Context, state viewer.SessionState, ttl time.Duration) error {
	e := sessionEntry{state: state.Clone()}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[state.ID] = e
	s.mu.Unlock()
	return nil
}

// Delete removes the session. Unknown IDs are ignored.
func (s *InMemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *InMemorySessionStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemorySessionStore) cleanupLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *InMemorySessionStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, id)
		}
	}
}

// Size returns the number of entries, expired ones included.
func (s *InMemorySessionStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var _ viewer.SessionStore = (*InMemorySessionStore)(nil)
