package transfer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Veraticus/banktalk/internal/common"
)

// MemoryStore keeps transfer sessions in process memory. Sessions are copied
// on the way in and out, so callers never share state with the store.
type MemoryStore struct {
	sessions        map[string]*Session
	stopCh          chan struct{}
	stopOnce        sync.Once
	cleanupInterval time.Duration
	maxAge          time.Duration
	mu              sync.RWMutex
}

// NewMemoryStore creates a store that drops sessions idle for longer than
// maxAge. A non-positive maxAge keeps sessions until they are deleted.
func NewMemoryStore(maxAge time.Duration) *MemoryStore {
	store := &MemoryStore{
		sessions:        make(map[string]*Session),
		cleanupInterval: 5 * time.Minute,
		maxAge:          maxAge,
		stopCh:          make(chan struct{}),
	}
	if maxAge > 0 && maxAge < store.cleanupInterval {
		store.cleanupInterval = maxAge
	}
	if maxAge > 0 {
		go store.cleanupLoop()
	}
	return store
}

// Create stores a new session.
func (s *MemoryStore) Create(ctx context.Context, session *Session) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if session == nil || session.ID == "" {
		return fmt.Errorf("session ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session already exists: %s", session.ID)
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

// Get returns a copy of the session.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", common.ErrSessionNotFound, id)
	}
	return session.Clone(), nil
}

// Update replaces a stored session.
func (s *MemoryStore) Update(ctx context.Context, session *Session) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if session == nil || session.ID == "" {
		return fmt.Errorf("session ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; !exists {
		return fmt.Errorf("%w: %s", common.ErrSessionNotFound, session.ID)
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

// Delete removes a session. Deleting an unknown session is not an error.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup(time.Now())
		case <-s.stopCh:
			return
		}
	}
}

// cleanup removes sessions not updated since maxAge before now.
func (s *MemoryStore) cleanup(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.maxAge)
	removed := 0
	for id, session := range s.sessions {
		if session.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("context cannot be nil")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
