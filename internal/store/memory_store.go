package store

import (
	"context"
	"sync"
	"time"

	"github.com/AltanReisoglu/UCP-AGENT/internal/domain"
)

const (
	// DefaultTerminalTTL is how long a completed or canceled session
	// stays readable before eviction.
	DefaultTerminalTTL = 30 * time.Minute

	// CleanupInterval is how often the background cleanup runs
	CleanupInterval = 30 * time.Second
)

type memoryEntry struct {
	session    *domain.CheckoutSession
	terminalAt time.Time // zero while the session is open
}

// MemoryStore implements SessionStore with in-memory storage
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*memoryEntry
	terminalTTL time.Duration

	stopCleanup chan struct{}
	wg          sync.WaitGroup
}

// NewMemoryStore creates a new in-memory session store
func NewMemoryStore(terminalTTL time.Duration) *MemoryStore {
	if terminalTTL <= 0 {
		terminalTTL = DefaultTerminalTTL
	}
	s := &MemoryStore{
		sessions:    make(map[string]*memoryEntry),
		terminalTTL: terminalTTL,
		stopCleanup: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.cleanupLoop()

	return s
}

func (s *MemoryStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

// evictExpired removes terminal sessions past their TTL
func (s *MemoryStore) evictExpired() {
	cutoff := time.Now().Add(-s.terminalTTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.sessions {
		if !entry.terminalAt.IsZero() && entry.terminalAt.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}

func (s *MemoryStore) Put(_ context.Context, session *domain.CheckoutSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[session.ID]; ok {
		if existing.session.Version >= session.Version {
			return ErrVersionConflict
		}
	}

	entry := &memoryEntry{session: session.Clone()}
	if session.Status.IsTerminal() {
		entry.terminalAt = time.Now()
	}
	s.sessions[session.ID] = entry
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.CheckoutSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return entry.session.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

// Close stops the background cleanup and waits for it to finish
func (s *MemoryStore) Close() error {
	close(s.stopCleanup)
	s.wg.Wait()
	return nil
}
