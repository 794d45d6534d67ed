package engine

import (
	"context"
	"sync"

	"github.com/AltanReisoglu/UCP-AGENT/internal/domain"
	"github.com/AltanReisoglu/UCP-AGENT/internal/store"
)

// recordingListener captures every committed session notification.
type recordingListener struct {
	mu       sync.Mutex
	sessions []*domain.CheckoutSession
}

func (l *recordingListener) OnSessionChange(s *domain.CheckoutSession) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessions = append(l.sessions, s)
}

func (l *recordingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

func (l *recordingListener) last() *domain.CheckoutSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.sessions) == 0 {
		return nil
	}
	return l.sessions[len(l.sessions)-1]
}

// failingStore wraps a real store and fails Put on demand.
type failingStore struct {
	store.SessionStore
	putErr error
}

func (f *failingStore) Put(ctx context.Context, s *domain.CheckoutSession) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.SessionStore.Put(ctx, s)
}
