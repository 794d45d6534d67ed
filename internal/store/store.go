package store

import (
	"context"
	"errors"

	"github.com/AltanReisoglu/UCP-AGENT/internal/domain"
)

// Common errors returned by session stores
var (
	ErrSessionNotFound = errors.New("checkout session not found")
	ErrVersionConflict = errors.New("stale session version")
)

// SessionStore is keyed, concurrency-safe storage for live and
// completed checkout sessions. Implementations must reject a write
// whose version does not exceed the stored one, and may evict terminal
// sessions after a TTL.
type SessionStore interface {
	Put(ctx context.Context, session *domain.CheckoutSession) error
	Get(ctx context.Context, id string) (*domain.CheckoutSession, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
