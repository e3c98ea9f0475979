// Package session persists the per-browser authorization state blob.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no state is stored for a session ID.
var ErrNotFound = errors.New("session: not found")

// Store is a pluggable key-value store for serialized authorization
// state, keyed by session ID. Each request touches only its own entry,
// so implementations need no cross-entry coordination.
type Store interface {
	// Get returns the state blob for the session, or ErrNotFound.
	Get(ctx context.Context, sessionID string) ([]byte, error)
	// Set stores the state blob, refreshing the TTL.
	Set(ctx context.Context, sessionID string, state []byte, ttl time.Duration) error
	// Delete removes the session entry. Deleting an absent entry is not
	// an error.
	Delete(ctx context.Context, sessionID string) error
	// Count returns the number of live (unexpired) sessions.
	Count(ctx context.Context) (int64, error)
}
