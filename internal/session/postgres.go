package session

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore backs sessions with PostgreSQL, for deployments that
// need session continuity across restarts. Expects the schema:
//
//	CREATE TABLE sessions (
//	    session_id TEXT PRIMARY KEY,
//	    state      BYTEA NOT NULL,
//	    expires_at TIMESTAMPTZ,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, sessionID string) ([]byte, error) {
	query := `
		SELECT state FROM sessions
		WHERE session_id = $1
		  AND (expires_at IS NULL OR expires_at > NOW())
	`

	var state []byte
	err := s.pool.QueryRow(ctx, query, sessionID).Scan(&state)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

// Set implements Store.
func (s *PostgresStore) Set(ctx context.Context, sessionID string, state []byte, ttl time.Duration) error {
	query := `
		INSERT INTO sessions (session_id, state, expires_at, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (session_id)
		DO UPDATE SET state = EXCLUDED.state, expires_at = EXCLUDED.expires_at, updated_at = NOW()
	`

	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	_, err := s.pool.Exec(ctx, query, sessionID, state, expiresAt)
	return err
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	return err
}

// Count implements Store.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM sessions WHERE expires_at IS NULL OR expires_at > NOW()`,
	).Scan(&n)
	return n, err
}

// Sweep removes expired sessions and returns the number deleted.
func (s *PostgresStore) Sweep(ctx context.Context) (int64, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at IS NOT NULL AND expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
