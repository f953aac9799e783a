package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Divas-Gupta30/esports-agent/internal/graph"
)

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS agent_sessions (
	id         TEXT PRIMARY KEY,
	version    BIGINT NOT NULL,
	state      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore keeps sessions in the agent_sessions table.
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewPostgresStore connects to url and creates the table if needed.
func NewPostgresStore(ctx context.Context, url string, ttl time.Duration) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createSessionsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating agent_sessions: %w", err)
	}
	return &PostgresStore{pool: pool, ttl: ttl}, nil
}

func (s *PostgresStore) Load(ctx context.Context, id string) (*graph.State, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT state FROM agent_sessions WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	st, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if expired(st, s.ttl, time.Now()) {
		return nil, ErrNotFound
	}
	return st, nil
}

func (s *PostgresStore) Save(ctx context.Context, id string, st *graph.State) error {
	saved := next(st, time.Now())
	b, err := encode(saved)
	if err != nil {
		return err
	}

	// An expired row accepts a new session as well as the holder of its
	// last version; a missing row is simply inserted.
	now := saved.UpdatedAt
	cutoff := time.Time{}
	if s.ttl > 0 {
		cutoff = now.Add(-s.ttl)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO agent_sessions (id, version, state, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET version = $2, state = $3, updated_at = $4
		WHERE agent_sessions.version = $5
		   OR ($5 = 0 AND agent_sessions.updated_at < $6)`,
		id, saved.Version, b, now, st.Version, cutoff)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	st.Version = saved.Version
	st.UpdatedAt = saved.UpdatedAt
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM agent_sessions WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
