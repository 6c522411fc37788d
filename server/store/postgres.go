// Package store keeps a postgres log of session metadata for the stats
// endpoint. Document content is never written here; the engine is not a
// durable document store.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	language   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	closed_at  TIMESTAMPTZ
)`

// Postgres records session lifecycle events.
type Postgres struct {
	pool *pgxpool.Pool
}

// New connects, ensures the schema, and returns the store.
func New(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

// SessionCreated records a new session.
func (p *Postgres) SessionCreated(ctx context.Context, id, language string, createdAt time.Time) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO sessions (id, language, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`,
		id, language, createdAt)
	return err
}

// SessionClosed stamps a session's destruction time.
func (p *Postgres) SessionClosed(ctx context.Context, id string, closedAt time.Time) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE sessions SET closed_at = $2 WHERE id = $1`, id, closedAt)
	return err
}

// LifetimeSessions returns how many sessions were ever created.
func (p *Postgres) LifetimeSessions(ctx context.Context) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM sessions`).Scan(&n)
	return n, err
}

// Close releases the pool.
func (p *Postgres) Close() { p.pool.Close() }
