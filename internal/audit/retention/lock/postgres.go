package lock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
)

// PostgresAdvisory holds a session-level advisory lock on a dedicated
// connection; the lock dies with the connection if the process does.
type PostgresAdvisory struct {
	db *sql.DB
}

func NewPostgresAdvisory(db *sql.DB) *PostgresAdvisory {
	return &PostgresAdvisory{db: db}
}

// Key maps a lock name to the advisory lock key.
func Key(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

func (p *PostgresAdvisory) TryLock(ctx context.Context, name string) (func(context.Context) error, bool, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("advisory lock connection: %w", err)
	}
	key := Key(name)
	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&ok); err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("pg_try_advisory_lock: %w", err)
	}
	if !ok {
		_ = conn.Close()
		return nil, false, nil
	}
	return func(ctx context.Context) error {
		defer conn.Close()
		if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, key); err != nil {
			return fmt.Errorf("pg_advisory_unlock: %w", err)
		}
		return nil
	}, true, nil
}
