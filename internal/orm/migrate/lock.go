package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
)

// DistributedLock provides mutual exclusion for migration runs across processes
type DistributedLock interface {
	// Acquire blocks until the lock for key is held. The returned release
	// function must be called to give it up.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// PostgresLock implements DistributedLock with session-level advisory locks.
// The lock and unlock run on one pinned connection since advisory locks
// belong to the session that took them.
type PostgresLock struct {
	db *sql.DB
}

// NewPostgresLock creates a new PostgresLock
func NewPostgresLock(db *sql.DB) *PostgresLock {
	return &PostgresLock{db: db}
}

// Acquire takes pg_advisory_lock on a hash of key
func (l *PostgresLock) Acquire(ctx context.Context, key string) (func(), error) {
	lockID := hashLockKey(key)

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve lock connection: %w", err)
	}

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, lockID); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pg_advisory_lock(%d): %w", lockID, err)
	}

	release := func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
		_ = conn.Close()
	}
	return release, nil
}

// hashLockKey maps key onto the non-negative int64 range with FNV-1a
func hashLockKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
}
