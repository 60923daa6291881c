package postgres

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// AdvisoryLock is a session-level pg advisory lock that keeps replicas of a
// periodic job from running the same pass at once.
type AdvisoryLock struct {
	pool   *pgxpool.Pool
	id     int64
	name   string
	logger *zap.Logger
}

// NewAdvisoryLock derives a stable lock ID from name
func NewAdvisoryLock(pool *pgxpool.Pool, name string, logger *zap.Logger) *AdvisoryLock {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return &AdvisoryLock{pool: pool, id: int64(h.Sum64()), name: name, logger: logger}
}

// TryLock takes the lock without waiting. The lock lives on one pooled
// connection, which is held until unlock is called.
func (l *AdvisoryLock) TryLock(ctx context.Context) (func(), bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.id).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock %s: %w", l.name, err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", l.id); err != nil {
			l.logger.Warn("advisory unlock failed", zap.String("lock", l.name), zap.Error(err))
		}
		conn.Release()
	}
	return unlock, true, nil
}
