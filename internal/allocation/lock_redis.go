package allocation

import (
	"context"
	"time"

	"github.com/allocatorhq/compactd/internal/domain"
)

// redisLocker is the slice of *redis.LockManager this package depends on.
type redisLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RedisLockManager namespaces sponsor-keyed locks under a fixed prefix atop
// a shared redis.LockManager, for multi-instance deployments where the
// default LocalLockManager would not be shared across replicas.
type RedisLockManager struct {
	backend redisLocker
}

// NewRedisLockManager wraps an existing Redis-backed lock client.
func NewRedisLockManager(backend redisLocker) *RedisLockManager {
	return &RedisLockManager{backend: backend}
}

// Acquire delegates to the underlying Redis lock client under a
// sponsor-locking key prefix.
func (m *RedisLockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	return m.backend.Acquire(ctx, "sponsor:"+key, ttl)
}

var _ domain.LockManager = (*RedisLockManager)(nil)
