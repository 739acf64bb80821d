package allocation

import (
	"context"
	"sync"
	"time"

	"github.com/allocatorhq/compactd/internal/domain"
)

// stripes is the number of mutex stripes the local LockManager spreads
// per-sponsor locks across, bounding memory growth for a long-running
// process that has seen many distinct sponsors.
const stripes = 256

// LocalLockManager is the default, single-instance exclusion primitive: a
// striped set of per-key mutexes. Sufficient under the single-writer
// deployment assumption (SPEC_FULL.md §9); select the Redis-backed
// implementation for multi-instance deployments.
type LocalLockManager struct {
	locks [stripes]sync.Mutex
}

// NewLocalLockManager returns a ready-to-use LocalLockManager.
func NewLocalLockManager() *LocalLockManager {
	return &LocalLockManager{}
}

func (m *LocalLockManager) stripe(key string) *sync.Mutex {
	h := fnv32(key)
	return &m.locks[h%stripes]
}

// Acquire blocks until the per-key stripe mutex is held, or ctx is done.
// ttl is accepted for interface compatibility but unused — an in-process
// mutex has no expiry, it is always released by the returned unlock func.
func (m *LocalLockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	mu := m.stripe(key)
	done := make(chan struct{})
	go func() {
		mu.Lock()
		close(done)
	}()

	select {
	case <-done:
		released := false
		return func() {
			if released {
				return
			}
			released = true
			mu.Unlock()
		}, nil
	case <-ctx.Done():
		// The pending Lock still completes eventually; release it then so
		// the stripe is not held forever.
		go func() {
			<-done
			mu.Unlock()
		}()
		return nil, ctx.Err()
	}
}

// fnv32 is a tiny inline FNV-1a hash, avoiding a dependency on hash/fnv for
// a single-purpose stripe selector.
func fnv32(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}

var _ domain.LockManager = (*LocalLockManager)(nil)
