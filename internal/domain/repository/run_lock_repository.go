package repository

import (
	"context"
	"time"

	"github.com/waverun-dev/waverun/internal/domain/model/lock"
)

// RunLockRepository manages orchestrator run locks.
// Acquire returning (nil, nil) means the lock is held by a live process:
// a refusal, not an error. Stale locks (expired TTL or dead holder) are
// taken over atomically.
type RunLockRepository interface {
	Acquire(ctx context.Context, lockID lock.LockID, ttl time.Duration) (*lock.RunLock, error)
	Release(ctx context.Context, lockID lock.LockID) error
	Heartbeat(ctx context.Context, lockID lock.LockID) error
	Find(ctx context.Context, lockID lock.LockID) (*lock.RunLock, error)
	CleanupExpired(ctx context.Context) (int, error)
}
