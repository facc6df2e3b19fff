package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waverun-dev/waverun/internal/domain/model/lock"
)

func insertLockRow(t *testing.T, db *sql.DB, lockID string, pid int, expiresAt time.Time) {
	t.Helper()
	now := time.Now().UTC()
	_, err := db.Exec(`
		INSERT INTO run_locks (lock_id, pid, hostname, acquired_at, expires_at, heartbeat_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		lockID, pid, "otherhost",
		now.Format(time.RFC3339Nano),
		expiresAt.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	require.NoError(t, err)
}

func TestRunLockRepository_AcquireAndRelease(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRunLockRepository(db)
	ctx := context.Background()

	lockID, err := lock.NewLockID("wave-alpha")
	require.NoError(t, err)

	held, err := repo.Acquire(ctx, lockID, 5*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, held)
	assert.Equal(t, lockID, held.LockID())
	assert.Greater(t, held.PID(), 0)
	assert.NotEmpty(t, held.Hostname())

	// held by this (live) process: refusal, not error
	again, err := repo.Acquire(ctx, lockID, 5*time.Minute)
	require.NoError(t, err)
	assert.Nil(t, again)

	require.NoError(t, repo.Release(ctx, lockID))

	reacquired, err := repo.Acquire(ctx, lockID, 5*time.Minute)
	require.NoError(t, err)
	assert.NotNil(t, reacquired)
}

func TestRunLockRepository_TakesOverExpiredLock(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRunLockRepository(db)
	ctx := context.Background()

	lockID, err := lock.NewLockID("wave-alpha")
	require.NoError(t, err)

	first, err := repo.Acquire(ctx, lockID, -1*time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.True(t, first.IsExpired())

	second, err := repo.Acquire(ctx, lockID, 5*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.False(t, second.IsExpired())
}

func TestRunLockRepository_TakesOverDeadHolder(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRunLockRepository(db)
	ctx := context.Background()

	lockID, err := lock.NewLockID("wave-alpha")
	require.NoError(t, err)

	// unexpired lock held by a PID that cannot exist
	insertLockRow(t, db, "wave-alpha", 1<<30, time.Now().UTC().Add(time.Hour))

	held, err := repo.Acquire(ctx, lockID, 5*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, held)
	assert.NotEqual(t, 1<<30, held.PID())
}

func TestRunLockRepository_Heartbeat(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRunLockRepository(db)
	ctx := context.Background()

	lockID, err := lock.NewLockID("wave-alpha")
	require.NoError(t, err)

	held, err := repo.Acquire(ctx, lockID, 5*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, held)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, repo.Heartbeat(ctx, lockID))

	found, err := repo.Find(ctx, lockID)
	require.NoError(t, err)
	assert.True(t, found.HeartbeatAt().After(held.HeartbeatAt()))

	missing, err := lock.NewLockID("never-acquired")
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Heartbeat(ctx, missing), lock.ErrLockNotFound)
}

func TestRunLockRepository_FindMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRunLockRepository(db)

	lockID, err := lock.NewLockID("absent")
	require.NoError(t, err)
	_, err = repo.Find(context.Background(), lockID)
	assert.ErrorIs(t, err, lock.ErrLockNotFound)
}

func TestRunLockRepository_ReleaseMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRunLockRepository(db)

	lockID, err := lock.NewLockID("absent")
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Release(context.Background(), lockID), lock.ErrLockNotFound)
}

func TestRunLockRepository_CleanupExpired(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRunLockRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	insertLockRow(t, db, "stale-1", 1<<30, now.Add(-time.Hour))
	insertLockRow(t, db, "stale-2", 1<<30, now.Add(-time.Minute))
	insertLockRow(t, db, "live", 1<<30, now.Add(time.Hour))

	removed, err := repo.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	liveID, err := lock.NewLockID("live")
	require.NoError(t, err)
	_, err = repo.Find(ctx, liveID)
	assert.NoError(t, err)
}
