package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/waverun-dev/waverun/internal/domain/model/lock"
	"github.com/waverun-dev/waverun/internal/domain/repository"
)

// RunLockRepositoryImpl implements repository.RunLockRepository with SQLite.
// Acquire returning (nil, nil) is a refusal: the lock is held by a live
// process. Stale locks (expired TTL or dead holder) are taken over.
type RunLockRepositoryImpl struct {
	db *sql.DB
}

// NewRunLockRepository creates a SQLite-backed run lock repository
func NewRunLockRepository(db *sql.DB) repository.RunLockRepository {
	return &RunLockRepositoryImpl{db: db}
}

// Acquire attempts to acquire a run lock with atomic stale lock takeover
func (r *RunLockRepositoryImpl) Acquire(ctx context.Context, lockID lock.LockID, ttl time.Duration) (*lock.RunLock, error) {
	existing, err := r.Find(ctx, lockID)
	if err == nil {
		stale := existing.IsExpired() || !isProcessRunning(existing.PID())
		if !stale {
			return nil, nil
		}

		// Delete the stale row. If another process raced us to it the
		// DELETE affects 0 rows; re-check before inserting.
		result, _ := r.db.ExecContext(ctx,
			`DELETE FROM run_locks WHERE lock_id = ? AND pid = ?`,
			lockID.String(), existing.PID(),
		)
		if result != nil {
			if rows, _ := result.RowsAffected(); rows == 0 {
				if still, _ := r.Find(ctx, lockID); still != nil {
					return nil, nil
				}
			}
		}
	}

	runLock, err := lock.NewRunLock(lockID, ttl)
	if err != nil {
		return nil, fmt.Errorf("create run lock: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO run_locks (lock_id, pid, hostname, acquired_at, expires_at, heartbeat_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runLock.LockID().String(),
		runLock.PID(),
		runLock.Hostname(),
		runLock.AcquiredAt().Format(time.RFC3339Nano),
		runLock.ExpiresAt().Format(time.RFC3339Nano),
		runLock.HeartbeatAt().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			// Another process won the insert race
			return nil, nil
		}
		return nil, fmt.Errorf("insert run lock: %w", err)
	}

	return runLock, nil
}

// Release removes a run lock
func (r *RunLockRepositoryImpl) Release(ctx context.Context, lockID lock.LockID) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM run_locks WHERE lock_id = ?`, lockID.String())
	if err != nil {
		return fmt.Errorf("delete run lock: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", lock.ErrLockNotFound, lockID.String())
	}
	return nil
}

// Heartbeat refreshes the heartbeat timestamp for a held lock
func (r *RunLockRepositoryImpl) Heartbeat(ctx context.Context, lockID lock.LockID) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE run_locks SET heartbeat_at = ? WHERE lock_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), lockID.String())
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", lock.ErrLockNotFound, lockID.String())
	}
	return nil
}

// Find retrieves a run lock by ID
func (r *RunLockRepositoryImpl) Find(ctx context.Context, lockID lock.LockID) (*lock.RunLock, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT lock_id, pid, hostname, acquired_at, expires_at, heartbeat_at
		FROM run_locks WHERE lock_id = ?`, lockID.String())

	var (
		idStr, hostname                        string
		pid                                    int
		acquiredAtStr, expiresAtStr, beatAtStr string
	)
	err := row.Scan(&idStr, &pid, &hostname, &acquiredAtStr, &expiresAtStr, &beatAtStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", lock.ErrLockNotFound, lockID.String())
		}
		return nil, fmt.Errorf("scan run lock: %w", err)
	}

	acquiredAt, err := time.Parse(time.RFC3339Nano, acquiredAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse acquired_at: %w", err)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, expiresAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	heartbeatAt, err := time.Parse(time.RFC3339Nano, beatAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse heartbeat_at: %w", err)
	}

	id, err := lock.NewLockID(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid lock ID: %w", err)
	}
	return lock.ReconstructRunLock(id, pid, hostname, acquiredAt, expiresAt, heartbeatAt), nil
}

// CleanupExpired removes every expired lock and reports how many went
func (r *RunLockRepositoryImpl) CleanupExpired(ctx context.Context) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM run_locks WHERE expires_at < ?`,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("cleanup expired locks: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return int(rows), nil
}

// isProcessRunning reports whether a process with the given PID exists.
// Works on Unix-like systems via ps.
func isProcessRunning(pid int) bool {
	cmd := exec.Command("ps", "-p", strconv.Itoa(pid))
	return cmd.Run() == nil
}
