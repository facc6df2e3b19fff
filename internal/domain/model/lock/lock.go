package lock

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Common lock errors
var (
	ErrLockNotFound = errors.New("lock not found")
)

// LockID identifies the resource being locked (e.g. a wave run, a task)
type LockID struct {
	value string
}

// NewLockID creates a new lock ID
func NewLockID(value string) (LockID, error) {
	if value == "" {
		return LockID{}, fmt.Errorf("lock ID cannot be empty")
	}
	return LockID{value: value}, nil
}

// String returns the string representation of the lock ID
func (id LockID) String() string {
	return id.value
}

// Equals checks if two lock IDs are equal
func (id LockID) Equals(other LockID) bool {
	return id.value == other.value
}

// RunLock guarantees a single orchestrator per locked resource.
// The holder is identified by pid/hostname; a lock past its TTL or whose
// holding process is gone counts as stale and may be taken over.
type RunLock struct {
	lockID      LockID
	pid         int
	hostname    string
	acquiredAt  time.Time
	expiresAt   time.Time
	heartbeatAt time.Time
}

// NewRunLock creates a run lock held by the current process
func NewRunLock(lockID LockID, ttl time.Duration) (*RunLock, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("get hostname: %w", err)
	}
	now := time.Now().UTC()
	return &RunLock{
		lockID:      lockID,
		pid:         os.Getpid(),
		hostname:    hostname,
		acquiredAt:  now,
		expiresAt:   now.Add(ttl),
		heartbeatAt: now,
	}, nil
}

// ReconstructRunLock rebuilds a RunLock from persisted data
func ReconstructRunLock(
	lockID LockID,
	pid int,
	hostname string,
	acquiredAt, expiresAt, heartbeatAt time.Time,
) *RunLock {
	return &RunLock{
		lockID:      lockID,
		pid:         pid,
		hostname:    hostname,
		acquiredAt:  acquiredAt,
		expiresAt:   expiresAt,
		heartbeatAt: heartbeatAt,
	}
}

// IsExpired checks if the lock has expired
func (l *RunLock) IsExpired() bool {
	return time.Now().UTC().After(l.expiresAt)
}

// IsHeartbeatStale checks if the heartbeat has not been updated within maxStaleness
func (l *RunLock) IsHeartbeatStale(maxStaleness time.Duration) bool {
	return time.Now().UTC().Sub(l.heartbeatAt) > maxStaleness
}

// UpdateHeartbeat updates the heartbeat timestamp
func (l *RunLock) UpdateHeartbeat() {
	l.heartbeatAt = time.Now().UTC()
}

// Extend extends the lock expiration time
func (l *RunLock) Extend(duration time.Duration) {
	l.expiresAt = l.expiresAt.Add(duration)
}

// Getters
func (l *RunLock) LockID() LockID               { return l.lockID }
func (l *RunLock) PID() int                     { return l.pid }
func (l *RunLock) Hostname() string             { return l.hostname }
func (l *RunLock) AcquiredAt() time.Time        { return l.acquiredAt }
func (l *RunLock) ExpiresAt() time.Time         { return l.expiresAt }
func (l *RunLock) HeartbeatAt() time.Time       { return l.heartbeatAt }
func (l *RunLock) RemainingTime() time.Duration { return time.Until(l.expiresAt) }
