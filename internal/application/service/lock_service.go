package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/waverun-dev/waverun/internal/app"
	"github.com/waverun-dev/waverun/internal/domain/model/lock"
	"github.com/waverun-dev/waverun/internal/domain/repository"
)

// LockService manages run lock lifecycle, heartbeats, and cleanup.
// A held lock is returned as (nil, nil): a refusal, not an error.
type LockService interface {
	AcquireRunLock(ctx context.Context, lockID lock.LockID, ttl time.Duration) (*lock.RunLock, error)
	ReleaseRunLock(ctx context.Context, lockID lock.LockID) error
	FindRunLock(ctx context.Context, lockID lock.LockID) (*lock.RunLock, error)

	// Lifecycle management
	Start(ctx context.Context) error
	Stop() error
}

// LockServiceConfig holds configuration for the lock service
type LockServiceConfig struct {
	HeartbeatInterval time.Duration
	CleanupInterval   time.Duration
}

// DefaultLockServiceConfig returns default configuration
func DefaultLockServiceConfig() LockServiceConfig {
	return LockServiceConfig{
		HeartbeatInterval: 30 * time.Second,
		CleanupInterval:   60 * time.Second,
	}
}

// LockServiceImpl implements LockService
type LockServiceImpl struct {
	repo   repository.RunLockRepository
	config LockServiceConfig

	mu            sync.Mutex
	heartbeats    map[string]context.CancelFunc // lock id -> heartbeat cancel
	cleanupCancel context.CancelFunc
	wg            sync.WaitGroup
	stopOnce      sync.Once
}

// NewLockService creates a lock service
func NewLockService(repo repository.RunLockRepository, config LockServiceConfig) *LockServiceImpl {
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultLockServiceConfig().HeartbeatInterval
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultLockServiceConfig().CleanupInterval
	}
	return &LockServiceImpl{
		repo:       repo,
		config:     config,
		heartbeats: make(map[string]context.CancelFunc),
	}
}

// Start launches the expired-lock cleanup scheduler
func (s *LockServiceImpl) Start(ctx context.Context) error {
	cleanupCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cleanupCancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.cleanupScheduler(cleanupCtx)
	return nil
}

// Stop cancels the cleanup scheduler and all heartbeats, then waits for
// the goroutines to exit
func (s *LockServiceImpl) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if s.cleanupCancel != nil {
			s.cleanupCancel()
		}
		for _, cancel := range s.heartbeats {
			cancel()
		}
		s.heartbeats = make(map[string]context.CancelFunc)
		s.mu.Unlock()

		s.wg.Wait()
	})
	return nil
}

// AcquireRunLock acquires a run lock and starts its heartbeat
func (s *LockServiceImpl) AcquireRunLock(ctx context.Context, lockID lock.LockID, ttl time.Duration) (*lock.RunLock, error) {
	runLock, err := s.repo.Acquire(ctx, lockID, ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if runLock == nil {
		return nil, nil // held by a live process
	}
	s.startHeartbeat(lockID)
	return runLock, nil
}

// ReleaseRunLock stops the heartbeat and releases the lock
func (s *LockServiceImpl) ReleaseRunLock(ctx context.Context, lockID lock.LockID) error {
	s.stopHeartbeat(lockID)
	if err := s.repo.Release(ctx, lockID); err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}

// FindRunLock looks up a lock by ID
func (s *LockServiceImpl) FindRunLock(ctx context.Context, lockID lock.LockID) (*lock.RunLock, error) {
	return s.repo.Find(ctx, lockID)
}

func (s *LockServiceImpl) startHeartbeat(lockID lock.LockID) {
	hbCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if old, ok := s.heartbeats[lockID.String()]; ok {
		old()
	}
	s.heartbeats[lockID.String()] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.config.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := s.repo.Heartbeat(hbCtx, lockID); err != nil {
					app.GetLogger().Warn("heartbeat for lock %s failed: %v", lockID.String(), err)
				}
			}
		}
	}()
}

func (s *LockServiceImpl) stopHeartbeat(lockID lock.LockID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.heartbeats[lockID.String()]; ok {
		cancel()
		delete(s.heartbeats, lockID.String())
	}
}

func (s *LockServiceImpl) cleanupScheduler(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.repo.CleanupExpired(ctx)
			if err != nil {
				app.GetLogger().Warn("lock cleanup failed: %v", err)
				continue
			}
			if removed > 0 {
				app.GetLogger().Info("cleaned up %d expired run locks", removed)
			}
		}
	}
}
