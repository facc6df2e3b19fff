package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/waverun-dev/waverun/internal/domain/checkpoint"
	"github.com/waverun-dev/waverun/internal/domain/model"
	"github.com/waverun-dev/waverun/internal/domain/model/contract"
	"github.com/waverun-dev/waverun/internal/domain/model/lock"
	"github.com/waverun-dev/waverun/internal/domain/model/wave"
	"github.com/waverun-dev/waverun/internal/domain/repository"
)

// MockCheckpointRepository is an in-memory CheckpointRepository for tests
// and the mock storage mode. Append-only, creation order preserved.
type MockCheckpointRepository struct {
	mu          sync.RWMutex
	checkpoints []*checkpoint.StepCheckpoint
	byID        map[string]*checkpoint.StepCheckpoint
}

// NewMockCheckpointRepository creates an empty in-memory store
func NewMockCheckpointRepository() *MockCheckpointRepository {
	return &MockCheckpointRepository{
		byID: make(map[string]*checkpoint.StepCheckpoint),
	}
}

// Save appends a checkpoint; a duplicate ID is an error
func (r *MockCheckpointRepository) Save(_ context.Context, cp *checkpoint.StepCheckpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[cp.ID()]; exists {
		return fmt.Errorf("checkpoint %s already exists", cp.ID())
	}
	r.byID[cp.ID()] = cp
	r.checkpoints = append(r.checkpoints, cp)
	return nil
}

// Find returns a checkpoint by ID
func (r *MockCheckpointRepository) Find(_ context.Context, checkpointID string) (*checkpoint.StepCheckpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp, ok := r.byID[checkpointID]
	if !ok {
		return nil, fmt.Errorf("checkpoint %s: %w", checkpointID, checkpoint.ErrCheckpointNotFound)
	}
	return cp, nil
}

// ListByTask returns summaries in creation order, most-recent-last
func (r *MockCheckpointRepository) ListByTask(_ context.Context, taskID model.TaskID) ([]checkpoint.Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []checkpoint.Summary
	for _, cp := range r.checkpoints {
		if cp.TaskID().Equals(taskID) {
			summary := cp.Summarize()
			if _, err := cp.DecodePayload(); err != nil {
				summary.Corrupt = true
			}
			out = append(out, summary)
		}
	}
	return out, nil
}

// FindLatestByStep returns the most recent checkpoint for a step
func (r *MockCheckpointRepository) FindLatestByStep(_ context.Context, stepID model.StepID) (*checkpoint.StepCheckpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.checkpoints) - 1; i >= 0; i-- {
		if r.checkpoints[i].StepID().Equals(stepID) {
			return r.checkpoints[i], nil
		}
	}
	return nil, fmt.Errorf("step %s: %w", stepID.String(), checkpoint.ErrCheckpointNotFound)
}

// MockContractRepository is an in-memory contract registry
type MockContractRepository struct {
	mu        sync.RWMutex
	contracts map[string]*contract.AgentContract
	order     []string
}

// NewMockContractRepository creates an empty registry
func NewMockContractRepository() *MockContractRepository {
	return &MockContractRepository{
		contracts: make(map[string]*contract.AgentContract),
	}
}

// Save inserts or updates a contract by ID
func (r *MockContractRepository) Save(_ context.Context, c *contract.AgentContract) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.contracts[c.ID()]; !exists {
		r.order = append(r.order, c.ID())
	}
	r.contracts[c.ID()] = c
	return nil
}

// Find returns a contract by ID
func (r *MockContractRepository) Find(_ context.Context, contractID string) (*contract.AgentContract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[contractID]
	if !ok {
		return nil, fmt.Errorf("contract %s: %w", contractID, contract.ErrContractNotFound)
	}
	return c, nil
}

// FindAll returns all contracts in registration order
func (r *MockContractRepository) FindAll(_ context.Context) ([]*contract.AgentContract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*contract.AgentContract, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.contracts[id])
	}
	return out, nil
}

// Delete removes a contract; absent IDs are a no-op
func (r *MockContractRepository) Delete(_ context.Context, contractID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contracts[contractID]; !ok {
		return nil
	}
	delete(r.contracts, contractID)
	for i, id := range r.order {
		if id == contractID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// MockWaveRepository is an in-memory WaveRepository
type MockWaveRepository struct {
	mu    sync.RWMutex
	waves map[string]*wave.Wave
}

// NewMockWaveRepository creates an empty store
func NewMockWaveRepository() *MockWaveRepository {
	return &MockWaveRepository{waves: make(map[string]*wave.Wave)}
}

// Save inserts or updates a wave
func (r *MockWaveRepository) Save(_ context.Context, w *wave.Wave) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waves[w.ID().String()] = w
	return nil
}

// Find returns a wave by ID, or nil when absent
func (r *MockWaveRepository) Find(_ context.Context, id model.WaveID) (*wave.Wave, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.waves[id.String()], nil
}

// FindOpen returns all waves that have not closed
func (r *MockWaveRepository) FindOpen(_ context.Context) ([]*wave.Wave, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*wave.Wave
	for _, w := range r.waves {
		if !w.IsClosed() {
			out = append(out, w)
		}
	}
	return out, nil
}

// MockRunLockRepository is an in-memory RunLockRepository
type MockRunLockRepository struct {
	mu    sync.Mutex
	locks map[string]*lock.RunLock
}

// NewMockRunLockRepository creates an empty store
func NewMockRunLockRepository() *MockRunLockRepository {
	return &MockRunLockRepository{locks: make(map[string]*lock.RunLock)}
}

// Acquire takes the lock unless a live holder has it
func (r *MockRunLockRepository) Acquire(_ context.Context, lockID lock.LockID, ttl time.Duration) (*lock.RunLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.locks[lockID.String()]; ok && !existing.IsExpired() {
		return nil, nil
	}
	l, err := lock.NewRunLock(lockID, ttl)
	if err != nil {
		return nil, err
	}
	r.locks[lockID.String()] = l
	return l, nil
}

// Release removes the lock
func (r *MockRunLockRepository) Release(_ context.Context, lockID lock.LockID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locks, lockID.String())
	return nil
}

// Heartbeat updates the holder's heartbeat
func (r *MockRunLockRepository) Heartbeat(_ context.Context, lockID lock.LockID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[lockID.String()]
	if !ok {
		return lock.ErrLockNotFound
	}
	l.UpdateHeartbeat()
	return nil
}

// Find returns the lock, or lock.ErrLockNotFound
func (r *MockRunLockRepository) Find(_ context.Context, lockID lock.LockID) (*lock.RunLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[lockID.String()]
	if !ok {
		return nil, lock.ErrLockNotFound
	}
	return l, nil
}

// CleanupExpired drops expired locks and reports how many
func (r *MockRunLockRepository) CleanupExpired(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, l := range r.locks {
		if l.IsExpired() {
			delete(r.locks, id)
			removed++
		}
	}
	return removed, nil
}

// MockJournalRepository is an in-memory append-only journal
type MockJournalRepository struct {
	mu      sync.RWMutex
	records []*repository.JournalRecord
}

// NewMockJournalRepository creates an empty journal
func NewMockJournalRepository() *MockJournalRepository {
	return &MockJournalRepository{}
}

// Append adds a record
func (r *MockJournalRepository) Append(_ context.Context, record *repository.JournalRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

// Load returns all records in append order
func (r *MockJournalRepository) Load(_ context.Context) ([]*repository.JournalRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*repository.JournalRecord, len(r.records))
	copy(out, r.records)
	return out, nil
}

// FindByTask returns the records for one task
func (r *MockJournalRepository) FindByTask(_ context.Context, taskID string) ([]*repository.JournalRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*repository.JournalRecord
	for _, rec := range r.records {
		if rec.TaskID == taskID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Interface compliance checks
var (
	_ repository.CheckpointRepository = (*MockCheckpointRepository)(nil)
	_ repository.ContractRepository   = (*MockContractRepository)(nil)
	_ repository.WaveRepository       = (*MockWaveRepository)(nil)
	_ repository.RunLockRepository    = (*MockRunLockRepository)(nil)
	_ repository.JournalRepository    = (*MockJournalRepository)(nil)
)
