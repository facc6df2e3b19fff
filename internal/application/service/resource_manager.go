package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/waverun-dev/waverun/internal/app"
	"github.com/waverun-dev/waverun/internal/application/port/output"
	"github.com/waverun-dev/waverun/internal/eventing"
)

// ResourceThresholds bound how much host pressure still admits new agents.
// Values are configuration, not architecture: callers tune them.
type ResourceThresholds struct {
	MaxCPUPercent    float64
	MaxMemoryPercent float64
	MaxProcessCount  int
}

// DefaultResourceThresholds returns the default admission thresholds
func DefaultResourceThresholds() ResourceThresholds {
	return ResourceThresholds{
		MaxCPUPercent:    85.0,
		MaxMemoryPercent: 90.0,
		MaxProcessCount:  1024,
	}
}

// ResourceManager is the admission controller over concurrent agents.
// It combines a static concurrency cap with live resource pressure from
// the metrics gateway. The active set is the only shared mutable state
// and is mutex-guarded.
type ResourceManager struct {
	maxConcurrent int
	thresholds    ResourceThresholds
	metrics       output.MetricsGateway
	events        eventing.Sink

	mu     sync.Mutex
	active map[string]struct{}
}

// NewResourceManager creates an admission controller.
// maxConcurrent <= 0 is a construction-time error.
func NewResourceManager(maxConcurrent int, metrics output.MetricsGateway, thresholds ResourceThresholds, events eventing.Sink) (*ResourceManager, error) {
	if maxConcurrent <= 0 {
		return nil, fmt.Errorf("max concurrent must be >= 1, got: %d", maxConcurrent)
	}
	if events == nil {
		events = eventing.NoopSink{}
	}
	return &ResourceManager{
		maxConcurrent: maxConcurrent,
		thresholds:    thresholds,
		metrics:       metrics,
		events:        events,
		active:        make(map[string]struct{}),
	}, nil
}

// MaxConcurrent returns the static concurrency cap
func (m *ResourceManager) MaxConcurrent() int {
	return m.maxConcurrent
}

// CanSpawnAgent reports whether a new agent may start. The concurrency
// check runs first and short-circuits: at the ceiling no metrics sample
// is taken. Below the ceiling the latest snapshot must be within
// thresholds; a failed sample counts as a refusal, never an error.
func (m *ResourceManager) CanSpawnAgent(ctx context.Context) bool {
	m.mu.Lock()
	atCapacity := len(m.active) >= m.maxConcurrent
	m.mu.Unlock()

	if atCapacity {
		return false
	}
	if m.metrics == nil {
		return true
	}

	snapshot, err := m.metrics.Sample(ctx)
	if err != nil {
		app.GetLogger().Warn("metrics sample failed, refusing admission: %v", err)
		return false
	}
	return m.withinThresholds(snapshot)
}

func (m *ResourceManager) withinThresholds(s *output.ResourceSnapshot) bool {
	if s.CPUPercent > m.thresholds.MaxCPUPercent {
		return false
	}
	if s.MemoryPercent > m.thresholds.MaxMemoryPercent {
		return false
	}
	if m.thresholds.MaxProcessCount > 0 && s.ProcessCount > m.thresholds.MaxProcessCount {
		return false
	}
	return true
}

// RegisterAgent adds an agent to the active set. Duplicate IDs are a
// no-op-safe upsert.
func (m *ResourceManager) RegisterAgent(id string) {
	m.mu.Lock()
	_, existed := m.active[id]
	m.active[id] = struct{}{}
	m.mu.Unlock()

	if !existed {
		_ = m.events.Publish(context.Background(),
			eventing.NewEvent(eventing.EventAgentRegistered).WithField("agent_id", id))
	}
}

// UnregisterAgent removes an agent; removing an absent ID is a no-op
func (m *ResourceManager) UnregisterAgent(id string) {
	m.mu.Lock()
	_, existed := m.active[id]
	delete(m.active, id)
	m.mu.Unlock()

	if existed {
		_ = m.events.Publish(context.Background(),
			eventing.NewEvent(eventing.EventAgentUnregistered).WithField("agent_id", id))
	}
}

// ActiveAgentCount returns the exact size of the active set
func (m *ResourceManager) ActiveAgentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// ActiveAgentIDs returns a copy of the active set for status reporting
func (m *ResourceManager) ActiveAgentIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.active))
	for id := range m.active {
		out = append(out, id)
	}
	return out
}
