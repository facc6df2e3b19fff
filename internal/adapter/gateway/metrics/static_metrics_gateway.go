package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/waverun-dev/waverun/internal/application/port/output"
)

// StaticMetricsGateway serves a fixed snapshot. Used in tests and as the
// pressure-free source when host sampling is disabled.
type StaticMetricsGateway struct {
	mu   sync.Mutex
	snap output.ResourceSnapshot
	err  error
}

// NewStaticMetricsGateway creates a source reporting no resource pressure
func NewStaticMetricsGateway() *StaticMetricsGateway {
	return &StaticMetricsGateway{
		snap: output.ResourceSnapshot{CanSpawn: true},
	}
}

// SetSnapshot replaces the served snapshot
func (g *StaticMetricsGateway) SetSnapshot(snap output.ResourceSnapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.snap = snap
}

// SetError makes Sample fail until cleared with a nil error
func (g *StaticMetricsGateway) SetError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

// Sample returns the configured snapshot
func (g *StaticMetricsGateway) Sample(ctx context.Context) (*output.ResourceSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	out := g.snap
	out.Timestamp = time.Now().UTC()
	return &out, nil
}
