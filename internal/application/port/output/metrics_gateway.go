package output

import (
	"context"
	"time"
)

// ResourceSnapshot is a point-in-time view of host resource pressure.
// Produced by the metrics source, consumed read-only.
type ResourceSnapshot struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	ProcessCount  int       `json:"process_count"`
	CanSpawn      bool      `json:"can_spawn"`
	Timestamp     time.Time `json:"timestamp"`
}

// MetricsGateway is the external metrics source
type MetricsGateway interface {
	// Sample returns the current resource snapshot
	Sample(ctx context.Context) (*ResourceSnapshot, error)
}
