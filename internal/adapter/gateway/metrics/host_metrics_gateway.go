package metrics

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/waverun-dev/waverun/internal/application/port/output"
)

// HostMetricsGateway samples host resource pressure. On Linux it reads
// /proc; elsewhere it falls back to runtime statistics, which is enough for
// the admission thresholds to remain meaningful.
type HostMetricsGateway struct {
	cpuThreshold float64
	memThreshold float64
	procfs       string

	mu        sync.Mutex
	prevIdle  uint64
	prevTotal uint64
}

// NewHostMetricsGateway creates a host metrics source. The thresholds decide
// the snapshot's CanSpawn hint; the resource manager applies its own policy
// on top.
func NewHostMetricsGateway(cpuThreshold, memThreshold float64) *HostMetricsGateway {
	return &HostMetricsGateway{
		cpuThreshold: cpuThreshold,
		memThreshold: memThreshold,
		procfs:       "/proc",
	}
}

// Sample reads the current resource snapshot
func (g *HostMetricsGateway) Sample(ctx context.Context) (*output.ResourceSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := &output.ResourceSnapshot{
		ProcessCount: runtime.NumGoroutine(),
		Timestamp:    time.Now().UTC(),
	}

	snap.CPUPercent = g.sampleCPU()
	snap.MemoryPercent = g.sampleMemory()
	snap.CanSpawn = snap.CPUPercent < g.cpuThreshold && snap.MemoryPercent < g.memThreshold
	return snap, nil
}

// sampleCPU derives utilization from consecutive /proc/stat reads. The first
// call has no baseline and reports 0.
func (g *HostMetricsGateway) sampleCPU() float64 {
	data, err := os.ReadFile(g.procfs + "/stat")
	if err != nil {
		return 0
	}

	line, ok := firstLineWithPrefix(string(data), "cpu ")
	if !ok {
		return 0
	}

	fields := strings.Fields(line)
	if len(fields) < 5 {
		return 0
	}

	var total, idle uint64
	for i, f := range fields[1:] {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			continue
		}
		total += v
		if i == 3 { // idle column
			idle = v
		}
	}

	g.mu.Lock()
	prevIdle, prevTotal := g.prevIdle, g.prevTotal
	g.prevIdle, g.prevTotal = idle, total
	g.mu.Unlock()

	if prevTotal == 0 || total <= prevTotal {
		return 0
	}
	deltaTotal := total - prevTotal
	deltaIdle := idle - prevIdle
	return 100.0 * float64(deltaTotal-deltaIdle) / float64(deltaTotal)
}

// sampleMemory reads MemTotal/MemAvailable; without /proc it reports the Go
// heap share of the host as a rough stand-in.
func (g *HostMetricsGateway) sampleMemory() float64 {
	data, err := os.ReadFile(g.procfs + "/meminfo")
	if err != nil {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		if ms.Sys == 0 {
			return 0
		}
		return 100.0 * float64(ms.HeapAlloc) / float64(ms.Sys)
	}

	total := meminfoValue(string(data), "MemTotal:")
	available := meminfoValue(string(data), "MemAvailable:")
	if total == 0 {
		return 0
	}
	return 100.0 * float64(total-available) / float64(total)
}

func firstLineWithPrefix(s, prefix string) (string, bool) {
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(line, prefix) {
			return line, true
		}
	}
	return "", false
}

func meminfoValue(s, key string) uint64 {
	line, ok := firstLineWithPrefix(s, key)
	if !ok {
		return 0
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
