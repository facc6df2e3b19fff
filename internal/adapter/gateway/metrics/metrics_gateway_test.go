package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waverun-dev/waverun/internal/application/port/output"
)

func TestHostMetricsGateway_Sample(t *testing.T) {
	g := NewHostMetricsGateway(85, 90)

	snap, err := g.Sample(context.Background())
	require.NoError(t, err)

	assert.False(t, snap.Timestamp.IsZero())
	assert.GreaterOrEqual(t, snap.CPUPercent, 0.0)
	assert.LessOrEqual(t, snap.CPUPercent, 100.0)
	assert.GreaterOrEqual(t, snap.MemoryPercent, 0.0)
	assert.LessOrEqual(t, snap.MemoryPercent, 100.0)
	assert.Greater(t, snap.ProcessCount, 0)
}

func TestHostMetricsGateway_CancelledContext(t *testing.T) {
	g := NewHostMetricsGateway(85, 90)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Sample(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHostMetricsGateway_FakeProcfs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stat"),
		[]byte("cpu  100 0 100 800 0 0 0 0 0 0\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meminfo"),
		[]byte("MemTotal:       1000 kB\nMemAvailable:    250 kB\n"), 0644))

	g := NewHostMetricsGateway(85, 90)
	g.procfs = dir

	snap, err := g.Sample(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 75.0, snap.MemoryPercent, 0.001)
	assert.Equal(t, 0.0, snap.CPUPercent, "first sample has no baseline")

	// Second read with more busy time establishes a delta
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stat"),
		[]byte("cpu  200 0 100 850 0 0 0 0 0 0\n"), 0644))
	snap, err = g.Sample(context.Background())
	require.NoError(t, err)
	// 150 busy ticks out of 200 total
	assert.InDelta(t, 66.67, snap.CPUPercent, 0.1)
	assert.True(t, snap.CanSpawn)
}

func TestHostMetricsGateway_ConcurrentSample(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stat"),
		[]byte("cpu  100 0 100 800 0 0 0 0 0 0\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meminfo"),
		[]byte("MemTotal:       1000 kB\nMemAvailable:    250 kB\n"), 0644))

	g := NewHostMetricsGateway(85, 90)
	g.procfs = dir

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				snap, err := g.Sample(context.Background())
				assert.NoError(t, err)
				assert.GreaterOrEqual(t, snap.CPUPercent, 0.0)
			}
		}()
	}
	wg.Wait()
}

func TestStaticMetricsGateway(t *testing.T) {
	g := NewStaticMetricsGateway()

	snap, err := g.Sample(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.CanSpawn)

	g.SetSnapshot(output.ResourceSnapshot{CPUPercent: 99, CanSpawn: false})
	snap, err = g.Sample(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.CanSpawn)
	assert.Equal(t, 99.0, snap.CPUPercent)

	g.SetError(errors.New("sampler offline"))
	_, err = g.Sample(context.Background())
	assert.Error(t, err)
}
