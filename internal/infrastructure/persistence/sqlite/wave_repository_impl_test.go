package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waverun-dev/waverun/internal/domain/model"
	"github.com/waverun-dev/waverun/internal/domain/model/step"
	"github.com/waverun-dev/waverun/internal/domain/model/wave"
)

func buildStoredWave(t *testing.T, name string, steps int) (*wave.Wave, []*step.Step) {
	t.Helper()
	w, err := wave.NewWave(name, 2, nil)
	require.NoError(t, err)

	var out []*step.Step
	taskID := model.NewTaskID()
	for i := 0; i < steps; i++ {
		s, err := step.NewStep(taskID, name, step.TypeImplement, 3)
		require.NoError(t, err)
		require.NoError(t, w.AddStep(s))
		out = append(out, s)
	}
	return w, out
}

func TestWaveRepository_SaveAndFind(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWaveRepository(db)
	ctx := context.Background()

	w, steps := buildStoredWave(t, "alpha", 3)
	require.NoError(t, repo.Save(ctx, w))

	found, err := repo.Find(ctx, w.ID())
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "alpha", found.Name())
	assert.Equal(t, 2, found.MaxConcurrency())
	assert.False(t, found.IsClosed())

	require.Len(t, found.StepIDs(), 3)
	for i, id := range found.StepIDs() {
		assert.Equal(t, steps[i].ID(), id)
		status, ok := found.StepStatus(id)
		require.True(t, ok)
		assert.Equal(t, step.StatusPending, status)
	}
}

func TestWaveRepository_FindMissingReturnsNil(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWaveRepository(db)

	found, err := repo.Find(context.Background(), model.NewWaveID())
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestWaveRepository_RoundTripsDependencies(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWaveRepository(db)
	ctx := context.Background()

	first, _ := buildStoredWave(t, "first", 1)
	require.NoError(t, repo.Save(ctx, first))

	second, err := wave.NewWave("second", 1, []model.WaveID{first.ID()})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, second))

	found, err := repo.Find(ctx, second.ID())
	require.NoError(t, err)
	require.Len(t, found.DependsOn(), 1)
	assert.Equal(t, first.ID(), found.DependsOn()[0])
}

func TestWaveRepository_SavePersistsClosure(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWaveRepository(db)
	ctx := context.Background()

	w, steps := buildStoredWave(t, "alpha", 2)
	require.NoError(t, repo.Save(ctx, w))

	require.NoError(t, w.ObserveStep(steps[0].ID(), step.StatusSucceeded))
	require.NoError(t, w.ObserveStep(steps[1].ID(), step.StatusFailed))
	require.True(t, w.IsClosed())
	require.NoError(t, repo.Save(ctx, w))

	found, err := repo.Find(ctx, w.ID())
	require.NoError(t, err)
	assert.True(t, found.IsClosed())
	require.NotNil(t, found.ClosedAt())

	status, _ := found.StepStatus(steps[0].ID())
	assert.Equal(t, step.StatusSucceeded, status)
	status, _ = found.StepStatus(steps[1].ID())
	assert.Equal(t, step.StatusFailed, status)
}

func TestWaveRepository_FindOpen(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWaveRepository(db)
	ctx := context.Background()

	open, _ := buildStoredWave(t, "open", 1)
	require.NoError(t, repo.Save(ctx, open))

	closed, steps := buildStoredWave(t, "closed", 1)
	require.NoError(t, closed.ObserveStep(steps[0].ID(), step.StatusSucceeded))
	require.NoError(t, repo.Save(ctx, closed))

	waves, err := repo.FindOpen(ctx)
	require.NoError(t, err)
	require.Len(t, waves, 1)
	assert.Equal(t, open.ID(), waves[0].ID())
}
