package repository

import (
	"context"

	"github.com/waverun-dev/waverun/internal/domain/model"
	"github.com/waverun-dev/waverun/internal/domain/model/wave"
)

// WaveRepository persists waves and their contained step statuses
type WaveRepository interface {
	// Save inserts or updates a wave
	Save(ctx context.Context, w *wave.Wave) error

	// Find returns a wave by ID, or nil when absent
	Find(ctx context.Context, id model.WaveID) (*wave.Wave, error)

	// FindOpen returns every wave that has not yet closed
	FindOpen(ctx context.Context) ([]*wave.Wave, error)
}
