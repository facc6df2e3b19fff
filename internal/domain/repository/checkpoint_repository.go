package repository

import (
	"context"

	"github.com/waverun-dev/waverun/internal/domain/checkpoint"
	"github.com/waverun-dev/waverun/internal/domain/model"
)

// CheckpointRepository manages the append-only checkpoint store.
// Save must be atomic create-or-fail keyed by checkpoint ID; checkpoints
// are never updated, only superseded by newer ones for the same step.
type CheckpointRepository interface {
	// Save persists a checkpoint. A duplicate checkpoint ID is an error.
	Save(ctx context.Context, cp *checkpoint.StepCheckpoint) error

	// Find returns the full checkpoint, or checkpoint.ErrCheckpointNotFound
	Find(ctx context.Context, checkpointID string) (*checkpoint.StepCheckpoint, error)

	// ListByTask returns summaries for a task in creation order,
	// most-recent-last, without payloads
	ListByTask(ctx context.Context, taskID model.TaskID) ([]checkpoint.Summary, error)

	// FindLatestByStep returns the most recent checkpoint for a step,
	// or checkpoint.ErrCheckpointNotFound
	FindLatestByStep(ctx context.Context, stepID model.StepID) (*checkpoint.StepCheckpoint, error)
}
