package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/waverun-dev/waverun/internal/domain/checkpoint"
	"github.com/waverun-dev/waverun/internal/domain/model"
	"github.com/waverun-dev/waverun/internal/domain/repository"
)

// CheckpointRepositoryImpl implements repository.CheckpointRepository with
// SQLite. The store is append-only: rows are inserted, never updated.
type CheckpointRepositoryImpl struct {
	db *sql.DB
}

// NewCheckpointRepository creates a SQLite-backed checkpoint repository
func NewCheckpointRepository(db *sql.DB) repository.CheckpointRepository {
	return &CheckpointRepositoryImpl{db: db}
}

// Save inserts a checkpoint; a duplicate ID fails via the primary key.
// seq is assigned inside the INSERT, so concurrent saves cannot draw the
// same value.
func (r *CheckpointRepositoryImpl) Save(ctx context.Context, cp *checkpoint.StepCheckpoint) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO checkpoints (checkpoint_id, step_id, task_id, label, payload, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM checkpoints))`,
		cp.ID(),
		cp.StepID().String(),
		cp.TaskID().String(),
		cp.Label(),
		cp.RawPayload(),
		cp.CreatedAt().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("checkpoint %s already exists: %w", cp.ID(), err)
		}
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// Find returns the full checkpoint by ID
func (r *CheckpointRepositoryImpl) Find(ctx context.Context, checkpointID string) (*checkpoint.StepCheckpoint, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT checkpoint_id, step_id, task_id, label, payload, created_at
		FROM checkpoints WHERE checkpoint_id = ?`, checkpointID)
	cp, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, checkpoint.ErrCheckpointNotFound
	}
	return cp, err
}

// ListByTask returns summaries in creation order, most-recent-last
func (r *CheckpointRepositoryImpl) ListByTask(ctx context.Context, taskID model.TaskID) ([]checkpoint.Summary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT checkpoint_id, step_id, task_id, label, payload, created_at
		FROM checkpoints WHERE task_id = ? ORDER BY seq ASC`, taskID.String())
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []checkpoint.Summary
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		summary := cp.Summarize()
		if _, err := cp.DecodePayload(); err != nil {
			summary.Corrupt = true
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// FindLatestByStep returns the most recent checkpoint for a step
func (r *CheckpointRepositoryImpl) FindLatestByStep(ctx context.Context, stepID model.StepID) (*checkpoint.StepCheckpoint, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT checkpoint_id, step_id, task_id, label, payload, created_at
		FROM checkpoints WHERE step_id = ? ORDER BY seq DESC LIMIT 1`, stepID.String())
	cp, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, checkpoint.ErrCheckpointNotFound
	}
	return cp, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCheckpoint(row rowScanner) (*checkpoint.StepCheckpoint, error) {
	var (
		id, stepIDStr, taskIDStr, label, createdAtStr string
		payload                                       []byte
	)
	if err := row.Scan(&id, &stepIDStr, &taskIDStr, &label, &payload, &createdAtStr); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}

	stepID, err := model.NewStepIDFromString(stepIDStr)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", id, err)
	}
	taskID, err := model.NewTaskIDFromString(taskIDStr)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", id, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: parse created_at: %w", id, err)
	}

	return checkpoint.ReconstructStepCheckpoint(id, stepID, taskID, payload, label, createdAt), nil
}
