package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/waverun-dev/waverun/internal/application/port/output"
	"github.com/waverun-dev/waverun/internal/domain/checkpoint"
	"github.com/waverun-dev/waverun/internal/domain/execution"
	"github.com/waverun-dev/waverun/internal/domain/model"
	"github.com/waverun-dev/waverun/internal/domain/model/step"
	"github.com/waverun-dev/waverun/internal/domain/repository"
	"github.com/waverun-dev/waverun/internal/eventing"
)

// CheckpointPreview is the non-mutating decoded view of a checkpoint
type CheckpointPreview struct {
	Summary checkpoint.Summary         `json:"summary"`
	Step    checkpoint.StepSnapshot    `json:"step"`
	Context *execution.ContextSnapshot `json:"context,omitempty"`
}

// CheckpointService creates, browses and exports step checkpoints
type CheckpointService struct {
	repo    repository.CheckpointRepository
	archive output.ArchiveGateway
	events  eventing.Sink
}

// NewCheckpointService creates a checkpoint service. The archive gateway
// may be nil when export is not configured.
func NewCheckpointService(repo repository.CheckpointRepository, archive output.ArchiveGateway, events eventing.Sink) *CheckpointService {
	if events == nil {
		events = eventing.NoopSink{}
	}
	return &CheckpointService{repo: repo, archive: archive, events: events}
}

// CreateCheckpoint serializes the step/context pair, persists it, and
// publishes a checkpoint-created event
func (s *CheckpointService) CreateCheckpoint(ctx context.Context, st *step.Step, execCtx *execution.ExecutionContext, label string) (*checkpoint.StepCheckpoint, error) {
	var ctxSnap *execution.ContextSnapshot
	if execCtx != nil {
		var err error
		ctxSnap, err = execCtx.Snapshot()
		if err != nil {
			return nil, fmt.Errorf("snapshot context: %w", err)
		}
	}

	cp, err := checkpoint.NewStepCheckpoint(st, ctxSnap, label)
	if err != nil {
		return nil, fmt.Errorf("create checkpoint: %w", err)
	}
	if err := s.repo.Save(ctx, cp); err != nil {
		return nil, fmt.Errorf("save checkpoint: %w", err)
	}

	_ = s.events.Publish(ctx, eventing.NewEvent(eventing.EventCheckpointCreated).
		WithTask(st.TaskID().String()).
		WithStep(st.ID().String()).
		WithField("checkpoint_id", cp.ID()))

	return cp, nil
}

// ListStepCheckpoints returns lightweight summaries for a task in creation
// order, most-recent-last. A checkpoint whose payload is unreadable is
// marked corrupt in its summary instead of aborting the listing.
func (s *CheckpointService) ListStepCheckpoints(ctx context.Context, taskID model.TaskID) ([]checkpoint.Summary, error) {
	summaries, err := s.repo.ListByTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return summaries, nil
}

// LoadStepCheckpoint returns the full checkpoint or a typed not-found
func (s *CheckpointService) LoadStepCheckpoint(ctx context.Context, checkpointID string) (*checkpoint.StepCheckpoint, error) {
	return s.repo.Find(ctx, checkpointID)
}

// RestoreCheckpoint decodes a checkpoint into a preview without mutating
// anything. A corrupt payload is reported as readable-but-invalid.
func (s *CheckpointService) RestoreCheckpoint(ctx context.Context, checkpointID string) (*CheckpointPreview, error) {
	cp, err := s.repo.Find(ctx, checkpointID)
	if err != nil {
		return nil, err
	}

	preview := &CheckpointPreview{Summary: cp.Summarize()}
	payload, err := cp.DecodePayload()
	if err != nil {
		if errors.Is(err, checkpoint.ErrCorruptPayload) {
			preview.Summary.Corrupt = true
			return preview, nil
		}
		return nil, err
	}
	preview.Step = payload.Step
	preview.Context = payload.Context
	return preview, nil
}

// ExportCheckpoint serializes a checkpoint's decoded view and archives it
func (s *CheckpointService) ExportCheckpoint(ctx context.Context, checkpointID string) (*output.ArchiveMetadata, error) {
	if s.archive == nil {
		return nil, errors.New("no archive gateway configured")
	}

	preview, err := s.RestoreCheckpoint(ctx, checkpointID)
	if err != nil {
		return nil, err
	}
	if preview.Summary.Corrupt {
		return nil, fmt.Errorf("checkpoint %s: %w", checkpointID, checkpoint.ErrCorruptPayload)
	}

	content, err := json.MarshalIndent(preview, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}

	meta, err := s.archive.SaveArchive(ctx, output.SaveArchiveRequest{
		TaskID:      preview.Summary.TaskID,
		Content:     content,
		ContentType: "application/json",
		Metadata: map[string]string{
			"checkpoint_id": checkpointID,
			"step_id":       preview.Summary.StepID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("archive checkpoint: %w", err)
	}
	return meta, nil
}
