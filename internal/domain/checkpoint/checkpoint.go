package checkpoint

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/waverun-dev/waverun/internal/domain/execution"
	"github.com/waverun-dev/waverun/internal/domain/model"
	"github.com/waverun-dev/waverun/internal/domain/model/step"
)

// Checkpoint errors
var (
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrCorruptPayload     = errors.New("checkpoint payload is corrupt")
)

// GenerateCheckpointID generates a creation-ordered checkpoint ID.
// ULIDs sort lexicographically in creation order, which the append-only
// store relies on for listing.
func GenerateCheckpointID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// StepSnapshot is the serializable form of a step inside a checkpoint payload
type StepSnapshot struct {
	StepID      string    `json:"step_id"`
	TaskID      string    `json:"task_id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Attempt     int       `json:"attempt"`
	MaxAttempts int       `json:"max_attempts"`
	ErrorMsg    string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SnapshotStep captures a step as plain data
func SnapshotStep(s *step.Step) StepSnapshot {
	return StepSnapshot{
		StepID:      s.ID().String(),
		TaskID:      s.TaskID().String(),
		Name:        s.Name(),
		Type:        s.Type().String(),
		Status:      s.Status().String(),
		Attempt:     s.Attempt().Value(),
		MaxAttempts: s.MaxAttempts(),
		ErrorMsg:    s.ErrorMsg(),
		CreatedAt:   s.CreatedAt(),
		UpdatedAt:   s.UpdatedAt(),
	}
}

// RestoreStep rebuilds a step entity from its snapshot
func (s StepSnapshot) RestoreStep() (*step.Step, error) {
	stepID, err := model.NewStepIDFromString(s.StepID)
	if err != nil {
		return nil, fmt.Errorf("restore step: %w", err)
	}
	taskID, err := model.NewTaskIDFromString(s.TaskID)
	if err != nil {
		return nil, fmt.Errorf("restore step: %w", err)
	}
	attempt, err := model.NewAttemptFromInt(s.Attempt)
	if err != nil {
		return nil, fmt.Errorf("restore step: %w", err)
	}
	status := step.StepStatus(s.Status)
	if !status.IsValid() {
		return nil, fmt.Errorf("restore step: invalid status %q", s.Status)
	}
	stepType := step.StepType(s.Type)
	if !stepType.IsValid() {
		return nil, fmt.Errorf("restore step: invalid type %q", s.Type)
	}
	return step.ReconstructStep(
		stepID, taskID, s.Name, stepType, status,
		attempt, s.MaxAttempts, s.ErrorMsg, s.CreatedAt, s.UpdatedAt,
	), nil
}

// Payload pairs a step snapshot with its execution context snapshot
type Payload struct {
	Step    StepSnapshot               `json:"step"`
	Context *execution.ContextSnapshot `json:"context,omitempty"`
}

// StepCheckpoint is an immutable snapshot of a step and its context.
// Checkpoints are append-only: never mutated, only superseded by newer
// checkpoints for the same step.
type StepCheckpoint struct {
	id        string
	stepID    model.StepID
	taskID    model.TaskID
	payload   []byte
	label     string
	createdAt time.Time
}

// NewStepCheckpoint serializes a step/context pair into a checkpoint
func NewStepCheckpoint(s *step.Step, ctxSnap *execution.ContextSnapshot, label string) (*StepCheckpoint, error) {
	payload, err := json.Marshal(Payload{Step: SnapshotStep(s), Context: ctxSnap})
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint payload: %w", err)
	}
	return &StepCheckpoint{
		id:        GenerateCheckpointID(),
		stepID:    s.ID(),
		taskID:    s.TaskID(),
		payload:   payload,
		label:     label,
		createdAt: time.Now().UTC(),
	}, nil
}

// ReconstructStepCheckpoint rebuilds a checkpoint from stored data
func ReconstructStepCheckpoint(
	id string,
	stepID model.StepID,
	taskID model.TaskID,
	payload []byte,
	label string,
	createdAt time.Time,
) *StepCheckpoint {
	return &StepCheckpoint{
		id:        id,
		stepID:    stepID,
		taskID:    taskID,
		payload:   payload,
		label:     label,
		createdAt: createdAt,
	}
}

// ID returns the checkpoint ID
func (c *StepCheckpoint) ID() string { return c.id }

// StepID returns the snapshotted step's ID
func (c *StepCheckpoint) StepID() model.StepID { return c.stepID }

// TaskID returns the owning task's ID
func (c *StepCheckpoint) TaskID() model.TaskID { return c.taskID }

// Label returns the optional human label
func (c *StepCheckpoint) Label() string { return c.label }

// CreatedAt returns the creation time
func (c *StepCheckpoint) CreatedAt() time.Time { return c.createdAt }

// RawPayload returns a copy of the serialized payload
func (c *StepCheckpoint) RawPayload() []byte {
	out := make([]byte, len(c.payload))
	copy(out, c.payload)
	return out
}

// DecodePayload deserializes the payload. An unreadable payload yields
// ErrCorruptPayload so callers can mark the record readable-but-invalid
// instead of aborting a batch.
func (c *StepCheckpoint) DecodePayload() (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(c.payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	if p.Step.StepID == "" {
		return nil, fmt.Errorf("%w: missing step id", ErrCorruptPayload)
	}
	return &p, nil
}

// Summary is a lightweight view for browsing, without the payload
type Summary struct {
	CheckpointID string    `json:"checkpoint_id"`
	StepID       string    `json:"step_id"`
	TaskID       string    `json:"task_id"`
	Label        string    `json:"label,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Corrupt      bool      `json:"corrupt,omitempty"`
}

// Summarize returns the checkpoint's browsing summary
func (c *StepCheckpoint) Summarize() Summary {
	return Summary{
		CheckpointID: c.id,
		StepID:       c.stepID.String(),
		TaskID:       c.taskID.String(),
		Label:        c.label,
		CreatedAt:    c.createdAt,
	}
}
