package checkpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waverun-dev/waverun/internal/domain/execution"
	"github.com/waverun-dev/waverun/internal/domain/model"
	"github.com/waverun-dev/waverun/internal/domain/model/step"
)

func TestStepCheckpoint_RoundTrip(t *testing.T) {
	taskID := model.NewTaskID()
	s, err := step.NewStep(taskID, "implement", step.TypeImplement, 3)
	require.NoError(t, err)

	ec, err := execution.NewExecutionContext(taskID, execution.StateExecuting)
	require.NoError(t, err)
	ec.SetInput("prompt", "fix the bug")
	snap, err := ec.Snapshot()
	require.NoError(t, err)

	cp, err := NewStepCheckpoint(s, snap, "before-verify")
	require.NoError(t, err)

	assert.NotEmpty(t, cp.ID())
	assert.Equal(t, s.ID(), cp.StepID())
	assert.Equal(t, "before-verify", cp.Label())

	payload, err := cp.DecodePayload()
	require.NoError(t, err)
	assert.Equal(t, s.ID().String(), payload.Step.StepID)
	assert.Equal(t, "EXECUTING", payload.Context.State)

	restored, err := payload.Step.RestoreStep()
	require.NoError(t, err)
	assert.Equal(t, s.ID().String(), restored.ID().String())
	assert.Equal(t, s.Status(), restored.Status())
	assert.Equal(t, s.Attempt().Value(), restored.Attempt().Value())
}

func TestStepCheckpoint_CorruptPayload(t *testing.T) {
	cp := ReconstructStepCheckpoint(
		GenerateCheckpointID(),
		model.NewStepID(),
		model.NewTaskID(),
		[]byte("{not json"),
		"",
		time.Now().UTC(),
	)

	_, err := cp.DecodePayload()
	assert.ErrorIs(t, err, ErrCorruptPayload)
}

func TestGenerateCheckpointID_CreationOrdered(t *testing.T) {
	a := GenerateCheckpointID()
	b := GenerateCheckpointID()
	assert.Less(t, a, b, "ULIDs must sort in creation order")
}
