package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waverun-dev/waverun/internal/domain/checkpoint"
	"github.com/waverun-dev/waverun/internal/domain/execution"
	"github.com/waverun-dev/waverun/internal/domain/model"
	"github.com/waverun-dev/waverun/internal/domain/model/step"
)

func checkpointForStep(t *testing.T, mutate func(s *step.Step)) *checkpoint.StepCheckpoint {
	t.Helper()
	taskID := model.NewTaskID()
	s, err := step.NewStep(taskID, "implement", step.TypeImplement, 3)
	require.NoError(t, err)
	if mutate != nil {
		mutate(s)
	}

	ec, err := execution.NewExecutionContext(taskID, execution.StateExecuting)
	require.NoError(t, err)
	snap, err := ec.Snapshot()
	require.NoError(t, err)

	cp, err := checkpoint.NewStepCheckpoint(s, snap, "")
	require.NoError(t, err)
	return cp
}

func TestNullEngine_AlwaysResumesWithFixedConfidence(t *testing.T) {
	engine := NewNullResumeDecisionEngine()
	cp := checkpointForStep(t, nil)

	first := engine.AnalyzeCheckpoint(cp)
	second := engine.AnalyzeCheckpoint(cp)

	assert.Equal(t, ResumeActionResume, first.Action)
	assert.Equal(t, 0.7, first.Confidence)
	assert.Equal(t, cp.StepID().String(), first.FromStep)
	assert.NotEmpty(t, first.Alternatives)
	assert.Equal(t, first, second, "decision must be deterministic")
}

func TestHeuristicEngine_FailedWithAttemptsLeftRetries(t *testing.T) {
	engine := NewHeuristicResumeDecisionEngine()
	cp := checkpointForStep(t, func(s *step.Step) {
		require.NoError(t, s.UpdateStatus(step.StatusRunning))
		require.NoError(t, s.RecordFailure("verification failed"))
	})

	decision := engine.AnalyzeCheckpoint(cp)
	assert.Equal(t, ResumeActionRetry, decision.Action)
	assert.Contains(t, decision.Reason, "attempts remain")
}

func TestHeuristicEngine_ExhaustedAttemptsSkips(t *testing.T) {
	engine := NewHeuristicResumeDecisionEngine()
	cp := checkpointForStep(t, func(s *step.Step) {
		require.NoError(t, s.UpdateStatus(step.StatusRunning))
		require.NoError(t, s.RecordFailure("fail 1"))
		require.NoError(t, s.Requeue())
		require.NoError(t, s.UpdateStatus(step.StatusRunning))
		require.NoError(t, s.RecordFailure("fail 2"))
		require.NoError(t, s.Requeue())
		require.NoError(t, s.UpdateStatus(step.StatusRunning))
		require.NoError(t, s.RecordFailure("fail 3"))
	})

	decision := engine.AnalyzeCheckpoint(cp)
	assert.Equal(t, ResumeActionSkip, decision.Action)
	assert.Contains(t, decision.Reason, "exhausted")
}

func TestHeuristicEngine_RunningResumes(t *testing.T) {
	engine := NewHeuristicResumeDecisionEngine()
	cp := checkpointForStep(t, func(s *step.Step) {
		require.NoError(t, s.UpdateStatus(step.StatusRunning))
	})

	decision := engine.AnalyzeCheckpoint(cp)
	assert.Equal(t, ResumeActionResume, decision.Action)
}

func TestHeuristicEngine_CorruptPayloadAborts(t *testing.T) {
	engine := NewHeuristicResumeDecisionEngine()
	cp := checkpoint.ReconstructStepCheckpoint(
		checkpoint.GenerateCheckpointID(),
		model.NewStepID(),
		model.NewTaskID(),
		[]byte("garbage"),
		"",
		time.Now().UTC(),
	)

	decision := engine.AnalyzeCheckpoint(cp)
	assert.Equal(t, ResumeActionAbort, decision.Action)
	assert.Contains(t, decision.Reason, "unreadable")
}
