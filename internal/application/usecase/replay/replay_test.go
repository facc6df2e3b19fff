package replay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/waverun-dev/waverun/internal/application/port/output"
	"github.com/waverun-dev/waverun/internal/application/service"
	"github.com/waverun-dev/waverun/internal/application/usecase/run"
	"github.com/waverun-dev/waverun/internal/domain/checkpoint"
	"github.com/waverun-dev/waverun/internal/domain/execution"
	"github.com/waverun-dev/waverun/internal/domain/model"
	"github.com/waverun-dev/waverun/internal/domain/model/step"
	"github.com/waverun-dev/waverun/internal/eventing"
	"github.com/waverun-dev/waverun/internal/infrastructure/repository/mock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubAgent struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (a *stubAgent) Execute(_ context.Context, req output.AgentRequest) (*output.AgentResponse, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return &output.AgentResponse{Content: "redone: " + req.Prompt}, nil
}

func (a *stubAgent) HealthCheck(context.Context) error { return nil }

type replayFixture struct {
	uc     *UseCase
	cpRepo *mock.MockCheckpointRepository
	svc    *service.CheckpointService
	agent  *stubAgent
}

func newReplayFixture(t *testing.T, engine service.ResumeDecisionEngine) *replayFixture {
	t.Helper()
	rm, err := service.NewResourceManager(4, nil, service.DefaultResourceThresholds(), eventing.NoopSink{})
	require.NoError(t, err)

	cpRepo := mock.NewMockCheckpointRepository()
	svc := service.NewCheckpointService(cpRepo, nil, eventing.NoopSink{})
	agent := &stubAgent{}

	runner, err := run.NewRunner(rm, agent, svc, mock.NewMockJournalRepository(), eventing.NoopSink{})
	require.NoError(t, err)

	uc, err := NewUseCase(svc, engine, runner)
	require.NoError(t, err)
	return &replayFixture{uc: uc, cpRepo: cpRepo, svc: svc, agent: agent}
}

// midFlightCheckpoint snapshots a running step whose context sits in
// VERIFYING with output present and no error.
func midFlightCheckpoint(t *testing.T, f *replayFixture) (*checkpoint.StepCheckpoint, *step.Step) {
	t.Helper()
	taskID := model.NewTaskID()
	st, err := step.NewStep(taskID, "restore me", step.TypeImplement, 2)
	require.NoError(t, err)
	require.NoError(t, st.UpdateStatus(step.StatusRunning))

	ec, err := execution.NewExecutionContext(taskID, execution.StateVerifying)
	require.NoError(t, err)
	ec.SetInput("prompt", "carry on")
	ec.SetOutput("content", "partial work")

	cp, err := f.svc.CreateCheckpoint(context.Background(), st, ec, "executed")
	require.NoError(t, err)
	return cp, st
}

func TestReplay_ResumeCompletesFromCheckpoint(t *testing.T) {
	f := newReplayFixture(t, nil) // null engine: always resume
	cp, _ := midFlightCheckpoint(t, f)

	result, err := f.uc.ReplayFromStep(context.Background(), Options{CheckpointID: cp.ID()})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, service.ResumeActionResume, result.Decision.Action)
	assert.InDelta(t, 0.7, result.Decision.Confidence, 0.001)
	require.Len(t, result.ReplayedSteps, 1)
	require.NotNil(t, result.Run)
	assert.Equal(t, execution.StateCompleted, result.Run.FinalState)
	assert.Equal(t, 0, f.agent.calls, "resume from VERIFYING commits without re-executing")
}

func TestReplay_LatestCheckpointByTask(t *testing.T) {
	f := newReplayFixture(t, nil)
	cp, _ := midFlightCheckpoint(t, f)

	result, err := f.uc.ReplayFromStep(context.Background(), Options{TaskID: cp.TaskID().String()})
	require.NoError(t, err)
	assert.Equal(t, cp.ID(), result.CheckpointID)
}

func TestReplay_NoCheckpoint(t *testing.T) {
	f := newReplayFixture(t, nil)

	_, err := f.uc.ReplayFromStep(context.Background(), Options{TaskID: model.NewTaskID().String()})
	assert.ErrorIs(t, err, ErrNoCheckpoint)

	_, err = f.uc.ReplayFromStep(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

// failedStepCheckpoint snapshots a failed step with attempts remaining.
func failedStepCheckpoint(t *testing.T, f *replayFixture, maxAttempts int) *checkpoint.StepCheckpoint {
	t.Helper()
	taskID := model.NewTaskID()
	st, err := step.NewStep(taskID, "flaky step", step.TypeImplement, maxAttempts)
	require.NoError(t, err)
	require.NoError(t, st.UpdateStatus(step.StatusRunning))
	require.NoError(t, st.RecordFailure("agent backend unavailable"))

	ec, err := execution.NewExecutionContext(taskID, execution.StateVerifying)
	require.NoError(t, err)
	ec.SetInput("prompt", "try again")
	ec.SetOutput("error-report", "agent backend unavailable")
	ec.SetLastError(errors.New("agent backend unavailable"))

	cp, err := f.svc.CreateCheckpoint(context.Background(), st, ec, "executed")
	require.NoError(t, err)
	return cp
}

func TestReplay_HeuristicRetriesFailedStep(t *testing.T) {
	f := newReplayFixture(t, service.NewHeuristicResumeDecisionEngine())
	cp := failedStepCheckpoint(t, f, 2)

	result, err := f.uc.ReplayFromStep(context.Background(), Options{CheckpointID: cp.ID()})
	require.NoError(t, err)

	assert.Equal(t, service.ResumeActionRetry, result.Decision.Action)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
	require.Len(t, result.ReplayedSteps, 1)
	assert.Equal(t, 1, f.agent.calls, "retry reruns the agent")
}

func TestReplay_HeuristicSkipsExhaustedStep(t *testing.T) {
	f := newReplayFixture(t, service.NewHeuristicResumeDecisionEngine())
	cp := failedStepCheckpoint(t, f, 1)

	result, err := f.uc.ReplayFromStep(context.Background(), Options{CheckpointID: cp.ID()})
	require.NoError(t, err)

	assert.Equal(t, service.ResumeActionSkip, result.Decision.Action)
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Len(t, result.SkippedSteps, 1)
	assert.Empty(t, result.ReplayedSteps)
	assert.Equal(t, 0, f.agent.calls)
}

func TestReplay_SkipFailedOption(t *testing.T) {
	f := newReplayFixture(t, nil) // null engine resumes, option overrides
	cp := failedStepCheckpoint(t, f, 2)

	result, err := f.uc.ReplayFromStep(context.Background(), Options{
		CheckpointID: cp.ID(),
		SkipFailed:   true,
	})
	require.NoError(t, err)

	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Len(t, result.SkippedSteps, 1)
	assert.Equal(t, 0, f.agent.calls)
}

func TestReplay_CorruptPayloadAborts(t *testing.T) {
	f := newReplayFixture(t, nil)

	cp := checkpoint.ReconstructStepCheckpoint(
		checkpoint.GenerateCheckpointID(),
		model.NewStepID(),
		model.NewTaskID(),
		[]byte("{not json"),
		"corrupted",
		time.Now().UTC(),
	)
	require.NoError(t, f.cpRepo.Save(context.Background(), cp))

	result, err := f.uc.ReplayFromStep(context.Background(), Options{CheckpointID: cp.ID()})
	require.NoError(t, err, "corruption is reported, not raised")
	assert.Equal(t, OutcomeAborted, result.Outcome)
	assert.Empty(t, result.ReplayedSteps)
}

func TestReplay_TerminalCheckpointHasNothingToDrive(t *testing.T) {
	f := newReplayFixture(t, nil)

	taskID := model.NewTaskID()
	st, err := step.NewStep(taskID, "done step", step.TypeImplement, 1)
	require.NoError(t, err)
	require.NoError(t, st.UpdateStatus(step.StatusRunning))
	require.NoError(t, st.UpdateStatus(step.StatusSucceeded))

	ec, err := execution.NewExecutionContext(taskID, execution.StateCommitting)
	require.NoError(t, err)
	ec.SetInput("prompt", "p")
	ec.SetOutput("content", "c")
	snap, err := ec.Snapshot()
	require.NoError(t, err)
	snap.State = execution.StateCompleted.String()

	cp, err := checkpoint.NewStepCheckpoint(st, snap, "final")
	require.NoError(t, err)
	require.NoError(t, f.cpRepo.Save(context.Background(), cp))

	result, err := f.uc.ReplayFromStep(context.Background(), Options{CheckpointID: cp.ID()})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Nil(t, result.Run)
}
