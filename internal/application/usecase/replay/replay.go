package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/waverun-dev/waverun/internal/app"
	"github.com/waverun-dev/waverun/internal/application/service"
	"github.com/waverun-dev/waverun/internal/application/usecase/run"
	"github.com/waverun-dev/waverun/internal/domain/checkpoint"
	"github.com/waverun-dev/waverun/internal/domain/execution"
	"github.com/waverun-dev/waverun/internal/domain/model"
	"github.com/waverun-dev/waverun/internal/domain/model/step"
)

// Replay errors
var (
	ErrNoCheckpoint = errors.New("no checkpoint to replay from")
)

// Outcome classifies how a replay ended
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeAborted   Outcome = "aborted"
)

// Options selects the checkpoint and tunes replay behavior.
// CheckpointID wins over TaskID; with only TaskID the most recent checkpoint
// of that task is used.
type Options struct {
	CheckpointID string
	TaskID       string
	SkipFailed   bool
	Timeout      time.Duration
}

// Result reports what the replay did
type Result struct {
	CheckpointID  string                 `json:"checkpoint_id"`
	Decision      service.ResumeDecision `json:"decision"`
	ReplayedSteps []string               `json:"replayed_steps,omitempty"`
	SkippedSteps  []string               `json:"skipped_steps,omitempty"`
	Outcome       Outcome                `json:"outcome"`
	Run           *run.RunResult         `json:"run,omitempty"`
}

// UseCase rehydrates a step from a checkpoint and drives it to a terminal
// state, consulting the resume decision engine first.
type UseCase struct {
	checkpoints *service.CheckpointService
	engine      service.ResumeDecisionEngine
	runner      *run.Runner
}

// NewUseCase creates a replay use case. A nil engine falls back to the null
// engine, which always resumes.
func NewUseCase(checkpoints *service.CheckpointService, engine service.ResumeDecisionEngine, runner *run.Runner) (*UseCase, error) {
	if checkpoints == nil {
		return nil, errors.New("checkpoint service is required")
	}
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	if engine == nil {
		engine = service.NewNullResumeDecisionEngine()
	}
	return &UseCase{checkpoints: checkpoints, engine: engine, runner: runner}, nil
}

// ReplayFromStep resumes work from a checkpoint. Corrupt payloads abort the
// replay of that record only; they are reported, never panicked on.
func (u *UseCase) ReplayFromStep(ctx context.Context, opts Options) (*Result, error) {
	cp, err := u.selectCheckpoint(ctx, opts)
	if err != nil {
		return nil, err
	}

	result := &Result{CheckpointID: cp.ID()}
	result.Decision = u.engine.AnalyzeCheckpoint(cp)

	payload, err := cp.DecodePayload()
	if err != nil {
		app.GetLogger().Warn("checkpoint %s payload unreadable: %v", cp.ID(), err)
		result.Outcome = OutcomeAborted
		return result, nil
	}

	switch result.Decision.Action {
	case service.ResumeActionAbort:
		result.Outcome = OutcomeAborted
		return result, nil

	case service.ResumeActionSkip:
		result.SkippedSteps = append(result.SkippedSteps, payload.Step.StepID)
		result.Outcome = OutcomeSkipped
		return result, nil

	case service.ResumeActionRetry:
		return u.retry(ctx, payload, opts, result)

	default: // resume
		return u.resume(ctx, payload, opts, result)
	}
}

func (u *UseCase) selectCheckpoint(ctx context.Context, opts Options) (*checkpoint.StepCheckpoint, error) {
	if opts.CheckpointID != "" {
		return u.checkpoints.LoadStepCheckpoint(ctx, opts.CheckpointID)
	}
	if opts.TaskID == "" {
		return nil, ErrNoCheckpoint
	}

	taskID, err := model.NewTaskIDFromString(opts.TaskID)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	summaries, err := u.checkpoints.ListStepCheckpoints(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, ErrNoCheckpoint
	}
	return u.checkpoints.LoadStepCheckpoint(ctx, summaries[len(summaries)-1].CheckpointID)
}

// resume restores the saved step and context and continues from the saved
// state. A checkpoint whose context already reached a terminal state has
// nothing left to drive.
func (u *UseCase) resume(ctx context.Context, payload *checkpoint.Payload, opts Options, result *Result) (*Result, error) {
	st, err := payload.Step.RestoreStep()
	if err != nil {
		result.Outcome = OutcomeAborted
		return result, nil
	}

	if opts.SkipFailed && st.Status() == step.StatusFailed {
		result.SkippedSteps = append(result.SkippedSteps, payload.Step.StepID)
		result.Outcome = OutcomeSkipped
		return result, nil
	}

	if payload.Context == nil {
		result.Outcome = OutcomeAborted
		return result, nil
	}
	ec, err := execution.RestoreExecutionContext(payload.Context)
	if err != nil {
		result.Outcome = OutcomeAborted
		return result, nil
	}

	if ec.State().IsTerminal() {
		result.Outcome = outcomeForState(ec.State())
		return result, nil
	}

	runResult, err := u.runner.Drive(ctx, st, ec, opts.Timeout, nil)
	if err != nil {
		return nil, err
	}
	result.ReplayedSteps = append(result.ReplayedSteps, payload.Step.StepID)
	result.Run = runResult
	result.Outcome = outcomeForState(runResult.FinalState)
	return result, nil
}

// retry rebuilds a fresh execution context from the checkpoint's inputs and
// reruns the step lifecycle with the failed attempt requeued.
func (u *UseCase) retry(ctx context.Context, payload *checkpoint.Payload, opts Options, result *Result) (*Result, error) {
	st, err := payload.Step.RestoreStep()
	if err != nil {
		result.Outcome = OutcomeAborted
		return result, nil
	}
	if st.Status() == step.StatusFailed {
		if err := st.Requeue(); err != nil {
			result.Outcome = OutcomeAborted
			return result, nil
		}
	}

	taskID, err := model.NewTaskIDFromString(payload.Step.TaskID)
	if err != nil {
		result.Outcome = OutcomeAborted
		return result, nil
	}
	ec, err := execution.NewExecutionContext(taskID, execution.StateIdle)
	if err != nil {
		return nil, err
	}
	if payload.Context != nil {
		for k, v := range payload.Context.Inputs {
			ec.SetInput(k, v)
		}
	}

	runResult, err := u.runner.Drive(ctx, st, ec, opts.Timeout, nil)
	if err != nil {
		return nil, err
	}
	result.ReplayedSteps = append(result.ReplayedSteps, payload.Step.StepID)
	result.Run = runResult
	result.Outcome = outcomeForState(runResult.FinalState)
	return result, nil
}

func outcomeForState(s execution.ExecutionState) Outcome {
	if s == execution.StateCompleted {
		return OutcomeCompleted
	}
	return OutcomeFailed
}
