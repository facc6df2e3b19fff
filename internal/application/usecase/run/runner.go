package run

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/waverun-dev/waverun/internal/app"
	"github.com/waverun-dev/waverun/internal/application/port/output"
	"github.com/waverun-dev/waverun/internal/application/service"
	"github.com/waverun-dev/waverun/internal/domain/execution"
	"github.com/waverun-dev/waverun/internal/domain/model"
	"github.com/waverun-dev/waverun/internal/domain/model/contract"
	"github.com/waverun-dev/waverun/internal/domain/model/step"
	"github.com/waverun-dev/waverun/internal/domain/repository"
	"github.com/waverun-dev/waverun/internal/eventing"
)

// Runner errors
var (
	ErrAdmissionDenied = errors.New("resource manager denied agent admission")
	ErrStalledRun      = errors.New("run stalled without reaching a terminal state")
)

// RunInput describes one task execution request. Contract is optional; when
// set, its conditions gate the lifecycle's phase boundaries.
type RunInput struct {
	TaskID      string
	Title       string
	Prompt      string
	MaxAttempts int
	Timeout     time.Duration
	Context     map[string]string
	Contract    *contract.AgentContract
}

// RunResult is the outcome of driving a task to a terminal state
type RunResult struct {
	TaskID        string                        `json:"task_id"`
	StepID        string                        `json:"step_id"`
	FinalState    execution.ExecutionState      `json:"final_state"`
	Attempts      int                           `json:"attempts"`
	CheckpointIDs []string                      `json:"checkpoint_ids,omitempty"`
	Transitions   []*execution.TransitionResult `json:"transitions"`
}

// Runner drives a single task through the standard execution lifecycle,
// journaling every transition and checkpointing at suspension points.
type Runner struct {
	resources   *service.ResourceManager
	agents      output.AgentGateway
	checkpoints *service.CheckpointService
	journal     repository.JournalRepository
	events      eventing.Sink
}

// NewRunner creates a task runner. checkpoints and journal may be nil when
// the caller does not need persistence.
func NewRunner(
	resources *service.ResourceManager,
	agents output.AgentGateway,
	checkpoints *service.CheckpointService,
	journal repository.JournalRepository,
	events eventing.Sink,
) (*Runner, error) {
	if resources == nil {
		return nil, errors.New("resource manager is required")
	}
	if agents == nil {
		return nil, errors.New("agent gateway is required")
	}
	if events == nil {
		events = eventing.NoopSink{}
	}
	return &Runner{
		resources:   resources,
		agents:      agents,
		checkpoints: checkpoints,
		journal:     journal,
		events:      events,
	}, nil
}

// Run executes one task from scratch. The admission check happens before
// anything is dispatched; a denial is a refusal the caller should back off
// from, not a crash.
func (r *Runner) Run(ctx context.Context, input RunInput) (*RunResult, error) {
	if input.Prompt == "" {
		return nil, errors.New("prompt is required")
	}
	if input.MaxAttempts < 1 {
		input.MaxAttempts = 1
	}

	taskID, err := model.NewTaskIDFromString(input.TaskID)
	if err != nil {
		taskID = model.NewTaskID()
	}

	ec, err := execution.NewExecutionContext(taskID, execution.StateIdle)
	if err != nil {
		return nil, err
	}
	ec.SetInput("prompt", input.Prompt)
	for k, v := range input.Context {
		ec.SetInput(k, v)
	}

	title := input.Title
	if title == "" {
		title = taskID.String()
	}
	st, err := step.NewStep(taskID, title, step.TypeImplement, input.MaxAttempts)
	if err != nil {
		return nil, err
	}

	if !r.resources.CanSpawnAgent(ctx) {
		return nil, fmt.Errorf("task %s: %w (active=%d max=%d)",
			taskID.String(), ErrAdmissionDenied, r.resources.ActiveAgentCount(), r.resources.MaxConcurrent())
	}
	agentID := "runner:" + taskID.String()
	r.resources.RegisterAgent(agentID)
	defer r.resources.UnregisterAgent(agentID)

	return r.Drive(ctx, st, ec, input.Timeout, input.Contract)
}

// Drive advances a step and its context until the context reaches a terminal
// state. It is also the replay entry point for rehydrated steps; the caller
// owns admission in that case. A non-nil gate attaches contract conditions to
// the machine's phase boundaries; fail edges stay ungated so a failing run
// can always reach FAILED.
func (r *Runner) Drive(ctx context.Context, st *step.Step, ec *execution.ExecutionContext, timeout time.Duration, gate *contract.AgentContract) (*RunResult, error) {
	machine, err := execution.NewStandardMachine()
	if err != nil {
		return nil, err
	}
	if gate != nil {
		if err := machine.AttachContract(gate); err != nil {
			return nil, err
		}
	}

	result := &RunResult{
		TaskID: st.TaskID().String(),
		StepID: st.ID().String(),
	}

	apply := func(transitionID string) error {
		if gate != nil && !strings.HasPrefix(transitionID, "fail-from-") {
			gated := transitionID + ":" + gate.ID()
			if _, lookupErr := machine.Transition(gated); lookupErr == nil {
				transitionID = gated
			}
		}
		tr, err := machine.ExecuteByID(ctx, transitionID, ec)
		if err != nil {
			return err
		}
		result.Transitions = append(result.Transitions, tr)
		r.recordJournal(ctx, st, tr)
		if !tr.Success {
			return fmt.Errorf("transition %s: %w", transitionID, tr.Err)
		}
		_ = r.events.Publish(ctx, eventing.NewEvent(eventing.EventStateChanged).
			WithTask(result.TaskID).
			WithStep(result.StepID).
			WithField("from", tr.From.String()).
			WithField("to", tr.To.String()))
		return nil
	}

	// Each state is visited a bounded number of times; the retry edge is the
	// only cycle and it burns an attempt per pass.
	maxIterations := st.MaxAttempts()*len(execution.NonTerminalStates()) + len(execution.NonTerminalStates())
	for i := 0; i < maxIterations; i++ {
		if ec.State().IsTerminal() {
			result.FinalState = ec.State()
			result.Attempts = st.Attempt().Value()
			return result, nil
		}

		switch ec.State() {
		case execution.StateIdle:
			if err := apply(execution.TransitionStartPlanning); err != nil {
				return nil, err
			}
			r.checkpoint(ctx, st, ec, "planned", result)

		case execution.StatePlanning:
			if st.Status() == step.StatusPending {
				if err := st.UpdateStatus(step.StatusRunning); err != nil {
					return nil, err
				}
			}
			if err := apply(execution.TransitionStartExecution); err != nil {
				return nil, err
			}

		case execution.StateExecuting:
			r.executeAgent(ctx, ec, timeout)
			if err := apply(execution.TransitionStartVerify); err != nil {
				return nil, err
			}
			r.checkpoint(ctx, st, ec, "executed", result)

		case execution.StateVerifying:
			if err := r.settleVerification(ctx, st, ec, apply); err != nil {
				return nil, err
			}

		case execution.StateCommitting:
			if err := st.UpdateStatus(step.StatusSucceeded); err != nil {
				return nil, err
			}
			if err := apply(execution.TransitionComplete); err != nil {
				return nil, err
			}
			r.checkpoint(ctx, st, ec, "completed", result)
		}
	}

	return nil, fmt.Errorf("task %s in state %s: %w", result.TaskID, ec.State(), ErrStalledRun)
}

// executeAgent runs one agent attempt, recording output or failure on the
// context. A gateway failure leaves an error report output so verification
// can still be entered and decide on retry.
func (r *Runner) executeAgent(ctx context.Context, ec *execution.ExecutionContext, timeout time.Duration) {
	prompt := ""
	if v, ok := ec.Input("prompt"); ok {
		if s, isStr := v.(string); isStr {
			prompt = s
		}
	}

	resp, err := r.agents.Execute(ctx, output.AgentRequest{
		Prompt:  prompt,
		Role:    "implementer",
		Timeout: timeout,
	})
	if err != nil {
		app.GetLogger().Warn("agent execution failed for task %s: %v", ec.TaskID(), err)
		ec.SetLastError(err)
		ec.SetOutput("error-report", err.Error())
		return
	}

	ec.SetLastError(nil)
	ec.SetOutput("content", resp.Content)
	if resp.AgentType != "" {
		ec.SetOutput("agent-type", resp.AgentType)
	}
	if resp.TokensUsed > 0 {
		ec.SetOutput("tokens-used", resp.TokensUsed)
	}
}

// settleVerification decides between commit, retry and failure while the
// context sits in VERIFYING.
func (r *Runner) settleVerification(ctx context.Context, st *step.Step, ec *execution.ExecutionContext, apply func(string) error) error {
	lastErr := ec.LastError()
	if lastErr == nil {
		return apply(execution.TransitionStartCommit)
	}

	if st.HasAttemptsLeft() {
		if err := st.RecordFailure(lastErr.Error()); err != nil {
			return err
		}
		if err := st.Requeue(); err != nil {
			return err
		}
		if err := st.UpdateStatus(step.StatusRunning); err != nil {
			return err
		}
		ec.SetLastError(nil)
		return apply(execution.TransitionRetryExecution)
	}

	if err := st.RecordFailure(lastErr.Error()); err != nil {
		return err
	}
	return apply(execution.FailTransitionID(execution.StateVerifying))
}

func (r *Runner) checkpoint(ctx context.Context, st *step.Step, ec *execution.ExecutionContext, label string, result *RunResult) {
	if r.checkpoints == nil {
		return
	}
	cp, err := r.checkpoints.CreateCheckpoint(ctx, st, ec, label)
	if err != nil {
		app.GetLogger().Warn("checkpoint %s failed for task %s: %v", label, result.TaskID, err)
		return
	}
	result.CheckpointIDs = append(result.CheckpointIDs, cp.ID())
}

func (r *Runner) recordJournal(ctx context.Context, st *step.Step, tr *execution.TransitionResult) {
	if r.journal == nil {
		return
	}
	record := &repository.JournalRecord{
		Timestamp:    tr.StartedAt.Format(time.RFC3339Nano),
		TaskID:       st.TaskID().String(),
		StepID:       st.ID().String(),
		TransitionID: tr.TransitionID,
		FromState:    tr.From.String(),
		ToState:      tr.To.String(),
		Success:      tr.Success,
		Attempt:      st.Attempt().Value(),
		ElapsedMs:    tr.Duration.Milliseconds(),
		Error:        tr.ErrMessage,
		RolledBack:   tr.RolledBack,
	}
	if err := r.journal.Append(ctx, record); err != nil {
		app.GetLogger().Warn("journal append failed for task %s: %v", record.TaskID, err)
	}
}
