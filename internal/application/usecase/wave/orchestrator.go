package wave

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/waverun-dev/waverun/internal/app"
	"github.com/waverun-dev/waverun/internal/application/port/output"
	"github.com/waverun-dev/waverun/internal/application/service"
	"github.com/waverun-dev/waverun/internal/domain/model"
	"github.com/waverun-dev/waverun/internal/domain/model/step"
	wavemodel "github.com/waverun-dev/waverun/internal/domain/model/wave"
	"github.com/waverun-dev/waverun/internal/domain/repository"
	"github.com/waverun-dev/waverun/internal/eventing"
)

// Orchestrator errors
var (
	ErrNoTasks         = errors.New("wave has no tasks")
	ErrAdmissionDenied = errors.New("resource manager denied agent admission")
)

// Role names in dispatch order. Simple and medium tasks take the first two,
// complex tasks all three.
var roleNames = []string{"implementer", "reviewer", "architect"}

var roleStepTypes = map[string]step.StepType{
	"implementer": step.TypeImplement,
	"reviewer":    step.TypeReview,
	"architect":   step.TypePlan,
}

// WaveTask is one unit of work fanned out across agent roles
type WaveTask struct {
	ID         string
	Title      string
	Prompt     string
	Complexity model.Complexity
	Timeout    time.Duration
	Context    map[string]string
}

// RoleFinding is the structured output of one successful role
type RoleFinding struct {
	TaskID     string        `json:"task_id"`
	Role       string        `json:"role"`
	AgentID    string        `json:"agent_id"`
	Summary    string        `json:"summary"`
	Evidence   []string      `json:"evidence,omitempty"`
	AgentType  string        `json:"agent_type,omitempty"`
	TokensUsed int           `json:"tokens_used,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// RoleFailure records a role that did not produce a finding
type RoleFailure struct {
	TaskID  string `json:"task_id"`
	Role    string `json:"role"`
	AgentID string `json:"agent_id"`
	Error   string `json:"error"`
}

// ConsolidatedFindings merges per-role outputs into one record.
// Evidence is concatenated from successful roles only, in dispatch order.
type ConsolidatedFindings struct {
	WaveID    string        `json:"wave_id"`
	Findings  []RoleFinding `json:"findings"`
	Failures  []RoleFailure `json:"failures,omitempty"`
	Evidence  []string      `json:"evidence,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Orchestrator fans one wave of tasks out across agent roles, bounded by
// the resource manager, and consolidates what comes back.
type Orchestrator struct {
	resources *service.ResourceManager
	agents    output.AgentGateway
	waveRepo  repository.WaveRepository
	events    eventing.Sink
}

// NewOrchestrator creates a wave orchestrator. waveRepo may be nil when the
// caller does not need wave records persisted.
func NewOrchestrator(
	resources *service.ResourceManager,
	agents output.AgentGateway,
	waveRepo repository.WaveRepository,
	events eventing.Sink,
) (*Orchestrator, error) {
	if resources == nil {
		return nil, errors.New("resource manager is required")
	}
	if agents == nil {
		return nil, errors.New("agent gateway is required")
	}
	if events == nil {
		events = eventing.NoopSink{}
	}
	return &Orchestrator{
		resources: resources,
		agents:    agents,
		waveRepo:  waveRepo,
		events:    events,
	}, nil
}

// roleDispatch is one agent dispatch planned for the wave
type roleDispatch struct {
	task    WaveTask
	role    string
	agentID string
	stepID  model.StepID
}

// ExecuteWave dispatches every role of every task concurrently and waits for
// all of them to settle. Admission is checked once before any dispatch; a
// denial fails the whole wave without spawning anything. A single role
// failing is logged and excluded from consolidation; it does not cancel
// sibling roles. Every registered agent ID is unregistered before return.
func (o *Orchestrator) ExecuteWave(ctx context.Context, name string, tasks []WaveTask) (*ConsolidatedFindings, error) {
	if len(tasks) == 0 {
		return nil, ErrNoTasks
	}

	if !o.resources.CanSpawnAgent(ctx) {
		return nil, fmt.Errorf("wave %s: %w (active=%d max=%d)",
			name, ErrAdmissionDenied, o.resources.ActiveAgentCount(), o.resources.MaxConcurrent())
	}

	w, err := wavemodel.NewWave(name, o.resources.MaxConcurrent(), nil)
	if err != nil {
		return nil, fmt.Errorf("create wave: %w", err)
	}

	dispatches, err := o.planDispatches(w, tasks)
	if err != nil {
		return nil, err
	}

	// Register every agent before any dispatch and guarantee release on
	// every exit path.
	for _, d := range dispatches {
		o.resources.RegisterAgent(d.agentID)
	}
	defer func() {
		for _, d := range dispatches {
			o.resources.UnregisterAgent(d.agentID)
		}
	}()

	startedAt := time.Now().UTC()
	_ = o.events.Publish(ctx, eventing.NewEvent(eventing.EventWaveStarted).
		WithWave(w.ID().String()).
		WithField("tasks", fmt.Sprintf("%d", len(tasks))).
		WithField("roles", fmt.Sprintf("%d", len(dispatches))))

	findings, failures := o.dispatchAll(ctx, w, dispatches)

	consolidated := consolidate(w.ID().String(), dispatches, findings, failures)
	consolidated.StartedAt = startedAt
	consolidated.Duration = time.Since(startedAt)

	if o.waveRepo != nil {
		if err := o.waveRepo.Save(ctx, w); err != nil {
			app.GetLogger().Warn("failed to save wave %s: %v", w.ID().String(), err)
		}
	}

	_ = o.events.Publish(ctx, eventing.NewEvent(eventing.EventWaveSettled).
		WithWave(w.ID().String()).
		WithField("findings", fmt.Sprintf("%d", len(consolidated.Findings))).
		WithField("failures", fmt.Sprintf("%d", len(consolidated.Failures))))

	return consolidated, nil
}

func (o *Orchestrator) planDispatches(w *wavemodel.Wave, tasks []WaveTask) ([]roleDispatch, error) {
	var dispatches []roleDispatch
	for _, task := range tasks {
		taskID, err := model.NewTaskIDFromString(task.ID)
		if err != nil {
			taskID = model.NewTaskID()
		}
		count := task.Complexity.RoleCount()
		for _, role := range roleNames[:count] {
			s, err := step.NewStep(taskID, fmt.Sprintf("%s/%s", task.Title, role), roleStepTypes[role], 1)
			if err != nil {
				return nil, fmt.Errorf("plan step for task %s role %s: %w", task.ID, role, err)
			}
			if err := w.AddStep(s); err != nil {
				return nil, fmt.Errorf("add step to wave: %w", err)
			}
			dispatches = append(dispatches, roleDispatch{
				task:    task,
				role:    role,
				agentID: fmt.Sprintf("%s:%s", task.ID, role),
				stepID:  s.ID(),
			})
		}
	}
	return dispatches, nil
}

// dispatchAll runs every role concurrently and waits for all to settle.
// There is no sibling cancellation; each slot is either a finding or a failure.
func (o *Orchestrator) dispatchAll(ctx context.Context, w *wavemodel.Wave, dispatches []roleDispatch) ([]*RoleFinding, []*RoleFailure) {
	findings := make([]*RoleFinding, len(dispatches))
	failures := make([]*RoleFailure, len(dispatches))

	var wg sync.WaitGroup
	for i, d := range dispatches {
		wg.Add(1)
		go func(i int, d roleDispatch) {
			defer wg.Done()
			finding, err := o.runRole(ctx, d)
			if err != nil {
				app.GetLogger().Warn("wave role %s failed for task %s: %v", d.role, d.task.ID, err)
				failures[i] = &RoleFailure{
					TaskID:  d.task.ID,
					Role:    d.role,
					AgentID: d.agentID,
					Error:   err.Error(),
				}
				return
			}
			findings[i] = finding
		}(i, d)
	}
	wg.Wait()

	// Record outcomes on the wave after all roles settled; the wave closes
	// itself once every step is terminal.
	for i, d := range dispatches {
		status := step.StatusSucceeded
		if failures[i] != nil {
			status = step.StatusFailed
		}
		if err := w.ObserveStep(d.stepID, status); err != nil {
			app.GetLogger().Warn("failed to record step %s outcome: %v", d.stepID.String(), err)
		}
	}
	return findings, failures
}

// runRole executes one agent dispatch. A panic in the gateway is captured as
// a role failure so one misbehaving provider cannot take the wave down.
func (o *Orchestrator) runRole(ctx context.Context, d roleDispatch) (finding *RoleFinding, err error) {
	defer func() {
		if r := recover(); r != nil {
			finding = nil
			err = fmt.Errorf("agent panicked: %v", r)
		}
	}()

	resp, err := o.agents.Execute(ctx, output.AgentRequest{
		Prompt:  d.task.Prompt,
		Role:    d.role,
		Timeout: d.task.Timeout,
		Context: d.task.Context,
	})
	if err != nil {
		return nil, err
	}

	summary, evidence := parseRoleReport(resp.Content)
	return &RoleFinding{
		TaskID:     d.task.ID,
		Role:       d.role,
		AgentID:    d.agentID,
		Summary:    summary,
		Evidence:   evidence,
		AgentType:  resp.AgentType,
		TokensUsed: resp.TokensUsed,
		Duration:   resp.Duration,
	}, nil
}

// roleReport is the structured shape agents are prompted to emit
type roleReport struct {
	Summary  string   `json:"summary"`
	Evidence []string `json:"evidence"`
}

// parseRoleReport decodes structured agent output. Free-form output is kept
// as the summary with no evidence rather than rejected.
func parseRoleReport(content string) (string, []string) {
	var report roleReport
	if err := json.Unmarshal([]byte(content), &report); err == nil && report.Summary != "" {
		return report.Summary, report.Evidence
	}
	return content, nil
}

func consolidate(waveID string, dispatches []roleDispatch, findings []*RoleFinding, failures []*RoleFailure) *ConsolidatedFindings {
	out := &ConsolidatedFindings{
		WaveID:   waveID,
		Findings: []RoleFinding{},
	}
	for i := range dispatches {
		if findings[i] != nil {
			out.Findings = append(out.Findings, *findings[i])
			out.Evidence = append(out.Evidence, findings[i].Evidence...)
		}
		if failures[i] != nil {
			out.Failures = append(out.Failures, *failures[i])
		}
	}
	return out
}
