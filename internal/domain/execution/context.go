package execution

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/waverun-dev/waverun/internal/domain/model"
)

// ExecutionContext is the mutable record owned by one state machine instance
// for its lifetime. Only transition execution mutates it.
type ExecutionContext struct {
	taskID      model.TaskID
	state       ExecutionState
	inputs      map[string]interface{}
	outputs     map[string]interface{}
	lastErr     error
	startedAt   time.Time
	completedAt *time.Time
}

// NewExecutionContext creates a context in the given initial state.
// Construction in a terminal state is a programmer error and is rejected.
func NewExecutionContext(taskID model.TaskID, initial ExecutionState) (*ExecutionContext, error) {
	if !initial.IsValid() {
		return nil, fmt.Errorf("invalid execution state: %s", initial)
	}
	if initial.IsTerminal() {
		return nil, fmt.Errorf("cannot construct a machine in terminal state %s", initial)
	}
	return &ExecutionContext{
		taskID:    taskID,
		state:     initial,
		inputs:    make(map[string]interface{}),
		outputs:   make(map[string]interface{}),
		startedAt: time.Now().UTC(),
	}, nil
}

// TaskID returns the owning task's ID
func (c *ExecutionContext) TaskID() string {
	return c.taskID.String()
}

// State returns the current execution state
func (c *ExecutionContext) State() ExecutionState {
	return c.state
}

// StateName returns the current state as a string (contract.EvalContext)
func (c *ExecutionContext) StateName() string {
	return c.state.String()
}

// SetInput stores an input value
func (c *ExecutionContext) SetInput(key string, value interface{}) {
	c.inputs[key] = value
}

// Input retrieves an input value
func (c *ExecutionContext) Input(key string) (interface{}, bool) {
	v, ok := c.inputs[key]
	return v, ok
}

// InputCount returns the number of input entries
func (c *ExecutionContext) InputCount() int {
	return len(c.inputs)
}

// SetOutput stores an output value
func (c *ExecutionContext) SetOutput(key string, value interface{}) {
	c.outputs[key] = value
}

// Output retrieves an output value
func (c *ExecutionContext) Output(key string) (interface{}, bool) {
	v, ok := c.outputs[key]
	return v, ok
}

// OutputCount returns the number of output entries
func (c *ExecutionContext) OutputCount() int {
	return len(c.outputs)
}

// LastError returns the most recent recorded error, or nil
func (c *ExecutionContext) LastError() error {
	return c.lastErr
}

// SetLastError records an error on the context; nil clears it
func (c *ExecutionContext) SetLastError(err error) {
	c.lastErr = err
}

// StartedAt returns when the context was created
func (c *ExecutionContext) StartedAt() time.Time {
	return c.startedAt
}

// CompletedAt returns when the machine reached a terminal state, or nil
func (c *ExecutionContext) CompletedAt() *time.Time {
	return c.completedAt
}

// MarkCompleted stamps the completion time once; later calls keep the first stamp
func (c *ExecutionContext) MarkCompleted() {
	if c.completedAt == nil {
		now := time.Now().UTC()
		c.completedAt = &now
	}
}

// setState is used only by transition execution
func (c *ExecutionContext) setState(s ExecutionState) {
	c.state = s
}

// ContextSnapshot is the serializable form of an ExecutionContext,
// used by checkpoints and reconstruction.
type ContextSnapshot struct {
	TaskID      string                 `json:"task_id"`
	State       string                 `json:"state"`
	Inputs      map[string]interface{} `json:"inputs,omitempty"`
	Outputs     map[string]interface{} `json:"outputs,omitempty"`
	LastError   string                 `json:"last_error,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// Snapshot captures the context as plain data. Maps are deep-copied through
// JSON so the snapshot stays immutable after the context moves on.
func (c *ExecutionContext) Snapshot() (*ContextSnapshot, error) {
	inputs, err := copyValueMap(c.inputs)
	if err != nil {
		return nil, fmt.Errorf("snapshot inputs: %w", err)
	}
	outputs, err := copyValueMap(c.outputs)
	if err != nil {
		return nil, fmt.Errorf("snapshot outputs: %w", err)
	}
	snap := &ContextSnapshot{
		TaskID:    c.taskID.String(),
		State:     c.state.String(),
		Inputs:    inputs,
		Outputs:   outputs,
		StartedAt: c.startedAt,
	}
	if c.lastErr != nil {
		snap.LastError = c.lastErr.Error()
	}
	if c.completedAt != nil {
		t := *c.completedAt
		snap.CompletedAt = &t
	}
	return snap, nil
}

// RestoreExecutionContext rebuilds a context from a snapshot.
// Unlike NewExecutionContext it accepts terminal states, because a snapshot
// may legitimately capture a finished machine.
func RestoreExecutionContext(snap *ContextSnapshot) (*ExecutionContext, error) {
	taskID, err := model.NewTaskIDFromString(snap.TaskID)
	if err != nil {
		return nil, fmt.Errorf("restore context: %w", err)
	}
	state, ok := ParseExecutionState(snap.State)
	if !ok {
		return nil, fmt.Errorf("restore context: invalid state %q", snap.State)
	}
	c := &ExecutionContext{
		taskID:    taskID,
		state:     state,
		inputs:    snap.Inputs,
		outputs:   snap.Outputs,
		startedAt: snap.StartedAt,
	}
	if c.inputs == nil {
		c.inputs = make(map[string]interface{})
	}
	if c.outputs == nil {
		c.outputs = make(map[string]interface{})
	}
	if snap.LastError != "" {
		c.lastErr = fmt.Errorf("%s", snap.LastError)
	}
	if snap.CompletedAt != nil {
		t := *snap.CompletedAt
		c.completedAt = &t
	}
	return c, nil
}

func copyValueMap(in map[string]interface{}) (map[string]interface{}, error) {
	if len(in) == 0 {
		return map[string]interface{}{}, nil
	}
	data, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(in))
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
