package execution

// ExecutionState represents the lifecycle state of one unit of agent work
type ExecutionState string

const (
	StateIdle       ExecutionState = "IDLE"
	StatePlanning   ExecutionState = "PLANNING"
	StateExecuting  ExecutionState = "EXECUTING"
	StateVerifying  ExecutionState = "VERIFYING"
	StateCommitting ExecutionState = "COMMITTING"
	StateCompleted  ExecutionState = "COMPLETED"
	StateFailed     ExecutionState = "FAILED"
)

// String returns the string representation
func (s ExecutionState) String() string {
	return string(s)
}

// IsValid validates the execution state
func (s ExecutionState) IsValid() bool {
	switch s {
	case StateIdle, StatePlanning, StateExecuting, StateVerifying,
		StateCommitting, StateCompleted, StateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the state ends the machine's lifecycle
func (s ExecutionState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// validNextStates defines the allowed forward edges of the machine.
// VERIFYING -> EXECUTING is the only cycle (retry after failed verification);
// every non-terminal state may also fall through to FAILED.
var validNextStates = map[ExecutionState][]ExecutionState{
	StateIdle:       {StatePlanning, StateFailed},
	StatePlanning:   {StateExecuting, StateFailed},
	StateExecuting:  {StateVerifying, StateFailed},
	StateVerifying:  {StateCommitting, StateExecuting, StateFailed},
	StateCommitting: {StateCompleted, StateFailed},
	StateCompleted:  {},
	StateFailed:     {},
}

// CanTransitionTo checks if a direct edge from s to next exists
func (s ExecutionState) CanTransitionTo(next ExecutionState) bool {
	for _, candidate := range validNextStates[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// NextStates returns the states reachable in one step from s
func (s ExecutionState) NextStates() []ExecutionState {
	next := validNextStates[s]
	out := make([]ExecutionState, len(next))
	copy(out, next)
	return out
}

// NonTerminalStates returns every state a machine may occupy mid-flight
func NonTerminalStates() []ExecutionState {
	return []ExecutionState{
		StateIdle, StatePlanning, StateExecuting, StateVerifying, StateCommitting,
	}
}

// ParseExecutionState parses a stored string into an ExecutionState
func ParseExecutionState(s string) (ExecutionState, bool) {
	state := ExecutionState(s)
	return state, state.IsValid()
}
