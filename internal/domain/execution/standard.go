package execution

import (
	"context"
	"fmt"
	"strings"
)

// Standard transition IDs
const (
	TransitionStartPlanning  = "start-planning"
	TransitionStartExecution = "start-execution"
	TransitionStartVerify    = "start-verification"
	TransitionStartCommit    = "start-commit"
	TransitionComplete       = "complete"
	TransitionRetryExecution = "retry-execution"
)

// FailTransitionID returns the ID of the fail edge leaving the given state
func FailTransitionID(from ExecutionState) string {
	return "fail-from-" + strings.ToLower(from.String())
}

// NewStandardMachine builds the standard task lifecycle:
// IDLE -> PLANNING -> EXECUTING -> VERIFYING -> COMMITTING -> COMPLETED,
// a VERIFYING -> EXECUTING retry edge, and one fail edge per non-terminal
// state. Guards follow the task's natural preconditions; terminal edges
// stamp the completion time.
func NewStandardMachine() (*StateMachine, error) {
	m := NewStateMachine()

	specs := []TransitionSpec{
		{
			ID:   TransitionStartPlanning,
			Name: "Start planning",
			From: StateIdle,
			To:   StatePlanning,
			Guards: []Guard{{
				ID:   "has-task-input",
				Name: "Task input present",
				Check: func(_ context.Context, ec *ExecutionContext) (bool, error) {
					if _, ok := ec.Input("prompt"); ok {
						return true, nil
					}
					_, ok := ec.Input("task")
					return ok, nil
				},
			}},
		},
		{
			ID:   TransitionStartExecution,
			Name: "Start execution",
			From: StatePlanning,
			To:   StateExecuting,
		},
		{
			ID:   TransitionStartVerify,
			Name: "Start verification",
			From: StateExecuting,
			To:   StateVerifying,
			Guards: []Guard{{
				ID:   "has-outputs",
				Name: "Outputs present",
				Check: func(_ context.Context, ec *ExecutionContext) (bool, error) {
					return ec.OutputCount() > 0, nil
				},
			}},
		},
		{
			ID:   TransitionStartCommit,
			Name: "Start commit",
			From: StateVerifying,
			To:   StateCommitting,
			Guards: []Guard{{
				ID:   "no-context-error",
				Name: "No error recorded",
				Check: func(_ context.Context, ec *ExecutionContext) (bool, error) {
					return ec.LastError() == nil, nil
				},
			}},
		},
		{
			ID:   TransitionComplete,
			Name: "Complete",
			From: StateCommitting,
			To:   StateCompleted,
			PostActions: []Action{{
				ID: "stamp-completion",
				Run: func(_ context.Context, ec *ExecutionContext) error {
					ec.MarkCompleted()
					return nil
				},
			}},
		},
		{
			ID:      TransitionRetryExecution,
			Name:    "Retry execution",
			From:    StateVerifying,
			To:      StateExecuting,
			IsRetry: true,
		},
	}

	for _, from := range NonTerminalStates() {
		specs = append(specs, TransitionSpec{
			ID:       FailTransitionID(from),
			Name:     fmt.Sprintf("Fail from %s", from),
			From:     from,
			To:       StateFailed,
			Priority: -1,
			PostActions: []Action{{
				ID: "stamp-completion",
				Run: func(_ context.Context, ec *ExecutionContext) error {
					ec.MarkCompleted()
					return nil
				},
			}},
		})
	}

	for _, spec := range specs {
		t, err := NewTransition(spec)
		if err != nil {
			return nil, err
		}
		if err := m.Register(t); err != nil {
			return nil, err
		}
	}
	return m, nil
}
