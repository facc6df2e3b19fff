package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common transition errors
var (
	ErrGuardNotMet = errors.New("guard conditions not met")
)

// UndefinedTransitionError reports an attempt to fire a transition whose
// from-state does not match the context's current state.
type UndefinedTransitionError struct {
	FromState        ExecutionState
	ToState          ExecutionState
	Reason           string
	ValidTransitions []ExecutionState
}

// Error returns the error message
func (e *UndefinedTransitionError) Error() string {
	valid := make([]string, len(e.ValidTransitions))
	for i, s := range e.ValidTransitions {
		valid[i] = s.String()
	}
	return fmt.Sprintf("undefined transition %s -> %s: %s (valid from: %s)",
		e.FromState, e.ToState, e.Reason, strings.Join(valid, ", "))
}

// Guard is a predicate that must hold before a transition may fire.
// A returned error counts as a failed guard, never as a crash.
type Guard struct {
	ID    string
	Name  string
	Check func(ctx context.Context, ec *ExecutionContext) (bool, error)
}

// Action is a side-effecting step attached to a transition
type Action struct {
	ID  string
	Run func(ctx context.Context, ec *ExecutionContext) error
}

// RollbackAction compensates for a transition whose actions failed partway.
// It receives the error that caused the rollback.
type RollbackAction struct {
	ID  string
	Run func(ctx context.Context, ec *ExecutionContext, cause error) error
}

// Transition is an immutable guarded edge between two execution states
type Transition struct {
	id          string
	name        string
	from        ExecutionState
	to          ExecutionState
	guards      []Guard
	preActions  []Action
	postActions []Action
	rollback    *RollbackAction
	priority    int
	isRetry     bool
}

// TransitionSpec is the buildable form of a Transition
type TransitionSpec struct {
	ID          string
	Name        string
	From        ExecutionState
	To          ExecutionState
	Guards      []Guard
	PreActions  []Action
	PostActions []Action
	Rollback    *RollbackAction
	Priority    int
	IsRetry     bool
}

// NewTransition builds an immutable Transition from a spec
func NewTransition(spec TransitionSpec) (*Transition, error) {
	if spec.ID == "" {
		return nil, errors.New("transition ID cannot be empty")
	}
	if !spec.From.IsValid() {
		return nil, fmt.Errorf("invalid from state: %s", spec.From)
	}
	if !spec.To.IsValid() {
		return nil, fmt.Errorf("invalid to state: %s", spec.To)
	}
	if spec.From.IsTerminal() {
		return nil, fmt.Errorf("cannot transition out of terminal state %s", spec.From)
	}
	name := spec.Name
	if name == "" {
		name = fmt.Sprintf("%s -> %s", spec.From, spec.To)
	}
	t := &Transition{
		id:          spec.ID,
		name:        name,
		from:        spec.From,
		to:          spec.To,
		guards:      append([]Guard(nil), spec.Guards...),
		preActions:  append([]Action(nil), spec.PreActions...),
		postActions: append([]Action(nil), spec.PostActions...),
		priority:    spec.Priority,
		isRetry:     spec.IsRetry,
	}
	if spec.Rollback != nil {
		rb := *spec.Rollback
		t.rollback = &rb
	}
	return t, nil
}

// ID returns the transition ID
func (t *Transition) ID() string { return t.id }

// Name returns the human-readable name
func (t *Transition) Name() string { return t.name }

// From returns the source state
func (t *Transition) From() ExecutionState { return t.from }

// To returns the destination state
func (t *Transition) To() ExecutionState { return t.to }

// Priority is the tie-break when multiple transitions match (higher wins)
func (t *Transition) Priority() int { return t.priority }

// IsRetry reports whether this transition re-enters an earlier phase
func (t *Transition) IsRetry() bool { return t.isRetry }

// HasRollback reports whether a rollback action is defined
func (t *Transition) HasRollback() bool { return t.rollback != nil }

// CanTransitionFrom is true iff s equals the transition's from state
func (t *Transition) CanTransitionFrom(s ExecutionState) bool {
	return s == t.from
}

// TransitionResult is the structured outcome of one Execute call
type TransitionResult struct {
	TransitionID string         `json:"transition_id"`
	From         ExecutionState `json:"from"`
	To           ExecutionState `json:"to"`
	Success      bool           `json:"success"`
	Err          error          `json:"-"`
	ErrMessage   string         `json:"error,omitempty"`
	RolledBack   bool           `json:"rolled_back"`
	RollbackErr  error          `json:"-"`
	StartedAt    time.Time      `json:"started_at"`
	Duration     time.Duration  `json:"duration"`
}

func newResult(t *Transition) *TransitionResult {
	return &TransitionResult{
		TransitionID: t.id,
		From:         t.from,
		To:           t.to,
		StartedAt:    time.Now().UTC(),
	}
}

func (r *TransitionResult) finish(err error) *TransitionResult {
	r.Duration = time.Since(r.StartedAt)
	r.Err = err
	r.Success = err == nil
	if err != nil {
		r.ErrMessage = err.Error()
	}
	return r
}
