package execution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/waverun-dev/waverun/internal/domain/model/contract"
)

// ErrTransitionNotFound is returned when a transition ID is not registered
var ErrTransitionNotFound = errors.New("transition not found")

// StateMachine holds the registered transitions and executes them against
// execution contexts. Definitions are immutable once registered; the machine
// itself may be shared across contexts.
type StateMachine struct {
	mu          sync.RWMutex
	byID        map[string]*Transition
	byFromState map[ExecutionState][]*Transition
}

// NewStateMachine creates an empty state machine
func NewStateMachine() *StateMachine {
	return &StateMachine{
		byID:        make(map[string]*Transition),
		byFromState: make(map[ExecutionState][]*Transition),
	}
}

// Register adds a transition definition. Duplicate IDs are rejected.
func (m *StateMachine) Register(t *Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[t.ID()]; exists {
		return fmt.Errorf("transition %q already registered", t.ID())
	}
	m.byID[t.ID()] = t

	edges := append(m.byFromState[t.From()], t)
	sort.SliceStable(edges, func(i, j int) bool {
		return edges[i].Priority() > edges[j].Priority()
	})
	m.byFromState[t.From()] = edges
	return nil
}

// Transition returns a registered transition by ID
func (m *StateMachine) Transition(id string) (*Transition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTransitionNotFound, id)
	}
	return t, nil
}

// TransitionsFrom returns the transitions leaving a state, highest priority first
func (m *StateMachine) TransitionsFrom(s ExecutionState) []*Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	edges := m.byFromState[s]
	out := make([]*Transition, len(edges))
	copy(out, edges)
	return out
}

// ExecuteByID looks up a transition and executes it
func (m *StateMachine) ExecuteByID(ctx context.Context, transitionID string, ec *ExecutionContext) (*TransitionResult, error) {
	t, err := m.Transition(transitionID)
	if err != nil {
		return nil, err
	}
	return m.Execute(ctx, t, ec), nil
}

// Execute fires one transition against a context.
//
// Protocol: state mismatch fails without touching the context; guards run in
// order and short-circuit; pre-actions run before the state mutation and
// post-actions after it; any action error triggers one rollback attempt and
// restores the pre-transition state, so the mutation is transactional. A
// rollback failure is reported separately and never masks the original error.
func (m *StateMachine) Execute(ctx context.Context, t *Transition, ec *ExecutionContext) *TransitionResult {
	result := newResult(t)

	if !t.CanTransitionFrom(ec.State()) {
		result.From = ec.State()
		return result.finish(&UndefinedTransitionError{
			FromState:        ec.State(),
			ToState:          t.To(),
			Reason:           fmt.Sprintf("transition %q requires state %s", t.ID(), t.From()),
			ValidTransitions: []ExecutionState{t.From()},
		})
	}

	for _, g := range t.guards {
		passed, err := checkGuard(ctx, g, ec)
		if err != nil {
			return result.finish(fmt.Errorf("%w: guard %s: %v", ErrGuardNotMet, g.ID, err))
		}
		if !passed {
			return result.finish(fmt.Errorf("%w: guard %s failed", ErrGuardNotMet, g.ID))
		}
	}

	prevState := ec.State()

	for _, a := range t.preActions {
		if err := runAction(ctx, a, ec); err != nil {
			cause := fmt.Errorf("pre-action %s: %w", a.ID, err)
			m.rollback(ctx, t, ec, cause, result)
			return result.finish(cause)
		}
	}

	ec.setState(t.To())

	for _, a := range t.postActions {
		if err := runAction(ctx, a, ec); err != nil {
			// The state mutation was visible to earlier post-actions;
			// revert it before compensating.
			ec.setState(prevState)
			cause := fmt.Errorf("post-action %s: %w", a.ID, err)
			m.rollback(ctx, t, ec, cause, result)
			return result.finish(cause)
		}
	}

	return result.finish(nil)
}

// rollback invokes the transition's rollback action at most once.
// It never propagates: the rollback outcome is recorded on the result.
func (m *StateMachine) rollback(ctx context.Context, t *Transition, ec *ExecutionContext, cause error, result *TransitionResult) {
	if t.rollback == nil {
		return
	}
	err := runRollback(ctx, t.rollback, ec, cause)
	result.RolledBack = err == nil
	result.RollbackErr = err
}

func checkGuard(ctx context.Context, g Guard, ec *ExecutionContext) (passed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			passed = false
			err = fmt.Errorf("guard panicked: %v", r)
		}
	}()
	return g.Check(ctx, ec)
}

func runAction(ctx context.Context, a Action, ec *ExecutionContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return a.Run(ctx, ec)
}

func runRollback(ctx context.Context, rb *RollbackAction, ec *ExecutionContext, cause error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rollback panicked: %v", r)
		}
	}()
	return rb.Run(ctx, ec, cause)
}

// ConditionGuard adapts a contract condition into a transition guard.
// A failed or erroring predicate becomes a failed guard carrying the
// condition's message; it never propagates raw.
func ConditionGuard(cond *contract.Condition) Guard {
	return Guard{
		ID:   "condition:" + cond.ID(),
		Name: cond.Name(),
		Check: func(ctx context.Context, ec *ExecutionContext) (bool, error) {
			res := cond.Check(ctx, ec)
			if !res.Passed {
				return false, errors.New(res.Message)
			}
			return true, nil
		},
	}
}

// AttachContract gates the machine's phase boundaries with a contract:
// preconditions guard entry into PLANNING, postconditions guard the
// VERIFYING -> COMMITTING edge, and invariants guard every registered
// transition. The gated definitions replace the originals under new IDs
// derived from the contract.
func (m *StateMachine) AttachContract(c *contract.AgentContract) error {
	m.mu.Lock()
	transitions := make([]*Transition, 0, len(m.byID))
	for _, t := range m.byID {
		transitions = append(transitions, t)
	}
	m.mu.Unlock()

	invariantGuards := make([]Guard, 0, len(c.Invariants()))
	for _, inv := range c.Invariants() {
		invariantGuards = append(invariantGuards, ConditionGuard(inv))
	}

	for _, t := range transitions {
		extra := append([]Guard(nil), invariantGuards...)
		if t.From() == StateIdle && t.To() == StatePlanning {
			for _, pre := range c.Preconditions() {
				extra = append(extra, ConditionGuard(pre))
			}
		}
		if t.From() == StateVerifying && t.To() == StateCommitting {
			for _, post := range c.Postconditions() {
				extra = append(extra, ConditionGuard(post))
			}
		}
		if len(extra) == 0 {
			continue
		}
		gated, err := NewTransition(TransitionSpec{
			ID:          t.ID() + ":" + c.ID(),
			Name:        t.Name(),
			From:        t.From(),
			To:          t.To(),
			Guards:      append(append([]Guard(nil), t.guards...), extra...),
			PreActions:  t.preActions,
			PostActions: t.postActions,
			Rollback:    t.rollback,
			Priority:    t.Priority() + 1,
			IsRetry:     t.IsRetry(),
		})
		if err != nil {
			return fmt.Errorf("attach contract %s: %w", c.ID(), err)
		}
		if err := m.Register(gated); err != nil {
			return fmt.Errorf("attach contract %s: %w", c.ID(), err)
		}
	}
	return nil
}
