package contract

import (
	"context"
	"errors"
	"fmt"
)

// ConditionType classifies where a condition applies in the task lifecycle
type ConditionType string

const (
	ConditionTypePrecondition  ConditionType = "precondition"
	ConditionTypePostcondition ConditionType = "postcondition"
	ConditionTypeInvariant     ConditionType = "invariant"
)

// String returns the string representation
func (t ConditionType) String() string {
	return string(t)
}

// IsValid validates the condition type
func (t ConditionType) IsValid() bool {
	switch t {
	case ConditionTypePrecondition, ConditionTypePostcondition, ConditionTypeInvariant:
		return true
	default:
		return false
	}
}

// EvalContext is the read view of an execution context a predicate may inspect.
// It is implemented by the state machine's execution context; conditions never
// mutate the context they observe.
type EvalContext interface {
	TaskID() string
	StateName() string
	Input(key string) (interface{}, bool)
	Output(key string) (interface{}, bool)
	LastError() error
}

// Predicate evaluates a condition against an execution context.
// Predicates may block (e.g. consult external state) and must honor ctx.
type Predicate func(ctx context.Context, ec EvalContext) (bool, error)

// CheckResult is the outcome of evaluating a single condition
type CheckResult struct {
	ConditionID string `json:"condition_id"`
	Passed      bool   `json:"passed"`
	Message     string `json:"message,omitempty"`
}

// Condition is a typed predicate with a human-readable failure message
type Condition struct {
	id        string
	name      string
	condType  ConditionType
	predicate Predicate
	message   string
}

// NewCondition creates a new Condition
func NewCondition(id, name string, condType ConditionType, predicate Predicate, message string) (*Condition, error) {
	if id == "" {
		return nil, errors.New("condition ID cannot be empty")
	}
	if name == "" {
		return nil, errors.New("condition name cannot be empty")
	}
	if !condType.IsValid() {
		return nil, fmt.Errorf("invalid condition type: %s", condType)
	}
	return &Condition{
		id:        id,
		name:      name,
		condType:  condType,
		predicate: predicate,
		message:   message,
	}, nil
}

// ReconstructCondition rebuilds a Condition from stored data without validation.
// Used by loaders; the validator reports structural problems instead of the
// constructor rejecting them.
func ReconstructCondition(id, name string, condType ConditionType, predicate Predicate, message string) *Condition {
	return &Condition{
		id:        id,
		name:      name,
		condType:  condType,
		predicate: predicate,
		message:   message,
	}
}

// ID returns the condition ID
func (c *Condition) ID() string {
	return c.id
}

// Name returns the condition name
func (c *Condition) Name() string {
	return c.name
}

// Type returns the condition type
func (c *Condition) Type() ConditionType {
	return c.condType
}

// Message returns the human-readable failure message
func (c *Condition) Message() string {
	return c.message
}

// HasPredicate reports whether an executable predicate is bound
func (c *Condition) HasPredicate() bool {
	return c.predicate != nil
}

// Check evaluates the predicate against ec. A predicate error or panic is
// captured as a failed result carrying the message; it never propagates.
func (c *Condition) Check(ctx context.Context, ec EvalContext) (result CheckResult) {
	result = CheckResult{ConditionID: c.id, Passed: false}

	defer func() {
		if r := recover(); r != nil {
			result.Passed = false
			result.Message = fmt.Sprintf("condition %s panicked: %v", c.id, r)
		}
	}()

	if c.predicate == nil {
		result.Message = fmt.Sprintf("condition %s has no predicate bound", c.id)
		return result
	}

	passed, err := c.predicate(ctx, ec)
	if err != nil {
		result.Passed = false
		result.Message = err.Error()
		return result
	}

	result.Passed = passed
	if !passed {
		result.Message = c.message
	}
	return result
}
