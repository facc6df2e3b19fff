package contract

import (
	"errors"
	"fmt"
)

// Common contract errors
var (
	ErrDuplicateCondition = errors.New("duplicate condition ID in set")
	ErrContractNotFound   = errors.New("contract not found")
)

// TaskType classifies the kind of work a contract governs
type TaskType string

const (
	TaskTypeImplementFeature TaskType = "implement_feature"
	TaskTypeFixBug           TaskType = "fix_bug"
	TaskTypeRefactor         TaskType = "refactor"
	TaskTypeTest             TaskType = "test"
	TaskTypeReview           TaskType = "review"
	TaskTypeDeploy           TaskType = "deploy"
	TaskTypeCustom           TaskType = "custom"
)

// String returns the string representation
func (t TaskType) String() string {
	return string(t)
}

// IsValid validates the task type
func (t TaskType) IsValid() bool {
	switch t {
	case TaskTypeImplementFeature, TaskTypeFixBug, TaskTypeRefactor,
		TaskTypeTest, TaskTypeReview, TaskTypeDeploy, TaskTypeCustom:
		return true
	default:
		return false
	}
}

// VerificationMethod describes how contract satisfaction is checked
type VerificationMethod string

const (
	VerificationRuntime      VerificationMethod = "runtime"
	VerificationPropertyTest VerificationMethod = "property-test"
	VerificationFormal       VerificationMethod = "formal"
	VerificationHybrid       VerificationMethod = "hybrid"
)

// String returns the string representation
func (m VerificationMethod) String() string {
	return string(m)
}

// IsValid validates the verification method
func (m VerificationMethod) IsValid() bool {
	switch m {
	case VerificationRuntime, VerificationPropertyTest, VerificationFormal, VerificationHybrid:
		return true
	default:
		return false
	}
}

// AgentContract bundles the conditions an agent task type must satisfy.
// Condition sets are ordered; IDs are unique per set, not globally.
type AgentContract struct {
	id             string
	name           string
	taskType       TaskType
	method         VerificationMethod
	preconditions  []*Condition
	postconditions []*Condition
	invariants     []*Condition
}

// NewAgentContract creates a new AgentContract with empty condition sets
func NewAgentContract(id, name string, taskType TaskType, method VerificationMethod) (*AgentContract, error) {
	if id == "" {
		return nil, errors.New("contract ID cannot be empty")
	}
	if name == "" {
		return nil, errors.New("contract name cannot be empty")
	}
	if !taskType.IsValid() {
		return nil, fmt.Errorf("invalid task type: %s", taskType)
	}
	if !method.IsValid() {
		return nil, fmt.Errorf("invalid verification method: %s", method)
	}
	return &AgentContract{
		id:       id,
		name:     name,
		taskType: taskType,
		method:   method,
	}, nil
}

// ReconstructAgentContract rebuilds an AgentContract from stored data without
// validation. Loaders use this so the validator can report structural issues
// on whatever was stored.
func ReconstructAgentContract(
	id, name string,
	taskType TaskType,
	method VerificationMethod,
	preconditions, postconditions, invariants []*Condition,
) *AgentContract {
	return &AgentContract{
		id:             id,
		name:           name,
		taskType:       taskType,
		method:         method,
		preconditions:  preconditions,
		postconditions: postconditions,
		invariants:     invariants,
	}
}

// ID returns the contract ID
func (c *AgentContract) ID() string {
	return c.id
}

// Name returns the contract name
func (c *AgentContract) Name() string {
	return c.name
}

// TaskType returns the governed task type
func (c *AgentContract) TaskType() TaskType {
	return c.taskType
}

// VerificationMethod returns the verification method
func (c *AgentContract) VerificationMethod() VerificationMethod {
	return c.method
}

// AddPrecondition appends a precondition, rejecting a duplicate ID within the set
func (c *AgentContract) AddPrecondition(cond *Condition) error {
	if containsID(c.preconditions, cond.ID()) {
		return fmt.Errorf("precondition %q: %w", cond.ID(), ErrDuplicateCondition)
	}
	c.preconditions = append(c.preconditions, cond)
	return nil
}

// AddPostcondition appends a postcondition, rejecting a duplicate ID within the set
func (c *AgentContract) AddPostcondition(cond *Condition) error {
	if containsID(c.postconditions, cond.ID()) {
		return fmt.Errorf("postcondition %q: %w", cond.ID(), ErrDuplicateCondition)
	}
	c.postconditions = append(c.postconditions, cond)
	return nil
}

// AddInvariant appends an invariant, rejecting a duplicate ID within the set
func (c *AgentContract) AddInvariant(cond *Condition) error {
	if containsID(c.invariants, cond.ID()) {
		return fmt.Errorf("invariant %q: %w", cond.ID(), ErrDuplicateCondition)
	}
	c.invariants = append(c.invariants, cond)
	return nil
}

// Preconditions returns an ordered copy of the precondition set
func (c *AgentContract) Preconditions() []*Condition {
	return copyConditions(c.preconditions)
}

// Postconditions returns an ordered copy of the postcondition set
func (c *AgentContract) Postconditions() []*Condition {
	return copyConditions(c.postconditions)
}

// Invariants returns an ordered copy of the invariant set
func (c *AgentContract) Invariants() []*Condition {
	return copyConditions(c.invariants)
}

// ConditionCount returns the total number of conditions across all sets
func (c *AgentContract) ConditionCount() int {
	return len(c.preconditions) + len(c.postconditions) + len(c.invariants)
}

func containsID(set []*Condition, id string) bool {
	for _, cond := range set {
		if cond.ID() == id {
			return true
		}
	}
	return false
}

func copyConditions(set []*Condition) []*Condition {
	out := make([]*Condition, len(set))
	copy(out, set)
	return out
}
