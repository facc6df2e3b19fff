package step

import (
	"errors"
	"time"

	"github.com/waverun-dev/waverun/internal/domain/model"
)

// StepStatus represents the lifecycle status of a schedulable step
type StepStatus string

const (
	StatusPending   StepStatus = "PENDING"
	StatusRunning   StepStatus = "RUNNING"
	StatusSucceeded StepStatus = "SUCCEEDED"
	StatusFailed    StepStatus = "FAILED"
	StatusSkipped   StepStatus = "SKIPPED"
)

// String returns the string representation
func (s StepStatus) String() string {
	return string(s)
}

// IsValid validates the step status
func (s StepStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status ends the step's lifecycle
func (s StepStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusSkipped
}

// validStatusTransitions defines allowed status changes.
// FAILED -> PENDING re-queues a step for another attempt.
var validStatusTransitions = map[StepStatus][]StepStatus{
	StatusPending:   {StatusRunning, StatusSkipped},
	StatusRunning:   {StatusSucceeded, StatusFailed},
	StatusFailed:    {StatusPending},
	StatusSucceeded: {},
	StatusSkipped:   {},
}

// CanTransitionTo checks if the status change is allowed
func (s StepStatus) CanTransitionTo(next StepStatus) bool {
	for _, candidate := range validStatusTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// StepType classifies what kind of work a step performs
type StepType string

const (
	TypePlan      StepType = "plan"
	TypeImplement StepType = "implement"
	TypeVerify    StepType = "verify"
	TypeReview    StepType = "review"
	TypeCommit    StepType = "commit"
)

// String returns the string representation
func (t StepType) String() string {
	return string(t)
}

// IsValid validates the step type
func (t StepType) IsValid() bool {
	switch t {
	case TypePlan, TypeImplement, TypeVerify, TypeReview, TypeCommit:
		return true
	default:
		return false
	}
}

// Step is one schedulable unit inside a larger task
type Step struct {
	id          model.StepID
	taskID      model.TaskID
	name        string
	stepType    StepType
	status      StepStatus
	attempt     model.Attempt
	maxAttempts int
	errorMsg    string
	createdAt   time.Time
	updatedAt   time.Time
}

// NewStep creates a pending step for a task
func NewStep(taskID model.TaskID, name string, stepType StepType, maxAttempts int) (*Step, error) {
	if name == "" {
		return nil, errors.New("step name cannot be empty")
	}
	if !stepType.IsValid() {
		return nil, errors.New("invalid step type")
	}
	if maxAttempts < 1 {
		return nil, errors.New("max attempts must be at least 1")
	}
	now := time.Now().UTC()
	return &Step{
		id:          model.NewStepID(),
		taskID:      taskID,
		name:        name,
		stepType:    stepType,
		status:      StatusPending,
		attempt:     model.NewAttempt(),
		maxAttempts: maxAttempts,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// ReconstructStep rebuilds a step from stored data
func ReconstructStep(
	id model.StepID,
	taskID model.TaskID,
	name string,
	stepType StepType,
	status StepStatus,
	attempt model.Attempt,
	maxAttempts int,
	errorMsg string,
	createdAt, updatedAt time.Time,
) *Step {
	return &Step{
		id:          id,
		taskID:      taskID,
		name:        name,
		stepType:    stepType,
		status:      status,
		attempt:     attempt,
		maxAttempts: maxAttempts,
		errorMsg:    errorMsg,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

// ID returns the step ID
func (s *Step) ID() model.StepID { return s.id }

// TaskID returns the owning task's ID
func (s *Step) TaskID() model.TaskID { return s.taskID }

// Name returns the step name
func (s *Step) Name() string { return s.name }

// Type returns the step type
func (s *Step) Type() StepType { return s.stepType }

// Status returns the current status
func (s *Step) Status() StepStatus { return s.status }

// Attempt returns the current attempt counter
func (s *Step) Attempt() model.Attempt { return s.attempt }

// MaxAttempts returns the attempt ceiling
func (s *Step) MaxAttempts() int { return s.maxAttempts }

// ErrorMsg returns the last failure message, if any
func (s *Step) ErrorMsg() string { return s.errorMsg }

// CreatedAt returns the creation time
func (s *Step) CreatedAt() time.Time { return s.createdAt }

// UpdatedAt returns the last update time
func (s *Step) UpdatedAt() time.Time { return s.updatedAt }

// HasAttemptsLeft reports whether the step may be retried
func (s *Step) HasAttemptsLeft() bool {
	return s.attempt.Value() < s.maxAttempts
}

// UpdateStatus transitions the step to a new status
func (s *Step) UpdateStatus(next StepStatus) error {
	if !next.IsValid() {
		return errors.New("invalid step status")
	}
	if !s.status.CanTransitionTo(next) {
		return errors.New("invalid status transition: " + s.status.String() + " -> " + next.String())
	}
	s.status = next
	s.updatedAt = time.Now().UTC()
	return nil
}

// RecordFailure marks the step failed with a message
func (s *Step) RecordFailure(msg string) error {
	if err := s.UpdateStatus(StatusFailed); err != nil {
		return err
	}
	s.errorMsg = msg
	return nil
}

// Requeue puts a failed step back to pending with the attempt incremented.
// It refuses when no attempts remain.
func (s *Step) Requeue() error {
	if !s.HasAttemptsLeft() {
		return errors.New("no attempts left")
	}
	if err := s.UpdateStatus(StatusPending); err != nil {
		return err
	}
	s.attempt = s.attempt.Increment()
	s.errorMsg = ""
	return nil
}
