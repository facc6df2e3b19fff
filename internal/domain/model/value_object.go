package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// TaskID represents a unique identifier for a unit of agent work
type TaskID struct {
	value string
}

// NewTaskID creates a new TaskID
func NewTaskID() TaskID {
	return TaskID{value: uuid.New().String()}
}

// NewTaskIDFromString creates a TaskID from an existing string
func NewTaskIDFromString(id string) (TaskID, error) {
	if id == "" {
		return TaskID{}, errors.New("task ID cannot be empty")
	}
	return TaskID{value: id}, nil
}

// String returns the string representation
func (t TaskID) String() string {
	return t.value
}

// Equals checks if two TaskIDs are equal
func (t TaskID) Equals(other TaskID) bool {
	return t.value == other.value
}

// StepID represents a unique identifier for a schedulable step
type StepID struct {
	value string
}

// NewStepID creates a new StepID
func NewStepID() StepID {
	return StepID{value: uuid.New().String()}
}

// NewStepIDFromString creates a StepID from an existing string
func NewStepIDFromString(id string) (StepID, error) {
	if id == "" {
		return StepID{}, errors.New("step ID cannot be empty")
	}
	return StepID{value: id}, nil
}

// String returns the string representation
func (s StepID) String() string {
	return s.value
}

// Equals checks if two StepIDs are equal
func (s StepID) Equals(other StepID) bool {
	return s.value == other.value
}

// WaveID represents a unique identifier for a wave of concurrent work
type WaveID struct {
	value string
}

// NewWaveID creates a new WaveID
func NewWaveID() WaveID {
	return WaveID{value: uuid.New().String()}
}

// NewWaveIDFromString creates a WaveID from an existing string
func NewWaveIDFromString(id string) (WaveID, error) {
	if id == "" {
		return WaveID{}, errors.New("wave ID cannot be empty")
	}
	return WaveID{value: id}, nil
}

// String returns the string representation
func (w WaveID) String() string {
	return w.value
}

// Equals checks if two WaveIDs are equal
func (w WaveID) Equals(other WaveID) bool {
	return w.value == other.value
}

// Complexity classifies how much parallel agent effort a task needs
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// String returns the string representation
func (c Complexity) String() string {
	return string(c)
}

// IsValid validates the complexity
func (c Complexity) IsValid() bool {
	switch c {
	case ComplexitySimple, ComplexityMedium, ComplexityComplex:
		return true
	default:
		return false
	}
}

// RoleCount returns how many parallel agent roles the complexity requires
func (c Complexity) RoleCount() int {
	if c == ComplexityComplex {
		return 3
	}
	return 2
}

// ParseComplexity parses a string into a Complexity, defaulting to medium
func ParseComplexity(s string) Complexity {
	switch Complexity(s) {
	case ComplexitySimple:
		return ComplexitySimple
	case ComplexityComplex:
		return ComplexityComplex
	default:
		return ComplexityMedium
	}
}

// Attempt represents an execution attempt counter
type Attempt struct {
	value int
}

// NewAttempt creates a new Attempt starting from 1
func NewAttempt() Attempt {
	return Attempt{value: 1}
}

// NewAttemptFromInt creates an Attempt from an integer value
func NewAttemptFromInt(value int) (Attempt, error) {
	if value < 1 {
		return Attempt{}, errors.New("attempt value must be at least 1")
	}
	return Attempt{value: value}, nil
}

// Value returns the integer value
func (a Attempt) Value() int {
	return a.value
}

// Increment returns a new Attempt with incremented value
func (a Attempt) Increment() Attempt {
	return Attempt{value: a.value + 1}
}

// Equals checks if two Attempts are equal
func (a Attempt) Equals(other Attempt) bool {
	return a.value == other.value
}

// String returns the string representation
func (a Attempt) String() string {
	return fmt.Sprintf("Attempt %d", a.value)
}
