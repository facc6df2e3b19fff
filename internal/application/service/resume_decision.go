package service

import (
	"fmt"

	"github.com/waverun-dev/waverun/internal/domain/checkpoint"
	"github.com/waverun-dev/waverun/internal/domain/model/step"
)

// ResumeAction is the recommended way to continue from a checkpoint
type ResumeAction string

const (
	ResumeActionResume ResumeAction = "resume"
	ResumeActionRetry  ResumeAction = "retry"
	ResumeActionSkip   ResumeAction = "skip"
	ResumeActionAbort  ResumeAction = "abort"
)

// String returns the string representation
func (a ResumeAction) String() string {
	return string(a)
}

// ResumeDecision is the outcome of analyzing a checkpoint
type ResumeDecision struct {
	Action       ResumeAction   `json:"action"`
	Reason       string         `json:"reason"`
	FromStep     string         `json:"from_step"`
	Confidence   float64        `json:"confidence"` // in [0, 1]
	Alternatives []ResumeAction `json:"alternatives,omitempty"`
}

// ResumeDecisionEngine recommends how to continue from a checkpoint
type ResumeDecisionEngine interface {
	// AnalyzeCheckpoint produces a side-effect-free recommendation
	AnalyzeCheckpoint(cp *checkpoint.StepCheckpoint) ResumeDecision
}

// NullResumeDecisionEngine is the explicit default when no richer analysis
// is configured: always resume with confidence 0.7, deterministically and
// without side effects.
type NullResumeDecisionEngine struct{}

// NewNullResumeDecisionEngine creates the null engine
func NewNullResumeDecisionEngine() *NullResumeDecisionEngine {
	return &NullResumeDecisionEngine{}
}

// AnalyzeCheckpoint always recommends resume with confidence 0.7
func (NullResumeDecisionEngine) AnalyzeCheckpoint(cp *checkpoint.StepCheckpoint) ResumeDecision {
	return ResumeDecision{
		Action:     ResumeActionResume,
		Reason:     "no analysis configured, defaulting to resume",
		FromStep:   cp.StepID().String(),
		Confidence: 0.7,
		Alternatives: []ResumeAction{
			ResumeActionRetry, ResumeActionSkip, ResumeActionAbort,
		},
	}
}

// HeuristicResumeDecisionEngine inspects the snapshotted step to decide:
// a failed step with attempts left retries, an exhausted one is skipped,
// an unreadable payload aborts, and everything else resumes.
type HeuristicResumeDecisionEngine struct{}

// NewHeuristicResumeDecisionEngine creates the heuristic engine
func NewHeuristicResumeDecisionEngine() *HeuristicResumeDecisionEngine {
	return &HeuristicResumeDecisionEngine{}
}

// AnalyzeCheckpoint recommends a continuation based on the step snapshot
func (HeuristicResumeDecisionEngine) AnalyzeCheckpoint(cp *checkpoint.StepCheckpoint) ResumeDecision {
	fromStep := cp.StepID().String()

	payload, err := cp.DecodePayload()
	if err != nil {
		return ResumeDecision{
			Action:       ResumeActionAbort,
			Reason:       fmt.Sprintf("checkpoint payload unreadable: %v", err),
			FromStep:     fromStep,
			Confidence:   0.9,
			Alternatives: []ResumeAction{ResumeActionSkip},
		}
	}

	snap := payload.Step
	switch step.StepStatus(snap.Status) {
	case step.StatusFailed:
		if snap.Attempt < snap.MaxAttempts {
			return ResumeDecision{
				Action: ResumeActionRetry,
				Reason: fmt.Sprintf("step failed on attempt %d of %d, attempts remain",
					snap.Attempt, snap.MaxAttempts),
				FromStep:     fromStep,
				Confidence:   0.8,
				Alternatives: []ResumeAction{ResumeActionSkip, ResumeActionAbort},
			}
		}
		return ResumeDecision{
			Action: ResumeActionSkip,
			Reason: fmt.Sprintf("step failed and exhausted all %d attempts",
				snap.MaxAttempts),
			FromStep:     fromStep,
			Confidence:   0.75,
			Alternatives: []ResumeAction{ResumeActionAbort},
		}
	case step.StatusSucceeded, step.StatusSkipped:
		return ResumeDecision{
			Action:       ResumeActionResume,
			Reason:       "step already terminal, resume from the next step",
			FromStep:     fromStep,
			Confidence:   0.85,
			Alternatives: []ResumeAction{ResumeActionSkip},
		}
	default:
		return ResumeDecision{
			Action:       ResumeActionResume,
			Reason:       fmt.Sprintf("step was %s when checkpointed", snap.Status),
			FromStep:     fromStep,
			Confidence:   0.8,
			Alternatives: []ResumeAction{ResumeActionRetry, ResumeActionSkip, ResumeActionAbort},
		}
	}
}
