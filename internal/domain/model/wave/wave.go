package wave

import (
	"errors"
	"time"

	"github.com/waverun-dev/waverun/internal/domain/model"
	"github.com/waverun-dev/waverun/internal/domain/model/step"
)

// Wave errors
var (
	ErrWaveClosed   = errors.New("wave is closed")
	ErrStepNotFound = errors.New("step not in wave")
)

// Wave is a named batch of steps dispatched concurrently under one
// concurrency ceiling. Once every contained step is terminal the wave
// closes and is never re-opened.
type Wave struct {
	id             model.WaveID
	name           string
	maxConcurrency int
	dependsOn      []model.WaveID
	stepStatus     map[string]step.StepStatus // step id -> last observed status
	stepOrder      []model.StepID
	closed         bool
	createdAt      time.Time
	closedAt       *time.Time
}

// NewWave creates an open wave
func NewWave(name string, maxConcurrency int, dependsOn []model.WaveID) (*Wave, error) {
	if name == "" {
		return nil, errors.New("wave name cannot be empty")
	}
	if maxConcurrency < 1 {
		return nil, errors.New("max concurrency must be at least 1")
	}
	return &Wave{
		id:             model.NewWaveID(),
		name:           name,
		maxConcurrency: maxConcurrency,
		dependsOn:      append([]model.WaveID(nil), dependsOn...),
		stepStatus:     make(map[string]step.StepStatus),
		createdAt:      time.Now().UTC(),
	}, nil
}

// ReconstructWave rebuilds a wave from stored data
func ReconstructWave(
	id model.WaveID,
	name string,
	maxConcurrency int,
	dependsOn []model.WaveID,
	stepOrder []model.StepID,
	stepStatus map[string]step.StepStatus,
	closed bool,
	createdAt time.Time,
	closedAt *time.Time,
) *Wave {
	if stepStatus == nil {
		stepStatus = make(map[string]step.StepStatus)
	}
	return &Wave{
		id:             id,
		name:           name,
		maxConcurrency: maxConcurrency,
		dependsOn:      dependsOn,
		stepOrder:      stepOrder,
		stepStatus:     stepStatus,
		closed:         closed,
		createdAt:      createdAt,
		closedAt:       closedAt,
	}
}

// ID returns the wave ID
func (w *Wave) ID() model.WaveID { return w.id }

// Name returns the wave name
func (w *Wave) Name() string { return w.name }

// MaxConcurrency returns the concurrency ceiling
func (w *Wave) MaxConcurrency() int { return w.maxConcurrency }

// DependsOn returns the waves that must complete first
func (w *Wave) DependsOn() []model.WaveID {
	out := make([]model.WaveID, len(w.dependsOn))
	copy(out, w.dependsOn)
	return out
}

// IsClosed reports whether every contained step is terminal
func (w *Wave) IsClosed() bool { return w.closed }

// CreatedAt returns the creation time
func (w *Wave) CreatedAt() time.Time { return w.createdAt }

// ClosedAt returns when the wave closed, or nil while open
func (w *Wave) ClosedAt() *time.Time { return w.closedAt }

// StepIDs returns the contained step ids in insertion order
func (w *Wave) StepIDs() []model.StepID {
	out := make([]model.StepID, len(w.stepOrder))
	copy(out, w.stepOrder)
	return out
}

// StepStatus returns the last observed status for a contained step
func (w *Wave) StepStatus(id model.StepID) (step.StepStatus, bool) {
	st, ok := w.stepStatus[id.String()]
	return st, ok
}

// AddStep registers a step with the wave. Closed waves reject additions.
func (w *Wave) AddStep(s *step.Step) error {
	if w.closed {
		return ErrWaveClosed
	}
	key := s.ID().String()
	if _, exists := w.stepStatus[key]; !exists {
		w.stepOrder = append(w.stepOrder, s.ID())
	}
	w.stepStatus[key] = s.Status()
	return nil
}

// ObserveStep records a step's current status and closes the wave when
// every contained step has reached a terminal status.
func (w *Wave) ObserveStep(id model.StepID, status step.StepStatus) error {
	if w.closed {
		return ErrWaveClosed
	}
	key := id.String()
	if _, ok := w.stepStatus[key]; !ok {
		return ErrStepNotFound
	}
	w.stepStatus[key] = status

	for _, st := range w.stepStatus {
		if !st.IsTerminal() {
			return nil
		}
	}
	w.closed = true
	now := time.Now().UTC()
	w.closedAt = &now
	return nil
}
