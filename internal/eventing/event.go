package eventing

import (
	"context"
	"time"
)

// EventType classifies core progress notifications
type EventType string

const (
	EventStateChanged      EventType = "state_changed"
	EventCheckpointCreated EventType = "checkpoint_created"
	EventWaveStarted       EventType = "wave_started"
	EventWaveSettled       EventType = "wave_settled"
	EventAgentRegistered   EventType = "agent_registered"
	EventAgentUnregistered EventType = "agent_unregistered"
)

// Event is a progress notification from the core to the shell.
// Fields are plain data with no cyclic references.
type Event struct {
	Type      EventType         `json:"type"`
	TaskID    string            `json:"task_id,omitempty"`
	StepID    string            `json:"step_id,omitempty"`
	WaveID    string            `json:"wave_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewEvent creates an event stamped with the current time
func NewEvent(eventType EventType) Event {
	return Event{
		Type:      eventType,
		Fields:    make(map[string]string),
		Timestamp: time.Now().UTC(),
	}
}

// WithTask sets the task ID
func (e Event) WithTask(taskID string) Event {
	e.TaskID = taskID
	return e
}

// WithStep sets the step ID
func (e Event) WithStep(stepID string) Event {
	e.StepID = stepID
	return e
}

// WithWave sets the wave ID
func (e Event) WithWave(waveID string) Event {
	e.WaveID = waveID
	return e
}

// WithField adds a key/value detail
func (e Event) WithField(key, value string) Event {
	fields := make(map[string]string, len(e.Fields)+1)
	for k, v := range e.Fields {
		fields[k] = v
	}
	fields[key] = value
	e.Fields = fields
	return e
}

// Sink receives events published by the core
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// NoopSink discards every event
type NoopSink struct{}

// Publish discards the event
func (NoopSink) Publish(context.Context, Event) error { return nil }
