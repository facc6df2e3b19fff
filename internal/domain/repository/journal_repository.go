package repository

import "context"

// JournalRecord is one append-only entry describing a transition execution
type JournalRecord struct {
	Timestamp    string `json:"timestamp"` // UTC RFC3339Nano
	TaskID       string `json:"task_id"`
	StepID       string `json:"step_id,omitempty"`
	TransitionID string `json:"transition_id"`
	FromState    string `json:"from_state"`
	ToState      string `json:"to_state"`
	Success      bool   `json:"success"`
	Attempt      int    `json:"attempt"`
	ElapsedMs    int64  `json:"elapsed_ms"`
	Error        string `json:"error,omitempty"`
	RolledBack   bool   `json:"rolled_back,omitempty"`
}

// JournalRepository manages the append-only transition journal
type JournalRepository interface {
	// Append adds a new record to the journal
	Append(ctx context.Context, record *JournalRecord) error

	// Load retrieves all journal records in append order
	Load(ctx context.Context) ([]*JournalRecord, error)

	// FindByTask retrieves records for a specific task
	FindByTask(ctx context.Context, taskID string) ([]*JournalRecord, error)
}
