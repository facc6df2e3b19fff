package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/waverun-dev/waverun/internal/domain/repository"
)

// JournalRepositoryImpl implements repository.JournalRepository with SQLite.
// The journal is append-only; the AUTOINCREMENT seq preserves append order.
type JournalRepositoryImpl struct {
	db *sql.DB
}

// NewJournalRepository creates a SQLite-backed journal repository
func NewJournalRepository(db *sql.DB) repository.JournalRepository {
	return &JournalRepositoryImpl{db: db}
}

// Append adds a record to the journal
func (r *JournalRepositoryImpl) Append(ctx context.Context, record *repository.JournalRecord) error {
	if record == nil {
		return fmt.Errorf("journal record is nil")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO journal (timestamp, task_id, step_id, transition_id, from_state, to_state, success, attempt, elapsed_ms, error, rolled_back)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Timestamp,
		record.TaskID,
		record.StepID,
		record.TransitionID,
		record.FromState,
		record.ToState,
		boolToInt(record.Success),
		record.Attempt,
		record.ElapsedMs,
		record.Error,
		boolToInt(record.RolledBack),
	)
	if err != nil {
		return fmt.Errorf("append journal record: %w", err)
	}
	return nil
}

// Load retrieves all journal records in append order
func (r *JournalRepositoryImpl) Load(ctx context.Context) ([]*repository.JournalRecord, error) {
	return r.query(ctx, `
		SELECT timestamp, task_id, step_id, transition_id, from_state, to_state, success, attempt, elapsed_ms, error, rolled_back
		FROM journal ORDER BY seq ASC`)
}

// FindByTask retrieves records for one task in append order
func (r *JournalRepositoryImpl) FindByTask(ctx context.Context, taskID string) ([]*repository.JournalRecord, error) {
	return r.query(ctx, `
		SELECT timestamp, task_id, step_id, transition_id, from_state, to_state, success, attempt, elapsed_ms, error, rolled_back
		FROM journal WHERE task_id = ? ORDER BY seq ASC`, taskID)
}

func (r *JournalRepositoryImpl) query(ctx context.Context, q string, args ...interface{}) ([]*repository.JournalRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []*repository.JournalRecord
	for rows.Next() {
		var (
			rec                 repository.JournalRecord
			success, rolledBack int
		)
		err := rows.Scan(
			&rec.Timestamp, &rec.TaskID, &rec.StepID, &rec.TransitionID,
			&rec.FromState, &rec.ToState, &success, &rec.Attempt,
			&rec.ElapsedMs, &rec.Error, &rolledBack,
		)
		if err != nil {
			return nil, fmt.Errorf("scan journal record: %w", err)
		}
		rec.Success = success != 0
		rec.RolledBack = rolledBack != 0
		out = append(out, &rec)
	}
	return out, rows.Err()
}
