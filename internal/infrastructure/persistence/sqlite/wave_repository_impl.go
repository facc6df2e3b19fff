package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/waverun-dev/waverun/internal/domain/model"
	"github.com/waverun-dev/waverun/internal/domain/model/step"
	"github.com/waverun-dev/waverun/internal/domain/model/wave"
	"github.com/waverun-dev/waverun/internal/domain/repository"
)

// WaveRepositoryImpl implements repository.WaveRepository with SQLite
type WaveRepositoryImpl struct {
	db *sql.DB
}

// NewWaveRepository creates a SQLite-backed wave repository
func NewWaveRepository(db *sql.DB) repository.WaveRepository {
	return &WaveRepositoryImpl{db: db}
}

// Save inserts or replaces a wave and its step statuses
func (r *WaveRepositoryImpl) Save(ctx context.Context, w *wave.Wave) error {
	dependsOn := make([]string, 0, len(w.DependsOn()))
	for _, id := range w.DependsOn() {
		dependsOn = append(dependsOn, id.String())
	}
	dependsOnJSON, err := json.Marshal(dependsOn)
	if err != nil {
		return fmt.Errorf("marshal depends_on: %w", err)
	}

	var closedAt sql.NullString
	if t := w.ClosedAt(); t != nil {
		closedAt = sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save wave: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO waves (wave_id, name, max_concurrency, depends_on, closed, created_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(wave_id) DO UPDATE SET
			name = excluded.name,
			max_concurrency = excluded.max_concurrency,
			depends_on = excluded.depends_on,
			closed = excluded.closed,
			closed_at = excluded.closed_at`,
		w.ID().String(),
		w.Name(),
		w.MaxConcurrency(),
		string(dependsOnJSON),
		boolToInt(w.IsClosed()),
		w.CreatedAt().UTC().Format(time.RFC3339Nano),
		closedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert wave: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM wave_steps WHERE wave_id = ?`, w.ID().String()); err != nil {
		return fmt.Errorf("clear wave steps: %w", err)
	}

	for i, stepID := range w.StepIDs() {
		status, ok := w.StepStatus(stepID)
		if !ok {
			return fmt.Errorf("wave %s: no status for step %s", w.ID().String(), stepID.String())
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO wave_steps (wave_id, position, step_id, status)
			VALUES (?, ?, ?, ?)`,
			w.ID().String(), i, stepID.String(), status.String(),
		)
		if err != nil {
			return fmt.Errorf("insert wave step: %w", err)
		}
	}

	return tx.Commit()
}

// Find returns a wave by ID, or nil when absent
func (r *WaveRepositoryImpl) Find(ctx context.Context, id model.WaveID) (*wave.Wave, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT wave_id, name, max_concurrency, depends_on, closed, created_at, closed_at
		FROM waves WHERE wave_id = ?`, id.String())

	w, err := r.scanWave(ctx, row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return w, err
}

// FindOpen returns every wave that has not yet closed, oldest first
func (r *WaveRepositoryImpl) FindOpen(ctx context.Context) ([]*wave.Wave, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT wave_id, name, max_concurrency, depends_on, closed, created_at, closed_at
		FROM waves WHERE closed = 0 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query open waves: %w", err)
	}
	defer rows.Close()

	var out []*wave.Wave
	for rows.Next() {
		w, err := r.scanWave(ctx, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *WaveRepositoryImpl) scanWave(ctx context.Context, row rowScanner) (*wave.Wave, error) {
	var (
		idStr, name, dependsOnJSON, createdAtStr string
		maxConcurrency, closedInt                int
		closedAtStr                              sql.NullString
	)
	err := row.Scan(&idStr, &name, &maxConcurrency, &dependsOnJSON, &closedInt, &createdAtStr, &closedAtStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan wave: %w", err)
	}

	waveID, err := model.NewWaveIDFromString(idStr)
	if err != nil {
		return nil, fmt.Errorf("wave %s: %w", idStr, err)
	}

	var dependsOnStrs []string
	if err := json.Unmarshal([]byte(dependsOnJSON), &dependsOnStrs); err != nil {
		return nil, fmt.Errorf("wave %s: unmarshal depends_on: %w", idStr, err)
	}
	var dependsOn []model.WaveID
	for _, s := range dependsOnStrs {
		dep, err := model.NewWaveIDFromString(s)
		if err != nil {
			return nil, fmt.Errorf("wave %s: invalid dependency %q: %w", idStr, s, err)
		}
		dependsOn = append(dependsOn, dep)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("wave %s: parse created_at: %w", idStr, err)
	}
	var closedAt *time.Time
	if closedAtStr.Valid {
		t, err := time.Parse(time.RFC3339Nano, closedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("wave %s: parse closed_at: %w", idStr, err)
		}
		closedAt = &t
	}

	stepOrder, stepStatus, err := r.loadWaveSteps(ctx, idStr)
	if err != nil {
		return nil, err
	}

	return wave.ReconstructWave(
		waveID, name, maxConcurrency, dependsOn,
		stepOrder, stepStatus, closedInt != 0, createdAt, closedAt,
	), nil
}

func (r *WaveRepositoryImpl) loadWaveSteps(ctx context.Context, waveID string) ([]model.StepID, map[string]step.StepStatus, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT step_id, status FROM wave_steps
		WHERE wave_id = ? ORDER BY position`, waveID)
	if err != nil {
		return nil, nil, fmt.Errorf("query wave steps: %w", err)
	}
	defer rows.Close()

	var order []model.StepID
	status := make(map[string]step.StepStatus)
	for rows.Next() {
		var stepIDStr, statusStr string
		if err := rows.Scan(&stepIDStr, &statusStr); err != nil {
			return nil, nil, fmt.Errorf("scan wave step: %w", err)
		}
		stepID, err := model.NewStepIDFromString(stepIDStr)
		if err != nil {
			return nil, nil, fmt.Errorf("wave %s: invalid step ID %q: %w", waveID, stepIDStr, err)
		}
		order = append(order, stepID)
		status[stepIDStr] = step.StepStatus(statusStr)
	}
	return order, status, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
