package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/waverun-dev/waverun/internal/domain/model/contract"
	"github.com/waverun-dev/waverun/internal/domain/repository"
)

// ContractRepositoryImpl implements repository.ContractRepository with SQLite.
// Conditions are stored in a child table; predicates are code, not data, so
// loaded conditions carry nil predicates and are re-bound by callers that
// need runtime evaluation.
type ContractRepositoryImpl struct {
	db *sql.DB
}

// NewContractRepository creates a SQLite-backed contract repository
func NewContractRepository(db *sql.DB) repository.ContractRepository {
	return &ContractRepositoryImpl{db: db}
}

// Save inserts or replaces a contract and all its conditions
func (r *ContractRepositoryImpl) Save(ctx context.Context, c *contract.AgentContract) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save contract: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO contracts (contract_id, name, task_type, verification_method, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(contract_id) DO UPDATE SET
			name = excluded.name,
			task_type = excluded.task_type,
			verification_method = excluded.verification_method,
			updated_at = excluded.updated_at`,
		c.ID(),
		c.Name(),
		c.TaskType().String(),
		c.VerificationMethod().String(),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert contract: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM contract_conditions WHERE contract_id = ?`, c.ID()); err != nil {
		return fmt.Errorf("clear contract conditions: %w", err)
	}

	sets := []struct {
		name  string
		conds []*contract.Condition
	}{
		{"preconditions", c.Preconditions()},
		{"postconditions", c.Postconditions()},
		{"invariants", c.Invariants()},
	}
	for _, set := range sets {
		for i, cond := range set.conds {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO contract_conditions (contract_id, set_name, position, condition_id, name, cond_type, message)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				c.ID(), set.name, i, cond.ID(), cond.Name(), cond.Type().String(), cond.Message(),
			)
			if err != nil {
				return fmt.Errorf("insert condition %s: %w", cond.ID(), err)
			}
		}
	}

	return tx.Commit()
}

// Find returns a contract by ID
func (r *ContractRepositoryImpl) Find(ctx context.Context, contractID string) (*contract.AgentContract, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT contract_id, name, task_type, verification_method
		FROM contracts WHERE contract_id = ?`, contractID)

	var id, name, taskType, method string
	if err := row.Scan(&id, &name, &taskType, &method); err != nil {
		if err == sql.ErrNoRows {
			return nil, contract.ErrContractNotFound
		}
		return nil, fmt.Errorf("scan contract: %w", err)
	}

	return r.loadConditions(ctx, id, name, contract.TaskType(taskType), contract.VerificationMethod(method))
}

// FindAll returns every registered contract
func (r *ContractRepositoryImpl) FindAll(ctx context.Context) ([]*contract.AgentContract, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT contract_id, name, task_type, verification_method
		FROM contracts ORDER BY contract_id`)
	if err != nil {
		return nil, fmt.Errorf("query contracts: %w", err)
	}
	defer rows.Close()

	type header struct {
		id, name, taskType, method string
	}
	var headers []header
	for rows.Next() {
		var h header
		if err := rows.Scan(&h.id, &h.name, &h.taskType, &h.method); err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		headers = append(headers, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contracts: %w", err)
	}

	var out []*contract.AgentContract
	for _, h := range headers {
		c, err := r.loadConditions(ctx, h.id, h.name, contract.TaskType(h.taskType), contract.VerificationMethod(h.method))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Delete removes a contract; the conditions go with it via cascade.
// Deleting an absent ID is a no-op.
func (r *ContractRepositoryImpl) Delete(ctx context.Context, contractID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM contracts WHERE contract_id = ?`, contractID); err != nil {
		return fmt.Errorf("delete contract: %w", err)
	}
	return nil
}

func (r *ContractRepositoryImpl) loadConditions(
	ctx context.Context,
	id, name string,
	taskType contract.TaskType,
	method contract.VerificationMethod,
) (*contract.AgentContract, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT set_name, condition_id, name, cond_type, message
		FROM contract_conditions WHERE contract_id = ?
		ORDER BY set_name, position`, id)
	if err != nil {
		return nil, fmt.Errorf("query conditions for %s: %w", id, err)
	}
	defer rows.Close()

	var pre, post, inv []*contract.Condition
	for rows.Next() {
		var setName, condID, condName, condType, message string
		if err := rows.Scan(&setName, &condID, &condName, &condType, &message); err != nil {
			return nil, fmt.Errorf("scan condition: %w", err)
		}
		cond := contract.ReconstructCondition(condID, condName, contract.ConditionType(condType), nil, message)
		switch setName {
		case "preconditions":
			pre = append(pre, cond)
		case "postconditions":
			post = append(post, cond)
		case "invariants":
			inv = append(inv, cond)
		default:
			return nil, fmt.Errorf("contract %s: unknown condition set %q", id, setName)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conditions for %s: %w", id, err)
	}

	return contract.ReconstructAgentContract(id, name, taskType, method, pre, post, inv), nil
}
