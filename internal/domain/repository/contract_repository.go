package repository

import (
	"context"

	"github.com/waverun-dev/waverun/internal/domain/model/contract"
)

// ContractRepository is the registry of agent contracts, keyed by contract ID
type ContractRepository interface {
	// Save inserts or updates a contract by ID
	Save(ctx context.Context, c *contract.AgentContract) error

	// Find returns a contract by ID, or contract.ErrContractNotFound
	Find(ctx context.Context, contractID string) (*contract.AgentContract, error)

	// FindAll returns every registered contract
	FindAll(ctx context.Context) ([]*contract.AgentContract, error)

	// Delete removes a contract; deleting an absent ID is a no-op
	Delete(ctx context.Context, contractID string) error
}
