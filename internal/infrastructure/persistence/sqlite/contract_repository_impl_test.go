package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waverun-dev/waverun/internal/domain/model/contract"
)

func buildStoredContract(t *testing.T, id, name string) *contract.AgentContract {
	t.Helper()
	c, err := contract.NewAgentContract(id, name, contract.TaskTypeFixBug, contract.VerificationRuntime)
	require.NoError(t, err)

	pre, err := contract.NewCondition("has-bug-report", "Bug report exists", contract.ConditionTypePrecondition, nil, "bug report is required")
	require.NoError(t, err)
	require.NoError(t, c.AddPrecondition(pre))

	post, err := contract.NewCondition("tests-pass", "Tests pass", contract.ConditionTypePostcondition, nil, "the suite must be green")
	require.NoError(t, err)
	require.NoError(t, c.AddPostcondition(post))

	inv, err := contract.NewCondition("valid-state", "State stays valid", contract.ConditionTypeInvariant, nil, "machine state must remain valid")
	require.NoError(t, err)
	require.NoError(t, c.AddInvariant(inv))

	return c
}

func TestContractRepository_SaveAndFind(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContractRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, buildStoredContract(t, "fix-bug-v1", "Bug fix contract")))

	found, err := repo.Find(ctx, "fix-bug-v1")
	require.NoError(t, err)
	assert.Equal(t, "Bug fix contract", found.Name())
	assert.Equal(t, contract.TaskTypeFixBug, found.TaskType())
	assert.Equal(t, contract.VerificationRuntime, found.VerificationMethod())

	require.Len(t, found.Preconditions(), 1)
	pre := found.Preconditions()[0]
	assert.Equal(t, "has-bug-report", pre.ID())
	assert.Equal(t, "bug report is required", pre.Message())
	assert.False(t, pre.HasPredicate())

	require.Len(t, found.Postconditions(), 1)
	require.Len(t, found.Invariants(), 1)
	assert.Equal(t, contract.ConditionTypeInvariant, found.Invariants()[0].Type())
}

func TestContractRepository_SaveUpdatesInPlace(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContractRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, buildStoredContract(t, "fix-bug-v1", "Bug fix contract")))

	updated, err := contract.NewAgentContract("fix-bug-v1", "Bug fix contract v2", contract.TaskTypeFixBug, contract.VerificationHybrid)
	require.NoError(t, err)
	cond, err := contract.NewCondition("reproduction", "Reproduction steps", contract.ConditionTypePrecondition, nil, "need reproduction steps")
	require.NoError(t, err)
	require.NoError(t, updated.AddPrecondition(cond))
	require.NoError(t, repo.Save(ctx, updated))

	found, err := repo.Find(ctx, "fix-bug-v1")
	require.NoError(t, err)
	assert.Equal(t, "Bug fix contract v2", found.Name())
	assert.Equal(t, contract.VerificationHybrid, found.VerificationMethod())
	require.Len(t, found.Preconditions(), 1)
	assert.Equal(t, "reproduction", found.Preconditions()[0].ID())
	assert.Empty(t, found.Postconditions())
	assert.Empty(t, found.Invariants())
}

func TestContractRepository_FindMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContractRepository(db)

	_, err := repo.Find(context.Background(), "absent")
	assert.ErrorIs(t, err, contract.ErrContractNotFound)
}

func TestContractRepository_FindAll(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContractRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, buildStoredContract(t, "contract-b", "B")))
	require.NoError(t, repo.Save(ctx, buildStoredContract(t, "contract-a", "A")))

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "contract-a", all[0].ID())
	assert.Equal(t, "contract-b", all[1].ID())
}

func TestContractRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContractRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, buildStoredContract(t, "fix-bug-v1", "Bug fix contract")))
	require.NoError(t, repo.Delete(ctx, "fix-bug-v1"))

	_, err := repo.Find(ctx, "fix-bug-v1")
	assert.ErrorIs(t, err, contract.ErrContractNotFound)

	// conditions go with the contract
	var count int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM contract_conditions WHERE contract_id = ?", "fix-bug-v1",
	).Scan(&count))
	assert.Zero(t, count)

	// deleting an absent ID is a no-op
	assert.NoError(t, repo.Delete(ctx, "never-existed"))
}
