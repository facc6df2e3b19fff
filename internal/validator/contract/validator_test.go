package contract

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contractmodel "github.com/waverun-dev/waverun/internal/domain/model/contract"
)

func cond(id, name string, condType contractmodel.ConditionType, message string) *contractmodel.Condition {
	return contractmodel.ReconstructCondition(id, name, condType, nil, message)
}

func buildContract(t *testing.T, taskType contractmodel.TaskType, pre, post, inv []*contractmodel.Condition) *contractmodel.AgentContract {
	t.Helper()
	return contractmodel.ReconstructAgentContract(
		"fix-login-bug", "Fix login bug", taskType, contractmodel.VerificationRuntime, pre, post, inv)
}

func issueCodes(result *ValidationResult) []string {
	codes := make([]string, 0, len(result.Issues))
	for _, issue := range result.Issues {
		codes = append(codes, issue.Code)
	}
	return codes
}

func TestValidate_WellFormedContract(t *testing.T) {
	c := buildContract(t, contractmodel.TaskTypeFixBug,
		[]*contractmodel.Condition{
			cond("has-bug-report", "Bug report exists", contractmodel.ConditionTypePrecondition, "no bug report attached"),
			cond("has-reproduction", "Reproduction steps exist", contractmodel.ConditionTypePrecondition, "cannot reproduce"),
		},
		[]*contractmodel.Condition{
			cond("tests-pass", "Test suite passes", contractmodel.ConditionTypePostcondition, "tests failed"),
			cond("no-regression", "No regression introduced", contractmodel.ConditionTypePostcondition, "regression detected"),
		},
		[]*contractmodel.Condition{
			cond("valid-state", "Context state is valid", contractmodel.ConditionTypeInvariant, "invalid state"),
		},
	)

	result := NewValidator(nil).Validate(context.Background(), c, Options{})

	assert.True(t, result.Valid)
	assert.Equal(t, 0, result.Summary.Errors)
	assert.Equal(t, 0, result.Summary.Warnings)
	assert.Equal(t, "fix-login-bug", result.ContractID)
}

func TestValidate_DuplicateConditionID(t *testing.T) {
	c := buildContract(t, contractmodel.TaskTypeFixBug,
		[]*contractmodel.Condition{
			cond("has-bug-report", "Bug report exists", contractmodel.ConditionTypePrecondition, "m"),
			cond("has-bug-report", "Bug report again", contractmodel.ConditionTypePrecondition, "m"),
		}, nil, nil)

	result := NewValidator(nil).Validate(context.Background(), c, Options{})

	assert.False(t, result.Valid)
	assert.Contains(t, issueCodes(result), CodeDuplicateConditionID)
	assert.GreaterOrEqual(t, result.Summary.Errors, 1)
}

func TestValidate_NFKCFoldedIDsCollide(t *testing.T) {
	// Fullwidth "ｔests-pass" normalizes to "tests-pass" under NFKC
	c := buildContract(t, contractmodel.TaskTypeRefactor, nil,
		[]*contractmodel.Condition{
			cond("tests-pass", "Tests pass", contractmodel.ConditionTypePostcondition, "m"),
			cond("ｔests-pass", "Tests pass fullwidth", contractmodel.ConditionTypePostcondition, "m"),
		}, nil)

	result := NewValidator(nil).Validate(context.Background(), c, Options{})

	assert.False(t, result.Valid)
	assert.Contains(t, issueCodes(result), CodeDuplicateConditionID)
}

func TestValidate_ZeroConditionsIsWarningNotError(t *testing.T) {
	c := buildContract(t, contractmodel.TaskTypeCustom, nil, nil, nil)

	result := NewValidator(nil).Validate(context.Background(), c, Options{})

	assert.True(t, result.Valid, "zero conditions must not invalidate the contract")
	assert.Contains(t, issueCodes(result), CodeNoConditions)
	assert.GreaterOrEqual(t, result.Summary.Warnings, 1)
}

func TestValidate_MinimumCounts(t *testing.T) {
	c := buildContract(t, contractmodel.TaskTypeCustom,
		[]*contractmodel.Condition{
			cond("has-spec", "Spec exists", contractmodel.ConditionTypePrecondition, "m"),
		}, nil, nil)

	result := NewValidator(nil).Validate(context.Background(), c, Options{
		MinPreconditions:  2,
		MinPostconditions: 1,
	})

	assert.False(t, result.Valid)
	codes := issueCodes(result)
	count := 0
	for _, code := range codes {
		if code == CodeBelowMinimumConditions {
			count++
		}
	}
	assert.Equal(t, 2, count, "both precondition and postcondition minimums missed")
}

func TestValidate_StructuralErrors(t *testing.T) {
	c := contractmodel.ReconstructAgentContract(
		"", "", "mystery", "vibes", nil, nil, nil)

	result := NewValidator(nil).Validate(context.Background(), c, Options{})

	assert.False(t, result.Valid)
	codes := issueCodes(result)
	assert.Contains(t, codes, CodeEmptyContractID)
	assert.Contains(t, codes, CodeEmptyContractName)
	assert.Contains(t, codes, CodeInvalidTaskType)
	assert.Contains(t, codes, CodeInvalidVerification)
}

func TestValidate_IDCharsetWarning(t *testing.T) {
	c := contractmodel.ReconstructAgentContract(
		"fix bug!", "Fix bug", contractmodel.TaskTypeFixBug, contractmodel.VerificationRuntime, nil, nil, nil)

	result := NewValidator(nil).Validate(context.Background(), c, Options{})

	assert.Contains(t, issueCodes(result), CodeContractIDCharset)
	for _, issue := range result.Issues {
		if issue.Code == CodeContractIDCharset {
			assert.Equal(t, SeverityWarning, issue.Severity)
		}
	}
}

func TestValidate_ConditionIssues(t *testing.T) {
	c := buildContract(t, contractmodel.TaskTypeCustom,
		[]*contractmodel.Condition{
			cond("", "Nameless id", contractmodel.ConditionTypePrecondition, "m"),
			cond("silent", "", contractmodel.ConditionTypePrecondition, ""),
			cond("misfiled", "Wrong set", contractmodel.ConditionTypePostcondition, "m"),
		}, nil, nil)

	result := NewValidator(nil).Validate(context.Background(), c, Options{})

	codes := issueCodes(result)
	assert.Contains(t, codes, CodeMissingConditionID)
	assert.Contains(t, codes, CodeMissingConditionName)
	assert.Contains(t, codes, CodeMissingErrorMessage)
	assert.Contains(t, codes, CodeConditionTypeMismatch)
	assert.False(t, result.Valid)
}

func TestValidate_PotentialContradiction(t *testing.T) {
	c := buildContract(t, contractmodel.TaskTypeCustom,
		[]*contractmodel.Condition{
			cond("has-bug-report", "Bug report exists", contractmodel.ConditionTypePrecondition, "m"),
		},
		[]*contractmodel.Condition{
			cond("no-has-bug-report", "Bug report cleared", contractmodel.ConditionTypePostcondition, "m"),
		}, nil)

	result := NewValidator(nil).Validate(context.Background(), c, Options{})

	assert.True(t, result.Valid, "contradiction is a warning, not an error")
	found := false
	for _, issue := range result.Issues {
		if issue.Code == CodePotentialContradiction {
			found = true
			assert.Equal(t, SeverityWarning, issue.Severity)
		}
	}
	assert.True(t, found)
}

func TestValidate_ContradictionIsSymmetric(t *testing.T) {
	c := buildContract(t, contractmodel.TaskTypeCustom,
		[]*contractmodel.Condition{
			cond("no-open-findings", "No open findings", contractmodel.ConditionTypePrecondition, "m"),
		},
		[]*contractmodel.Condition{
			cond("has-open-findings", "Findings recorded", contractmodel.ConditionTypePostcondition, "m"),
		}, nil)

	result := NewValidator(nil).Validate(context.Background(), c, Options{})

	assert.Contains(t, issueCodes(result), CodePotentialContradiction)
}

func TestValidate_StateInvariantInfo(t *testing.T) {
	c := buildContract(t, contractmodel.TaskTypeCustom, nil, nil,
		[]*contractmodel.Condition{
			cond("state-executing", "Pinned to executing", contractmodel.ConditionTypeInvariant, "m"),
			cond("valid-state", "State is valid", contractmodel.ConditionTypeInvariant, "m"),
		})

	result := NewValidator(nil).Validate(context.Background(), c, Options{})

	count := 0
	for _, issue := range result.Issues {
		if issue.Code == CodeRestrictiveStateInvariant {
			count++
			assert.Equal(t, SeverityInfo, issue.Severity)
		}
	}
	assert.Equal(t, 1, count, "valid-state must not be flagged")
}

func TestValidate_CompletenessHints(t *testing.T) {
	c := buildContract(t, contractmodel.TaskTypeFixBug,
		[]*contractmodel.Condition{
			cond("has-bug-report", "Bug report exists", contractmodel.ConditionTypePrecondition, "m"),
		}, nil, nil)

	result := NewValidator(nil).Validate(context.Background(), c, Options{})

	hints := 0
	for _, issue := range result.Issues {
		if issue.Code == CodeMissingRecommended {
			hints++
			assert.Equal(t, SeverityInfo, issue.Severity)
		}
	}
	// reproduction precondition plus tests-pass and no-regression postconditions
	assert.Equal(t, 3, hints)
	assert.True(t, result.Valid)
}

type stubRegistry struct {
	contracts []*contractmodel.AgentContract
	findErr   error
}

func (s *stubRegistry) Find(_ context.Context, id string) (*contractmodel.AgentContract, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, c := range s.contracts {
		if c.ID() == id {
			return c, nil
		}
	}
	return nil, contractmodel.ErrContractNotFound
}

func (s *stubRegistry) FindAll(_ context.Context) ([]*contractmodel.AgentContract, error) {
	return s.contracts, nil
}

func TestValidate_RegistryCrossCheck(t *testing.T) {
	existing := contractmodel.ReconstructAgentContract(
		"fix-login-bug", "Fix login bug", contractmodel.TaskTypeFixBug, contractmodel.VerificationRuntime, nil, nil, nil)
	sameName := contractmodel.ReconstructAgentContract(
		"other-id", "FIX LOGIN BUG", contractmodel.TaskTypeFixBug, contractmodel.VerificationRuntime, nil, nil, nil)
	registry := &stubRegistry{contracts: []*contractmodel.AgentContract{existing, sameName}}

	c := buildContract(t, contractmodel.TaskTypeFixBug, nil, nil, nil)
	result := NewValidator(registry).Validate(context.Background(), c, Options{})

	codes := issueCodes(result)
	assert.Contains(t, codes, CodeRegistryDuplicateID)
	assert.Contains(t, codes, CodeRegistryDuplicateName)
	assert.True(t, result.Valid, "registry findings never invalidate")
}

func TestValidate_RegistryMissIsClean(t *testing.T) {
	registry := &stubRegistry{findErr: contractmodel.ErrContractNotFound}

	c := buildContract(t, contractmodel.TaskTypeFixBug, nil, nil, nil)
	result := NewValidator(registry).Validate(context.Background(), c, Options{})

	assert.NotContains(t, issueCodes(result), CodeRegistryDuplicateID)
}

func TestValidate_CustomRules(t *testing.T) {
	c := buildContract(t, contractmodel.TaskTypeCustom, nil, nil, nil)

	opts := Options{CustomRules: []CustomRule{
		{
			ID: "own-issue",
			Check: func(_ *contractmodel.AgentContract) ([]ValidationIssue, error) {
				return []ValidationIssue{{
					Code: "TEAM_POLICY", Severity: SeverityWarning, Message: "needs owner label",
				}}, nil
			},
		},
		{
			ID: "broken",
			Check: func(_ *contractmodel.AgentContract) ([]ValidationIssue, error) {
				return nil, errors.New("rule backend unreachable")
			},
		},
		{
			ID: "panics",
			Check: func(_ *contractmodel.AgentContract) ([]ValidationIssue, error) {
				panic("boom")
			},
		},
	}}

	result := NewValidator(nil).Validate(context.Background(), c, opts)

	codes := issueCodes(result)
	assert.Contains(t, codes, "TEAM_POLICY")
	failures := 0
	for _, issue := range result.Issues {
		if issue.Code == CodeCustomRuleFailed {
			failures++
			assert.Equal(t, SeverityError, issue.Severity)
		}
	}
	assert.Equal(t, 2, failures, "error and panic rules both surface")
	assert.False(t, result.Valid)
}

func TestValidateAll(t *testing.T) {
	good := contractmodel.ReconstructAgentContract(
		"good", "Good", contractmodel.TaskTypeCustom, contractmodel.VerificationRuntime,
		[]*contractmodel.Condition{
			cond("has-spec", "Spec exists", contractmodel.ConditionTypePrecondition, "m"),
		}, nil, nil)
	bad := contractmodel.ReconstructAgentContract(
		"bad", "", contractmodel.TaskTypeCustom, contractmodel.VerificationRuntime, nil, nil, nil)

	results := NewValidator(nil).ValidateAll(context.Background(),
		[]*contractmodel.AgentContract{good, bad}, Options{})

	require.Len(t, results, 2)
	assert.True(t, results["good"].Valid)
	assert.False(t, results["bad"].Valid)
}

func TestLoadBundle(t *testing.T) {
	fs := afero.NewMemMapFs()
	bundleYAML := `contracts:
  - id: fix-login-bug
    name: Fix login bug
    task_type: fix_bug
    verification_method: runtime
    preconditions:
      - id: has-bug-report
        name: Bug report exists
        message: no bug report attached
    postconditions:
      - id: tests-pass
        name: Tests pass
        message: tests failed
`
	require.NoError(t, afero.WriteFile(fs, "/bundle.yaml", []byte(bundleYAML), 0644))

	bundle, err := LoadBundle(fs, "/bundle.yaml")
	require.NoError(t, err)
	require.Len(t, bundle.Contracts, 1)

	contracts := bundle.Materialize()
	require.Len(t, contracts, 1)
	c := contracts[0]
	assert.Equal(t, "fix-login-bug", c.ID())
	assert.Equal(t, contractmodel.TaskTypeFixBug, c.TaskType())
	require.Len(t, c.Preconditions(), 1)
	assert.Equal(t, contractmodel.ConditionTypePrecondition, c.Preconditions()[0].Type())

	result := NewValidator(nil).Validate(context.Background(), c, Options{})
	assert.True(t, result.Valid)
}

func TestLoadBundle_RejectsUnknownFields(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/bundle.yaml", []byte(`contracts:
  - id: x
    name: X
    task_type: custom
    verification_method: runtime
    precnditions: []
`), 0644))

	_, err := LoadBundle(fs, "/bundle.yaml")
	assert.Error(t, err, "typoed key must fail strict decode")
}

func TestLoadBundle_MissingFile(t *testing.T) {
	_, err := LoadBundle(afero.NewMemMapFs(), "/nope.yaml")
	assert.Error(t, err)
}
