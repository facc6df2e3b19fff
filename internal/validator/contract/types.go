package contract

import "time"

// Severity grades a validation issue
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue codes are stable strings consumed by the shell
const (
	CodeEmptyContractID           = "EMPTY_CONTRACT_ID"
	CodeContractIDCharset         = "CONTRACT_ID_CHARSET"
	CodeEmptyContractName         = "EMPTY_CONTRACT_NAME"
	CodeInvalidTaskType           = "INVALID_TASK_TYPE"
	CodeInvalidVerification       = "INVALID_VERIFICATION_METHOD"
	CodeDuplicateConditionID      = "DUPLICATE_CONDITION_ID"
	CodeMissingConditionID        = "MISSING_CONDITION_ID"
	CodeMissingConditionName      = "MISSING_CONDITION_NAME"
	CodeMissingErrorMessage       = "MISSING_ERROR_MESSAGE"
	CodeConditionTypeMismatch     = "CONDITION_TYPE_MISMATCH"
	CodeBelowMinimumConditions    = "BELOW_MINIMUM_CONDITIONS"
	CodeNoConditions              = "NO_CONDITIONS"
	CodeMissingRecommended        = "MISSING_RECOMMENDED_CONDITION"
	CodePotentialContradiction    = "POTENTIAL_CONTRADICTION"
	CodeRestrictiveStateInvariant = "RESTRICTIVE_STATE_INVARIANT"
	CodeRegistryDuplicateID       = "REGISTRY_DUPLICATE_ID"
	CodeRegistryDuplicateName     = "REGISTRY_DUPLICATE_NAME"
	CodeCustomRuleFailed          = "CUSTOM_RULE_FAILED"
)

// ValidationIssue is a single finding
type ValidationIssue struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Field    string   `json:"field,omitempty"`
	Message  string   `json:"message"`
}

// Summary contains per-severity counts
type Summary struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Infos    int `json:"infos"`
}

// ValidationResult is the complete, JSON-serializable outcome for one contract
type ValidationResult struct {
	ContractID  string            `json:"contract_id"`
	Valid       bool              `json:"valid"`
	GeneratedAt string            `json:"generated_at"`
	Issues      []ValidationIssue `json:"issues"`
	Summary     Summary           `json:"summary"`
}

func newResult(contractID string) *ValidationResult {
	return &ValidationResult{
		ContractID:  contractID,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Issues:      []ValidationIssue{},
	}
}

func (r *ValidationResult) add(issue ValidationIssue) {
	r.Issues = append(r.Issues, issue)
	switch issue.Severity {
	case SeverityError:
		r.Summary.Errors++
	case SeverityWarning:
		r.Summary.Warnings++
	case SeverityInfo:
		r.Summary.Infos++
	}
}

func (r *ValidationResult) finalize() *ValidationResult {
	r.Valid = r.Summary.Errors == 0
	return r
}
