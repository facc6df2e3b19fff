package contract

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	contractmodel "github.com/waverun-dev/waverun/internal/domain/model/contract"
)

// CustomRule is a caller-supplied validation hook. A returned error or a
// panic inside Check becomes an error-severity issue; it never aborts the run.
type CustomRule struct {
	ID    string
	Check func(c *contractmodel.AgentContract) ([]ValidationIssue, error)
}

// Registry is the read side of the contract store consulted during
// cross-checks. A nil registry skips the cross-check stage.
type Registry interface {
	Find(ctx context.Context, contractID string) (*contractmodel.AgentContract, error)
	FindAll(ctx context.Context) ([]*contractmodel.AgentContract, error)
}

// Options tunes a validation run
type Options struct {
	MinPreconditions  int
	MinPostconditions int
	MinInvariants     int
	CustomRules       []CustomRule
}

// Validator checks agent contracts for structural and semantic problems.
// It only reports; it never mutates a contract or the registry.
type Validator struct {
	registry Registry
}

// NewValidator creates a Validator. registry may be nil.
func NewValidator(registry Registry) *Validator {
	return &Validator{registry: registry}
}

// Validate runs all check stages against a single contract.
// Valid is true exactly when no error-severity issue was recorded.
func (v *Validator) Validate(ctx context.Context, c *contractmodel.AgentContract, opts Options) *ValidationResult {
	result := newResult(c.ID())

	v.checkStructure(c, result)
	v.checkConditionSet(c.Preconditions(), "preconditions", contractmodel.ConditionTypePrecondition, result)
	v.checkConditionSet(c.Postconditions(), "postconditions", contractmodel.ConditionTypePostcondition, result)
	v.checkConditionSet(c.Invariants(), "invariants", contractmodel.ConditionTypeInvariant, result)
	v.checkMinimums(c, opts, result)
	v.checkCompleteness(c, result)
	v.checkConsistency(c, result)
	v.checkRegistry(ctx, c, result)
	v.runCustomRules(c, opts.CustomRules, result)

	return result.finalize()
}

// ValidateAll validates each contract independently, keyed by contract ID.
// There is no cross-contract aggregation beyond the per-contract registry check.
func (v *Validator) ValidateAll(ctx context.Context, contracts []*contractmodel.AgentContract, opts Options) map[string]*ValidationResult {
	results := make(map[string]*ValidationResult, len(contracts))
	for _, c := range contracts {
		results[c.ID()] = v.Validate(ctx, c, opts)
	}
	return results
}

func (v *Validator) checkStructure(c *contractmodel.AgentContract, result *ValidationResult) {
	if c.ID() == "" {
		result.add(ValidationIssue{
			Code:     CodeEmptyContractID,
			Severity: SeverityError,
			Field:    "id",
			Message:  "contract ID must not be empty",
		})
	} else if !isSafeIdent(c.ID()) {
		result.add(ValidationIssue{
			Code:     CodeContractIDCharset,
			Severity: SeverityWarning,
			Field:    "id",
			Message:  fmt.Sprintf("contract ID %q contains characters outside [A-Za-z0-9_-]", c.ID()),
		})
	}

	if c.Name() == "" {
		result.add(ValidationIssue{
			Code:     CodeEmptyContractName,
			Severity: SeverityError,
			Field:    "name",
			Message:  "contract name must not be empty",
		})
	}

	if !c.TaskType().IsValid() {
		result.add(ValidationIssue{
			Code:     CodeInvalidTaskType,
			Severity: SeverityError,
			Field:    "task_type",
			Message:  fmt.Sprintf("unknown task type %q", c.TaskType()),
		})
	}

	if !c.VerificationMethod().IsValid() {
		result.add(ValidationIssue{
			Code:     CodeInvalidVerification,
			Severity: SeverityError,
			Field:    "verification_method",
			Message:  fmt.Sprintf("unknown verification method %q", c.VerificationMethod()),
		})
	}
}

func (v *Validator) checkConditionSet(set []*contractmodel.Condition, field string, want contractmodel.ConditionType, result *ValidationResult) {
	seen := make(map[string]bool, len(set))

	for i, cond := range set {
		condField := fmt.Sprintf("%s[%d]", field, i)

		if cond.ID() == "" {
			result.add(ValidationIssue{
				Code:     CodeMissingConditionID,
				Severity: SeverityError,
				Field:    condField,
				Message:  "condition ID must not be empty",
			})
		} else {
			key := foldName(cond.ID())
			if seen[key] {
				result.add(ValidationIssue{
					Code:     CodeDuplicateConditionID,
					Severity: SeverityError,
					Field:    condField,
					Message:  fmt.Sprintf("condition ID %q appears more than once in %s", cond.ID(), field),
				})
			}
			seen[key] = true
		}

		if cond.Name() == "" {
			result.add(ValidationIssue{
				Code:     CodeMissingConditionName,
				Severity: SeverityError,
				Field:    condField,
				Message:  "condition name must not be empty",
			})
		}

		if cond.Message() == "" {
			result.add(ValidationIssue{
				Code:     CodeMissingErrorMessage,
				Severity: SeverityWarning,
				Field:    condField,
				Message:  fmt.Sprintf("condition %q has no failure message", cond.ID()),
			})
		}

		if cond.Type() != want {
			result.add(ValidationIssue{
				Code:     CodeConditionTypeMismatch,
				Severity: SeverityWarning,
				Field:    condField,
				Message:  fmt.Sprintf("condition %q is typed %s but placed in %s", cond.ID(), cond.Type(), field),
			})
		}
	}
}

func (v *Validator) checkMinimums(c *contractmodel.AgentContract, opts Options, result *ValidationResult) {
	checkMin := func(field string, got, min int) {
		if min > 0 && got < min {
			result.add(ValidationIssue{
				Code:     CodeBelowMinimumConditions,
				Severity: SeverityError,
				Field:    field,
				Message:  fmt.Sprintf("%s has %d conditions, minimum is %d", field, got, min),
			})
		}
	}

	checkMin("preconditions", len(c.Preconditions()), opts.MinPreconditions)
	checkMin("postconditions", len(c.Postconditions()), opts.MinPostconditions)
	checkMin("invariants", len(c.Invariants()), opts.MinInvariants)

	if c.ConditionCount() == 0 {
		result.add(ValidationIssue{
			Code:     CodeNoConditions,
			Severity: SeverityWarning,
			Message:  "contract defines no conditions at all",
		})
	}
}

// recommendedFragments maps each task type to condition-id fragments a
// well-formed contract of that type usually carries.
var recommendedFragments = map[contractmodel.TaskType]struct {
	pre  []string
	post []string
}{
	contractmodel.TaskTypeImplementFeature: {
		pre:  []string{"spec", "requirements"},
		post: []string{"tests-pass"},
	},
	contractmodel.TaskTypeFixBug: {
		pre:  []string{"bug-report", "reproduction"},
		post: []string{"tests-pass", "no-regression"},
	},
	contractmodel.TaskTypeRefactor: {
		pre:  []string{"tests-pass"},
		post: []string{"tests-pass", "behavior-preserved"},
	},
	contractmodel.TaskTypeTest: {
		pre:  []string{"target"},
		post: []string{"coverage"},
	},
	contractmodel.TaskTypeReview: {
		pre:  []string{"diff"},
		post: []string{"review-complete"},
	},
	contractmodel.TaskTypeDeploy: {
		pre:  []string{"build", "approval"},
		post: []string{"healthy"},
	},
}

func (v *Validator) checkCompleteness(c *contractmodel.AgentContract, result *ValidationResult) {
	rec, ok := recommendedFragments[c.TaskType()]
	if !ok {
		return
	}

	report := func(field, fragment string, set []*contractmodel.Condition) {
		for _, cond := range set {
			if strings.Contains(foldName(cond.ID()), foldName(fragment)) {
				return
			}
		}
		result.add(ValidationIssue{
			Code:     CodeMissingRecommended,
			Severity: SeverityInfo,
			Field:    field,
			Message:  fmt.Sprintf("contracts for %s usually include a %s containing %q", c.TaskType(), strings.TrimSuffix(field, "s"), fragment),
		})
	}

	for _, fragment := range rec.pre {
		report("preconditions", fragment, c.Preconditions())
	}
	for _, fragment := range rec.post {
		report("postconditions", fragment, c.Postconditions())
	}
}

func (v *Validator) checkConsistency(c *contractmodel.AgentContract, result *ValidationResult) {
	for _, pre := range c.Preconditions() {
		for _, post := range c.Postconditions() {
			if namingOpposites(pre.ID(), post.ID()) {
				result.add(ValidationIssue{
					Code:     CodePotentialContradiction,
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("precondition %q and postcondition %q look like naming opposites", pre.ID(), post.ID()),
				})
			}
		}
	}

	for i, inv := range c.Invariants() {
		id := foldName(inv.ID())
		if strings.HasPrefix(id, "state-") && id != "valid-state" {
			result.add(ValidationIssue{
				Code:     CodeRestrictiveStateInvariant,
				Severity: SeverityInfo,
				Field:    fmt.Sprintf("invariants[%d]", i),
				Message:  fmt.Sprintf("invariant %q pins a specific state; invariants hold across all states", inv.ID()),
			})
		}
	}
}

func (v *Validator) checkRegistry(ctx context.Context, c *contractmodel.AgentContract, result *ValidationResult) {
	if v.registry == nil {
		return
	}

	if existing, err := v.registry.Find(ctx, c.ID()); err == nil && existing != nil {
		result.add(ValidationIssue{
			Code:     CodeRegistryDuplicateID,
			Severity: SeverityWarning,
			Field:    "id",
			Message:  fmt.Sprintf("contract %q already registered; saving will update it", c.ID()),
		})
	}

	all, err := v.registry.FindAll(ctx)
	if err != nil {
		return
	}
	for _, other := range all {
		if other.ID() == c.ID() {
			continue
		}
		if foldName(other.Name()) == foldName(c.Name()) {
			result.add(ValidationIssue{
				Code:     CodeRegistryDuplicateName,
				Severity: SeverityInfo,
				Field:    "name",
				Message:  fmt.Sprintf("name %q is already used by contract %q", c.Name(), other.ID()),
			})
		}
	}
}

func (v *Validator) runCustomRules(c *contractmodel.AgentContract, rules []CustomRule, result *ValidationResult) {
	for _, rule := range rules {
		issues, err := runCustomRule(rule, c)
		if err != nil {
			result.add(ValidationIssue{
				Code:     CodeCustomRuleFailed,
				Severity: SeverityError,
				Message:  fmt.Sprintf("custom rule %q failed: %v", rule.ID, err),
			})
			continue
		}
		for _, issue := range issues {
			result.add(issue)
		}
	}
}

func runCustomRule(rule CustomRule, c *contractmodel.AgentContract) (issues []ValidationIssue, err error) {
	defer func() {
		if r := recover(); r != nil {
			issues = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if rule.Check == nil {
		return nil, fmt.Errorf("no check function bound")
	}
	return rule.Check(c)
}

// foldName normalizes to NFKC and folds case so visually identical
// identifiers compare equal.
func foldName(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

// namingOpposites reports whether a precondition and postcondition id form a
// has-X / no-X pair. The match is symmetric and tolerant of a no-has-X form.
func namingOpposites(a, b string) bool {
	return opposed(foldName(a), foldName(b)) || opposed(foldName(b), foldName(a))
}

func opposed(hasID, noID string) bool {
	if !strings.HasPrefix(hasID, "has-") || !strings.HasPrefix(noID, "no-") {
		return false
	}
	subject := strings.TrimPrefix(hasID, "has-")
	return subject != "" && strings.Contains(noID, subject)
}

func isSafeIdent(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}
