package contract

import (
	"context"
	"strings"
)

// StandardPredicate returns the runtime predicate for a condition ID that
// follows the engine's naming conventions, or nil when the ID is not one the
// catalog can evaluate:
//
//	has-<key>      inputs or outputs carry <key>
//	no-has-<key>   negation of has-<key>
//	no-<key>       <key> absent from inputs and outputs
//	valid-state    the context reports a state name
//
// Persisted contracts store conditions without predicates; this catalog is
// how they become executable again.
func StandardPredicate(id string) Predicate {
	switch {
	case id == "valid-state":
		return func(_ context.Context, ec EvalContext) (bool, error) {
			return ec.StateName() != "", nil
		}
	case strings.HasPrefix(id, "no-has-"):
		return keyAbsent(strings.TrimPrefix(id, "no-has-"))
	case strings.HasPrefix(id, "no-"):
		return keyAbsent(strings.TrimPrefix(id, "no-"))
	case strings.HasPrefix(id, "has-"):
		return keyPresent(strings.TrimPrefix(id, "has-"))
	}
	return nil
}

func keyPresent(key string) Predicate {
	return func(_ context.Context, ec EvalContext) (bool, error) {
		if _, ok := ec.Input(key); ok {
			return true, nil
		}
		_, ok := ec.Output(key)
		return ok, nil
	}
}

func keyAbsent(key string) Predicate {
	present := keyPresent(key)
	return func(ctx context.Context, ec EvalContext) (bool, error) {
		ok, err := present(ctx, ec)
		return !ok, err
	}
}

// BindRuntimePredicates returns a copy of c where every condition without a
// predicate gets one from the standard catalog. Conditions the catalog cannot
// bind are omitted from the copy; a condition without code behind it cannot
// gate execution. Their IDs are returned so the caller can report them.
func BindRuntimePredicates(c *AgentContract) (*AgentContract, []string) {
	var unbound []string
	bindSet := func(set []*Condition) []*Condition {
		out := make([]*Condition, 0, len(set))
		for _, cond := range set {
			if cond.HasPredicate() {
				out = append(out, cond)
				continue
			}
			p := StandardPredicate(cond.ID())
			if p == nil {
				unbound = append(unbound, cond.ID())
				continue
			}
			out = append(out, ReconstructCondition(cond.ID(), cond.Name(), cond.Type(), p, cond.Message()))
		}
		return out
	}

	pre := bindSet(c.Preconditions())
	post := bindSet(c.Postconditions())
	inv := bindSet(c.Invariants())
	return ReconstructAgentContract(c.ID(), c.Name(), c.TaskType(), c.VerificationMethod(), pre, post, inv), unbound
}
