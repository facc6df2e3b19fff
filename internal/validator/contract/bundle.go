package contract

import (
	"bytes"
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	contractmodel "github.com/waverun-dev/waverun/internal/domain/model/contract"
)

// BundleCondition is one condition entry in a YAML contract bundle.
// Bundles carry no predicates; those are bound in code at registration.
type BundleCondition struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Type    string `yaml:"type,omitempty"`
	Message string `yaml:"message,omitempty"`
}

// BundleContract is one contract entry in a YAML bundle
type BundleContract struct {
	ID                 string            `yaml:"id"`
	Name               string            `yaml:"name"`
	TaskType           string            `yaml:"task_type"`
	VerificationMethod string            `yaml:"verification_method"`
	Preconditions      []BundleCondition `yaml:"preconditions,omitempty"`
	Postconditions     []BundleCondition `yaml:"postconditions,omitempty"`
	Invariants         []BundleCondition `yaml:"invariants,omitempty"`
}

// Bundle is the top-level YAML document
type Bundle struct {
	Contracts []BundleContract `yaml:"contracts"`
}

// LoadBundle reads and strictly decodes a contract bundle. Unknown keys are
// a decode error so typos surface instead of silently dropping conditions.
func LoadBundle(fs afero.Fs, path string) (*Bundle, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read contract bundle: %w", err)
	}

	var bundle Bundle
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&bundle); err != nil {
		return nil, fmt.Errorf("decode contract bundle %s: %w", path, err)
	}
	return &bundle, nil
}

// Materialize rebuilds domain contracts from bundle entries without
// validation, so the validator can report on whatever the file contained.
// Condition types default to the set the condition is declared under.
func (b *Bundle) Materialize() []*contractmodel.AgentContract {
	out := make([]*contractmodel.AgentContract, 0, len(b.Contracts))
	for _, bc := range b.Contracts {
		out = append(out, bc.materialize())
	}
	return out
}

func (bc BundleContract) materialize() *contractmodel.AgentContract {
	return contractmodel.ReconstructAgentContract(
		bc.ID,
		bc.Name,
		contractmodel.TaskType(bc.TaskType),
		contractmodel.VerificationMethod(bc.VerificationMethod),
		materializeConditions(bc.Preconditions, contractmodel.ConditionTypePrecondition),
		materializeConditions(bc.Postconditions, contractmodel.ConditionTypePostcondition),
		materializeConditions(bc.Invariants, contractmodel.ConditionTypeInvariant),
	)
}

func materializeConditions(entries []BundleCondition, fallback contractmodel.ConditionType) []*contractmodel.Condition {
	if len(entries) == 0 {
		return nil
	}
	out := make([]*contractmodel.Condition, 0, len(entries))
	for _, e := range entries {
		condType := fallback
		if e.Type != "" {
			condType = contractmodel.ConditionType(e.Type)
		}
		out = append(out, contractmodel.ReconstructCondition(e.ID, e.Name, condType, nil, e.Message))
	}
	return out
}
