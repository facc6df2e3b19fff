package cli

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	contractvalidator "github.com/waverun-dev/waverun/internal/validator/contract"
)

func newContractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contract",
		Short: "Manage and validate agent contracts",
		RunE:  func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.AddCommand(newContractValidateCmd())
	cmd.AddCommand(newContractRegisterCmd())
	cmd.AddCommand(newContractListCmd())
	return cmd
}

func newContractValidateCmd() *cobra.Command {
	var (
		minPre  int
		minPost int
		minInv  int
	)

	cmd := &cobra.Command{
		Use:   "validate <bundle.yaml>",
		Short: "Validate a contract bundle against structural and semantic rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := contractvalidator.LoadBundle(afero.NewOsFs(), args[0])
			if err != nil {
				return err
			}

			c, err := buildContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			opts := contractvalidator.Options{
				MinPreconditions:  minPre,
				MinPostconditions: minPost,
				MinInvariants:     minInv,
			}
			results := c.ContractValidator().ValidateAll(cmd.Context(), bundle.Materialize(), opts)

			if jsonOutput() {
				return printJSON(results)
			}

			invalid := 0
			for _, result := range results {
				printValidationResult(result)
				if !result.Valid {
					invalid++
				}
			}
			if invalid > 0 {
				return fmt.Errorf("%d contract(s) failed validation", invalid)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&minPre, "min-preconditions", 0, "minimum precondition count")
	cmd.Flags().IntVar(&minPost, "min-postconditions", 0, "minimum postcondition count")
	cmd.Flags().IntVar(&minInv, "min-invariants", 0, "minimum invariant count")
	return cmd
}

func newContractRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <bundle.yaml>",
		Short: "Validate and store contracts from a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := contractvalidator.LoadBundle(afero.NewOsFs(), args[0])
			if err != nil {
				return err
			}

			c, err := buildContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			contracts := bundle.Materialize()
			results := c.ContractValidator().ValidateAll(cmd.Context(), contracts, contractvalidator.Options{})
			for _, result := range results {
				if !result.Valid {
					printValidationResult(result)
					return fmt.Errorf("contract %s failed validation, nothing registered", result.ContractID)
				}
			}

			for _, contract := range contracts {
				if err := c.ContractRepository().Save(cmd.Context(), contract); err != nil {
					return fmt.Errorf("register contract %s: %w", contract.ID(), err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %s\n", contract.ID())
			}
			return nil
		},
	}
	return cmd
}

func newContractListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered contracts",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			contracts, err := c.ContractRepository().FindAll(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput() {
				type row struct {
					ID                 string `json:"id"`
					Name               string `json:"name"`
					TaskType           string `json:"task_type"`
					VerificationMethod string `json:"verification_method"`
					Conditions         int    `json:"conditions"`
				}
				rows := make([]row, 0, len(contracts))
				for _, ct := range contracts {
					rows = append(rows, row{
						ID:                 ct.ID(),
						Name:               ct.Name(),
						TaskType:           ct.TaskType().String(),
						VerificationMethod: ct.VerificationMethod().String(),
						Conditions:         ct.ConditionCount(),
					})
				}
				return printJSON(rows)
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Name", "Task Type", "Verification", "Conditions"})
			for _, ct := range contracts {
				tw.AppendRow(table.Row{
					ct.ID(), ct.Name(), ct.TaskType(), ct.VerificationMethod(), ct.ConditionCount(),
				})
			}
			tw.Render()
			return nil
		},
	}
}

func printValidationResult(result *contractvalidator.ValidationResult) {
	status := "VALID"
	if !result.Valid {
		status = "INVALID"
	}
	fmt.Printf("%s: %s (%d error(s), %d warning(s), %d info)\n",
		result.ContractID, status,
		result.Summary.Errors, result.Summary.Warnings, result.Summary.Infos)

	if len(result.Issues) == 0 {
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Severity", "Code", "Field", "Message"})
	for _, issue := range result.Issues {
		tw.AppendRow(table.Row{issue.Severity, issue.Code, issue.Field, issue.Message})
	}
	tw.Render()
}
