package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/waverun-dev/waverun/internal/app"
	"github.com/waverun-dev/waverun/internal/application/usecase/run"
	"github.com/waverun-dev/waverun/internal/domain/model/contract"
	"github.com/waverun-dev/waverun/internal/domain/repository"
)

func newRunCmd() *cobra.Command {
	var (
		taskID      string
		title       string
		prompt      string
		maxAttempts int
		timeout     time.Duration
		contractID  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single task through the execution lifecycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				return fmt.Errorf("--prompt is required")
			}

			c, err := buildContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			if maxAttempts == 0 {
				maxAttempts = globalConfig.MaxAttempts()
			}
			if timeout == 0 {
				timeout = globalConfig.AgentTimeout()
			}

			gate, err := resolveRunContract(cmd.Context(), c.ContractRepository(), contractID)
			if err != nil {
				return err
			}

			result, err := c.Runner().Run(cmd.Context(), run.RunInput{
				TaskID:      taskID,
				Title:       title,
				Prompt:      prompt,
				MaxAttempts: maxAttempts,
				Timeout:     timeout,
				Contract:    gate,
			})
			if err != nil {
				return err
			}

			if jsonOutput() {
				return printJSON(result)
			}

			fmt.Printf("Task %s finished in state %s after %d attempt(s)\n",
				result.TaskID, result.FinalState, result.Attempts)

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"#", "Transition", "From", "To", "OK", "Elapsed"})
			for i, tr := range result.Transitions {
				tw.AppendRow(table.Row{
					i + 1, tr.TransitionID, tr.From, tr.To, tr.Success, tr.Duration,
				})
			}
			tw.Render()

			if len(result.CheckpointIDs) > 0 {
				fmt.Printf("Checkpoints: %v\n", result.CheckpointIDs)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&taskID, "task", "", "task ID (generated when empty)")
	cmd.Flags().StringVar(&title, "title", "task", "task title")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "agent prompt")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "step attempt budget (default from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-execution agent timeout (default from config)")
	cmd.Flags().StringVar(&contractID, "contract", "", "contract ID gating the run (default: registered implement_feature contract)")
	return cmd
}

// resolveRunContract picks the contract gating a run: an explicit ID must
// exist; otherwise the first registered implement_feature contract applies.
// Stored conditions carry no code, so runtime predicates are bound from the
// standard catalog; conditions the catalog cannot bind are reported and do
// not gate.
func resolveRunContract(ctx context.Context, repo repository.ContractRepository, contractID string) (*contract.AgentContract, error) {
	var picked *contract.AgentContract

	if contractID != "" {
		found, err := repo.Find(ctx, contractID)
		if err != nil {
			return nil, fmt.Errorf("resolve contract %s: %w", contractID, err)
		}
		picked = found
	} else {
		all, err := repo.FindAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("list contracts: %w", err)
		}
		for _, cand := range all {
			if cand.TaskType() == contract.TaskTypeImplementFeature {
				picked = cand
				break
			}
		}
	}
	if picked == nil {
		return nil, nil
	}

	bound, unbound := contract.BindRuntimePredicates(picked)
	if len(unbound) > 0 {
		app.GetLogger().Warn("contract %s: no runtime predicate for %v; those conditions do not gate", picked.ID(), unbound)
	}
	if bound.ConditionCount() == 0 {
		return nil, nil
	}
	return bound, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
