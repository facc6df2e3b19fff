package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/waverun-dev/waverun/internal/application/usecase/replay"
	"github.com/waverun-dev/waverun/internal/domain/model"
)

func newCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Browse, export and replay step checkpoints",
		RunE:  func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.AddCommand(newCheckpointListCmd())
	cmd.AddCommand(newCheckpointShowCmd())
	cmd.AddCommand(newCheckpointExportCmd())
	cmd.AddCommand(newCheckpointReplayCmd())
	return cmd
}

func newCheckpointListCmd() *cobra.Command {
	var taskIDStr string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List checkpoints for a task in creation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := model.NewTaskIDFromString(taskIDStr)
			if err != nil {
				return fmt.Errorf("invalid task ID: %w", err)
			}

			c, err := buildContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			summaries, err := c.CheckpointService().ListStepCheckpoints(cmd.Context(), taskID)
			if err != nil {
				return err
			}

			if jsonOutput() {
				return printJSON(summaries)
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Checkpoint", "Step", "Label", "Created", "Corrupt"})
			for _, s := range summaries {
				tw.AppendRow(table.Row{
					s.CheckpointID, s.StepID, s.Label,
					s.CreatedAt.Format(time.RFC3339), s.Corrupt,
				})
			}
			tw.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&taskIDStr, "task", "", "task ID")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func newCheckpointShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <checkpoint-id>",
		Short: "Show the snapshotted step and context of a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			preview, err := c.CheckpointService().RestoreCheckpoint(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(preview)
		},
	}
}

func newCheckpointExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <checkpoint-id>",
		Short: "Archive a checkpoint payload to configured storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			meta, err := c.CheckpointService().ExportCheckpoint(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOutput() {
				return printJSON(meta)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s (%d bytes) to %s\n",
				meta.ID, meta.Size, meta.StoragePath)
			return nil
		},
	}
}

func newCheckpointReplayCmd() *cobra.Command {
	var (
		checkpointID string
		taskID       string
		skipFailed   bool
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Resume work from a checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if checkpointID == "" && taskID == "" {
				return fmt.Errorf("either --checkpoint or --task is required")
			}

			c, err := buildContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			if timeout == 0 {
				timeout = globalConfig.AgentTimeout()
			}

			result, err := c.Replayer().ReplayFromStep(cmd.Context(), replay.Options{
				CheckpointID: checkpointID,
				TaskID:       taskID,
				SkipFailed:   skipFailed,
				Timeout:      timeout,
			})
			if err != nil {
				return err
			}

			if jsonOutput() {
				return printJSON(result)
			}

			fmt.Printf("Checkpoint %s: decision %s (confidence %.2f), outcome %s\n",
				result.CheckpointID, result.Decision.Action,
				result.Decision.Confidence, result.Outcome)
			if result.Decision.Reason != "" {
				fmt.Printf("Reason: %s\n", result.Decision.Reason)
			}
			if result.Run != nil {
				fmt.Printf("Run finished in state %s after %d attempt(s)\n",
					result.Run.FinalState, result.Run.Attempts)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&checkpointID, "checkpoint", "", "checkpoint ID (latest for --task when empty)")
	cmd.Flags().StringVar(&taskID, "task", "", "task ID to replay the latest checkpoint of")
	cmd.Flags().BoolVar(&skipFailed, "skip-failed", false, "skip steps whose snapshot is already failed")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-execution agent timeout (default from config)")
	return cmd
}
