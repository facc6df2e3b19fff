package cli

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/waverun-dev/waverun/internal/domain/repository"
)

func newJournalCmd() *cobra.Command {
	var (
		taskID string
		tail   int
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show the transition journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			var records []*repository.JournalRecord
			if taskID != "" {
				records, err = c.JournalRepository().FindByTask(cmd.Context(), taskID)
			} else {
				records, err = c.JournalRepository().Load(cmd.Context())
			}
			if err != nil {
				return err
			}

			if tail > 0 && len(records) > tail {
				records = records[len(records)-tail:]
			}

			if jsonOutput() {
				return printJSON(records)
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Timestamp", "Task", "Transition", "From", "To", "OK", "Attempt", "Error"})
			for _, rec := range records {
				tw.AppendRow(table.Row{
					rec.Timestamp, rec.TaskID, rec.TransitionID,
					rec.FromState, rec.ToState, rec.Success, rec.Attempt, rec.Error,
				})
			}
			tw.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&taskID, "task", "", "filter by task ID")
	cmd.Flags().IntVar(&tail, "tail", 0, "show only the last N records")
	return cmd
}
