package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/waverun-dev/waverun/internal/buildinfo"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput() {
				return printJSON(map[string]string{
					"version": buildinfo.GetVersion(),
					"go":      runtime.Version(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "waverun %s (%s)\n",
				buildinfo.GetVersion(), runtime.Version())
			return nil
		},
	}
}
