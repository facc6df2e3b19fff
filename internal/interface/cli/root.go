package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/waverun-dev/waverun/internal/infrastructure/config"
	"github.com/waverun-dev/waverun/internal/infrastructure/di"
)

// globalConfig holds the loaded configuration for all commands
var globalConfig *config.AppConfig

// NewRoot builds the root command with all subcommands attached
func NewRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "waverun",
		Short: "Verifiable agentic execution engine",
		Long: `waverun runs agent tasks through a guarded state machine with
checkpoints, contract validation, and resource-gated concurrency.

Tasks move IDLE -> PLANNING -> EXECUTING -> VERIFYING -> COMMITTING ->
COMPLETED, with every transition journaled and every suspension point
checkpointed. Waves fan a batch of tasks out across agent roles, bounded
by host resource pressure.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Priority: flags > WAVERUN_* env > setting.json > defaults
			home := viper.GetString("home")
			cfg, err := config.LoadSettings(home)
			if err != nil {
				return err
			}
			globalConfig = cfg

			level := viper.GetString("log-level")
			if level == "" {
				level = cfg.LogLevel()
			}
			InitGlobalLogger(level)
			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error { return c.Help() },
	}

	cobra.OnInitialize(initViper)
	cmd.PersistentFlags().String("home", ".waverun", "base directory for waverun state")
	cmd.PersistentFlags().String("log-level", "", "stderr log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("home", cmd.PersistentFlags().Lookup("home"))
	_ = viper.BindPFlag("log-level", cmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("json", cmd.PersistentFlags().Lookup("json"))

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newWaveCmd())
	cmd.AddCommand(newContractCmd())
	cmd.AddCommand(newCheckpointCmd())
	cmd.AddCommand(newJournalCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func initViper() {
	viper.SetEnvPrefix("WAVERUN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// buildContainer wires the application for one command invocation.
// Callers own the returned container and must Close it.
func buildContainer() (*di.Container, error) {
	return di.NewContainer(globalConfig)
}

func jsonOutput() bool {
	return viper.GetBool("json")
}
