package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	sqliterepo "github.com/waverun-dev/waverun/internal/infrastructure/persistence/sqlite"
)

const defaultSettingJSON = `{
  "agent_backend": "mock",
  "max_concurrent_agents": 4,
  "max_attempts": 3,
  "max_cpu_percent": 85.0,
  "max_memory_percent": 90.0,
  "lock_ttl_sec": 300,
  "archive_backend": "local"
}
`

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the waverun home directory and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := viper.GetString("home")
			if err := os.MkdirAll(home, 0755); err != nil {
				return fmt.Errorf("create home directory: %w", err)
			}

			settingPath := filepath.Join(home, "setting.json")
			if _, err := os.Stat(settingPath); os.IsNotExist(err) {
				if err := os.WriteFile(settingPath, []byte(defaultSettingJSON), 0o644); err != nil {
					return fmt.Errorf("write setting.json: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", settingPath)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Keeping existing %s\n", settingPath)
			}

			db, err := sqliterepo.Open(globalConfig.DBPath())
			if err != nil {
				return fmt.Errorf("initialize database: %w", err)
			}
			defer db.Close()

			version, err := sqliterepo.NewMigrator(db).Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database ready at %s (schema version %d)\n",
				globalConfig.DBPath(), version)
			return nil
		},
	}
}
