package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/waverun-dev/waverun/internal/application/port/output"
)

// statusOutput is the JSON shape of the status command
type statusOutput struct {
	Ts           string                   `json:"ts"`
	ActiveAgents int                      `json:"active_agents"`
	MaxAgents    int                      `json:"max_agents"`
	Resources    *output.ResourceSnapshot `json:"resources,omitempty"`
	OpenWaves    int                      `json:"open_waves"`
	AgentHealthy bool                     `json:"agent_healthy"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show resource pressure, active agents and open waves",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := cmd.Context()

			snapshot, sampleErr := c.MetricsGateway().Sample(ctx)
			openWaves, err := c.WaveRepository().FindOpen(ctx)
			if err != nil {
				return err
			}
			agentErr := c.AgentGateway().HealthCheck(ctx)

			out := statusOutput{
				Ts:           time.Now().UTC().Format(time.RFC3339Nano),
				ActiveAgents: c.ResourceManager().ActiveAgentCount(),
				MaxAgents:    globalConfig.MaxConcurrentAgents(),
				Resources:    snapshot,
				OpenWaves:    len(openWaves),
				AgentHealthy: agentErr == nil,
			}

			if jsonOutput() {
				return printJSON(out)
			}

			fmt.Printf("Agents  : %d/%d active\n", out.ActiveAgents, out.MaxAgents)
			if sampleErr != nil {
				fmt.Printf("Metrics : unavailable (%v)\n", sampleErr)
			} else {
				fmt.Printf("CPU     : %.1f%%\n", snapshot.CPUPercent)
				fmt.Printf("Memory  : %.1f%%\n", snapshot.MemoryPercent)
				fmt.Printf("Admit   : %v\n", snapshot.CanSpawn)
			}
			if agentErr != nil {
				fmt.Printf("Agent   : unhealthy (%v)\n", agentErr)
			} else {
				fmt.Printf("Agent   : healthy\n")
			}

			if len(openWaves) > 0 {
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Wave", "Name", "Steps", "Created"})
				for _, w := range openWaves {
					tw.AppendRow(table.Row{
						w.ID().String(), w.Name(), len(w.StepIDs()),
						w.CreatedAt().Format(time.RFC3339),
					})
				}
				tw.Render()
			}
			return nil
		},
	}
}
