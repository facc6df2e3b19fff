package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/waverun-dev/waverun/internal/app"
	"github.com/waverun-dev/waverun/internal/application/usecase/wave"
	"github.com/waverun-dev/waverun/internal/domain/model"
	"github.com/waverun-dev/waverun/internal/domain/model/lock"
)

// waveFileTask is one task entry in a wave definition file
type waveFileTask struct {
	ID         string            `yaml:"id"`
	Title      string            `yaml:"title"`
	Prompt     string            `yaml:"prompt"`
	Complexity string            `yaml:"complexity"`
	Context    map[string]string `yaml:"context"`
}

// waveFile is the YAML wave definition
type waveFile struct {
	Name  string         `yaml:"name"`
	Tasks []waveFileTask `yaml:"tasks"`
}

func loadWaveFile(fs afero.Fs, path string) (*waveFile, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wave file: %w", err)
	}
	defer f.Close()

	var wf waveFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&wf); err != nil {
		return nil, fmt.Errorf("parse wave file %s: %w", path, err)
	}
	if wf.Name == "" {
		return nil, fmt.Errorf("wave file %s: name is required", path)
	}
	if len(wf.Tasks) == 0 {
		return nil, fmt.Errorf("wave file %s: at least one task is required", path)
	}
	for i, task := range wf.Tasks {
		if task.Prompt == "" {
			return nil, fmt.Errorf("wave file %s: task %d has no prompt", path, i)
		}
	}
	return &wf, nil
}

func newWaveCmd() *cobra.Command {
	var (
		file    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "wave",
		Short: "Execute a wave of tasks across agent roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := loadWaveFile(afero.NewOsFs(), file)
			if err != nil {
				return err
			}

			c, err := buildContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			lockID, err := lock.NewLockID("wave-run")
			if err != nil {
				return err
			}
			runLock, err := c.LockService().AcquireRunLock(cmd.Context(), lockID, globalConfig.LockTTL())
			if err != nil {
				return err
			}
			if runLock == nil {
				fmt.Println("Another wave is already running; nothing to do.")
				return nil
			}
			defer func() {
				if err := c.LockService().ReleaseRunLock(cmd.Context(), lockID); err != nil {
					app.GetLogger().Warn("release wave run lock: %v", err)
				}
			}()

			if timeout == 0 {
				timeout = globalConfig.AgentTimeout()
			}

			tasks := make([]wave.WaveTask, 0, len(wf.Tasks))
			for i, ft := range wf.Tasks {
				id := ft.ID
				if id == "" {
					id = fmt.Sprintf("task-%d", i+1)
				}
				title := ft.Title
				if title == "" {
					title = id
				}
				tasks = append(tasks, wave.WaveTask{
					ID:         id,
					Title:      title,
					Prompt:     ft.Prompt,
					Complexity: model.ParseComplexity(ft.Complexity),
					Timeout:    timeout,
					Context:    ft.Context,
				})
			}

			findings, err := c.Orchestrator().ExecuteWave(cmd.Context(), wf.Name, tasks)
			if err != nil {
				return err
			}

			if jsonOutput() {
				return printJSON(findings)
			}

			fmt.Printf("Wave %s: %d finding(s), %d failure(s) in %s\n",
				findings.WaveID, len(findings.Findings), len(findings.Failures), findings.Duration)

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Task", "Role", "Agent Type", "Tokens", "Summary"})
			for _, f := range findings.Findings {
				tw.AppendRow(table.Row{f.TaskID, f.Role, f.AgentType, f.TokensUsed, f.Summary})
			}
			tw.Render()

			if len(findings.Failures) > 0 {
				fw := table.NewWriter()
				fw.SetOutputMirror(os.Stdout)
				fw.AppendHeader(table.Row{"Task", "Role", "Error"})
				for _, f := range findings.Failures {
					fw.AppendRow(table.Row{f.TaskID, f.Role, f.Error})
				}
				fw.Render()
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "wave definition YAML file")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-role agent timeout (default from config)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
