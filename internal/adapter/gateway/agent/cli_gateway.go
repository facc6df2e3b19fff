package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/waverun-dev/waverun/internal/application/port/output"
)

// DefaultCLITimeout bounds one agent invocation when the request carries none
const DefaultCLITimeout = 10 * time.Minute

// CLIGateway implements AgentGateway by running an external agent binary.
// The prompt is passed on stdin; stdout is the response content.
type CLIGateway struct {
	bin        string
	args       []string
	workingDir string
	timeout    time.Duration
}

// NewCLIGateway creates a gateway around an agent binary such as
// `claude -p` or any command that reads a prompt on stdin.
func NewCLIGateway(bin string, args ...string) *CLIGateway {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return &CLIGateway{
		bin:        bin,
		args:       args,
		workingDir: wd,
		timeout:    DefaultCLITimeout,
	}
}

// WithWorkingDir sets the directory the agent binary runs in
func (g *CLIGateway) WithWorkingDir(dir string) *CLIGateway {
	g.workingDir = dir
	return g
}

// WithTimeout sets the fallback timeout for requests that carry none
func (g *CLIGateway) WithTimeout(timeout time.Duration) *CLIGateway {
	g.timeout = timeout
	return g
}

// Execute runs the agent binary with the request prompt on stdin
func (g *CLIGateway) Execute(ctx context.Context, req output.AgentRequest) (*output.AgentResponse, error) {
	if req.Prompt == "" {
		return nil, errors.New("empty prompt")
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = g.timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	args := append([]string(nil), g.args...)
	cmd := exec.CommandContext(runCtx, g.bin, args...)
	cmd.Dir = g.workingDir
	cmd.Stdin = strings.NewReader(req.Prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if runCtx.Err() != nil {
			return nil, fmt.Errorf("agent %s timed out after %s: %w", g.bin, timeout, runCtx.Err())
		}
		return nil, fmt.Errorf("agent %s failed (exit %d): %w: %s",
			g.bin, exitCode, err, strings.TrimSpace(stderr.String()))
	}

	return &output.AgentResponse{
		Content:   stdout.String(),
		ExitCode:  exitCode,
		Duration:  time.Since(start),
		AgentType: "cli:" + g.bin,
		Metadata: map[string]string{
			"working_dir": g.workingDir,
			"role":        req.Role,
		},
	}, nil
}

// HealthCheck verifies the agent binary is resolvable on PATH
func (g *CLIGateway) HealthCheck(ctx context.Context) error {
	if _, err := exec.LookPath(g.bin); err != nil {
		return fmt.Errorf("agent binary %s not found: %w", g.bin, err)
	}
	return nil
}
