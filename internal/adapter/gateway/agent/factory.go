package agent

import (
	"fmt"
	"strings"

	"github.com/waverun-dev/waverun/internal/application/port/output"
)

// NewGateway builds an AgentGateway from a backend descriptor.
// "mock" yields the in-process mock; anything else is treated as a command
// line, e.g. "claude -p" or "codex exec".
func NewGateway(backend string) (output.AgentGateway, error) {
	backend = strings.TrimSpace(backend)
	if backend == "" || backend == "mock" {
		return NewMockGateway(), nil
	}

	parts := strings.Fields(backend)
	if len(parts) == 0 {
		return nil, fmt.Errorf("invalid agent backend %q", backend)
	}
	return NewCLIGateway(parts[0], parts[1:]...), nil
}
