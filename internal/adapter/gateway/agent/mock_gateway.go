package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/waverun-dev/waverun/internal/application/port/output"
)

// MockGateway is an in-process AgentGateway used for local runs and tests.
// It answers every prompt with a structured role report after a short
// simulated latency.
type MockGateway struct {
	latency time.Duration
}

// NewMockGateway creates a mock gateway with the default latency
func NewMockGateway() *MockGateway {
	return &MockGateway{latency: 50 * time.Millisecond}
}

// NewMockGatewayWithLatency creates a mock gateway with a fixed latency
func NewMockGatewayWithLatency(latency time.Duration) *MockGateway {
	return &MockGateway{latency: latency}
}

// Execute simulates agent execution, honoring context cancellation
func (g *MockGateway) Execute(ctx context.Context, req output.AgentRequest) (*output.AgentResponse, error) {
	start := time.Now()

	if g.latency > 0 {
		timer := time.NewTimer(g.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	promptPreview := req.Prompt
	if len(promptPreview) > 50 {
		promptPreview = promptPreview[:50] + "..."
	}

	role := req.Role
	if role == "" {
		role = "agent"
	}
	report, err := json.Marshal(map[string]interface{}{
		"summary":  fmt.Sprintf("[mock %s] handled: %s", role, promptPreview),
		"evidence": []string{fmt.Sprintf("mock-%s-run", role)},
	})
	if err != nil {
		return nil, err
	}

	return &output.AgentResponse{
		Content:    string(report),
		ExitCode:   0,
		Duration:   time.Since(start),
		TokensUsed: len(req.Prompt) / 4,
		AgentType:  "mock",
		Metadata: map[string]string{
			"mock": "true",
		},
	}, nil
}

// HealthCheck always succeeds for the mock
func (g *MockGateway) HealthCheck(ctx context.Context) error {
	return nil
}
