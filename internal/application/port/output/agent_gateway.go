package output

import (
	"context"
	"time"
)

// AgentGateway is the prompt executor: it takes a prompt plus role
// configuration and returns text output or fails. Provider identity and
// cost ride along as pass-through metadata the core never interprets.
type AgentGateway interface {
	// Execute runs the agent with the given request
	Execute(ctx context.Context, req AgentRequest) (*AgentResponse, error)

	// HealthCheck verifies if the agent is available
	HealthCheck(ctx context.Context) error
}

// AgentRequest represents a request to an AI agent
type AgentRequest struct {
	Prompt  string            // The prompt to send to the agent
	Role    string            // Role the agent plays in a wave (implementer, reviewer, ...)
	Timeout time.Duration     // Execution timeout
	Context map[string]string // Additional context information
}

// AgentResponse represents the response from an AI agent
type AgentResponse struct {
	Content    string            // Generated output
	ExitCode   int               // Exit code (for CLI-based agents)
	Duration   time.Duration     // Execution duration
	TokensUsed int               // Number of tokens used (if applicable)
	AgentType  string            // Which agent backend executed
	Metadata   map[string]string // Provider metadata, passed through untouched
}
