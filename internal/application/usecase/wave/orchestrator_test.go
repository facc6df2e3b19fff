package wave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/waverun-dev/waverun/internal/application/port/output"
	"github.com/waverun-dev/waverun/internal/application/service"
	"github.com/waverun-dev/waverun/internal/domain/model"
	"github.com/waverun-dev/waverun/internal/eventing"
	"github.com/waverun-dev/waverun/internal/infrastructure/repository/mock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockAgentGateway dispatches to a per-role behavior function
type mockAgentGateway struct {
	mu      sync.Mutex
	calls   []output.AgentRequest
	behave  func(req output.AgentRequest) (*output.AgentResponse, error)
	healthy error
}

func (g *mockAgentGateway) Execute(_ context.Context, req output.AgentRequest) (*output.AgentResponse, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()
	if g.behave != nil {
		return g.behave(req)
	}
	return &output.AgentResponse{Content: "ok", AgentType: "mock"}, nil
}

func (g *mockAgentGateway) HealthCheck(context.Context) error { return g.healthy }

func (g *mockAgentGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func newTestResources(t *testing.T, max int) *service.ResourceManager {
	t.Helper()
	rm, err := service.NewResourceManager(max, nil, service.DefaultResourceThresholds(), eventing.NoopSink{})
	require.NoError(t, err)
	return rm
}

func newTestOrchestrator(t *testing.T, rm *service.ResourceManager, gw output.AgentGateway, events eventing.Sink) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(rm, gw, mock.NewMockWaveRepository(), events)
	require.NoError(t, err)
	return o
}

func simpleTask(id string) WaveTask {
	return WaveTask{
		ID:         id,
		Title:      "task " + id,
		Prompt:     "do " + id,
		Complexity: model.ComplexitySimple,
		Timeout:    time.Second,
	}
}

func TestExecuteWave_RoleCountFromComplexity(t *testing.T) {
	gw := &mockAgentGateway{}
	o := newTestOrchestrator(t, newTestResources(t, 10), gw, nil)

	task := simpleTask("t1")
	task.Complexity = model.ComplexityComplex
	findings, err := o.ExecuteWave(context.Background(), "w", []WaveTask{task})
	require.NoError(t, err)

	assert.Equal(t, 3, gw.callCount())
	assert.Len(t, findings.Findings, 3)

	roles := map[string]bool{}
	for _, f := range findings.Findings {
		roles[f.Role] = true
	}
	assert.Equal(t, map[string]bool{"implementer": true, "reviewer": true, "architect": true}, roles)
}

func TestExecuteWave_SimpleTaskUsesTwoRoles(t *testing.T) {
	gw := &mockAgentGateway{}
	o := newTestOrchestrator(t, newTestResources(t, 10), gw, nil)

	findings, err := o.ExecuteWave(context.Background(), "w", []WaveTask{simpleTask("t1")})
	require.NoError(t, err)
	assert.Equal(t, 2, gw.callCount())
	assert.Len(t, findings.Findings, 2)
}

func TestExecuteWave_AdmissionDeniedFailsFast(t *testing.T) {
	gw := &mockAgentGateway{}
	rm := newTestResources(t, 1)
	rm.RegisterAgent("busy")
	defer rm.UnregisterAgent("busy")

	o := newTestOrchestrator(t, rm, gw, nil)

	_, err := o.ExecuteWave(context.Background(), "w", []WaveTask{simpleTask("t1")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAdmissionDenied)
	assert.Equal(t, 0, gw.callCount(), "denial must happen before any dispatch")
	assert.Equal(t, 1, rm.ActiveAgentCount(), "only the pre-existing agent remains")
}

func TestExecuteWave_NoTasks(t *testing.T) {
	o := newTestOrchestrator(t, newTestResources(t, 10), &mockAgentGateway{}, nil)
	_, err := o.ExecuteWave(context.Background(), "w", nil)
	assert.ErrorIs(t, err, ErrNoTasks)
}

func TestExecuteWave_PartialFailureStillConsolidates(t *testing.T) {
	gw := &mockAgentGateway{
		behave: func(req output.AgentRequest) (*output.AgentResponse, error) {
			if req.Role == "reviewer" {
				return nil, errors.New("provider unavailable")
			}
			return &output.AgentResponse{
				Content: fmt.Sprintf(`{"summary":"%s done","evidence":["%s-log"]}`, req.Role, req.Role),
			}, nil
		},
	}
	rm := newTestResources(t, 10)
	o := newTestOrchestrator(t, rm, gw, nil)

	task := simpleTask("t1")
	task.Complexity = model.ComplexityComplex
	findings, err := o.ExecuteWave(context.Background(), "w", []WaveTask{task})
	require.NoError(t, err, "one role failing must not fail the wave")

	assert.Len(t, findings.Findings, 2)
	require.Len(t, findings.Failures, 1)
	assert.Equal(t, "reviewer", findings.Failures[0].Role)
	assert.Equal(t, "provider unavailable", findings.Failures[0].Error)

	assert.ElementsMatch(t, []string{"implementer-log", "architect-log"}, findings.Evidence,
		"evidence comes from successful roles only")

	assert.Equal(t, 0, rm.ActiveAgentCount(), "all agents released after the wave")
}

func TestExecuteWave_GatewayPanicIsIsolated(t *testing.T) {
	gw := &mockAgentGateway{
		behave: func(req output.AgentRequest) (*output.AgentResponse, error) {
			if req.Role == "implementer" {
				panic("gateway bug")
			}
			return &output.AgentResponse{Content: "ok"}, nil
		},
	}
	rm := newTestResources(t, 10)
	o := newTestOrchestrator(t, rm, gw, nil)

	findings, err := o.ExecuteWave(context.Background(), "w", []WaveTask{simpleTask("t1")})
	require.NoError(t, err)

	require.Len(t, findings.Failures, 1)
	assert.Contains(t, findings.Failures[0].Error, "agent panicked")
	assert.Len(t, findings.Findings, 1)
	assert.Equal(t, 0, rm.ActiveAgentCount())
}

func TestExecuteWave_StructuredReportParsing(t *testing.T) {
	gw := &mockAgentGateway{
		behave: func(req output.AgentRequest) (*output.AgentResponse, error) {
			if req.Role == "implementer" {
				return &output.AgentResponse{Content: `{"summary":"patched","evidence":["diff","test run"]}`}, nil
			}
			return &output.AgentResponse{Content: "free-form review text"}, nil
		},
	}
	o := newTestOrchestrator(t, newTestResources(t, 10), gw, nil)

	findings, err := o.ExecuteWave(context.Background(), "w", []WaveTask{simpleTask("t1")})
	require.NoError(t, err)
	require.Len(t, findings.Findings, 2)

	byRole := map[string]RoleFinding{}
	for _, f := range findings.Findings {
		byRole[f.Role] = f
	}
	assert.Equal(t, "patched", byRole["implementer"].Summary)
	assert.Equal(t, []string{"diff", "test run"}, byRole["implementer"].Evidence)
	assert.Equal(t, "free-form review text", byRole["reviewer"].Summary)
	assert.Empty(t, byRole["reviewer"].Evidence)
}

func TestExecuteWave_PublishesLifecycleEvents(t *testing.T) {
	sink := eventing.NewCollectorSink()
	o := newTestOrchestrator(t, newTestResources(t, 10), &mockAgentGateway{}, sink)

	_, err := o.ExecuteWave(context.Background(), "w", []WaveTask{simpleTask("t1")})
	require.NoError(t, err)

	assert.Len(t, sink.EventsOfType(eventing.EventWaveStarted), 1)
	assert.Len(t, sink.EventsOfType(eventing.EventWaveSettled), 1)
}

func TestExecuteWave_MultipleTasks(t *testing.T) {
	gw := &mockAgentGateway{}
	o := newTestOrchestrator(t, newTestResources(t, 10), gw, nil)

	findings, err := o.ExecuteWave(context.Background(), "w",
		[]WaveTask{simpleTask("t1"), simpleTask("t2")})
	require.NoError(t, err)

	assert.Equal(t, 4, gw.callCount())
	assert.Len(t, findings.Findings, 4)
}
