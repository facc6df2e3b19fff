package di

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	agentgateway "github.com/waverun-dev/waverun/internal/adapter/gateway/agent"
	archivegateway "github.com/waverun-dev/waverun/internal/adapter/gateway/archive"
	metricsgateway "github.com/waverun-dev/waverun/internal/adapter/gateway/metrics"
	"github.com/waverun-dev/waverun/internal/application/port/output"
	"github.com/waverun-dev/waverun/internal/application/service"
	"github.com/waverun-dev/waverun/internal/application/usecase/replay"
	"github.com/waverun-dev/waverun/internal/application/usecase/run"
	"github.com/waverun-dev/waverun/internal/application/usecase/wave"
	"github.com/waverun-dev/waverun/internal/domain/repository"
	"github.com/waverun-dev/waverun/internal/eventing"
	"github.com/waverun-dev/waverun/internal/infrastructure/config"
	sqliterepo "github.com/waverun-dev/waverun/internal/infrastructure/persistence/sqlite"
	contractvalidator "github.com/waverun-dev/waverun/internal/validator/contract"
)

// Container wires the application together by hand, in dependency order:
// infrastructure, then services, then use cases.
type Container struct {
	cfg *config.AppConfig
	db  *sql.DB

	// Repositories
	checkpointRepo repository.CheckpointRepository
	contractRepo   repository.ContractRepository
	waveRepo       repository.WaveRepository
	runLockRepo    repository.RunLockRepository
	journalRepo    repository.JournalRepository

	// Gateways
	agentGateway   output.AgentGateway
	metricsGateway output.MetricsGateway
	archiveGateway output.ArchiveGateway

	// Eventing
	hub *eventing.Hub

	// Services
	resourceManager   *service.ResourceManager
	lockService       service.LockService
	checkpointService *service.CheckpointService

	// Use cases
	runner       *run.Runner
	orchestrator *wave.Orchestrator
	replayer     *replay.UseCase

	// Validation
	contractValidator *contractvalidator.Validator
}

// NewContainer creates and initializes the DI container from resolved
// configuration.
func NewContainer(cfg *config.AppConfig) (*Container, error) {
	c := &Container{cfg: cfg}

	if err := c.initInfrastructure(); err != nil {
		c.Close()
		return nil, fmt.Errorf("initialize infrastructure: %w", err)
	}
	if err := c.initServices(); err != nil {
		c.Close()
		return nil, fmt.Errorf("initialize services: %w", err)
	}
	if err := c.initUseCases(); err != nil {
		c.Close()
		return nil, fmt.Errorf("initialize use cases: %w", err)
	}
	return c, nil
}

func (c *Container) initInfrastructure() error {
	if err := os.MkdirAll(filepath.Dir(c.cfg.DBPath()), 0755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}

	db, err := sqliterepo.Open(c.cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	c.db = db

	c.checkpointRepo = sqliterepo.NewCheckpointRepository(db)
	c.contractRepo = sqliterepo.NewContractRepository(db)
	c.waveRepo = sqliterepo.NewWaveRepository(db)
	c.runLockRepo = sqliterepo.NewRunLockRepository(db)
	c.journalRepo = sqliterepo.NewJournalRepository(db)

	agent, err := agentgateway.NewGateway(c.cfg.AgentBackend())
	if err != nil {
		return fmt.Errorf("create agent gateway: %w", err)
	}
	c.agentGateway = agent

	c.metricsGateway = metricsgateway.NewHostMetricsGateway(
		c.cfg.MaxCPUPercent(), c.cfg.MaxMemoryPercent())

	switch c.cfg.ArchiveBackend() {
	case "s3":
		gw, err := archivegateway.NewS3ArchiveGateway(context.Background(), archivegateway.S3Config{
			BucketName: c.cfg.S3Bucket(),
			Prefix:     c.cfg.S3Prefix(),
			Region:     c.cfg.S3Region(),
		})
		if err != nil {
			return fmt.Errorf("create S3 archive gateway: %w", err)
		}
		c.archiveGateway = gw
	default:
		gw, err := archivegateway.NewLocalArchiveGateway(nil, c.cfg.ArchiveDir())
		if err != nil {
			return fmt.Errorf("create local archive gateway: %w", err)
		}
		c.archiveGateway = gw
	}

	c.hub = eventing.NewHub(64)
	return nil
}

func (c *Container) initServices() error {
	rm, err := service.NewResourceManager(
		c.cfg.MaxConcurrentAgents(),
		c.metricsGateway,
		service.ResourceThresholds{
			MaxCPUPercent:    c.cfg.MaxCPUPercent(),
			MaxMemoryPercent: c.cfg.MaxMemoryPercent(),
			MaxProcessCount:  c.cfg.MaxProcessCount(),
		},
		c.hub,
	)
	if err != nil {
		return fmt.Errorf("create resource manager: %w", err)
	}
	c.resourceManager = rm

	c.lockService = service.NewLockService(c.runLockRepo, service.LockServiceConfig{
		HeartbeatInterval: c.cfg.HeartbeatInterval(),
		CleanupInterval:   c.cfg.CleanupInterval(),
	})

	c.checkpointService = service.NewCheckpointService(c.checkpointRepo, c.archiveGateway, c.hub)
	return nil
}

func (c *Container) initUseCases() error {
	runner, err := run.NewRunner(
		c.resourceManager, c.agentGateway, c.checkpointService, c.journalRepo, c.hub)
	if err != nil {
		return fmt.Errorf("create runner: %w", err)
	}
	c.runner = runner

	orchestrator, err := wave.NewOrchestrator(
		c.resourceManager, c.agentGateway, c.waveRepo, c.hub)
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}
	c.orchestrator = orchestrator

	replayer, err := replay.NewUseCase(
		c.checkpointService, service.NewHeuristicResumeDecisionEngine(), runner)
	if err != nil {
		return fmt.Errorf("create replay use case: %w", err)
	}
	c.replayer = replayer

	c.contractValidator = contractvalidator.NewValidator(c.contractRepo)
	return nil
}

// Config returns the resolved application configuration
func (c *Container) Config() *config.AppConfig { return c.cfg }

// DB returns the SQLite handle
func (c *Container) DB() *sql.DB { return c.db }

// CheckpointRepository returns the checkpoint repository
func (c *Container) CheckpointRepository() repository.CheckpointRepository {
	return c.checkpointRepo
}

// ContractRepository returns the contract repository
func (c *Container) ContractRepository() repository.ContractRepository {
	return c.contractRepo
}

// WaveRepository returns the wave repository
func (c *Container) WaveRepository() repository.WaveRepository { return c.waveRepo }

// JournalRepository returns the journal repository
func (c *Container) JournalRepository() repository.JournalRepository { return c.journalRepo }

// AgentGateway returns the agent gateway
func (c *Container) AgentGateway() output.AgentGateway { return c.agentGateway }

// MetricsGateway returns the host metrics gateway
func (c *Container) MetricsGateway() output.MetricsGateway { return c.metricsGateway }

// ArchiveGateway returns the checkpoint archive gateway
func (c *Container) ArchiveGateway() output.ArchiveGateway { return c.archiveGateway }

// Hub returns the event hub
func (c *Container) Hub() *eventing.Hub { return c.hub }

// ResourceManager returns the admission controller
func (c *Container) ResourceManager() *service.ResourceManager { return c.resourceManager }

// LockService returns the run lock service
func (c *Container) LockService() service.LockService { return c.lockService }

// CheckpointService returns the checkpoint service
func (c *Container) CheckpointService() *service.CheckpointService { return c.checkpointService }

// Runner returns the single-task runner
func (c *Container) Runner() *run.Runner { return c.runner }

// Orchestrator returns the wave orchestrator
func (c *Container) Orchestrator() *wave.Orchestrator { return c.orchestrator }

// Replayer returns the checkpoint replay use case
func (c *Container) Replayer() *replay.UseCase { return c.replayer }

// ContractValidator returns the registry-backed contract validator
func (c *Container) ContractValidator() *contractvalidator.Validator { return c.contractValidator }

// Start launches background services
func (c *Container) Start(ctx context.Context) error {
	if err := c.lockService.Start(ctx); err != nil {
		return fmt.Errorf("start lock service: %w", err)
	}
	return nil
}

// Close stops background services and releases all resources
func (c *Container) Close() error {
	if c.lockService != nil {
		if err := c.lockService.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to stop lock service: %v\n", err)
		}
	}
	if c.hub != nil {
		c.hub.Close()
	}
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
