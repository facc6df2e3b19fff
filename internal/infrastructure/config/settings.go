package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RawSettings represents the structure of the setting.json file.
// Pointer fields distinguish "absent" from zero values so defaults only
// fill what the file left out.
type RawSettings struct {
	// Core settings
	Home     *string `json:"home"`
	DBPath   *string `json:"db_path"`
	LogLevel *string `json:"log_level"`

	// Agent execution
	AgentBackend    *string `json:"agent_backend"`
	AgentTimeoutSec *int    `json:"agent_timeout_sec"`
	MaxAttempts     *int    `json:"max_attempts"`

	// Admission control
	MaxConcurrentAgents *int     `json:"max_concurrent_agents"`
	MaxCPUPercent       *float64 `json:"max_cpu_percent"`
	MaxMemoryPercent    *float64 `json:"max_memory_percent"`
	MaxProcessCount     *int     `json:"max_process_count"`

	// Run locks
	LockTTLSec           *int `json:"lock_ttl_sec"`
	HeartbeatIntervalSec *int `json:"heartbeat_interval_sec"`
	CleanupIntervalSec   *int `json:"cleanup_interval_sec"`

	// Checkpoint archive
	ArchiveBackend *string `json:"archive_backend"` // local | s3
	ArchiveDir     *string `json:"archive_dir"`
	S3Bucket       *string `json:"s3_bucket"`
	S3Prefix       *string `json:"s3_prefix"`
	S3Region       *string `json:"s3_region"`
}

// LoadSettings loads configuration from setting.json under baseDir.
// Priority: setting.json > defaults. A missing file is not an error.
func LoadSettings(baseDir string) (*AppConfig, error) {
	settings := &RawSettings{}
	configSource := "default"
	settingPath := ""

	jsonPath := filepath.Join(baseDir, "setting.json")
	if data, err := os.ReadFile(jsonPath); err == nil {
		if err := json.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", jsonPath, err)
		}
		configSource = "json"
		settingPath = jsonPath
	}

	applyDefaults(settings, baseDir)

	if err := validateSettings(settings); err != nil {
		return nil, err
	}

	return buildAppConfig(settings, configSource, settingPath), nil
}

// applyDefaults fills in default values for any nil fields. The home
// directory defaults to wherever settings were loaded from.
func applyDefaults(settings *RawSettings, baseDir string) {
	if settings.Home == nil {
		v := baseDir
		if v == "" {
			v = ".waverun"
		}
		settings.Home = &v
	}
	if settings.DBPath == nil {
		v := filepath.Join(*settings.Home, "waverun.db")
		settings.DBPath = &v
	}
	if settings.LogLevel == nil {
		v := "info"
		settings.LogLevel = &v
	}

	if settings.AgentBackend == nil {
		v := "mock"
		settings.AgentBackend = &v
	}
	if settings.AgentTimeoutSec == nil {
		v := 900 // 15 minutes for long-running agent tasks
		settings.AgentTimeoutSec = &v
	}
	if settings.MaxAttempts == nil {
		v := 3
		settings.MaxAttempts = &v
	}

	if settings.MaxConcurrentAgents == nil {
		v := 4
		settings.MaxConcurrentAgents = &v
	}
	if settings.MaxCPUPercent == nil {
		v := 85.0
		settings.MaxCPUPercent = &v
	}
	if settings.MaxMemoryPercent == nil {
		v := 90.0
		settings.MaxMemoryPercent = &v
	}
	if settings.MaxProcessCount == nil {
		v := 1024
		settings.MaxProcessCount = &v
	}

	if settings.LockTTLSec == nil {
		v := 300
		settings.LockTTLSec = &v
	}
	if settings.HeartbeatIntervalSec == nil {
		v := 30
		settings.HeartbeatIntervalSec = &v
	}
	if settings.CleanupIntervalSec == nil {
		v := 60
		settings.CleanupIntervalSec = &v
	}

	if settings.ArchiveBackend == nil {
		v := "local"
		settings.ArchiveBackend = &v
	}
	if settings.ArchiveDir == nil {
		v := filepath.Join(*settings.Home, "archives")
		settings.ArchiveDir = &v
	}
	if settings.S3Bucket == nil {
		v := ""
		settings.S3Bucket = &v
	}
	if settings.S3Prefix == nil {
		v := "waverun"
		settings.S3Prefix = &v
	}
	if settings.S3Region == nil {
		v := ""
		settings.S3Region = &v
	}
}

func validateSettings(settings *RawSettings) error {
	switch *settings.ArchiveBackend {
	case "local":
	case "s3":
		if *settings.S3Bucket == "" {
			return fmt.Errorf("archive_backend %q requires s3_bucket", *settings.ArchiveBackend)
		}
	default:
		return fmt.Errorf("unknown archive_backend: %q", *settings.ArchiveBackend)
	}
	if *settings.MaxConcurrentAgents < 1 {
		return fmt.Errorf("max_concurrent_agents must be >= 1, got: %d", *settings.MaxConcurrentAgents)
	}
	if *settings.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1, got: %d", *settings.MaxAttempts)
	}
	return nil
}

func buildAppConfig(settings *RawSettings, configSource, settingPath string) *AppConfig {
	return &AppConfig{
		home:     *settings.Home,
		dbPath:   *settings.DBPath,
		logLevel: *settings.LogLevel,

		agentBackend:    *settings.AgentBackend,
		agentTimeoutSec: *settings.AgentTimeoutSec,
		maxAttempts:     *settings.MaxAttempts,

		maxConcurrentAgents: *settings.MaxConcurrentAgents,
		maxCPUPercent:       *settings.MaxCPUPercent,
		maxMemoryPercent:    *settings.MaxMemoryPercent,
		maxProcessCount:     *settings.MaxProcessCount,

		lockTTLSec:           *settings.LockTTLSec,
		heartbeatIntervalSec: *settings.HeartbeatIntervalSec,
		cleanupIntervalSec:   *settings.CleanupIntervalSec,

		archiveBackend: *settings.ArchiveBackend,
		archiveDir:     *settings.ArchiveDir,
		s3Bucket:       *settings.S3Bucket,
		s3Prefix:       *settings.S3Prefix,
		s3Region:       *settings.S3Region,

		configSource: configSource,
		settingPath:  settingPath,
	}
}

// AppConfig holds resolved configuration values. Fields are read-only
// after construction.
type AppConfig struct {
	home     string
	dbPath   string
	logLevel string

	agentBackend    string
	agentTimeoutSec int
	maxAttempts     int

	maxConcurrentAgents int
	maxCPUPercent       float64
	maxMemoryPercent    float64
	maxProcessCount     int

	lockTTLSec           int
	heartbeatIntervalSec int
	cleanupIntervalSec   int

	archiveBackend string
	archiveDir     string
	s3Bucket       string
	s3Prefix       string
	s3Region       string

	configSource string
	settingPath  string
}

// Home returns the base directory
func (c *AppConfig) Home() string { return c.home }

// DBPath returns the SQLite database path
func (c *AppConfig) DBPath() string { return c.dbPath }

// LogLevel returns the stderr log level
func (c *AppConfig) LogLevel() string { return c.logLevel }

// AgentBackend returns the agent gateway backend spec
func (c *AppConfig) AgentBackend() string { return c.agentBackend }

// AgentTimeout returns the per-execution agent timeout
func (c *AppConfig) AgentTimeout() time.Duration {
	return time.Duration(c.agentTimeoutSec) * time.Second
}

// MaxAttempts returns the default step attempt budget
func (c *AppConfig) MaxAttempts() int { return c.maxAttempts }

// MaxConcurrentAgents returns the static concurrency cap
func (c *AppConfig) MaxConcurrentAgents() int { return c.maxConcurrentAgents }

// MaxCPUPercent returns the CPU admission threshold
func (c *AppConfig) MaxCPUPercent() float64 { return c.maxCPUPercent }

// MaxMemoryPercent returns the memory admission threshold
func (c *AppConfig) MaxMemoryPercent() float64 { return c.maxMemoryPercent }

// MaxProcessCount returns the process-count admission threshold
func (c *AppConfig) MaxProcessCount() int { return c.maxProcessCount }

// LockTTL returns the run lock time-to-live
func (c *AppConfig) LockTTL() time.Duration {
	return time.Duration(c.lockTTLSec) * time.Second
}

// HeartbeatInterval returns the lock heartbeat interval
func (c *AppConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.heartbeatIntervalSec) * time.Second
}

// CleanupInterval returns the expired-lock sweep interval
func (c *AppConfig) CleanupInterval() time.Duration {
	return time.Duration(c.cleanupIntervalSec) * time.Second
}

// ArchiveBackend returns "local" or "s3"
func (c *AppConfig) ArchiveBackend() string { return c.archiveBackend }

// ArchiveDir returns the local archive base directory
func (c *AppConfig) ArchiveDir() string { return c.archiveDir }

// S3Bucket returns the archive bucket name
func (c *AppConfig) S3Bucket() string { return c.s3Bucket }

// S3Prefix returns the archive key prefix
func (c *AppConfig) S3Prefix() string { return c.s3Prefix }

// S3Region returns the AWS region override, empty for ambient config
func (c *AppConfig) S3Region() string { return c.s3Region }

// ConfigSource reports where configuration came from: "json" or "default"
func (c *AppConfig) ConfigSource() string { return c.configSource }

// SettingPath returns the path to setting.json when loaded from file
func (c *AppConfig) SettingPath() string { return c.settingPath }
