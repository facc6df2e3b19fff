package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadSettings(dir)
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.ConfigSource())
	assert.Empty(t, cfg.SettingPath())
	assert.Equal(t, dir, cfg.Home())
	assert.Equal(t, filepath.Join(dir, "waverun.db"), cfg.DBPath())
	assert.Equal(t, "mock", cfg.AgentBackend())
	assert.Equal(t, 15*time.Minute, cfg.AgentTimeout())
	assert.Equal(t, 3, cfg.MaxAttempts())
	assert.Equal(t, 4, cfg.MaxConcurrentAgents())
	assert.Equal(t, 85.0, cfg.MaxCPUPercent())
	assert.Equal(t, 90.0, cfg.MaxMemoryPercent())
	assert.Equal(t, 5*time.Minute, cfg.LockTTL())
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval())
	assert.Equal(t, "local", cfg.ArchiveBackend())
}

func TestLoadSettings_FromJSON(t *testing.T) {
	dir := t.TempDir()
	content := `{
		"home": "/var/lib/waverun",
		"agent_backend": "claude -p",
		"max_concurrent_agents": 8,
		"max_cpu_percent": 70.5,
		"lock_ttl_sec": 120
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "setting.json"), []byte(content), 0o644))

	cfg, err := LoadSettings(dir)
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.ConfigSource())
	assert.Equal(t, filepath.Join(dir, "setting.json"), cfg.SettingPath())
	assert.Equal(t, "/var/lib/waverun", cfg.Home())
	assert.Equal(t, "claude -p", cfg.AgentBackend())
	assert.Equal(t, 8, cfg.MaxConcurrentAgents())
	assert.Equal(t, 70.5, cfg.MaxCPUPercent())
	assert.Equal(t, 2*time.Minute, cfg.LockTTL())

	// untouched fields keep defaults
	assert.Equal(t, 3, cfg.MaxAttempts())
	assert.Equal(t, "local", cfg.ArchiveBackend())
}

func TestLoadSettings_DBPathFollowsHome(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "setting.json"),
		[]byte(`{"home": "/data/wr"}`), 0o644))

	cfg, err := LoadSettings(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data/wr", "waverun.db"), cfg.DBPath())
}

func TestLoadSettings_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "setting.json"),
		[]byte("{not json"), 0o644))

	_, err := LoadSettings(dir)
	assert.Error(t, err)
}

func TestLoadSettings_S3RequiresBucket(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "setting.json"),
		[]byte(`{"archive_backend": "s3"}`), 0o644))

	_, err := LoadSettings(dir)
	assert.ErrorContains(t, err, "s3_bucket")
}

func TestLoadSettings_UnknownArchiveBackend(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "setting.json"),
		[]byte(`{"archive_backend": "ftp"}`), 0o644))

	_, err := LoadSettings(dir)
	assert.ErrorContains(t, err, "archive_backend")
}

func TestLoadSettings_RejectsBadLimits(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "setting.json"),
		[]byte(`{"max_concurrent_agents": 0}`), 0o644))

	_, err := LoadSettings(dir)
	assert.ErrorContains(t, err, "max_concurrent_agents")
}
