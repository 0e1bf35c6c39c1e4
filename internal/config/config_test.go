package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2222, cfg.SSH.Port)
	assert.Equal(t, DefaultHostKeyPath, cfg.SSH.HostKeyPath)
	assert.Equal(t, "0.0.0.0:2222", cfg.SSH.Address())
	assert.Equal(t, 0, cfg.SSH.MaxConnections)
	assert.Equal(t, "./data/repos", cfg.Storage.BasePath)
	assert.Equal(t, "console", cfg.Logging.Output)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
ssh:
  host: 127.0.0.1
  port: 2022
  host_key_path: /var/lib/gitsshd/host_key
  max_connections: 64
  command_timeout: 10m
database:
  host: db
  dbname: git
storage:
  base_path: /srv/git
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:2022", cfg.SSH.Address())
	assert.Equal(t, "/var/lib/gitsshd/host_key", cfg.SSH.HostKeyPath)
	assert.Equal(t, 64, cfg.SSH.MaxConnections)
	assert.Equal(t, 10*time.Minute, cfg.SSH.CommandTimeout)
	assert.Equal(t, "/srv/git", cfg.Storage.BasePath)
	assert.Contains(t, cfg.Database.DSN(), "host=db")
	assert.Contains(t, cfg.Database.DSN(), "dbname=git")
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("GITSSHD_SSH_PORT", "2200")
	t.Setenv("GITSSHD_DB_PASSWORD", "s3cret")

	cfg, err := Load(writeConfig(t, "ssh:\n  port: 2022\n"))
	require.NoError(t, err)

	assert.Equal(t, 2200, cfg.SSH.Port)
	assert.Equal(t, "s3cret", cfg.Database.Password)
}

func TestValidateRejectsBadValues(t *testing.T) {
	_, err := Load(writeConfig(t, "ssh:\n  port: 70000\n"))
	assert.ErrorContains(t, err, "invalid SSH port")

	_, err = Load(writeConfig(t, "logging:\n  output: syslog\n"))
	assert.ErrorContains(t, err, "invalid logging output")

	_, err = Load(writeConfig(t, "ssh:\n  max_connections: -1\n"))
	assert.ErrorContains(t, err, "max_connections")
}
