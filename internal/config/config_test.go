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
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
s3:
  bucket: exports
export:
  dir: /var/tmp/isites
  excluded_tool_ids: [icb.chat, icb.calendar]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "exports", cfg.S3.Bucket)
	assert.Equal(t, "us-east-1", cfg.S3.Region)
	assert.Equal(t, time.Hour, cfg.S3.DownloadURLTTL)
	assert.Equal(t, time.Hour, cfg.Import.DownloadURLTTL)
	assert.Equal(t, "/var/tmp/isites", cfg.Export.Dir)
	assert.Equal(t, []string{"icb.chat", "icb.calendar"}, cfg.Export.ExcludedToolIDs)
	assert.Equal(t, "iSites Files", cfg.Import.FolderName)
	assert.Equal(t, 2*time.Second, cfg.Import.Poll.Interval)
	assert.Equal(t, 30*time.Second, cfg.Import.Poll.MaxInterval)
	assert.Equal(t, 2*time.Hour, cfg.Import.Poll.MaxWait)
	assert.Equal(t, 30*time.Second, cfg.Canvas.Timeout)
	assert.False(t, cfg.RabbitMQ.Enabled)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_CANVAS_TOKEN", "secret-token")
	path := writeConfig(t, `
s3:
  bucket: exports
  download_url_ttl: 15m
canvas:
  base_url: https://canvas.example.edu
  token: ${TEST_CANVAS_TOKEN}
import:
  folder_name: Legacy Files
  poll:
    interval: 1s
    max_interval: 10s
    max_wait: 5m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret-token", cfg.Canvas.Token)
	assert.Equal(t, 15*time.Minute, cfg.Import.DownloadURLTTL)
	assert.Equal(t, "Legacy Files", cfg.Import.FolderName)
	assert.Equal(t, time.Second, cfg.Import.Poll.Interval)
	assert.Equal(t, 10*time.Second, cfg.Import.Poll.MaxInterval)
	assert.Equal(t, 5*time.Minute, cfg.Import.Poll.MaxWait)
}

func TestLoad_MissingBucket(t *testing.T) {
	path := writeConfig(t, "log_level: debug\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3.bucket is required")
}

func TestLoad_InvalidPollWindow(t *testing.T) {
	path := writeConfig(t, `
s3:
  bucket: exports
import:
  poll:
    interval: 1m
    max_interval: 10s
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_interval")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "isites", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=isites sslmode=disable", d.DSN())
}
