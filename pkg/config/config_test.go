package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Mindburn-Labs/attach/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var attachEnv = []string{
	"LOG_LEVEL", "ATTACH_TEMP_DIR", "ATTACH_ASSET_ROOT", "ATTACH_PUBLIC_ROOT",
	"ATTACH_DB_DRIVER", "ATTACH_DB_URL", "ATTACH_S3_REGION", "AWS_REGION",
	"ATTACH_S3_ENDPOINT", "ATTACH_S3_ACCESS_KEY_ID", "ATTACH_S3_SECRET_ACCESS_KEY",
	"ATTACH_GCS_ENABLED", "ATTACH_GCS_ENDPOINT", "ATTACH_REDIS_ADDR",
	"ATTACH_REDIS_PASSWORD", "ATTACH_REDIS_DB", "ATTACH_HTTP_MAX_RETRIES",
	"ATTACH_HTTP_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range attachEnv {
		t.Setenv(k, "")
	}
}

// TestLoad_Defaults verifies that Load() returns usable defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := config.Load()

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, filepath.Join(os.TempDir(), "attach"), cfg.TempDir)
	assert.Equal(t, "public", cfg.AssetRoot)
	assert.Equal(t, "public", cfg.PublicRoot)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Empty(t, cfg.DB.URL)
	assert.Empty(t, cfg.S3.Region)
	assert.False(t, cfg.GCS.Enabled)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.HTTP.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("ATTACH_TEMP_DIR", "/var/tmp/attach")
	t.Setenv("ATTACH_ASSET_ROOT", "/srv/assets")
	t.Setenv("ATTACH_DB_DRIVER", "postgres")
	t.Setenv("ATTACH_DB_URL", "postgres://attach@db:5432/attach")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("ATTACH_GCS_ENABLED", "true")
	t.Setenv("ATTACH_REDIS_ADDR", "redis:6379")
	t.Setenv("ATTACH_REDIS_DB", "2")
	t.Setenv("ATTACH_HTTP_MAX_RETRIES", "5")
	t.Setenv("ATTACH_HTTP_TIMEOUT", "2s")

	cfg := config.Load()

	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "/var/tmp/attach", cfg.TempDir)
	assert.Equal(t, "/srv/assets", cfg.PublicRoot)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, "postgres://attach@db:5432/attach", cfg.DB.URL)
	assert.Equal(t, "eu-west-1", cfg.S3.Region)
	assert.True(t, cfg.GCS.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 5, cfg.HTTP.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.HTTP.Timeout)
}

func TestLoad_ExplicitRegionWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("ATTACH_S3_REGION", "us-east-2")

	assert.Equal(t, "us-east-2", config.Load().S3.Region)
}

func TestLoad_MalformedNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("ATTACH_HTTP_MAX_RETRIES", "many")
	t.Setenv("ATTACH_HTTP_TIMEOUT", "soon")

	cfg := config.Load()
	assert.Equal(t, 3, cfg.HTTP.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
}

func TestLoadFile_Overlay(t *testing.T) {
	clearEnv(t)
	t.Setenv("ATTACH_REDIS_ADDR", "redis:6379")

	path := filepath.Join(t.TempDir(), "attach.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
asset_root: /srv/www
db:
  driver: sqlite
  url: "file:attach.db"
http:
  timeout: 5s
presets:
  banner: 1200x300
  thumbnail: 96x96
`), 0o600))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/www", cfg.AssetRoot)
	assert.Equal(t, "public", cfg.PublicRoot, "env default is kept when the file omits it")
	assert.Equal(t, "file:attach.db", cfg.DB.URL)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 3, cfg.HTTP.MaxRetries)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, map[string]string{"banner": "1200x300", "thumbnail": "96x96"}, cfg.Presets)
}

func TestLoadFile_Errors(t *testing.T) {
	clearEnv(t)

	_, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("db: [unterminated"), 0o600))
	_, err = config.LoadFile(bad)
	assert.ErrorContains(t, err, "parse config")
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, (&config.Config{LogLevel: "debug"}).SlogLevel())
	assert.Equal(t, slog.LevelWarn, (&config.Config{LogLevel: "WARN"}).SlogLevel())
	assert.Equal(t, slog.LevelInfo, (&config.Config{LogLevel: "chatty"}).SlogLevel())
}
