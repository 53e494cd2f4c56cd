package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds attachment storage configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	// TempDir receives caller-owned temp copies of payloads.
	TempDir string `yaml:"temp_dir"`
	// AssetRoot anchors scheme-less (bundled asset) URIs.
	AssetRoot string `yaml:"asset_root"`
	// PublicRoot is the directory served over HTTP; paths beneath it get a public URI.
	PublicRoot string `yaml:"public_root"`

	DB    DBConfig    `yaml:"db"`
	S3    S3Config    `yaml:"s3"`
	GCS   GCSConfig   `yaml:"gcs"`
	Redis RedisConfig `yaml:"redis"`
	HTTP  HTTPConfig  `yaml:"http"`

	// Presets maps preset names to geometry strings ("128x128", "2097152@").
	// Entries override or extend the standard presets.
	Presets map[string]string `yaml:"presets,omitempty"`
}

// DBConfig selects the blob table database. An empty URL disables db: URIs.
type DBConfig struct {
	Driver string `yaml:"driver"` // "sqlite" | "postgres"
	URL    string `yaml:"url"`
}

// S3Config configures the s3: object store. An empty Region disables it.
type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint,omitempty"` // MinIO, LocalStack
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
}

// GCSConfig configures the gs: object store.
type GCSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// RedisConfig backs the memory: table with Redis. An empty Addr keeps the table in-process.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
}

// HTTPConfig tunes remote fetches.
type HTTPConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	tempDir := os.Getenv("ATTACH_TEMP_DIR")
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "attach")
	}

	assetRoot := os.Getenv("ATTACH_ASSET_ROOT")
	if assetRoot == "" {
		assetRoot = "public"
	}

	publicRoot := os.Getenv("ATTACH_PUBLIC_ROOT")
	if publicRoot == "" {
		publicRoot = assetRoot
	}

	dbDriver := os.Getenv("ATTACH_DB_DRIVER")
	if dbDriver == "" {
		dbDriver = "sqlite"
	}

	region := os.Getenv("ATTACH_S3_REGION")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}

	return &Config{
		LogLevel:   logLevel,
		TempDir:    tempDir,
		AssetRoot:  assetRoot,
		PublicRoot: publicRoot,
		DB: DBConfig{
			Driver: dbDriver,
			URL:    os.Getenv("ATTACH_DB_URL"),
		},
		S3: S3Config{
			Region:          region,
			Endpoint:        os.Getenv("ATTACH_S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("ATTACH_S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("ATTACH_S3_SECRET_ACCESS_KEY"),
		},
		GCS: GCSConfig{
			Enabled:  os.Getenv("ATTACH_GCS_ENABLED") == "true",
			Endpoint: os.Getenv("ATTACH_GCS_ENDPOINT"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("ATTACH_REDIS_ADDR"),
			Password: os.Getenv("ATTACH_REDIS_PASSWORD"),
			DB:       envInt("ATTACH_REDIS_DB", 0),
		},
		HTTP: HTTPConfig{
			MaxRetries: envInt("ATTACH_HTTP_MAX_RETRIES", 3),
			Timeout:    envDuration("ATTACH_HTTP_TIMEOUT", 30*time.Second),
		},
	}
}

// SlogLevel maps LogLevel onto a slog level; unknown values yield Info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
