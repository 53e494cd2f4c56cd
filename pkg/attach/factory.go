package attach

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/Mindburn-Labs/attach/pkg/attach/geometry"
	"github.com/Mindburn-Labs/attach/pkg/config"
	"github.com/Mindburn-Labs/attach/pkg/observability"
	"github.com/Mindburn-Labs/attach/pkg/util/resiliency"
)

// NewFromConfig assembles a Registry from configuration:
//   - DB.URL set: db: URIs use a blob table (DB.Driver "sqlite" or "postgres")
//   - S3.Region set: s3: URIs use S3 (S3.Endpoint for MinIO, LocalStack)
//   - GCS.Enabled: gs: URIs use Google Cloud Storage
//   - Redis.Addr set: memory: URIs are shared through Redis
//
// Telemetry goes to the global otel providers.
// Options are applied after the configured ones and may override them.
func NewFromConfig(ctx context.Context, cfg *config.Config, opts ...Option) (*Registry, error) {
	presets := geometry.Standard()
	if len(cfg.Presets) > 0 {
		custom, err := geometry.ParsePresets(cfg.Presets)
		if err != nil {
			return nil, fmt.Errorf("invalid presets: %w", err)
		}
		presets = presets.Merge(custom)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	obs, err := observability.New(observability.Config{Logger: logger})
	if err != nil {
		return nil, err
	}

	configured := []Option{
		WithPresets(presets),
		WithTempDir(cfg.TempDir),
		WithAssetRoot(cfg.AssetRoot),
		WithPublicRoot(cfg.PublicRoot),
		WithLogger(logger),
		WithObservability(obs),
		WithHTTPClient(resiliency.NewEnhancedClient(
			resiliency.WithMaxRetries(cfg.HTTP.MaxRetries),
			resiliency.WithTimeout(cfg.HTTP.Timeout),
		)),
	}

	if cfg.DB.URL != "" {
		table, err := openBlobTable(ctx, cfg.DB)
		if err != nil {
			return nil, err
		}
		configured = append(configured, WithBlobTable(table))
	}

	if cfg.S3.Region != "" {
		store, err := NewS3Store(ctx, S3StoreConfig{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		configured = append(configured, WithObjectStore("s3", store))
	}

	if cfg.GCS.Enabled {
		store, err := NewGCSStore(ctx, GCSStoreConfig{Endpoint: cfg.GCS.Endpoint})
		if err != nil {
			return nil, err
		}
		configured = append(configured, WithObjectStore("gs", store))
	}

	if cfg.Redis.Addr != "" {
		configured = append(configured, WithMemoryTable(NewRedisTable(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)))
	}

	return New(append(configured, opts...)...), nil
}

func openBlobTable(ctx context.Context, cfg config.DBConfig) (*BlobTable, error) {
	var driver string
	var dialect Dialect
	switch cfg.Driver {
	case "", "sqlite":
		driver, dialect = "sqlite", DialectSQLite
	case "postgres":
		driver, dialect = "postgres", DialectPostgres
	default:
		return nil, fmt.Errorf("unsupported db driver: %s", cfg.Driver)
	}

	db, err := sql.Open(driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if dialect == DialectSQLite {
		// sqlite allows one writer; a single connection also keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
	}
	table, err := NewBlobTable(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return table, nil
}
