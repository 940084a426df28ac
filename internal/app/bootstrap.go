// Package app wires process configuration to concrete stores and providers.
// It is shared by every binary under cmd/.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/example/wc-matomo-tracking/internal/archive"
	"github.com/example/wc-matomo-tracking/internal/config"
	"github.com/example/wc-matomo-tracking/internal/domain/order"
	"github.com/example/wc-matomo-tracking/internal/infrastructure/store"
	"github.com/example/wc-matomo-tracking/internal/settings"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// CloseFunc releases whatever an Open* call acquired.
type CloseFunc func() error

func noopClose() error { return nil }

// LoadAWSConfig resolves credentials the standard SDK way, pinned to cfg.AWSRegion.
func LoadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// OpenLogStore opens the audit log backend selected by LOG_STORE.
func OpenLogStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.LogStoreInterface, CloseFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.LogStore {
	case config.LogStorePostgres, config.LogStoreSQLite:
		db, err := connectSQL(cfg.LogStore, cfg.DatabaseURL, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("connect %s log store: %w", cfg.LogStore, err)
		}
		logStore := store.NewSQLLogStore(db)
		if cfg.AutoMigrate {
			if err := logStore.Migrate(ctx); err != nil {
				db.Close()
				return nil, nil, err
			}
		}
		logger.Info("audit log store ready", zap.String("backend", cfg.LogStore))
		return logStore, db.Close, nil

	case config.LogStoreDynamoDB:
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("audit log store ready",
			zap.String("backend", cfg.LogStore),
			zap.String("table", cfg.DynamoLogTable),
		)
		return store.NewDynamoLogStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoLogTable), noopClose, nil
	}

	return nil, nil, fmt.Errorf("unknown LOG_STORE %q", cfg.LogStore)
}

// OpenOrderLookup connects to the shop's order read model. A postgres:// URL
// selects PostgreSQL; anything else is treated as a SQLite path.
func OpenOrderLookup(ctx context.Context, cfg *config.Config) (order.Lookup, CloseFunc, error) {
	driver := config.LogStoreSQLite
	if isPostgresURL(cfg.OrdersDatabaseURL) {
		driver = config.LogStorePostgres
	}

	db, err := connectSQL(driver, cfg.OrdersDatabaseURL, cfg.OrdersDatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect order read model: %w", err)
	}
	lookup := store.NewSQLOrderLookup(db)
	if cfg.AutoMigrate {
		if err := lookup.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	return lookup, db.Close, nil
}

// NewSettingsProvider returns the delivery settings source selected by SETTINGS_SOURCE.
func NewSettingsProvider(cfg *config.Config) (settings.Provider, CloseFunc, error) {
	switch cfg.SettingsSource {
	case config.SettingsFromEnv:
		return settings.NewEnvProvider(), noopClose, nil
	case config.SettingsFromRedis:
		client := settings.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		return settings.NewRedisProvider(client, cfg.SettingsRedisKey), client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown SETTINGS_SOURCE %q", cfg.SettingsSource)
}

// NewArchiver returns an S3 archiver over entries, or nil when no bucket is configured.
func NewArchiver(ctx context.Context, cfg *config.Config, entries archive.EntryLister) (*archive.S3Archiver, error) {
	if cfg.ArchiveBucket == "" {
		return nil, nil
	}
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return archive.NewS3Archiver(s3.NewFromConfig(awsCfg), entries, cfg.ArchiveBucket, cfg.ArchivePrefix), nil
}

func connectSQL(driver, postgresURL, sqlitePath string) (*sqlx.DB, error) {
	if driver == config.LogStorePostgres {
		return store.ConnectPostgres(postgresURL)
	}
	return store.ConnectSQLite(sqlitePath)
}

func isPostgresURL(s string) bool {
	return strings.HasPrefix(s, "postgres://") || strings.HasPrefix(s, "postgresql://")
}
