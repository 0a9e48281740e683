package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/config"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/internal/database"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/internal/migration"
)

// Open 根据配置构建归档. 未启用时返回 (nil, nil).
func Open(ctx context.Context, cfg *config.Config, stats database.StatsRecorder, logger *zap.Logger) (Archive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Archive.Enabled {
		return nil, nil
	}

	switch cfg.Archive.Backend {
	case "", "sql":
		if cfg.Archive.AutoMigrate {
			if err := migrateUp(ctx, cfg.Database, logger); err != nil {
				return nil, err
			}
		}
		db, err := database.Open(cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		var opts []database.PoolOption
		if stats != nil {
			opts = append(opts, database.WithStatsRecorder(stats))
		}
		pool, err := database.NewPoolManager(db, database.PoolConfigFrom(cfg.Database), logger, opts...)
		if err != nil {
			return nil, err
		}
		return NewGormArchive(pool, logger), nil

	case "mongo":
		a, err := NewMongoArchive(ctx, MongoConfig{
			URI:        cfg.Archive.MongoURI,
			Database:   cfg.Archive.MongoDatabase,
			Collection: cfg.Archive.MongoCollection,
		}, logger)
		if err != nil {
			return nil, err
		}
		return a, nil

	default:
		return nil, fmt.Errorf("unsupported archive backend: %s", cfg.Archive.Backend)
	}
}

func migrateUp(ctx context.Context, dbCfg config.DatabaseConfig, logger *zap.Logger) error {
	m, err := migration.NewMigratorFromDatabaseConfig(dbCfg, logger)
	if err != nil {
		return fmt.Errorf("archive migrator: %w", err)
	}
	defer m.Close()
	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("archive migrations: %w", err)
	}
	return nil
}
