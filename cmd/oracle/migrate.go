package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/config"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/internal/migration"
)

// runMigrate 解析 --config 与 --db-type 后把子命令交给 migration.CLI
func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database driver override (postgres, mysql, sqlite, sqlite3)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: oracle migrate [--config <path>] [--db-type <driver>] <subcommand>")
		fmt.Fprintln(os.Stderr, migration.Usage)
	}
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("missing migrate subcommand")
	}

	// 迁移不需要 provider 凭据, 只做加载不做完整校验
	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *dbType != "" {
		cfg.Database.Driver = *dbType
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	migrator, err := migration.NewMigratorFromDatabaseConfig(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Warn("migrator close failed", zap.Error(err))
		}
	}()

	return migration.NewCLI(migrator).Run(context.Background(), fs.Args())
}
