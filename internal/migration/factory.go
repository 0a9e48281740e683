package migration

import (
	"fmt"

	"go.uber.org/zap"

	appconfig "github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/config"
)

// NewMigratorFromDatabaseConfig creates a migrator for the archive database
func NewMigratorFromDatabaseConfig(dbCfg appconfig.DatabaseConfig, logger *zap.Logger) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}

	var dbURL string
	switch dbType {
	case DatabaseTypePostgres:
		dbURL = BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, dbCfg.SSLMode)
	case DatabaseTypeMySQL:
		dbURL = BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, "")
	case DatabaseTypeSQLite:
		// Name 为文件路径
		dbURL = BuildDatabaseURL(dbType, "", 0, dbCfg.Name, "", "", "")
	}

	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  dbURL,
		TableName:    "schema_migrations",
	}, logger)
}
