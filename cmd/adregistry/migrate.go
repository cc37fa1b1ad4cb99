package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/BaSui01/adregistry/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	dbType := fs.String("db-type", "", "Database type: postgres, mysql, sqlite (default: from config)")
	dbURL := fs.String("db-url", "", "Database connection URL (default: from config)")
	fs.Usage = printMigrateUsage
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	m, err := newMigrator(*configPath, *dbType, *dbURL)
	if err != nil {
		return err
	}
	defer m.Close()

	err = migration.NewCLI(m).Run(context.Background(), fs.Args())
	if errors.Is(err, migration.ErrUsage) {
		printMigrateUsage()
	}
	return err
}

// newMigrator 优先使用命令行指定的连接，否则读取配置文件中的 database 段
func newMigrator(configPath, dbType, dbURL string) (*migration.DefaultMigrator, error) {
	if dbURL != "" {
		if dbType == "" {
			return nil, fmt.Errorf("--db-type is required with --db-url")
		}
		return migration.NewMigratorFromURL(dbType, dbURL)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	dbCfg := cfg.Database
	if dbType != "" {
		dbCfg.Driver = dbType
	}
	return migration.NewMigratorFromDatabaseConfig(dbCfg)
}

func printMigrateUsage() {
	fmt.Fprintf(os.Stderr, `Database Migration Commands

Usage:
  adregistry migrate [options] <subcommand> [args]

%s

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  adregistry migrate up
  adregistry migrate --config /etc/adregistry/config.yaml status
  adregistry migrate --db-type sqlite --db-url "file:adregistry.db?mode=rwc" up
  adregistry migrate steps -1
`, migration.Usage)
}
