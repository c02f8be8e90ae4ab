package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/BaSui01/switchboard/config"
	"github.com/BaSui01/switchboard/internal/migration"
)

// numericMigrateCommands take a version or step count after the command.
var numericMigrateCommands = map[string]bool{"steps": true, "goto": true, "force": true}

// runMigrate handles "switchboard migrate <command> [N] [flags]".
func runMigrate(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printMigrateUsage()
		return nil
	}

	command := args[:1]
	rest := args[1:]
	if numericMigrateCommands[args[0]] && len(rest) > 0 && !strings.HasPrefix(rest[0], "--") {
		command = append(command, rest[0])
		rest = rest[1:]
	}

	fs := flag.NewFlagSet("migrate "+args[0], flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")
	_ = fs.Parse(rest)

	logger, _ := initLogger(config.LogConfig{Level: "info", Format: "console"})
	defer func() { _ = logger.Sync() }()

	migrator, err := createMigrator(*configPath, *dbType, *dbURL, logger)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return migration.NewCLI(migrator).Run(ctx, command)
}

// createMigrator prefers an explicit --db-type/--db-url pair and otherwise
// uses the database section of the configuration.
func createMigrator(configPath, dbType, dbURL string, logger *zap.Logger) (*migration.DefaultMigrator, error) {
	if dbType != "" && dbURL != "" {
		t, err := migration.ParseDatabaseType(dbType)
		if err != nil {
			return nil, err
		}
		return migration.NewMigrator(&migration.Config{
			DatabaseType: t,
			DatabaseURL:  dbURL,
			TableName:    "schema_migrations",
			Logger:       logger,
		})
	}

	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbType != "" {
		cfg.Database.Driver = dbType
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database, logger)
}

func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  switchboard migrate <command> [N] [options]

Commands:
  up        Apply all pending migrations
  down      Roll back the last migration
  down-all  Roll back every migration
  steps N   Apply (N > 0) or roll back (N < 0) N migrations
  goto V    Migrate to version V
  force V   Set the version without running migrations (use with caution)
  version   Show the current migration version
  status    List migrations and their state
  info      Print a summary
  help      Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  switchboard migrate up
  switchboard migrate up --config /etc/switchboard/config.yaml
  switchboard migrate steps -1
  switchboard migrate status --db-type sqlite --db-url "file:switchboard.db?mode=rwc"
  switchboard migrate force 1`)
}
