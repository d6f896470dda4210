package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/BaSui01/kbroute/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// migrateArgCommands 需要一个整数参数的子命令
var migrateArgCommands = map[string]bool{"steps": true, "force": true}

// runMigrate 解析 migrate 子命令并交给 migration.CLI 执行
func runMigrate(args []string) error {
	if len(args) < 1 {
		printMigrateUsage()
		return fmt.Errorf("missing migrate subcommand")
	}

	command := args[0]
	args = args[1:]
	switch command {
	case "help", "-h", "--help":
		printMigrateUsage()
		return nil
	case "up", "down", "version", "status", "info", "steps", "force":
	default:
		printMigrateUsage()
		return fmt.Errorf("unknown migrate subcommand: %s", command)
	}

	var n int
	if migrateArgCommands[command] {
		if len(args) < 1 {
			return fmt.Errorf("usage: kbroute migrate %s <n>", command)
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid number: %s", args[0])
		}
		n = v
		args = args[1:]
	}

	fs := flag.NewFlagSet("migrate "+command, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	var migrator *migration.DefaultMigrator
	switch {
	case *dbType != "" && *dbURL != "":
		migrator, err = migration.NewMigratorFromURL(*dbType, *dbURL, logger)
	default:
		if *dbType != "" {
			cfg.Database.Driver = *dbType
		}
		migrator, err = migration.NewMigratorFromDatabaseConfig(cfg.Database, logger)
	}
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := migration.NewCLI(migrator).Run(ctx, command, n); err != nil {
		logger.Error("migration command failed", zap.String("command", command), zap.Error(err))
		return err
	}
	return nil
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  kbroute migrate <subcommand> [options]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration
  steps <n>   Apply (n > 0) or rollback (n < 0) n migrations
  force <v>   Force set migration version (use with caution)
  version     Show current migration version
  status      Show migration status
  info        Show detailed migration information
  help        Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  kbroute migrate up --config config.yaml
  kbroute migrate steps -1
  kbroute migrate status --db-type sqlite --db-url file:kbroute.db`)
}
