package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/BaSui01/dailycrew/config"
	"github.com/BaSui01/dailycrew/internal/migration"
	"go.uber.org/zap"
)

// =============================================================================
// 🗄️ migrate 命令
// =============================================================================

// migrateFlags migrate 子命令的公共参数
type migrateFlags struct {
	configPath string
	envFile    string
	dbType     string
	dbURL      string
}

// runMigrate 解析公共参数后把子命令交给 migration.CLI
func runMigrate(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printMigrateUsage(stdout)
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	var mf migrateFlags
	fs := flag.NewFlagSet("migrate "+args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&mf.configPath, "config", "", "Path to config file")
	fs.StringVar(&mf.envFile, "env-file", "", "Path to .env file")
	fs.StringVar(&mf.dbType, "db-type", "", "Database type (postgres, mysql, sqlite)")
	fs.StringVar(&mf.dbURL, "db-url", "", "Database connection URL")

	positional, err := parseInterspersed(fs, args[1:])
	if err != nil {
		return 2
	}

	migrator, err := newMigrator(mf, zap.NewNop())
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create migrator: %v\n", err)
		return 1
	}
	defer migrator.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := migration.NewCLI(migrator)
	cli.SetOutput(stdout)
	if err := cli.Run(ctx, append([]string{args[0]}, positional...)); err != nil {
		if errors.Is(err, migration.ErrUnknownCommand) {
			return 1
		}
		fmt.Fprintf(stderr, "Migration failed: %v\n", err)
		return 1
	}
	return 0
}

// parseInterspersed 允许参数与位置参数混排，如 "goto 3 --config x.yaml"
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

// newMigrator --db-type 与 --db-url 同时给出时直接使用，否则从配置构建
func newMigrator(mf migrateFlags, logger *zap.Logger) (*migration.DefaultMigrator, error) {
	if mf.dbType != "" && mf.dbURL != "" {
		return migration.NewMigratorFromURL(mf.dbType, mf.dbURL, logger)
	}

	loader := config.NewLoader()
	if mf.configPath != "" {
		loader = loader.WithConfigPath(mf.configPath)
	}
	if mf.envFile != "" {
		loader = loader.WithEnvFile(mf.envFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if mf.dbType != "" {
		cfg.Database.Driver = mf.dbType
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database, logger)
}

func printMigrateUsage(w io.Writer) {
	fmt.Fprint(w, migration.Usage)
	fmt.Fprintln(w, `
options:
  --config <path>     Path to configuration file (YAML)
  --env-file <path>   Path to a .env file
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)`)
}
