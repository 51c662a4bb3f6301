// Package main applies and inspects the paper store's schema migrations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/helixir/training-evidence-curator/internal/config"
	"github.com/helixir/training-evidence-curator/internal/database"
	"github.com/helixir/training-evidence-curator/internal/observability"
)

type action int

const (
	actionUp action = iota + 1
	actionDown
	actionSteps
	actionVersion
	actionForce
)

type options struct {
	up         bool
	down       bool
	steps      int
	version    bool
	force      int
	path       string
	configFile string
}

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fset := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fset.SetOutput(stderr)

	opts := &options{}
	fset.BoolVar(&opts.up, "up", false, "Run all pending migrations")
	fset.BoolVar(&opts.down, "down", false, "Roll back all migrations")
	fset.IntVar(&opts.steps, "steps", 0, "Run N migration steps (positive=up, negative=down)")
	fset.BoolVar(&opts.version, "version", false, "Print the current migration version")
	fset.IntVar(&opts.force, "force", -1, "Force set migration version (use to recover from failed migrations)")
	fset.StringVar(&opts.path, "path", "", "Override the migrations directory path")
	fset.StringVar(&opts.configFile, "config", "", "Config file (default ./config.yaml)")
	if err := fset.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

// selectAction requires exactly one action flag.
func selectAction(opts *options) (action, error) {
	var chosen []action
	if opts.up {
		chosen = append(chosen, actionUp)
	}
	if opts.down {
		chosen = append(chosen, actionDown)
	}
	if opts.steps != 0 {
		chosen = append(chosen, actionSteps)
	}
	if opts.version {
		chosen = append(chosen, actionVersion)
	}
	if opts.force >= 0 {
		chosen = append(chosen, actionForce)
	}

	switch len(chosen) {
	case 0:
		return 0, errors.New("no action specified: use one of -up, -down, -steps N, -version, -force V")
	case 1:
		return chosen[0], nil
	default:
		return 0, errors.New("specify only one action at a time")
	}
}

func run(args []string, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	act, err := selectAction(opts)
	if err != nil {
		return err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}).With().Str("component", "migrate").Logger()

	migrationDir := cfg.Database.MigrationPath
	if opts.path != "" {
		migrationDir = opts.path
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, migrationDir, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	switch act {
	case actionUp:
		logger.Info().Str("path", migrationDir).Msg("running all pending migrations")
		err = migrator.Up()
	case actionDown:
		logger.Warn().Msg("rolling back all migrations")
		err = migrator.Down()
	case actionSteps:
		logger.Info().Int("steps", opts.steps).Msg("running migration steps")
		err = migrator.Steps(opts.steps)
	case actionForce:
		logger.Warn().Int("version", opts.force).Msg("forcing migration version")
		err = migrator.Force(opts.force)
	}
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	printVersion(migrator, logger)
	return nil
}

func printVersion(migrator *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := migrator.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine migration version")
		return
	}
	logger.Info().
		Uint("version", v).
		Bool("dirty", dirty).
		Msg("current migration version")
}
