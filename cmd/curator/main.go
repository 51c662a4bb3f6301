// Package main provides the curator CLI: pipeline runs, the read API and
// query tools over the curated store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/training-evidence-curator/internal/config"
	"github.com/helixir/training-evidence-curator/internal/observability"
)

// errDomainsFailed is returned by run when at least one domain failed.
var errDomainsFailed = errors.New("one or more domains failed")

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error: load .env: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app carries what every subcommand loads first.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *observability.Metrics
}

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "curator",
		Short:         "Collect, filter and store training research evidence",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default ./config.yaml)")

	root.AddCommand(
		newRunCmd(opts),
		newServeCmd(opts),
		newCheckpointsCmd(opts),
		newSearchCmd(opts),
		newSimilarCmd(opts),
	)
	return root
}

// loadApp reads configuration and builds the logger. Metrics are created
// only when enabled since promauto registers them globally.
func loadApp(opts *rootOptions, component string) (*app, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	}).With().Str("component", component).Logger()

	a := &app{cfg: cfg, logger: logger}
	if cfg.Metrics.Enabled {
		a.metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}
	return a, nil
}
