package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/helixir/training-evidence-curator/internal/checkpoint"
)

type runOptions struct {
	domains []string
	fresh   bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the curation pipeline",
		Long: `Collects candidate papers for each research domain, merges duplicates,
scores them, enriches them with full text and embeddings and stores them.

Completed stages are checkpointed. An interrupted run resumes from the last
completed stage of each domain unless --fresh is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, root, opts)
		},
	}
	cmd.Flags().StringSliceVarP(&opts.domains, "domain", "d", nil, "domain to run (repeatable; default all)")
	cmd.Flags().BoolVar(&opts.fresh, "fresh", false, "discard checkpoints before running")
	return cmd
}

func runPipeline(cmd *cobra.Command, root *rootOptions, opts *runOptions) error {
	ctx := cmd.Context()
	a, err := loadApp(root, "pipeline")
	if err != nil {
		return err
	}

	cat, err := loadCatalog(a.cfg.Catalog)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	names := opts.domains
	if len(names) == 0 {
		names = a.cfg.Pipeline.Domains
	}
	domains, err := cat.Select(names)
	if err != nil {
		return fmt.Errorf("select domains: %w", err)
	}

	var cl closers
	defer cl.close()

	db, err := connectDatabase(ctx, a, &cl)
	if err != nil {
		return err
	}
	if a.cfg.Database.MigrationAutoRun {
		if err := runMigrations(db, a.cfg.Database, a.logger); err != nil {
			return err
		}
	}

	checkpoints, err := checkpoint.Open(a.cfg.Pipeline.CheckpointPath, a.logger)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	cl.add(func() {
		if err := checkpoints.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close checkpoint store")
		}
	})

	if opts.fresh {
		for _, d := range domains {
			n, err := checkpoints.DeleteDomain(ctx, d.Name)
			if err != nil {
				return fmt.Errorf("discard checkpoints for %s: %w", d.Name, err)
			}
			if n > 0 {
				a.logger.Info().Str("domain", d.Name).Int("checkpoints", n).Msg("discarded checkpoints")
			}
		}
	}

	orch, err := buildOrchestrator(ctx, a, db, checkpoints, &cl)
	if err != nil {
		return err
	}

	if runMetricsEnabled(a.cfg, a.metrics) {
		stopMetrics := serveRunMetrics(a)
		defer stopMetrics()
	}

	report, runErr := orch.Run(ctx, domains)
	if report != nil {
		fmt.Fprintln(cmd.OutOrStdout(), renderReport(report))
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			a.logger.Warn().Msg("run interrupted; checkpoints kept for resume")
		}
		return fmt.Errorf("pipeline run: %w", runErr)
	}
	if report.Failed() {
		return errDomainsFailed
	}
	return nil
}

// serveRunMetrics exposes metrics on metrics.listen_addr for the life of a
// run and returns its stop function.
func serveRunMetrics(a *app) func() {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, promhttp.Handler())
	srv := &http.Server{
		Addr:              a.cfg.Metrics.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info().Str("address", srv.Addr).Msg("metrics listener starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("metrics listener failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("failed to stop metrics listener")
		}
	}
}
