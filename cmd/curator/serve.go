package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helixir/training-evidence-curator/internal/config"
	"github.com/helixir/training-evidence-curator/internal/repository"
	httpserver "github.com/helixir/training-evidence-curator/internal/server/http"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API over curated papers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), root)
		},
	}
}

func serve(ctx context.Context, root *rootOptions) error {
	a, err := loadApp(root, "server")
	if err != nil {
		return err
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

	deps := httpserver.Deps{
		Papers:  repository.NewPgPaperRepository(db),
		Stats:   repository.NewPgStatsRepository(db),
		Store:   repository.NewStore(db, a.logger, a.metrics),
		Metrics: a.metrics,
		Logger:  a.logger,
	}
	if a.cfg.Server.VectorBackend == config.VectorBackendQdrant {
		qc, err := connectQdrant(ctx, a, &cl)
		if err != nil {
			return err
		}
		deps.Vectors = qc
	}

	srvCfg := httpserver.Config{
		Address:         a.cfg.Server.HTTPAddress(),
		ReadTimeout:     a.cfg.Server.ReadTimeout,
		WriteTimeout:    a.cfg.Server.WriteTimeout,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	}
	if a.metrics != nil {
		srvCfg.MetricsPath = a.cfg.Metrics.Path
	}
	srv, err := httpserver.NewServer(srvCfg, deps)
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info().Msg("shutting down HTTP server")
	if err := srv.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
