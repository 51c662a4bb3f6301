package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixir/training-evidence-curator/internal/catalog"
	"github.com/helixir/training-evidence-curator/internal/checkpoint"
	"github.com/helixir/training-evidence-curator/internal/config"
	"github.com/helixir/training-evidence-curator/internal/database"
	"github.com/helixir/training-evidence-curator/internal/dedup"
	"github.com/helixir/training-evidence-curator/internal/embedding"
	"github.com/helixir/training-evidence-curator/internal/events"
	"github.com/helixir/training-evidence-curator/internal/llm"
	"github.com/helixir/training-evidence-curator/internal/observability"
	"github.com/helixir/training-evidence-curator/internal/papersources"
	"github.com/helixir/training-evidence-curator/internal/papersources/arxiv"
	"github.com/helixir/training-evidence-curator/internal/papersources/doaj"
	"github.com/helixir/training-evidence-curator/internal/papersources/openalex"
	"github.com/helixir/training-evidence-curator/internal/papersources/pubmed"
	"github.com/helixir/training-evidence-curator/internal/papersources/semanticscholar"
	"github.com/helixir/training-evidence-curator/internal/pdf"
	"github.com/helixir/training-evidence-curator/internal/pipeline"
	"github.com/helixir/training-evidence-curator/internal/qdrant"
	"github.com/helixir/training-evidence-curator/internal/quality"
	"github.com/helixir/training-evidence-curator/internal/repository"
)

// closers releases resources in reverse order of acquisition.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// sourceLimiter builds one source's rate limiter from its configured window.
func sourceLimiter(sc config.PaperSourceConfig) *papersources.RateLimiter {
	return papersources.NewIntervalLimiter(sc.RateCount, sc.RateInterval, sc.Burst)
}

// buildRegistry registers every source client; disabled ones stay
// registered but are skipped by Registry.Enabled.
func buildRegistry(cfg config.PaperSourcesConfig) *papersources.Registry {
	reg := papersources.NewRegistry()

	reg.Register(pubmed.New(pubmed.Config{
		BaseURL:    cfg.PubMed.BaseURL,
		APIKey:     cfg.PubMed.APIKey,
		Email:      cfg.PubMed.Email,
		Tool:       pubmed.DefaultTool,
		Timeout:    cfg.PubMed.Timeout,
		MaxRetries: cfg.PubMed.MaxRetries,
		RetryDelay: cfg.PubMed.RetryDelay,
		MaxResults: cfg.PubMed.MaxResults,
		Enabled:    cfg.PubMed.Enabled,
	}, sourceLimiter(cfg.PubMed)))

	reg.Register(semanticscholar.New(semanticscholar.Config{
		BaseURL:    cfg.SemanticScholar.BaseURL,
		APIKey:     cfg.SemanticScholar.APIKey,
		Timeout:    cfg.SemanticScholar.Timeout,
		MaxRetries: cfg.SemanticScholar.MaxRetries,
		RetryDelay: cfg.SemanticScholar.RetryDelay,
		MaxResults: cfg.SemanticScholar.MaxResults,
		Enabled:    cfg.SemanticScholar.Enabled,
	}, sourceLimiter(cfg.SemanticScholar)))

	reg.Register(doaj.New(doaj.Config{
		BaseURL:    cfg.DOAJ.BaseURL,
		Timeout:    cfg.DOAJ.Timeout,
		MaxRetries: cfg.DOAJ.MaxRetries,
		RetryDelay: cfg.DOAJ.RetryDelay,
		MaxResults: cfg.DOAJ.MaxResults,
		Enabled:    cfg.DOAJ.Enabled,
	}, sourceLimiter(cfg.DOAJ)))

	reg.Register(openalex.New(openalex.Config{
		BaseURL:    cfg.OpenAlex.BaseURL,
		Email:      cfg.OpenAlex.Email,
		Timeout:    cfg.OpenAlex.Timeout,
		MaxRetries: cfg.OpenAlex.MaxRetries,
		RetryDelay: cfg.OpenAlex.RetryDelay,
		MaxResults: cfg.OpenAlex.MaxResults,
		Enabled:    cfg.OpenAlex.Enabled,
	}, sourceLimiter(cfg.OpenAlex)))

	reg.Register(arxiv.New(arxiv.Config{
		BaseURL:    cfg.ArXiv.BaseURL,
		Timeout:    cfg.ArXiv.Timeout,
		MaxRetries: cfg.ArXiv.MaxRetries,
		RetryDelay: cfg.ArXiv.RetryDelay,
		MaxResults: cfg.ArXiv.MaxResults,
		Enabled:    cfg.ArXiv.Enabled,
	}, sourceLimiter(cfg.ArXiv)))

	return reg
}

// llmClientConfig returns the shared endpoint settings for model.
func llmClientConfig(cfg config.LLMConfig, model string) llm.ClientConfig {
	return llm.ClientConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      model,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
	}
}

func loadCatalog(cfg config.CatalogConfig) (*catalog.Catalog, error) {
	if cfg.Path == "" {
		return catalog.Default()
	}
	return catalog.Load(cfg.Path)
}

func connectDatabase(ctx context.Context, a *app, cl *closers) (*database.DB, error) {
	db, err := database.New(ctx, &a.cfg.Database, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	cl.add(db.Close)
	return db, nil
}

func runMigrations(db *database.DB, cfg config.DatabaseConfig, logger zerolog.Logger) error {
	migrator, err := database.NewMigrator(db, cfg.MigrationPath, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// connectQdrant opens the vector store and makes sure its collection exists.
func connectQdrant(ctx context.Context, a *app, cl *closers) (*qdrant.Client, error) {
	qc, err := qdrant.NewClient(qdrant.Config{
		Host:           a.cfg.Qdrant.Host,
		Port:           a.cfg.Qdrant.Port,
		APIKey:         a.cfg.Qdrant.APIKey,
		UseTLS:         a.cfg.Qdrant.UseTLS,
		CollectionName: a.cfg.Qdrant.CollectionName,
		VectorSize:     uint64(a.cfg.Embedding.Dimension),
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	cl.add(func() {
		if err := qc.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close qdrant client")
		}
	})
	if err := qc.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("ensure qdrant collection: %w", err)
	}
	return qc, nil
}

// buildPublisher returns the Kafka publisher when enabled.
func buildPublisher(a *app, cl *closers) (events.Publisher, error) {
	if !a.cfg.Kafka.Enabled {
		return events.NoopPublisher{}, nil
	}
	pub, err := events.NewKafkaPublisher(events.KafkaConfig{
		Brokers:      a.cfg.Kafka.Brokers,
		Topic:        a.cfg.Kafka.Topic,
		BatchTimeout: a.cfg.Kafka.BatchTimeout,
		WriteTimeout: a.cfg.Kafka.WriteTimeout,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("create kafka publisher: %w", err)
	}
	cl.add(func() {
		if err := pub.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close kafka publisher")
		}
	})
	return pub, nil
}

// buildOrchestrator wires every stage component from configuration.
func buildOrchestrator(ctx context.Context, a *app, db *database.DB, checkpoints *checkpoint.Store, cl *closers) (*pipeline.Orchestrator, error) {
	cfg := a.cfg
	metrics := a.metrics

	registry := buildRegistry(cfg.PaperSources)
	collectors := registry.Enabled()
	if len(collectors) == 0 {
		return nil, fmt.Errorf("no paper sources are enabled")
	}

	chatModel := cfg.Quality.Model
	if chatModel == "" {
		chatModel = cfg.LLM.ChatModel
	}
	chat := llm.NewChatClient(
		llmClientConfig(cfg.LLM, chatModel),
		cfg.Quality.Temperature,
		papersources.NewIntervalLimiter(cfg.Quality.RateCount, cfg.Quality.RateInterval, 1),
		metrics,
	)
	assessor := quality.NewLLMAssessor(chat, cfg.Quality.BatchSize, a.logger)
	filter := quality.NewFilter(assessor, quality.FilterConfig{
		MinRelevance: cfg.Quality.MinRelevance,
		MinQuality:   cfg.Quality.MinQuality,
		BatchSize:    cfg.Quality.BatchSize,
		Concurrency:  cfg.Concurrency.Assessments,
	}, a.logger, metrics)

	storage, err := pdf.NewStorage(cfg.Pipeline.PDFDir)
	if err != nil {
		return nil, fmt.Errorf("create pdf storage: %w", err)
	}
	downloader := pdf.NewDownloader(pdf.Config{
		Timeout:              cfg.PDF.Timeout,
		MaxSize:              cfg.PDF.MaxSize,
		UserAgent:            cfg.PDF.UserAgent,
		AllowPrivateNetworks: cfg.PDF.AllowPrivateNetworks,
	})
	processor := pdf.NewProcessor(downloader, storage, pdf.NewExtractor(cfg.PDF.MaxPages), cfg.Concurrency.Downloads, a.logger, metrics)

	embedder := llm.NewEmbeddingClient(
		llmClientConfig(cfg.LLM, cfg.LLM.EmbeddingModel),
		cfg.Embedding.Dimension,
		papersources.NewIntervalLimiter(cfg.Embedding.RateCount, cfg.Embedding.RateInterval, 1),
		metrics,
	)
	generator := embedding.NewGenerator(embedder, embedding.Config{
		Dimension:       cfg.Embedding.Dimension,
		BatchSize:       cfg.Embedding.BatchSize,
		IncludeFullText: cfg.Embedding.IncludeFullText,
		FullTextChars:   cfg.Embedding.FullTextChars,
	}, a.logger, metrics)

	publisher, err := buildPublisher(a, cl)
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{
		Collector: pipeline.NewSourceCollector(collectors, papersources.CollectOptions{
			Concurrency: cfg.Concurrency.Queries,
			Logger:      a.logger,
			Metrics:     metrics,
		}),
		Deduplicator: dedup.NewEngine(dedup.Config{
			TitleThreshold:       cfg.Dedup.TitleThreshold,
			TitleAuthorThreshold: cfg.Dedup.TitleAuthorThreshold,
			TokenSetCoverage:     cfg.Dedup.TokenSetCoverage,
			RespectDistinctDOI:   cfg.Dedup.RespectDistinctDOI,
		}, a.logger, metrics),
		Filter:      filter,
		Enricher:    processor,
		Embedder:    generator,
		Store:       repository.NewStore(db, a.logger, metrics),
		Checkpoints: checkpoints,
		Publisher:   publisher,
		Logger:      a.logger,
		Metrics:     metrics,
	}

	if cfg.Qdrant.Enabled {
		qc, err := connectQdrant(ctx, a, cl)
		if err != nil {
			return nil, err
		}
		deps.Mirror = qdrant.NewMirror(qc, a.logger)
	}

	return pipeline.New(pipeline.Config{
		TargetPapers:      cfg.Pipeline.TargetPapers,
		YearFrom:          cfg.Pipeline.YearFrom,
		YearTo:            cfg.Pipeline.YearTo,
		DomainConcurrency: cfg.Concurrency.Domains,
		RetryUndecidable:  cfg.Quality.RetryUndecidable,
	}, deps)
}

// runMetricsEnabled reports whether run should expose metrics on its own
// listener.
func runMetricsEnabled(cfg *config.Config, metrics *observability.Metrics) bool {
	return metrics != nil && cfg.Metrics.ListenAddr != ""
}
