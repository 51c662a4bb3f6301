// Package config provides configuration management for the training evidence curator.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable the curator reads.
const EnvPrefix = "CURATOR"

// SSL mode constants for database connections.
const (
	SSLModeDisable    = "disable"
	SSLModeRequire    = "require"
	SSLModeVerifyCA   = "verify-ca"
	SSLModeVerifyFull = "verify-full"
)

// Vector search backends for the read API.
const (
	VectorBackendPostgres = "postgres"
	VectorBackendQdrant   = "qdrant"
)

// Config holds all configuration for the curator.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline"`
	Concurrency  ConcurrencyConfig  `mapstructure:"concurrency"`
	Dedup        DedupConfig        `mapstructure:"dedup"`
	Quality      QualityConfig      `mapstructure:"quality"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Embedding    EmbeddingConfig    `mapstructure:"embedding"`
	PDF          PDFConfig          `mapstructure:"pdf"`
	PaperSources PaperSourcesConfig `mapstructure:"paper_sources"`
	Qdrant       QdrantConfig       `mapstructure:"qdrant"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Catalog      CatalogConfig      `mapstructure:"catalog"`
}

// ServerConfig holds the read API server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// VectorBackend selects where similarity queries run: postgres or qdrant.
	VectorBackend string `mapstructure:"vector_backend"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	User string `mapstructure:"user"`
	// Password is read from CURATOR_DATABASE_PASSWORD only.
	Password string `mapstructure:"-"`
	Name     string `mapstructure:"name"`
	// SSLMode is one of disable, require, verify-ca, verify-full.
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	MigrationPath     string        `mapstructure:"migration_path"`
	// MigrationAutoRun applies pending migrations before a pipeline run.
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	// ListenAddr, when set, exposes metrics during a pipeline run.
	ListenAddr string `mapstructure:"listen_addr"`
	Namespace  string `mapstructure:"namespace"`
}

// PipelineConfig holds run-wide pipeline settings.
type PipelineConfig struct {
	// TargetPapers is the desired number of candidate records per domain.
	TargetPapers int `mapstructure:"target_papers"`
	// YearFrom and YearTo bound publication years; 0 leaves a side open.
	YearFrom int `mapstructure:"year_from"`
	YearTo   int `mapstructure:"year_to"`
	// Domains restricts a run to the named catalog domains; empty means all.
	Domains        []string `mapstructure:"domains"`
	CheckpointPath string   `mapstructure:"checkpoint_path"`
	PDFDir         string   `mapstructure:"pdf_dir"`
}

// ConcurrencyConfig bounds the worker pools.
type ConcurrencyConfig struct {
	Domains     int `mapstructure:"domains"`
	Queries     int `mapstructure:"queries"`
	Assessments int `mapstructure:"assessments"`
	Downloads   int `mapstructure:"downloads"`
	Embeddings  int `mapstructure:"embeddings"`
}

// DedupConfig holds the title matching thresholds.
type DedupConfig struct {
	TitleThreshold       float64 `mapstructure:"title_threshold"`
	TitleAuthorThreshold float64 `mapstructure:"title_author_threshold"`
	TokenSetCoverage     float64 `mapstructure:"token_set_coverage"`
	RespectDistinctDOI   bool    `mapstructure:"respect_distinct_doi"`
}

// QualityConfig holds the acceptance gates and assessor settings.
type QualityConfig struct {
	MinRelevance float64 `mapstructure:"min_relevance"`
	MinQuality   int     `mapstructure:"min_quality"`
	BatchSize    int     `mapstructure:"batch_size"`
	// RetryUndecidable re-assesses undecidable papers when a run resumes
	// from the filtering checkpoint.
	RetryUndecidable bool          `mapstructure:"retry_undecidable"`
	Model            string        `mapstructure:"model"`
	Temperature      float64       `mapstructure:"temperature"`
	RateCount        int           `mapstructure:"rate_count"`
	RateInterval     time.Duration `mapstructure:"rate_interval"`
}

// LLMConfig holds the OpenAI-compatible endpoint settings shared by the
// assessor and the embedding model.
type LLMConfig struct {
	// APIKey is read from CURATOR_LLM_API_KEY only.
	APIKey         string        `mapstructure:"-"`
	BaseURL        string        `mapstructure:"base_url"`
	ChatModel      string        `mapstructure:"chat_model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

// EmbeddingConfig holds embedding generation settings.
type EmbeddingConfig struct {
	Dimension       int           `mapstructure:"dimension"`
	BatchSize       int           `mapstructure:"batch_size"`
	IncludeFullText bool          `mapstructure:"include_full_text"`
	FullTextChars   int           `mapstructure:"full_text_chars"`
	RateCount       int           `mapstructure:"rate_count"`
	RateInterval    time.Duration `mapstructure:"rate_interval"`
}

// PDFConfig holds full-text download settings.
type PDFConfig struct {
	MaxSize   int64         `mapstructure:"max_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxPages  int           `mapstructure:"max_pages"`
	UserAgent string        `mapstructure:"user_agent"`
	// AllowPrivateNetworks disables the private address guard. Tests only.
	AllowPrivateNetworks bool `mapstructure:"allow_private_networks"`
}

// PaperSourcesConfig holds configuration for all paper source APIs.
type PaperSourcesConfig struct {
	PubMed          PaperSourceConfig `mapstructure:"pubmed"`
	SemanticScholar PaperSourceConfig `mapstructure:"semantic_scholar"`
	DOAJ            PaperSourceConfig `mapstructure:"doaj"`
	OpenAlex        PaperSourceConfig `mapstructure:"openalex"`
	ArXiv           PaperSourceConfig `mapstructure:"arxiv"`
}

// PaperSourceConfig holds configuration for a single paper source API.
type PaperSourceConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// APIKey is read from CURATOR_PAPER_SOURCES_<NAME>_API_KEY only.
	APIKey  string        `mapstructure:"-"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// RateCount requests are allowed per RateInterval.
	RateCount    int           `mapstructure:"rate_count"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
	// Burst requests may be issued back to back; the rest of the window
	// is paced so no RateInterval ever sees more than RateCount.
	Burst      int           `mapstructure:"burst"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	MaxResults int           `mapstructure:"max_results"`
	// Email identifies the caller to PubMed and OpenAlex polite pools.
	Email string `mapstructure:"email"`
}

// QdrantConfig holds the optional vector mirror settings.
type QdrantConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	CollectionName string `mapstructure:"collection_name"`
	UseTLS         bool   `mapstructure:"use_tls"`
	// APIKey is read from CURATOR_QDRANT_API_KEY only.
	APIKey string `mapstructure:"-"`
}

// KafkaConfig holds run event publisher settings.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// CatalogConfig points at the research domain catalog.
type CatalogConfig struct {
	// Path is a YAML catalog file; empty uses the built-in catalog.
	Path string `mapstructure:"path"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// Load reads configuration from defaults, an optional YAML file and
// CURATOR_* environment variables, in increasing precedence. configFile
// may be empty, in which case config.yaml is searched for in the usual
// places and its absence is tolerated.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/training-evidence-curator")
	}

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Comma-separated lists from the environment arrive as one element.
	cfg.Pipeline.Domains = splitList(cfg.Pipeline.Domains)
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.Database.Password = os.Getenv(EnvPrefix + "_DATABASE_PASSWORD")
	cfg.LLM.APIKey = os.Getenv(EnvPrefix + "_LLM_API_KEY")
	cfg.Qdrant.APIKey = os.Getenv(EnvPrefix + "_QDRANT_API_KEY")

	cfg.PaperSources.PubMed.APIKey = os.Getenv(EnvPrefix + "_PAPER_SOURCES_PUBMED_API_KEY")
	cfg.PaperSources.SemanticScholar.APIKey = os.Getenv(EnvPrefix + "_PAPER_SOURCES_SEMANTIC_SCHOLAR_API_KEY")
	cfg.PaperSources.DOAJ.APIKey = os.Getenv(EnvPrefix + "_PAPER_SOURCES_DOAJ_API_KEY")
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.vector_backend", VectorBackendPostgres)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "curator")
	v.SetDefault("database.name", "training_evidence")
	v.SetDefault("database.ssl_mode", SSLModeDisable)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("metrics.namespace", "curator")

	v.SetDefault("pipeline.target_papers", 50)
	v.SetDefault("pipeline.year_from", 0)
	v.SetDefault("pipeline.year_to", 0)
	v.SetDefault("pipeline.domains", []string{})
	v.SetDefault("pipeline.checkpoint_path", "./data/checkpoints.db")
	v.SetDefault("pipeline.pdf_dir", "./data/raw_papers")

	v.SetDefault("concurrency.domains", 2)
	v.SetDefault("concurrency.queries", 4)
	v.SetDefault("concurrency.assessments", 3)
	v.SetDefault("concurrency.downloads", 5)
	v.SetDefault("concurrency.embeddings", 1)

	v.SetDefault("dedup.title_threshold", 0.90)
	v.SetDefault("dedup.title_author_threshold", 0.80)
	v.SetDefault("dedup.token_set_coverage", 0.6)
	v.SetDefault("dedup.respect_distinct_doi", true)

	v.SetDefault("quality.min_relevance", 0.6)
	v.SetDefault("quality.min_quality", 6)
	v.SetDefault("quality.batch_size", 5)
	v.SetDefault("quality.retry_undecidable", true)
	v.SetDefault("quality.model", "gpt-4o-mini")
	v.SetDefault("quality.temperature", 0.1)
	v.SetDefault("quality.rate_count", 60)
	v.SetDefault("quality.rate_interval", "1m")

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.chat_model", "gpt-4o-mini")
	v.SetDefault("llm.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", "2s")

	v.SetDefault("embedding.dimension", 768)
	v.SetDefault("embedding.batch_size", 32)
	v.SetDefault("embedding.include_full_text", false)
	v.SetDefault("embedding.full_text_chars", 2000)
	v.SetDefault("embedding.rate_count", 300)
	v.SetDefault("embedding.rate_interval", "1m")

	v.SetDefault("pdf.max_size", 50<<20)
	v.SetDefault("pdf.timeout", "60s")
	v.SetDefault("pdf.max_pages", 0)
	v.SetDefault("pdf.user_agent", "TrainingEvidenceCurator/1.0")
	v.SetDefault("pdf.allow_private_networks", false)

	// NCBI allows 3 requests per second without an API key.
	v.SetDefault("paper_sources.pubmed.enabled", true)
	v.SetDefault("paper_sources.pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("paper_sources.pubmed.timeout", "30s")
	v.SetDefault("paper_sources.pubmed.rate_count", 3)
	v.SetDefault("paper_sources.pubmed.rate_interval", "1s")
	v.SetDefault("paper_sources.pubmed.burst", 1)
	v.SetDefault("paper_sources.pubmed.max_retries", 3)
	v.SetDefault("paper_sources.pubmed.retry_delay", "1s")
	v.SetDefault("paper_sources.pubmed.max_results", 20)
	v.SetDefault("paper_sources.pubmed.email", "")

	v.SetDefault("paper_sources.semantic_scholar.enabled", true)
	v.SetDefault("paper_sources.semantic_scholar.base_url", "https://api.semanticscholar.org/graph/v1")
	v.SetDefault("paper_sources.semantic_scholar.timeout", "30s")
	v.SetDefault("paper_sources.semantic_scholar.rate_count", 100)
	v.SetDefault("paper_sources.semantic_scholar.rate_interval", "1m")
	v.SetDefault("paper_sources.semantic_scholar.burst", 1)
	v.SetDefault("paper_sources.semantic_scholar.max_retries", 3)
	v.SetDefault("paper_sources.semantic_scholar.retry_delay", "2s")
	v.SetDefault("paper_sources.semantic_scholar.max_results", 20)

	v.SetDefault("paper_sources.doaj.enabled", true)
	v.SetDefault("paper_sources.doaj.base_url", "https://doaj.org/api")
	v.SetDefault("paper_sources.doaj.timeout", "30s")
	v.SetDefault("paper_sources.doaj.rate_count", 2)
	v.SetDefault("paper_sources.doaj.rate_interval", "1s")
	v.SetDefault("paper_sources.doaj.burst", 1)
	v.SetDefault("paper_sources.doaj.max_retries", 3)
	v.SetDefault("paper_sources.doaj.retry_delay", "1s")
	v.SetDefault("paper_sources.doaj.max_results", 20)

	v.SetDefault("paper_sources.openalex.enabled", true)
	v.SetDefault("paper_sources.openalex.base_url", "https://api.openalex.org")
	v.SetDefault("paper_sources.openalex.timeout", "30s")
	v.SetDefault("paper_sources.openalex.rate_count", 10)
	v.SetDefault("paper_sources.openalex.rate_interval", "1s")
	v.SetDefault("paper_sources.openalex.burst", 1)
	v.SetDefault("paper_sources.openalex.max_retries", 3)
	v.SetDefault("paper_sources.openalex.retry_delay", "1s")
	v.SetDefault("paper_sources.openalex.max_results", 20)
	v.SetDefault("paper_sources.openalex.email", "")

	// arXiv asks for no more than one request every three seconds.
	v.SetDefault("paper_sources.arxiv.enabled", true)
	v.SetDefault("paper_sources.arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("paper_sources.arxiv.timeout", "30s")
	v.SetDefault("paper_sources.arxiv.rate_count", 10)
	v.SetDefault("paper_sources.arxiv.rate_interval", "1m")
	v.SetDefault("paper_sources.arxiv.burst", 1)
	v.SetDefault("paper_sources.arxiv.max_retries", 3)
	v.SetDefault("paper_sources.arxiv.retry_delay", "3s")
	v.SetDefault("paper_sources.arxiv.max_results", 10)

	v.SetDefault("qdrant.enabled", false)
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection_name", "training_evidence_papers")
	v.SetDefault("qdrant.use_tls", false)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "curator.runs")
	v.SetDefault("kafka.batch_timeout", "10ms")
	v.SetDefault("kafka.write_timeout", "10s")

	v.SetDefault("catalog.path", "")
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	switch c.Server.VectorBackend {
	case VectorBackendPostgres:
	case VectorBackendQdrant:
		if !c.Qdrant.Enabled {
			return fmt.Errorf("server.vector_backend %q requires qdrant.enabled", c.Server.VectorBackend)
		}
	default:
		return fmt.Errorf("invalid vector backend: %q", c.Server.VectorBackend)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}
	switch c.Database.SSLMode {
	case SSLModeDisable, SSLModeRequire, SSLModeVerifyCA, SSLModeVerifyFull:
	default:
		return fmt.Errorf("invalid database ssl_mode: %q", c.Database.SSLMode)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Pipeline.TargetPapers <= 0 {
		return fmt.Errorf("pipeline target_papers must be positive")
	}
	if c.Pipeline.YearFrom > 0 && c.Pipeline.YearTo > 0 && c.Pipeline.YearFrom > c.Pipeline.YearTo {
		return fmt.Errorf("pipeline year_from (%d) must be <= year_to (%d)", c.Pipeline.YearFrom, c.Pipeline.YearTo)
	}
	if c.Pipeline.CheckpointPath == "" {
		return fmt.Errorf("pipeline checkpoint_path is required")
	}
	if c.Pipeline.PDFDir == "" {
		return fmt.Errorf("pipeline pdf_dir is required")
	}

	for name, n := range map[string]int{
		"domains":     c.Concurrency.Domains,
		"queries":     c.Concurrency.Queries,
		"assessments": c.Concurrency.Assessments,
		"downloads":   c.Concurrency.Downloads,
		"embeddings":  c.Concurrency.Embeddings,
	} {
		if n <= 0 {
			return fmt.Errorf("concurrency %s must be positive", name)
		}
	}

	if !inUnitRange(c.Dedup.TitleThreshold) || !inUnitRange(c.Dedup.TitleAuthorThreshold) {
		return fmt.Errorf("dedup thresholds must be between 0 and 1")
	}
	if !inUnitRange(c.Dedup.TokenSetCoverage) {
		return fmt.Errorf("dedup token_set_coverage must be within [0, 1], got %.2f", c.Dedup.TokenSetCoverage)
	}
	if c.Dedup.TitleAuthorThreshold > c.Dedup.TitleThreshold {
		return fmt.Errorf("dedup title_author_threshold (%.2f) must be <= title_threshold (%.2f)",
			c.Dedup.TitleAuthorThreshold, c.Dedup.TitleThreshold)
	}

	if !inUnitRange(c.Quality.MinRelevance) {
		return fmt.Errorf("quality min_relevance must be between 0 and 1")
	}
	if c.Quality.MinQuality < 1 || c.Quality.MinQuality > 10 {
		return fmt.Errorf("quality min_quality must be between 1 and 10")
	}
	if c.Quality.BatchSize <= 0 {
		return fmt.Errorf("quality batch_size must be positive")
	}

	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm max_retries must be >= 0")
	}

	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding batch_size must be positive")
	}

	if c.PDF.MaxSize <= 0 {
		return fmt.Errorf("pdf max_size must be positive")
	}

	if c.Qdrant.Enabled && c.Qdrant.CollectionName == "" {
		return fmt.Errorf("qdrant collection_name is required when qdrant is enabled")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka topic is required when kafka is enabled")
		}
	}

	return nil
}

func inUnitRange(f float64) bool {
	return f >= 0 && f <= 1
}
