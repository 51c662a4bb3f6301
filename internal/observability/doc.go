// Package observability provides logging, metrics, and context helpers for
// the curator.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//	logger = observability.WithDomainContext(logger, "periodization")
//	logger.Info().Int("collected", n).Msg("collection finished")
//
// Components receive a zerolog.Logger at construction and never use the
// global logger.
//
// # Metrics
//
// NewMetrics registers every collector under a namespace with the default
// Prometheus registry. The read API serves them at /metrics; `curator run`
// can expose them on metrics.listen_addr while the pipeline runs.
//
// # Context
//
// WithRunID and WithDomain attach the pipeline run and research domain to a
// context so that deeply nested code can tag its log lines.
package observability
