package pdf

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/training-evidence-curator/internal/domain"
	"github.com/helixir/training-evidence-curator/internal/observability"
)

// Download outcomes recorded in metrics.
const (
	outcomeCached     = "cached"
	outcomeDownloaded = "downloaded"
	outcomeFailed     = "failed"
	outcomeNoURL      = "no_url"
)

// Fetcher downloads a PDF. *Downloader implements it.
type Fetcher interface {
	Download(ctx context.Context, rawURL string) (*DownloadResult, error)
}

// ProcessStats summarises one enrichment pass.
type ProcessStats struct {
	Enriched int
	Failures int
	Skipped  int
}

// Processor enriches accepted papers with full text. Failures are recorded
// on the paper and never remove it.
type Processor struct {
	fetcher     Fetcher
	storage     *Storage
	extractor   *Extractor
	concurrency int
	logger      zerolog.Logger
	metrics     *observability.Metrics
}

// NewProcessor wires the download, storage and extraction steps.
// concurrency <= 0 means 5.
func NewProcessor(fetcher Fetcher, storage *Storage, extractor *Extractor, concurrency int, logger zerolog.Logger, metrics *observability.Metrics) *Processor {
	if concurrency <= 0 {
		concurrency = 5
	}
	if extractor == nil {
		extractor = NewExtractor(0)
	}
	return &Processor{
		fetcher:     fetcher,
		storage:     storage,
		extractor:   extractor,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "pdf_processor").Logger(),
		metrics:     metrics,
	}
}

// ProcessAll enriches papers concurrently. It returns ctx's error if the
// run was cancelled; enrichment failures are reported only in the stats.
func (p *Processor) ProcessAll(ctx context.Context, papers []*domain.CanonicalPaper) (ProcessStats, error) {
	outcomes := make([]error, len(papers))
	attempted := make([]bool, len(papers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, paper := range papers {
		if !paper.HasPDF() {
			p.metrics.RecordDownload(outcomeNoURL)
			continue
		}
		attempted[i] = true
		g.Go(func() error {
			outcomes[i] = p.Process(gctx, paper)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return ProcessStats{}, err
	}

	var stats ProcessStats
	for i := range papers {
		switch {
		case !attempted[i]:
			stats.Skipped++
		case outcomes[i] != nil:
			stats.Failures++
		default:
			stats.Enriched++
		}
	}
	return stats, nil
}

// Process downloads (unless already stored), extracts and segments one
// paper's PDF. The returned error is either ctx's or an
// *domain.EnrichmentFailure already recorded on the paper.
func (p *Processor) Process(ctx context.Context, paper *domain.CanonicalPaper) error {
	if !paper.HasPDF() {
		return nil
	}
	id := paper.ID.String()
	log := observability.WithPaperContext(p.logger, id, paper.DOI)

	var content []byte
	if p.storage.Exists(id) {
		data, err := p.storage.Read(id)
		if err != nil {
			return p.fail(paper, domain.EnrichmentStepStore, err)
		}
		content = data
		p.metrics.RecordDownload(outcomeCached)
	} else {
		result, err := p.fetcher.Download(ctx, paper.PDFURL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.metrics.RecordDownload(outcomeFailed)
			return p.fail(paper, domain.EnrichmentStepDownload, err)
		}
		p.metrics.RecordDownload(outcomeDownloaded)
		if _, err := p.storage.Save(id, result.Content); err != nil {
			return p.fail(paper, domain.EnrichmentStepStore, err)
		}
		content = result.Content
		log.Debug().Str("sha256", result.ContentHash).Int64("size_bytes", result.SizeBytes).Msg("pdf stored")
	}
	paper.PDFPath = p.storage.Path(id)

	text, err := p.extractor.Extract(content)
	if err != nil {
		return p.fail(paper, domain.EnrichmentStepExtract, err)
	}
	paper.FullText = text
	paper.Sections = SegmentSections(text)
	paper.Lifecycle = domain.LifecycleTextEnriched
	return nil
}

func (p *Processor) fail(paper *domain.CanonicalPaper, step domain.EnrichmentStep, cause error) error {
	failure := &domain.EnrichmentFailure{PaperID: paper.ID.String(), Step: step, Cause: cause}
	paper.AddEnrichmentError(failure)
	log := observability.WithPaperContext(p.logger, paper.ID.String(), paper.DOI)
	level := log.Warn()
	if errors.Is(cause, ErrNotPDF) {
		level = log.Debug()
	}
	level.Err(cause).
		Str("step", string(step)).
		Msg("full-text enrichment failed")
	return failure
}
