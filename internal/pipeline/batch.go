package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/mpasite/internal/model"
)

// BatchProcessor checks several sites concurrently.
type BatchProcessor struct {
	// pipelineFactory creates a new pipeline for each site so that
	// step state does not leak between checks.
	pipelineFactory func(site string) *Pipeline

	// concurrency is the maximum number of concurrent checks.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger

	// results stores completed reports in input order.
	results []*model.CheckReport
	mu      sync.Mutex
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent checks.
// Default is 4 if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor. pipelineFactory is
// called once per site.
func NewBatchProcessor(pipelineFactory func(site string) *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     4,
		results:         make([]*model.CheckReport, 0),
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch checks sites concurrently, bounded by the configured
// concurrency. A failing check does not stop the others; its error is
// recorded in its report.
//
// Returns the reports in input order. A site that was never started
// because the context was cancelled has a nil report.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, sites []string) ([]*model.CheckReport, error) {
	bp.logger.Info("starting batch check",
		"total_sites", len(sites),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()
	bp.results = make([]*model.CheckReport, len(sites))

	err := bp.run(ctx, sites, func(report *model.CheckReport, index int) {
		bp.mu.Lock()
		bp.results[index] = report
		bp.mu.Unlock()
	})

	bp.logger.Info("batch check complete",
		"total_sites", len(sites),
		"elapsed", time.Since(startTime),
	)

	return bp.results, err
}

func (bp *BatchProcessor) run(ctx context.Context, sites []string, done func(*model.CheckReport, int)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, site := range sites {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Debug("checking site", "site", site, "index", i+1, "total", len(sites))

			report := model.NewCheckReport(site)
			err := bp.pipelineFactory(site).Execute(ctx, report)
			if report.FinishedAt.IsZero() {
				report.Finish()
			}
			done(report, i)

			if err != nil {
				// Recorded in the report; other checks continue.
				bp.logger.Warn("check failed", "site", site, "error", err)
				return nil
			}
			bp.logger.Debug("check completed", "site", site, "findings", report.TotalFindings())
			return nil
		})
	}

	return g.Wait()
}
