package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dvrpc/traffic-counts/internal/domain"
	"github.com/dvrpc/traffic-counts/internal/identity"
	"github.com/dvrpc/traffic-counts/internal/observability"
	"github.com/dvrpc/traffic-counts/internal/report"
)

// CountStore is the slice of storage the processor needs.
type CountStore interface {
	UpsertHeader(ctx context.Context, header domain.SiteHeader) error
	SaveCounts(ctx context.Context, records []domain.CountRecord) error
}

// Processor runs one site's batch through canonicalization, validation,
// deduplication, and persistence.
type Processor struct {
	store    CountStore
	reporter *report.Reporter
	logger   *slog.Logger
	metrics  *observability.Metrics
}

func NewProcessor(store CountStore, reporter *report.Reporter, logger *slog.Logger, metrics *observability.Metrics) *Processor {
	return &Processor{
		store:    store,
		reporter: reporter,
		logger:   logger,
		metrics:  metrics,
	}
}

// ProcessSite imports one site's batch. Individual unusable rows are reported
// and skipped; a natural-key conflict or storage failure aborts the whole
// batch so a partial import is never persisted silently.
func (p *Processor) ProcessSite(ctx context.Context, batch Batch) error {
	p.metrics.SitesInFlight.Inc()
	defer p.metrics.SitesInFlight.Dec()

	start := domain.Clock().Now()

	if batch.Header != nil {
		header := p.canonicalizeHeader(ctx, batch.Site, *batch.Header)
		if err := p.store.UpsertHeader(ctx, header); err != nil {
			p.reporter.Errorf(ctx, batch.Site, "header upsert failed: %v", err)
			return fmt.Errorf("site %d header: %w", batch.Site, err)
		}
	}

	records := p.canonicalizeRecords(ctx, batch.Site, batch.Records)

	deduped, err := identity.Dedupe(records)
	if err != nil {
		p.reporter.Errorf(ctx, batch.Site, "batch rejected: %v", err)
		return fmt.Errorf("site %d: %w", batch.Site, err)
	}

	if len(deduped) > 0 {
		if err := p.store.SaveCounts(ctx, deduped); err != nil {
			p.reporter.Errorf(ctx, batch.Site, "count persistence failed: %v", err)
			return fmt.Errorf("site %d counts: %w", batch.Site, err)
		}
	}

	for _, rec := range deduped {
		p.metrics.RecordsImported.WithLabelValues(string(rec.Kind)).Inc()
	}
	p.metrics.BatchRecords.Observe(float64(len(deduped)))
	p.metrics.BatchDuration.Observe(domain.Clock().Since(start).Seconds())

	skipped := len(batch.Records) - len(records)
	collapsed := len(records) - len(deduped)
	p.reporter.Infof(ctx, batch.Site, "imported %d records (%d skipped, %d duplicates collapsed)",
		len(deduped), skipped, collapsed)
	p.logger.Info("site batch imported",
		"site", batch.Site,
		"records", len(deduped),
		"skipped", skipped,
		"collapsed", collapsed,
	)
	return nil
}
