package pipeline

import (
	"context"

	"github.com/dvrpc/traffic-counts/internal/domain"
)

// canonicalizeHeader normalizes a raw header's directional and yes/no
// fields. Corrections and clearings are reported at info level; values
// outside both the canonical set and the sentinel list pass through
// unchanged with a warning, never guessed.
func (p *Processor) canonicalizeHeader(ctx context.Context, site int64, raw RawHeader) domain.SiteHeader {
	header := domain.SiteHeader{
		Site:         site,
		FromLimit:    raw.FromLimit,
		ToLimit:      raw.ToLimit,
		Municipality: raw.Municipality,
		CounterType:  raw.CounterType,
	}
	header.InDirection = p.headerDirection(ctx, site, "in_direction", raw.InDirection, false)
	header.OutDirection = p.headerDirection(ctx, site, "out_direction", raw.OutDirection, false)
	header.SidewalkDirection = p.headerDirection(ctx, site, "sidewalk_direction", raw.SidewalkDirection, false)
	header.TrafficDirection = p.headerDirection(ctx, site, "traffic_direction", raw.TrafficDirection, true)
	header.CountDirection = p.headerDirection(ctx, site, "count_direction", raw.CountDirection, true)
	header.Source = p.headerYesNo(ctx, site, "source", raw.Source)
	header.Divided = p.headerYesNo(ctx, site, "divided", raw.Divided)
	header.HPMS = p.headerYesNo(ctx, site, "hpms", raw.HPMS)
	return header
}

func (p *Processor) headerDirection(ctx context.Context, site int64, field, raw string, allowBoth bool) domain.Direction {
	v := domain.CanonicalizeDirection(raw, allowBoth)
	p.metrics.CanonicalOutcomes.WithLabelValues(field, v.Outcome.String()).Inc()

	switch v.Outcome {
	case domain.Corrected:
		p.reporter.Infof(ctx, site, "corrected %s from %q to %q", field, raw, v.Direction)
	case domain.Cleared:
		if raw != "" {
			p.reporter.Infof(ctx, site, "cleared %s value %q", field, raw)
		}
	case domain.Unrecognized:
		p.reporter.Warnf(ctx, site, "unrecognized %s value %q left unchanged", field, raw)
		return domain.Direction(raw)
	}
	return v.Direction
}

func (p *Processor) headerYesNo(ctx context.Context, site int64, field, raw string) domain.YesNo {
	v := domain.CanonicalizeYesNo(raw)
	p.metrics.CanonicalOutcomes.WithLabelValues(field, v.Outcome.String()).Inc()

	switch v.Outcome {
	case domain.Corrected:
		p.reporter.Infof(ctx, site, "corrected %s from %q to %q", field, raw, v.YesNo)
	case domain.Cleared:
		if raw != "" {
			p.reporter.Infof(ctx, site, "cleared %s value %q", field, raw)
		}
	case domain.Unrecognized:
		p.reporter.Warnf(ctx, site, "unrecognized %s value %q left unchanged", field, raw)
		return domain.YesNo(raw)
	}
	return v.YesNo
}

// canonicalizeRecords converts raw rows into validated count records. A row
// whose direction cannot be canonicalized has no storable natural key, so it
// is reported and skipped rather than guessed.
func (p *Processor) canonicalizeRecords(ctx context.Context, site int64, raws []RawRecord) []domain.CountRecord {
	records := make([]domain.CountRecord, 0, len(raws))
	for _, raw := range raws {
		v := domain.CanonicalizeDirection(raw.Direction, false)
		p.metrics.CanonicalOutcomes.WithLabelValues("direction", v.Outcome.String()).Inc()

		switch v.Outcome {
		case domain.Corrected:
			p.reporter.Infof(ctx, site, "corrected direction from %q to %q", raw.Direction, v.Direction)
		case domain.Cleared, domain.Unrecognized:
			p.reporter.Warnf(ctx, site, "skipping %s row %s %s: unusable direction %q", raw.Kind, raw.Date, raw.Time, raw.Direction)
			continue
		}

		date, bin, err := parseRecordTimes(raw)
		if err != nil {
			p.reporter.Warnf(ctx, site, "skipping %s row: %v", raw.Kind, err)
			continue
		}

		rec := domain.CountRecord{
			Kind:      domain.CountKind(raw.Kind),
			Site:      site,
			Date:      date,
			Time:      bin,
			Direction: v.Direction,
			Lane:      raw.Lane,
			Total:     raw.Total,
			Classes:   raw.Classes,
			Speeds:    raw.Speeds,
		}
		if err := rec.Validate(); err != nil {
			p.reporter.Warnf(ctx, site, "skipping %s row %s: %v", raw.Kind, raw.Date, err)
			continue
		}
		records = append(records, rec)
	}
	return records
}
