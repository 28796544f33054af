// Package aadv computes annual average daily volumes from a site's stored
// count series.
package aadv

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/dvrpc/traffic-counts/internal/domain"
	"github.com/dvrpc/traffic-counts/internal/exclusion"
	"github.com/dvrpc/traffic-counts/internal/factor"
	"github.com/dvrpc/traffic-counts/internal/observability"
	"github.com/dvrpc/traffic-counts/internal/report"
)

// Window bounds a computation to a date range, inclusive. Zero ends are
// unbounded.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) contains(date time.Time) bool {
	if !w.Start.IsZero() && date.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && date.After(w.End) {
		return false
	}
	return true
}

// Bin is one sub-daily observation, already summed across lanes per
// direction by the storage layer. Classes is non-nil only for
// classification counts; Total is nil when the period had no observation.
type Bin struct {
	DateTime  time.Time
	Direction domain.Direction
	Total     *int
	Classes   map[domain.VehicleClass]int
}

// DailyTotal is one whole-day volume row, summed across lanes per direction.
type DailyTotal struct {
	Date      time.Time
	Direction domain.Direction
	Total     *int
}

// Result is one computed AADV figure. Direction is empty for the overall
// (non-directional) value. Value is the stored figure; Mean is the unrounded
// mean it was derived from, populated by computation but not by storage
// loads.
type Result struct {
	Site       int64
	Direction  domain.Direction
	Value      int
	Mean       float64
	ComputedOn time.Time
}

// Source supplies a site's header and count series. Bins takes precedence;
// DailyTotals is consulted only when the site has no sub-daily data.
type Source interface {
	Header(ctx context.Context, site int64) (domain.SiteHeader, error)
	Bins(ctx context.Context, site int64, window Window) ([]Bin, error)
	DailyTotals(ctx context.Context, site int64, window Window) ([]DailyTotal, error)
}

// ResultSink persists a computation's results. Existing results for the same
// site and computation date are replaced, and the site header's cached value
// is refreshed from the overall result in the same transaction.
type ResultSink interface {
	ReplaceResults(ctx context.Context, site int64, computedOn time.Time, results []Result) error
}

// Aggregator derives one AADV value per direction, plus an overall value,
// from a site's count series.
type Aggregator struct {
	source   Source
	sink     ResultSink
	factors  *factor.Snapshot
	filter   *exclusion.Filter
	reporter *report.Reporter
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates an Aggregator. The factor snapshot and exclusion filter are
// loaded once by the caller so every site in a run sees consistent data.
func New(source Source, sink ResultSink, factors *factor.Snapshot, filter *exclusion.Filter, reporter *report.Reporter, logger *slog.Logger, metrics *observability.Metrics) *Aggregator {
	return &Aggregator{
		source:   source,
		sink:     sink,
		factors:  factors,
		filter:   filter,
		reporter: reporter,
		logger:   logger,
		metrics:  metrics,
	}
}

// totals are keyed per calendar day and direction; the empty direction is
// the overall (non-directional) total for the day.
type totalKey struct {
	date      string
	direction domain.Direction
}

type dayTotal struct {
	total   int
	classes map[domain.VehicleClass]int
}

// Compute runs the full computation for one site: sum daily totals from the
// finest-grained series available, trim partial days, drop excluded and
// unobserved days, apply factors per day, average, persist. Returns the
// persisted results sorted with the overall value first.
func (a *Aggregator) Compute(ctx context.Context, site int64, window Window, client string) ([]Result, error) {
	header, err := a.source.Header(ctx, site)
	if err != nil {
		a.metrics.AADVComputations.WithLabelValues("storage_error").Inc()
		a.reporter.Errorf(ctx, site, "aadv aborted: %v", err)
		return nil, err
	}

	totals, err := a.collectTotals(ctx, site, window)
	if err != nil {
		a.metrics.AADVComputations.WithLabelValues("bad_interval").Inc()
		a.reporter.Errorf(ctx, site, "aadv aborted: %v", err)
		return nil, err
	}

	a.dropExcluded(ctx, site, totals, client)

	perDirection := make(map[domain.Direction][]float64)
	for key, day := range totals {
		value, err := a.factorDay(header, day)
		if err != nil {
			a.metrics.AADVComputations.WithLabelValues("factor_error").Inc()
			a.reporter.Errorf(ctx, site, "factor resolution failed for %s: %v", key.date, err)
			return nil, err
		}
		perDirection[key.direction] = append(perDirection[key.direction], value)
	}

	if len(perDirection) == 0 {
		a.metrics.AADVComputations.WithLabelValues("insufficient_data").Inc()
		a.reporter.Errorf(ctx, site, "no days remain in window")
		return nil, fmt.Errorf("site %d: %w", site, domain.ErrInsufficientData)
	}

	now := a.clockDate()
	results := make([]Result, 0, len(perDirection))
	for direction, days := range perDirection {
		var sum float64
		for _, v := range days {
			sum += v
		}
		mean := sum / float64(len(days))
		results = append(results, Result{
			Site:       site,
			Direction:  direction,
			Value:      int(math.Round(mean)),
			Mean:       mean,
			ComputedOn: now,
		})
	}
	// Overall first, then directions alphabetically, for stable storage and
	// reporting order.
	sort.Slice(results, func(i, j int) bool {
		return results[i].Direction < results[j].Direction
	})

	if err := a.sink.ReplaceResults(ctx, site, now, results); err != nil {
		a.metrics.AADVComputations.WithLabelValues("storage_error").Inc()
		a.reporter.Errorf(ctx, site, "aadv persist failed: %v", err)
		return nil, err
	}

	for _, res := range results {
		direction := string(res.Direction)
		if direction == "" {
			direction = "overall"
		}
		days := len(perDirection[res.Direction])
		a.reporter.Infof(ctx, site, "aadv %d (%s) over %d days", res.Value, direction, days)
		a.logger.Info("aadv computed", "site", site, "direction", direction, "aadv", res.Value, "days", days)
	}
	a.metrics.AADVComputations.WithLabelValues("computed").Inc()
	return results, nil
}

// collectTotals builds per-day totals from sub-daily bins when the site has
// any, otherwise from whole-day volume rows. Bins go through full-day
// trimming; daily rows are taken as-is.
func (a *Aggregator) collectTotals(ctx context.Context, site int64, window Window) (map[totalKey]*dayTotal, error) {
	totals := make(map[totalKey]*dayTotal)

	bins, err := a.source.Bins(ctx, site, window)
	if err != nil {
		return nil, err
	}
	if len(bins) > 0 {
		full, err := fullDates(bins)
		if err != nil {
			return nil, fmt.Errorf("site %d: %w", site, err)
		}
		for _, bin := range bins {
			date := bin.DateTime.Format(domain.DateLayout)
			// The window bounds calendar days; compare the bin's day, not its
			// timestamp, or every bin after midnight on the end day is lost.
			if !full[date] || !window.contains(midnight(bin.DateTime)) {
				continue
			}
			if bin.Total == nil && bin.Classes == nil {
				continue
			}
			addBin(totals, totalKey{date, bin.Direction}, bin)
			addBin(totals, totalKey{date, ""}, bin)
		}
		return totals, nil
	}

	daily, err := a.source.DailyTotals(ctx, site, window)
	if err != nil {
		return nil, err
	}
	for _, row := range daily {
		if row.Total == nil || !window.contains(row.Date) {
			continue
		}
		date := row.Date.Format(domain.DateLayout)
		addTotal(totals, totalKey{date, row.Direction}, *row.Total)
		addTotal(totals, totalKey{date, ""}, *row.Total)
	}
	return totals, nil
}

func addBin(totals map[totalKey]*dayTotal, key totalKey, bin Bin) {
	day := totals[key]
	if day == nil {
		day = &dayTotal{}
		totals[key] = day
	}
	if bin.Total != nil {
		day.total += *bin.Total
	}
	for class, n := range bin.Classes {
		if day.classes == nil {
			day.classes = make(map[domain.VehicleClass]int)
		}
		day.classes[class] += n
		if bin.Total == nil {
			day.total += n
		}
	}
}

func addTotal(totals map[totalKey]*dayTotal, key totalKey, n int) {
	day := totals[key]
	if day == nil {
		day = &dayTotal{}
		totals[key] = day
	}
	day.total += n
}

func (a *Aggregator) dropExcluded(ctx context.Context, site int64, totals map[totalKey]*dayTotal, client string) {
	reported := make(map[string]bool)
	for key := range totals {
		date, _ := time.Parse(domain.DateLayout, key.date)
		reason, excluded := a.filter.Excluded(date, client)
		if !excluded {
			continue
		}
		delete(totals, key)
		if !reported[key.date] {
			reported[key.date] = true
			a.reporter.Infof(ctx, site, "excluding %s from averaging: %s", key.date, reason)
		}
	}
}

// factorDay applies the corrections to one day's total: class-weighted
// seasonal factors when a classification split is present, otherwise the
// seasonal factor plus the axle factor for axle-sensing equipment, then the
// equipment factor. Sum first, factor after; the order matches historical
// outputs.
func (a *Aggregator) factorDay(header domain.SiteHeader, day *dayTotal) (float64, error) {
	equipment := a.factors.Equipment(header.CounterType)

	if len(day.classes) > 0 {
		var sum float64
		for class, n := range day.classes {
			vf, err := a.factors.Resolve(header.Municipality, factor.MetricVolume, class)
			if err != nil {
				return 0, err
			}
			sum += float64(n) * vf
		}
		return sum * equipment, nil
	}

	vf, err := a.factors.Resolve(header.Municipality, factor.MetricVolume, domain.ClassAll)
	if err != nil {
		return 0, err
	}
	value := float64(day.total) * vf
	if a.factors.AxleSensing(header.CounterType) {
		af, err := a.factors.Resolve(header.Municipality, factor.MetricAxle, domain.ClassAll)
		if err != nil {
			return 0, err
		}
		value *= af
	}
	return value * equipment, nil
}

// fullDates returns the calendar days fully covered by the bins. The first
// day is dropped when its first bin starts after midnight; the bin count of
// the first retained day decides the cadence (24 or 48 bins is hourly, 96 or
// 192 fifteen-minute, one or two directions respectively); the last day is
// dropped when its final bin is before 23:00 (hourly) or 23:45
// (fifteen-minute).
func fullDates(bins []Bin) (map[string]bool, error) {
	sorted := make([]Bin, len(bins))
	copy(sorted, bins)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].DateTime.Before(sorted[j].DateTime)
	})

	first := sorted[0].DateTime
	firstFull := midnight(first)
	if first.Hour() != 0 {
		firstFull = firstFull.AddDate(0, 0, 1)
	}

	onFirst := 0
	for _, bin := range sorted {
		if midnight(bin.DateTime).Equal(firstFull) {
			onFirst++
		}
	}
	var endMinute int
	switch onFirst {
	case 24, 48:
		endMinute = 0
	case 96, 192:
		endMinute = 45
	default:
		return nil, fmt.Errorf("%d bins on %s: %w", onFirst, firstFull.Format(domain.DateLayout), domain.ErrBadIntervalCount)
	}

	last := sorted[len(sorted)-1].DateTime
	lastFull := midnight(last)
	if last.Hour() != 23 || last.Minute() != endMinute {
		lastFull = lastFull.AddDate(0, 0, -1)
	}

	full := make(map[string]bool)
	for d := firstFull; !d.After(lastFull); d = d.AddDate(0, 0, 1) {
		full[d.Format(domain.DateLayout)] = true
	}
	return full, nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// clockDate is the computation date: today per the injected clock, at
// midnight UTC.
func (a *Aggregator) clockDate() time.Time {
	now := domain.Clock().Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
