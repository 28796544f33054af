package aadv

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvrpc/traffic-counts/internal/domain"
	"github.com/dvrpc/traffic-counts/internal/exclusion"
	"github.com/dvrpc/traffic-counts/internal/factor"
	"github.com/dvrpc/traffic-counts/internal/observability"
	"github.com/dvrpc/traffic-counts/internal/report"
)

func intp(n int) *int          { return &n }
func fp(v float64) *float64    { return &v }
func date(d int) time.Time     { return time.Date(2023, 11, d, 0, 0, 0, 0, time.UTC) }
func at(d, h, m int) time.Time { return time.Date(2023, 11, d, h, m, 0, 0, time.UTC) }

type fakeSource struct {
	header domain.SiteHeader
	bins   []Bin
	daily  []DailyTotal
}

func (s *fakeSource) Header(context.Context, int64) (domain.SiteHeader, error) {
	return s.header, nil
}

func (s *fakeSource) Bins(context.Context, int64, Window) ([]Bin, error) {
	return s.bins, nil
}

func (s *fakeSource) DailyTotals(context.Context, int64, Window) ([]DailyTotal, error) {
	return s.daily, nil
}

type fakeSink struct {
	site       int64
	computedOn time.Time
	results    []Result
}

func (s *fakeSink) ReplaceResults(_ context.Context, site int64, computedOn time.Time, results []Result) error {
	s.site = site
	s.computedOn = computedOn
	s.results = results
	return nil
}

func snapshot() *factor.Snapshot {
	rows := []factor.Row{
		{Municipality: "upper darby", Class: domain.ClassAll, Values: factor.Values{Volume: fp(1.0), Axle: fp(0.9)}},
		{Municipality: "upper darby", Class: 2, Values: factor.Values{Volume: fp(1.0)}},
		{Municipality: "upper darby", Class: 3, Values: factor.Values{Volume: fp(2.0)}},
	}
	counterTypes := map[string]factor.CounterType{
		"historical pedestrian": {EquipmentFactor: fp(1.0622)},
		"road tube":             {AxleSensing: true},
	}
	return factor.NewSnapshot(rows, nil, counterTypes)
}

func newAggregator(source *fakeSource, sink *fakeSink, filter *exclusion.Filter) *Aggregator {
	if filter == nil {
		filter = exclusion.NewFilter(nil)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(source, sink, snapshot(), filter, report.New(nil, logger), logger, observability.NewMetricsForTesting())
}

func TestComputePedestrianFactor(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2023, 12, 1, 10, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	source := &fakeSource{
		header: domain.SiteHeader{Site: 1, Municipality: "upper darby", CounterType: "historical pedestrian"},
		daily: []DailyTotal{
			{Date: date(7), Direction: domain.DirEast, Total: intp(100)},
			{Date: date(8), Direction: domain.DirEast, Total: intp(120)},
			{Date: date(9), Direction: domain.DirEast, Total: intp(110)},
		},
	}
	sink := &fakeSink{}
	a := newAggregator(source, sink, nil)

	results, err := a.Compute(context.Background(), 1, Window{}, "")
	require.NoError(t, err)
	require.Len(t, results, 2)

	// mean(100,120,110) * 1.0622 = 116.842, rounded for storage.
	assert.Equal(t, domain.Direction(""), results[0].Direction)
	assert.Equal(t, 117, results[0].Value)
	assert.InDelta(t, 116.84, results[0].Mean, 0.01)
	assert.Equal(t, domain.DirEast, results[1].Direction)
	assert.Equal(t, 117, results[1].Value)

	assert.Equal(t, int64(1), sink.site)
	assert.Equal(t, time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), sink.computedOn)
	if diff := cmp.Diff(results, sink.results); diff != "" {
		t.Errorf("persisted results differ from returned results (-want +got):\n%s", diff)
	}
}

func hourlyDay(d int, firstHour, lastHour, perBin int) []Bin {
	var bins []Bin
	for h := firstHour; h <= lastHour; h++ {
		bins = append(bins, Bin{DateTime: at(d, h, 0), Direction: domain.DirEast, Total: intp(perBin)})
	}
	return bins
}

func TestComputeTrimsPartialDays(t *testing.T) {
	var bins []Bin
	bins = append(bins, hourlyDay(6, 14, 23, 5)...) // partial leading day
	bins = append(bins, hourlyDay(7, 0, 23, 10)...) // 240
	bins = append(bins, hourlyDay(8, 0, 23, 20)...) // 480
	bins = append(bins, hourlyDay(9, 0, 10, 9)...)  // partial trailing day

	source := &fakeSource{
		header: domain.SiteHeader{Site: 2, Municipality: "upper darby", CounterType: "loop"},
		bins:   bins,
	}
	sink := &fakeSink{}
	a := newAggregator(source, sink, nil)

	results, err := a.Compute(context.Background(), 2, Window{}, "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 360, results[0].Value)
	assert.Equal(t, 360, results[1].Value)
}

func TestComputeBadIntervalCount(t *testing.T) {
	// 30 bins on the first full day matches neither cadence.
	var bins []Bin
	for i := 0; i < 30; i++ {
		bins = append(bins, Bin{DateTime: at(7, 0, 0).Add(time.Duration(i) * 15 * time.Minute), Direction: domain.DirEast, Total: intp(1)})
	}
	source := &fakeSource{
		header: domain.SiteHeader{Site: 3, Municipality: "upper darby", CounterType: "loop"},
		bins:   bins,
	}
	a := newAggregator(source, &fakeSink{}, nil)

	_, err := a.Compute(context.Background(), 3, Window{}, "")
	assert.ErrorIs(t, err, domain.ErrBadIntervalCount)
}

func TestComputeAllDaysExcluded(t *testing.T) {
	source := &fakeSource{
		header: domain.SiteHeader{Site: 4, Municipality: "upper darby", CounterType: "loop"},
		daily: []DailyTotal{
			{Date: date(23), Direction: domain.DirNorth, Total: intp(50)},
		},
	}
	filter := exclusion.NewFilter([]exclusion.Exclusion{{Date: date(23), Reason: "thanksgiving"}})
	a := newAggregator(source, &fakeSink{}, filter)

	_, err := a.Compute(context.Background(), 4, Window{}, "")
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestComputeClientScope(t *testing.T) {
	source := &fakeSource{
		header: domain.SiteHeader{Site: 5, Municipality: "upper darby", CounterType: "loop"},
		daily: []DailyTotal{
			{Date: date(7), Direction: domain.DirNorth, Total: intp(100)},
			{Date: date(8), Direction: domain.DirNorth, Total: intp(120)},
		},
	}
	filter := exclusion.NewFilter([]exclusion.Exclusion{
		{Date: date(7), Client: "philadelphia", Reason: "street closure"},
	})

	t.Run("scoped run drops the day", func(t *testing.T) {
		sink := &fakeSink{}
		a := newAggregator(source, sink, filter)
		results, err := a.Compute(context.Background(), 5, Window{}, "philadelphia")
		require.NoError(t, err)
		assert.Equal(t, 120, results[0].Value)
	})

	t.Run("unscoped run keeps it", func(t *testing.T) {
		sink := &fakeSink{}
		a := newAggregator(source, sink, filter)
		results, err := a.Compute(context.Background(), 5, Window{}, "")
		require.NoError(t, err)
		assert.Equal(t, 110, results[0].Value)
	})
}

func TestComputeAxleSensingEquipment(t *testing.T) {
	source := &fakeSource{
		header: domain.SiteHeader{Site: 6, Municipality: "upper darby", CounterType: "road tube"},
		daily: []DailyTotal{
			{Date: date(7), Direction: domain.DirSouth, Total: intp(100)},
		},
	}
	sink := &fakeSink{}
	a := newAggregator(source, sink, nil)

	results, err := a.Compute(context.Background(), 6, Window{}, "")
	require.NoError(t, err)
	// 100 * volume 1.0 * axle 0.9
	assert.Equal(t, 90, results[0].Value)
}

func TestComputeClassWeighted(t *testing.T) {
	var bins []Bin
	for h := 0; h < 24; h++ {
		bins = append(bins, Bin{
			DateTime:  at(7, h, 0),
			Direction: domain.DirWest,
			Classes:   map[domain.VehicleClass]int{2: 2, 3: 1},
		})
	}
	source := &fakeSource{
		header: domain.SiteHeader{Site: 7, Municipality: "upper darby", CounterType: "loop"},
		bins:   bins,
	}
	sink := &fakeSink{}
	a := newAggregator(source, sink, nil)

	results, err := a.Compute(context.Background(), 7, Window{}, "")
	require.NoError(t, err)
	// 48 class-2 vehicles at 1.0 plus 24 class-3 vehicles at 2.0.
	assert.Equal(t, 96, results[0].Value)
}

func TestComputeUnknownMunicipality(t *testing.T) {
	source := &fakeSource{
		header: domain.SiteHeader{Site: 8, Municipality: "gotham", CounterType: "loop"},
		daily: []DailyTotal{
			{Date: date(7), Direction: domain.DirNorth, Total: intp(100)},
		},
	}
	a := newAggregator(source, &fakeSink{}, nil)

	_, err := a.Compute(context.Background(), 8, Window{}, "")
	assert.ErrorIs(t, err, domain.ErrUnknownMunicipality)
}

func TestComputeNullDaysDropped(t *testing.T) {
	source := &fakeSource{
		header: domain.SiteHeader{Site: 9, Municipality: "upper darby", CounterType: "loop"},
		daily: []DailyTotal{
			{Date: date(7), Direction: domain.DirNorth, Total: intp(100)},
			{Date: date(8), Direction: domain.DirNorth, Total: nil},
		},
	}
	sink := &fakeSink{}
	a := newAggregator(source, sink, nil)

	results, err := a.Compute(context.Background(), 9, Window{}, "")
	require.NoError(t, err)
	// The unobserved day must not count as zero.
	assert.Equal(t, 100, results[0].Value)
}

func TestComputeWindowBounds(t *testing.T) {
	source := &fakeSource{
		header: domain.SiteHeader{Site: 10, Municipality: "upper darby", CounterType: "loop"},
		daily: []DailyTotal{
			{Date: date(6), Direction: domain.DirNorth, Total: intp(500)},
			{Date: date(7), Direction: domain.DirNorth, Total: intp(100)},
			{Date: date(8), Direction: domain.DirNorth, Total: intp(120)},
			{Date: date(9), Direction: domain.DirNorth, Total: intp(900)},
		},
	}
	sink := &fakeSink{}
	a := newAggregator(source, sink, nil)

	results, err := a.Compute(context.Background(), 10, Window{Start: date(7), End: date(8)}, "")
	require.NoError(t, err)
	assert.Equal(t, 110, results[0].Value)
}

func TestComputeWindowBoundsKeepWholeDays(t *testing.T) {
	var bins []Bin
	bins = append(bins, hourlyDay(6, 0, 23, 30)...)
	bins = append(bins, hourlyDay(7, 0, 23, 10)...) // 240
	bins = append(bins, hourlyDay(8, 0, 23, 10)...) // 240
	bins = append(bins, hourlyDay(9, 0, 23, 50)...)

	source := &fakeSource{
		header: domain.SiteHeader{Site: 13, Municipality: "upper darby", CounterType: "loop"},
		bins:   bins,
	}
	sink := &fakeSink{}
	a := newAggregator(source, sink, nil)

	results, err := a.Compute(context.Background(), 13, Window{Start: date(7), End: date(8)}, "")
	require.NoError(t, err)

	// The end day's bins after midnight stay in: its total is the full 240,
	// not just the 00:00 bin.
	assert.Equal(t, 240, results[0].Value)
	assert.Equal(t, 240, results[1].Value)
}

func TestComputeConcurrentSitesMatchSequential(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2023, 12, 1, 10, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	newSource := func(site int64, base int) *fakeSource {
		return &fakeSource{
			header: domain.SiteHeader{Site: site, Municipality: "upper darby", CounterType: "loop"},
			daily: []DailyTotal{
				{Date: date(7), Direction: domain.DirNorth, Total: intp(base)},
				{Date: date(8), Direction: domain.DirNorth, Total: intp(base + 20)},
			},
		}
	}

	// Sequential baseline, then the same two sites in parallel sharing one
	// factor snapshot and filter.
	seqA := newAggregator(newSource(11, 100), &fakeSink{}, nil)
	wantA, err := seqA.Compute(context.Background(), 11, Window{}, "")
	require.NoError(t, err)
	seqB := newAggregator(newSource(12, 300), &fakeSink{}, nil)
	wantB, err := seqB.Compute(context.Background(), 12, Window{}, "")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	shared := snapshot()
	filter := exclusion.NewFilter(nil)
	metrics := observability.NewMetricsForTesting()
	parA := New(newSource(11, 100), &fakeSink{}, shared, filter, report.New(nil, logger), logger, metrics)
	parB := New(newSource(12, 300), &fakeSink{}, shared, filter, report.New(nil, logger), logger, metrics)

	var wg sync.WaitGroup
	var gotA, gotB []Result
	var errA, errB error
	wg.Add(2)
	go func() {
		defer wg.Done()
		gotA, errA = parA.Compute(context.Background(), 11, Window{}, "")
	}()
	go func() {
		defer wg.Done()
		gotB, errB = parB.Compute(context.Background(), 12, Window{}, "")
	}()
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, wantA, gotA)
	assert.Equal(t, wantB, gotB)
}
