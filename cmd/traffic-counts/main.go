package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/cenkalti/backoff/v4"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	httpadapter "github.com/dvrpc/traffic-counts/internal/adapter/http"
	"github.com/dvrpc/traffic-counts/internal/aadv"
	"github.com/dvrpc/traffic-counts/internal/config"
	"github.com/dvrpc/traffic-counts/internal/domain"
	"github.com/dvrpc/traffic-counts/internal/exclusion"
	"github.com/dvrpc/traffic-counts/internal/factor"
	"github.com/dvrpc/traffic-counts/internal/observability"
	"github.com/dvrpc/traffic-counts/internal/pipeline"
	"github.com/dvrpc/traffic-counts/internal/report"
	"github.com/dvrpc/traffic-counts/internal/store"
)

type cli struct {
	config.Config `embed:""`

	Serve      serveCmd      `cmd:"" help:"Watch the drop directory and serve health, metrics, and site views."`
	Import     importCmd     `cmd:"" help:"Scan the drop directory once and exit."`
	AADV       aadvCmd       `cmd:"" name:"aadv" help:"Compute and store AADV for one site."`
	Factor     factorCmd     `cmd:"" help:"Administer factor tables."`
	ExcludeDay excludeDayCmd `cmd:"" name:"exclude-day" help:"Mark a day as excluded from AADV computation."`
}

// app carries the shared wiring into command Run methods.
type app struct {
	cfg    config.Config
	logger *slog.Logger
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("traffic-counts"),
		kong.Description("Traffic count import and AADV computation engine."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	logger := observability.NewLogger(os.Stderr, c.LogLevel, c.LogFormat)
	kctx.FatalIfErrorf(kctx.Run(&app{cfg: c.Config, logger: logger}))
}

// openStore opens the database, retrying briefly so the service survives a
// slow volume mount at startup. Retries happen only here; the core never
// retries (spec'd failure semantics are per-site, not per-statement).
func openStore(ctx context.Context, a *app) (*store.Store, *sql.DB, error) {
	var db *sql.DB
	open := func() error {
		var err error
		db, err = store.Open(a.cfg.DatabasePath)
		if err != nil {
			a.logger.Warn("database open failed, retrying", "error", err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.Retry(open, policy); err != nil {
		return nil, nil, fmt.Errorf("open database %s: %w", a.cfg.DatabasePath, err)
	}

	s := store.New(db, a.logger)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, nil, err
	}
	return s, db, nil
}

type serveCmd struct{}

func (serveCmd) Run(a *app) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, db, err := openStore(ctx, a)
	if err != nil {
		return err
	}
	defer db.Close()

	metrics := observability.NewMetrics()
	reporter := report.New(s, a.logger)
	processor := pipeline.NewProcessor(s, reporter, a.logger, metrics)
	importer := pipeline.NewImporter(processor, a.logger, a.cfg.DataDir, a.cfg.Workers, a.cfg.ScanInterval, a.cfg.CleanupFiles)

	srv := httpadapter.NewServer(a.cfg.HTTPAddr, importer, s, a.logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := importer.Watch(ctx); err != nil {
			a.logger.Error("importer error", "error", err)
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

type importCmd struct{}

func (importCmd) Run(a *app) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, db, err := openStore(ctx, a)
	if err != nil {
		return err
	}
	defer db.Close()

	metrics := observability.NewMetrics()
	reporter := report.New(s, a.logger)
	processor := pipeline.NewProcessor(s, reporter, a.logger, metrics)
	importer := pipeline.NewImporter(processor, a.logger, a.cfg.DataDir, a.cfg.Workers, a.cfg.ScanInterval, a.cfg.CleanupFiles)

	return importer.RunOnce(ctx)
}

type aadvCmd struct {
	Site   int64  `arg:"" help:"Site number to compute."`
	Start  string `help:"Inclusive start date (YYYY-MM-DD) bounding the count series." placeholder:"DATE"`
	End    string `help:"Inclusive end date (YYYY-MM-DD) bounding the count series." placeholder:"DATE"`
	Client string `help:"Client scope for excluded days."`
}

func (c aadvCmd) Run(a *app) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	window, err := parseWindow(c.Start, c.End)
	if err != nil {
		return err
	}

	s, db, err := openStore(ctx, a)
	if err != nil {
		return err
	}
	defer db.Close()

	snapshot, err := s.FactorSnapshot(ctx)
	if err != nil {
		return err
	}
	filter, err := s.ExclusionFilter(ctx)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	reporter := report.New(s, a.logger)
	aggregator := aadv.New(s, s, snapshot, filter, reporter, a.logger, metrics)

	results, err := aggregator.Compute(ctx, c.Site, window, c.Client)
	if err != nil {
		return err
	}

	for _, res := range results {
		direction := string(res.Direction)
		if direction == "" {
			direction = "overall"
		}
		fmt.Printf("site %d %s: %d\n", res.Site, direction, res.Value)
	}
	return nil
}

func parseWindow(start, end string) (aadv.Window, error) {
	var w aadv.Window
	var err error
	if start != "" {
		if w.Start, err = time.Parse(domain.DateLayout, start); err != nil {
			return w, fmt.Errorf("bad start date %q: %w", start, err)
		}
	}
	if end != "" {
		if w.End, err = time.Parse(domain.DateLayout, end); err != nil {
			return w, fmt.Errorf("bad end date %q: %w", end, err)
		}
	}
	if !w.Start.IsZero() && !w.End.IsZero() && w.End.Before(w.Start) {
		return w, errors.New("end date is before start date")
	}
	return w, nil
}

type factorCmd struct {
	Set            factorSetCmd      `cmd:"" help:"Upsert a municipality/class factor row."`
	SetOverride    overrideSetCmd    `cmd:"" name:"set-override" help:"Upsert a named override factor table."`
	SetCounterType counterTypeSetCmd `cmd:"" name:"set-counter-type" help:"Upsert a counter type's equipment attributes."`
}

type factorSetCmd struct {
	Municipality string   `arg:"" help:"Municipality the factors apply to."`
	Class        int      `default:"0" help:"Vehicle class (0 = unclassified default)."`
	Volume       *float64 `help:"Seasonal volume factor."`
	Axle         *float64 `help:"Axle correction factor."`
	Override     string   `help:"Override factor table id; empty binds the defaults."`
}

func (c factorSetCmd) Run(a *app) error {
	ctx := context.Background()
	s, db, err := openStore(ctx, a)
	if err != nil {
		return err
	}
	defer db.Close()

	row := factor.Row{
		Municipality: c.Municipality,
		Class:        domain.VehicleClass(c.Class),
		Values:       factor.Values{Volume: c.Volume, Axle: c.Axle},
	}
	if !row.Class.Valid() {
		return fmt.Errorf("no such vehicle class %d", c.Class)
	}
	if c.Override != "" {
		row.Binding = factor.Override(factor.ID(c.Override))
	}
	return s.UpsertFactor(ctx, row)
}

type overrideSetCmd struct {
	ID     string   `arg:"" help:"Override factor table id."`
	Volume *float64 `help:"Seasonal volume factor."`
	Axle   *float64 `help:"Axle correction factor."`
}

func (c overrideSetCmd) Run(a *app) error {
	ctx := context.Background()
	s, db, err := openStore(ctx, a)
	if err != nil {
		return err
	}
	defer db.Close()

	return s.UpsertOverride(ctx, factor.ID(c.ID), factor.Values{Volume: c.Volume, Axle: c.Axle})
}

type counterTypeSetCmd struct {
	Name        string   `arg:"" help:"Counter type name as it appears on site headers."`
	Equipment   *float64 `help:"Equipment factor multiplier; unset means 1.0."`
	AxleSensing bool     `help:"Counter senses axles, so simple volumes need the axle factor."`
}

func (c counterTypeSetCmd) Run(a *app) error {
	ctx := context.Background()
	s, db, err := openStore(ctx, a)
	if err != nil {
		return err
	}
	defer db.Close()

	return s.UpsertCounterType(ctx, c.Name, factor.CounterType{
		EquipmentFactor: c.Equipment,
		AxleSensing:     c.AxleSensing,
	})
}

type excludeDayCmd struct {
	Date   string `arg:"" help:"Day to exclude (YYYY-MM-DD)."`
	Client string `help:"Client scope; empty excludes the day for everyone."`
	Reason string `help:"Why the day is excluded."`
}

func (c excludeDayCmd) Run(a *app) error {
	ctx := context.Background()

	day, err := time.Parse(domain.DateLayout, c.Date)
	if err != nil {
		return fmt.Errorf("bad date %q: %w", c.Date, err)
	}

	s, db, err := openStore(ctx, a)
	if err != nil {
		return err
	}
	defer db.Close()

	return s.AddExcludedDay(ctx, exclusion.Exclusion{Date: day, Client: c.Client, Reason: c.Reason})
}
