package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// Importer watches a drop directory for JSON-lines files and runs each file's
// site batches through the processor with bounded parallelism.
type Importer struct {
	processor *Processor
	logger    *slog.Logger
	dataDir   string
	workers   int
	interval  time.Duration
	cleanup   bool
	ready     chan struct{}
}

// NewImporter creates an Importer scanning dataDir. workers bounds concurrent
// site batches; cleanup removes fully imported drop files.
func NewImporter(processor *Processor, logger *slog.Logger, dataDir string, workers int, interval time.Duration, cleanup bool) *Importer {
	if workers < 1 {
		workers = 1
	}
	return &Importer{
		processor: processor,
		logger:    logger,
		dataDir:   dataDir,
		workers:   workers,
		interval:  interval,
		cleanup:   cleanup,
		ready:     make(chan struct{}),
	}
}

// CheckReadiness returns nil once the importer has completed at least one
// directory scan, successful or not.
func (im *Importer) CheckReadiness(_ context.Context) error {
	select {
	case <-im.ready:
		return nil
	default:
		return errors.New("importer has not completed a scan yet")
	}
}

// RunOnce scans the drop directory and imports every file found. Per-file and
// per-site failures are collected rather than aborting the scan, so one bad
// site never blocks its neighbors.
func (im *Importer) RunOnce(ctx context.Context) error {
	defer im.markReady()

	files, err := im.dropFiles()
	if err != nil {
		return err
	}

	var errs []error
	for _, path := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := im.importFile(ctx, path); err != nil {
			im.logger.Error("drop file import failed", "file", path, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(path), err))
		}
	}
	return errors.Join(errs...)
}

// Watch runs RunOnce on the configured interval until the context is
// cancelled. Scan failures are logged and the loop continues.
func (im *Importer) Watch(ctx context.Context) error {
	im.logger.Info("importer started", "dir", im.dataDir, "interval", im.interval, "workers", im.workers)

	for {
		if err := im.RunOnce(ctx); err != nil && ctx.Err() == nil {
			im.logger.Error("scan failed", "error", err)
		}

		select {
		case <-ctx.Done():
			im.logger.Info("importer stopping", "reason", ctx.Err())
			return nil
		case <-time.After(im.interval):
		}
	}
}

func (im *Importer) markReady() {
	select {
	case <-im.ready:
	default:
		close(im.ready)
	}
}

func (im *Importer) dropFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(im.dataDir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", im.dataDir, err)
	}
	sort.Strings(files)
	return files, nil
}

// importFile parses one drop file and fans its site batches out across the
// worker pool. Sites are independent; a failed site does not cancel the rest.
func (im *Importer) importFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	batches, err := ParseBatches(f)
	f.Close()
	if err != nil {
		return err
	}

	im.logger.Info("importing drop file", "file", filepath.Base(path), "sites", len(batches))

	siteErrs := make([]error, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for i, batch := range batches {
		g.Go(func() error {
			siteErrs[i] = im.processor.ProcessSite(gctx, batch)
			return nil
		})
	}
	g.Wait()

	if err := errors.Join(siteErrs...); err != nil {
		return err
	}

	if im.cleanup {
		if err := os.Remove(path); err != nil {
			im.logger.Warn("could not remove imported file", "file", path, "error", err)
		}
	}
	return nil
}
