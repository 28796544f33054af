// Package report is the persisted audit trail for import and AADV runs. It
// parallels the process log: reporting failures are logged and swallowed, so
// the audit trail never alters the control flow of the computation it
// describes.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dvrpc/traffic-counts/internal/domain"
)

// Severity is the level of an import-log entry.
type Severity string

const (
	Info    Severity = "info"
	Warning Severity = "warning"
	Error   Severity = "error"
)

// Entry is one append-only import-log row.
type Entry struct {
	Site     int64
	LoggedAt time.Time
	Message  string
	Severity Severity
}

// Sink persists entries. The storage layer implements it with an append-only
// table; entries are never updated or deleted.
type Sink interface {
	AppendImportLog(ctx context.Context, entry Entry) error
}

// Reporter accumulates structured outcome events for site runs.
type Reporter struct {
	sink   Sink
	logger *slog.Logger
}

// New creates a Reporter writing to sink. A nil sink discards entries, which
// keeps unit tests of callers quiet.
func New(sink Sink, logger *slog.Logger) *Reporter {
	return &Reporter{sink: sink, logger: logger}
}

// Report appends one entry for the site. It never returns an error: a failed
// write goes to the process log and the caller's computation continues.
func (r *Reporter) Report(ctx context.Context, site int64, severity Severity, message string) {
	entry := Entry{
		Site:     site,
		LoggedAt: domain.Clock().Now(),
		Message:  message,
		Severity: severity,
	}

	r.logger.Log(ctx, slogLevel(severity), message, "site", site)

	if r.sink == nil {
		return
	}
	if err := r.sink.AppendImportLog(ctx, entry); err != nil {
		r.logger.Error("import log write failed", "site", site, "error", err)
	}
}

// Infof reports a formatted info-level event.
func (r *Reporter) Infof(ctx context.Context, site int64, format string, args ...any) {
	r.Report(ctx, site, Info, fmt.Sprintf(format, args...))
}

// Warnf reports a formatted warning-level event.
func (r *Reporter) Warnf(ctx context.Context, site int64, format string, args ...any) {
	r.Report(ctx, site, Warning, fmt.Sprintf(format, args...))
}

// Errorf reports a formatted error-level event.
func (r *Reporter) Errorf(ctx context.Context, site int64, format string, args ...any) {
	r.Report(ctx, site, Error, fmt.Sprintf(format, args...))
}

func slogLevel(severity Severity) slog.Level {
	switch severity {
	case Warning:
		return slog.LevelWarn
	case Error:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
