package report

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvrpc/traffic-counts/internal/domain"
)

type recordingSink struct {
	entries []Entry
	err     error
}

func (s *recordingSink) AppendImportLog(_ context.Context, entry Entry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReportAppendsEntry(t *testing.T) {
	frozen := time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(frozen))
	defer domain.SetClock(nil)

	sink := &recordingSink{}
	r := New(sink, discardLogger())

	r.Report(context.Background(), 166905, Warning, "direction field unrecognized")

	require.Len(t, sink.entries, 1)
	entry := sink.entries[0]
	assert.Equal(t, int64(166905), entry.Site)
	assert.Equal(t, Warning, entry.Severity)
	assert.Equal(t, "direction field unrecognized", entry.Message)
	assert.Equal(t, frozen, entry.LoggedAt)
}

func TestReportNeverFails(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	r := New(sink, discardLogger())

	// Must not panic or propagate the sink error.
	r.Report(context.Background(), 1, Error, "computation failed")
	r.Infof(context.Background(), 1, "computed aadv %d", 3880)
}

func TestReportNilSink(t *testing.T) {
	r := New(nil, discardLogger())
	r.Warnf(context.Background(), 2, "no sink configured")
}
