package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dvrpc/traffic-counts/internal/aadv"
	"github.com/dvrpc/traffic-counts/internal/domain"
	"github.com/dvrpc/traffic-counts/internal/report"
)

// ReplaceResults persists one computation's results. Earlier results for the
// same site and computation date are replaced; older dates stay, keeping the
// table an append-only history. The site header's cached value is refreshed
// from the overall result in the same transaction, and only when this
// computation date is the most recent.
func (s *Store) ReplaceResults(ctx context.Context, site int64, computedOn time.Time, results []aadv.Result) error {
	date := computedOn.Format(domain.DateLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin replace results", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM aadv_results WHERE site = ? AND computed_on = ?`, site, date); err != nil {
		return storageErr("delete same-day results", err)
	}

	for _, res := range results {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO aadv_results (site, direction, value, computed_on)
			VALUES (?, ?, ?, ?)
		`, site, string(res.Direction), res.Value, date); err != nil {
			return storageErr("insert result", err)
		}
		if res.Direction == "" {
			if _, err := tx.ExecContext(ctx, `
				UPDATE site_headers
				SET aadv = ?, aadv_computed_on = ?
				WHERE site = ? AND (aadv_computed_on IS NULL OR aadv_computed_on <= ?)
			`, res.Value, date, site, date); err != nil {
				return storageErr("update header cache", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit replace results", err)
	}
	return nil
}

// Results returns a site's stored AADV history, newest first.
func (s *Store) Results(ctx context.Context, site int64) ([]aadv.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT site, direction, value, computed_on
		FROM aadv_results
		WHERE site = ?
		ORDER BY computed_on DESC, direction
	`, site)
	if err != nil {
		return nil, storageErr("load results", err)
	}
	defer rows.Close()

	var out []aadv.Result
	for rows.Next() {
		var (
			res       aadv.Result
			direction string
			dateStr   string
		)
		if err := rows.Scan(&res.Site, &direction, &res.Value, &dateStr); err != nil {
			return nil, storageErr("scan result", err)
		}
		res.Direction = domain.Direction(direction)
		res.ComputedOn, err = time.Parse(domain.DateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("parse result date %q: %w", dateStr, err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// AppendImportLog appends one audit-trail row.
func (s *Store) AppendImportLog(ctx context.Context, entry report.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_log (site, logged_at, message, level)
		VALUES (?, ?, ?, ?)
	`, entry.Site, entry.LoggedAt.UTC().Format(time.RFC3339), entry.Message, string(entry.Severity))
	if err != nil {
		return storageErr("append import log", err)
	}
	return nil
}

// ImportLog returns a site's audit trail in insertion order.
func (s *Store) ImportLog(ctx context.Context, site int64) ([]report.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT site, logged_at, message, level
		FROM import_log
		WHERE site = ?
		ORDER BY id
	`, site)
	if err != nil {
		return nil, storageErr("load import log", err)
	}
	defer rows.Close()

	var out []report.Entry
	for rows.Next() {
		var (
			entry    report.Entry
			loggedAt string
			level    string
		)
		if err := rows.Scan(&entry.Site, &loggedAt, &entry.Message, &level); err != nil {
			return nil, storageErr("scan import log", err)
		}
		entry.LoggedAt, err = time.Parse(time.RFC3339, loggedAt)
		if err != nil {
			return nil, fmt.Errorf("parse log time %q: %w", loggedAt, err)
		}
		entry.Severity = report.Severity(level)
		out = append(out, entry)
	}
	return out, rows.Err()
}

var (
	_ report.Sink     = (*Store)(nil)
	_ aadv.Source     = (*Store)(nil)
	_ aadv.ResultSink = (*Store)(nil)
)
