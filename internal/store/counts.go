package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dvrpc/traffic-counts/internal/aadv"
	"github.com/dvrpc/traffic-counts/internal/domain"
)

var classColumns = []domain.VehicleClass{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 15}

const speedColumns = 14

// SaveCounts persists a deduplicated batch inside one transaction. Re-imports
// hit the natural-key unique index and replace the payload in place, so the
// surrogate id survives.
func (s *Store) SaveCounts(ctx context.Context, records []domain.CountRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin save counts", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		if err := saveCount(ctx, tx, rec); err != nil {
			return storageErr(fmt.Sprintf("save %s", rec.Key()), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit save counts", err)
	}
	return nil
}

func saveCount(ctx context.Context, tx *sql.Tx, rec domain.CountRecord) error {
	key := rec.Key()

	switch rec.Kind {
	case domain.KindVolume, domain.KindFifteenMinuteVolume:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO counts_volume (site, count_date, count_time, direction, lane, total)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(site, count_date, count_time, direction, lane) DO UPDATE SET
				total = excluded.total
		`, rec.Site, key.Date, key.Time, string(rec.Direction), rec.Lane, rec.Total)
		return err

	case domain.KindClass:
		args := []any{rec.Site, key.Date, key.Time, string(rec.Direction), rec.Lane, rec.Total}
		for _, class := range classColumns {
			args = append(args, rec.Classes[class])
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO counts_class (site, count_date, count_time, direction, lane, total, c1, c2, c3, c4, c5, c6, c7, c8, c9, c10, c11, c12, c13, c15)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(site, count_date, count_time, direction, lane) DO UPDATE SET
				total = excluded.total,
				c1 = excluded.c1, c2 = excluded.c2, c3 = excluded.c3, c4 = excluded.c4,
				c5 = excluded.c5, c6 = excluded.c6, c7 = excluded.c7, c8 = excluded.c8,
				c9 = excluded.c9, c10 = excluded.c10, c11 = excluded.c11, c12 = excluded.c12,
				c13 = excluded.c13, c15 = excluded.c15
		`, args...)
		return err

	case domain.KindSpeed:
		args := []any{rec.Site, key.Date, key.Time, string(rec.Direction), rec.Lane, rec.Total}
		for i := 0; i < speedColumns; i++ {
			n := 0
			if i < len(rec.Speeds) {
				n = rec.Speeds[i]
			}
			args = append(args, n)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO counts_speed (site, count_date, count_time, direction, lane, total, s1, s2, s3, s4, s5, s6, s7, s8, s9, s10, s11, s12, s13, s14)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(site, count_date, count_time, direction, lane) DO UPDATE SET
				total = excluded.total,
				s1 = excluded.s1, s2 = excluded.s2, s3 = excluded.s3, s4 = excluded.s4,
				s5 = excluded.s5, s6 = excluded.s6, s7 = excluded.s7, s8 = excluded.s8,
				s9 = excluded.s9, s10 = excluded.s10, s11 = excluded.s11, s12 = excluded.s12,
				s13 = excluded.s13, s14 = excluded.s14
		`, args...)
		return err

	default:
		return fmt.Errorf("unknown count kind %q", rec.Kind)
	}
}

func countTable(kind domain.CountKind) string {
	switch kind {
	case domain.KindClass:
		return "counts_class"
	case domain.KindSpeed:
		return "counts_speed"
	default:
		return "counts_volume"
	}
}

// CountID returns the surrogate identity for a natural key, if the record
// exists. The import path never calls it; its upserts resolve identity
// implicitly. This is the explicit lookup for identity verification and ad
// hoc queries.
func (s *Store) CountID(ctx context.Context, key domain.NaturalKey) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id FROM %s
		WHERE site = ? AND count_date = ? AND count_time = ? AND direction = ? AND lane = ?
	`, countTable(key.Kind)), key.Site, key.Date, key.Time, string(key.Direction), key.Lane).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storageErr("lookup count id", err)
	}
	return id, true, nil
}

func windowClause(w aadv.Window) (string, []any) {
	var clause string
	var args []any
	if !w.Start.IsZero() {
		clause += " AND count_date >= ?"
		args = append(args, w.Start.Format(domain.DateLayout))
	}
	if !w.End.IsZero() {
		clause += " AND count_date <= ?"
		args = append(args, w.End.Format(domain.DateLayout))
	}
	return clause, args
}

// Bins returns a site's sub-daily observations summed across lanes per
// direction, sorted by time. Simple volume bins win when present; otherwise
// classification bins are used, carrying their per-class split.
func (s *Store) Bins(ctx context.Context, site int64, window aadv.Window) ([]aadv.Bin, error) {
	clause, winArgs := windowClause(window)

	query := `
		SELECT count_date, count_time, direction, SUM(total)
		FROM counts_volume
		WHERE site = ? AND count_time != ''` + clause + `
		GROUP BY count_date, count_time, direction
		ORDER BY count_date, count_time
	`
	rows, err := s.db.QueryContext(ctx, query, append([]any{site}, winArgs...)...)
	if err != nil {
		return nil, storageErr("load volume bins", err)
	}
	bins, err := scanVolumeBins(rows)
	if err != nil {
		return nil, err
	}
	if len(bins) > 0 {
		return bins, nil
	}

	query = `
		SELECT count_date, count_time, direction, SUM(total),
		       SUM(c1), SUM(c2), SUM(c3), SUM(c4), SUM(c5), SUM(c6), SUM(c7),
		       SUM(c8), SUM(c9), SUM(c10), SUM(c11), SUM(c12), SUM(c13), SUM(c15)
		FROM counts_class
		WHERE site = ? AND count_time != ''` + clause + `
		GROUP BY count_date, count_time, direction
		ORDER BY count_date, count_time
	`
	rows, err = s.db.QueryContext(ctx, query, append([]any{site}, winArgs...)...)
	if err != nil {
		return nil, storageErr("load class bins", err)
	}
	return scanClassBins(rows)
}

func scanVolumeBins(rows *sql.Rows) ([]aadv.Bin, error) {
	defer rows.Close()

	var bins []aadv.Bin
	for rows.Next() {
		var (
			dateStr, timeStr, direction string
			total                       sql.NullInt64
		)
		if err := rows.Scan(&dateStr, &timeStr, &direction, &total); err != nil {
			return nil, storageErr("scan volume bin", err)
		}
		dt, err := parseBinTime(dateStr, timeStr)
		if err != nil {
			return nil, err
		}
		bin := aadv.Bin{DateTime: dt, Direction: domain.Direction(direction)}
		if total.Valid {
			n := int(total.Int64)
			bin.Total = &n
		}
		bins = append(bins, bin)
	}
	return bins, rows.Err()
}

func scanClassBins(rows *sql.Rows) ([]aadv.Bin, error) {
	defer rows.Close()

	var bins []aadv.Bin
	for rows.Next() {
		var (
			dateStr, timeStr, direction string
			total                       sql.NullInt64
		)
		classes := make([]sql.NullInt64, len(classColumns))
		dest := []any{&dateStr, &timeStr, &direction, &total}
		for i := range classes {
			dest = append(dest, &classes[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, storageErr("scan class bin", err)
		}
		dt, err := parseBinTime(dateStr, timeStr)
		if err != nil {
			return nil, err
		}
		bin := aadv.Bin{DateTime: dt, Direction: domain.Direction(direction)}
		if total.Valid {
			n := int(total.Int64)
			bin.Total = &n
		}
		for i, class := range classColumns {
			if classes[i].Valid && classes[i].Int64 != 0 {
				if bin.Classes == nil {
					bin.Classes = make(map[domain.VehicleClass]int)
				}
				bin.Classes[class] = int(classes[i].Int64)
			}
		}
		bins = append(bins, bin)
	}
	return bins, rows.Err()
}

// DailyTotals returns a site's whole-day volume rows summed across lanes per
// direction.
func (s *Store) DailyTotals(ctx context.Context, site int64, window aadv.Window) ([]aadv.DailyTotal, error) {
	clause, winArgs := windowClause(window)

	rows, err := s.db.QueryContext(ctx, `
		SELECT count_date, direction, SUM(total)
		FROM counts_volume
		WHERE site = ? AND count_time = ''`+clause+`
		GROUP BY count_date, direction
		ORDER BY count_date
	`, append([]any{site}, winArgs...)...)
	if err != nil {
		return nil, storageErr("load daily totals", err)
	}
	defer rows.Close()

	var totals []aadv.DailyTotal
	for rows.Next() {
		var (
			dateStr, direction string
			total              sql.NullInt64
		)
		if err := rows.Scan(&dateStr, &direction, &total); err != nil {
			return nil, storageErr("scan daily total", err)
		}
		date, err := time.Parse(domain.DateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("parse count date %q: %w", dateStr, err)
		}
		row := aadv.DailyTotal{Date: date, Direction: domain.Direction(direction)}
		if total.Valid {
			n := int(total.Int64)
			row.Total = &n
		}
		totals = append(totals, row)
	}
	return totals, rows.Err()
}

func parseBinTime(dateStr, timeStr string) (time.Time, error) {
	dt, err := time.Parse(domain.DateLayout+" "+domain.TimeLayout, dateStr+" "+timeStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse bin time %q %q: %w", dateStr, timeStr, err)
	}
	return dt, nil
}
