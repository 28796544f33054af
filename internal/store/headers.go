package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dvrpc/traffic-counts/internal/domain"
)

// UpsertHeader registers or updates a site header. The cached AADV fields are
// never touched here; they are a derived projection maintained by
// ReplaceResults only.
func (s *Store) UpsertHeader(ctx context.Context, h domain.SiteHeader) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO site_headers (site, from_limit, to_limit, in_direction, out_direction, sidewalk_direction, traffic_direction, count_direction, municipality, counter_type, source, divided, hpms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(site) DO UPDATE SET
			from_limit = excluded.from_limit,
			to_limit = excluded.to_limit,
			in_direction = excluded.in_direction,
			out_direction = excluded.out_direction,
			sidewalk_direction = excluded.sidewalk_direction,
			traffic_direction = excluded.traffic_direction,
			count_direction = excluded.count_direction,
			municipality = excluded.municipality,
			counter_type = excluded.counter_type,
			source = excluded.source,
			divided = excluded.divided,
			hpms = excluded.hpms
	`, h.Site, h.FromLimit, h.ToLimit, string(h.InDirection), string(h.OutDirection),
		string(h.SidewalkDirection), string(h.TrafficDirection), string(h.CountDirection),
		h.Municipality, h.CounterType, string(h.Source), string(h.Divided), string(h.HPMS))
	if err != nil {
		return storageErr("upsert header", err)
	}
	return nil
}

// Header loads a site's header, including the cached AADV projection.
func (s *Store) Header(ctx context.Context, site int64) (domain.SiteHeader, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT site, from_limit, to_limit, in_direction, out_direction, sidewalk_direction, traffic_direction, count_direction, municipality, counter_type, source, divided, hpms, aadv, aadv_computed_on
		FROM site_headers
		WHERE site = ?
	`, site)

	var (
		h          domain.SiteHeader
		inDir      string
		outDir     string
		sideDir    string
		trafficDir string
		countDir   string
		source     string
		divided    string
		hpms       string
		aadv       sql.NullInt64
		computedOn sql.NullString
	)
	err := row.Scan(&h.Site, &h.FromLimit, &h.ToLimit, &inDir, &outDir, &sideDir,
		&trafficDir, &countDir, &h.Municipality, &h.CounterType, &source, &divided, &hpms,
		&aadv, &computedOn)
	if err == sql.ErrNoRows {
		return domain.SiteHeader{}, fmt.Errorf("site %d not registered", site)
	}
	if err != nil {
		return domain.SiteHeader{}, storageErr("load header", err)
	}

	h.InDirection = domain.Direction(inDir)
	h.OutDirection = domain.Direction(outDir)
	h.SidewalkDirection = domain.Direction(sideDir)
	h.TrafficDirection = domain.Direction(trafficDir)
	h.CountDirection = domain.Direction(countDir)
	h.Source = domain.YesNo(source)
	h.Divided = domain.YesNo(divided)
	h.HPMS = domain.YesNo(hpms)
	if aadv.Valid {
		v := int(aadv.Int64)
		h.AADV = &v
	}
	if computedOn.Valid && computedOn.String != "" {
		d, err := time.Parse(domain.DateLayout, computedOn.String)
		if err != nil {
			return domain.SiteHeader{}, fmt.Errorf("parse cached aadv date %q: %w", computedOn.String, err)
		}
		h.AADVComputedOn = &d
	}
	return h, nil
}
