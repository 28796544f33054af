package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dvrpc/traffic-counts/internal/domain"
	"github.com/dvrpc/traffic-counts/internal/exclusion"
	"github.com/dvrpc/traffic-counts/internal/factor"
)

// UpsertFactor writes one municipality/class factor row.
func (s *Store) UpsertFactor(ctx context.Context, row factor.Row) error {
	var overrideID any
	if id, bound := row.Binding.OverrideID(); bound {
		overrideID = string(id)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO factors (municipality, class, volume_factor, axle_factor, override_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(municipality, class) DO UPDATE SET
			volume_factor = excluded.volume_factor,
			axle_factor = excluded.axle_factor,
			override_id = excluded.override_id
	`, row.Municipality, int(row.Class), row.Values.Volume, row.Values.Axle, overrideID)
	if err != nil {
		return storageErr("upsert factor", err)
	}
	return nil
}

// UpsertOverride writes one named override factor table.
func (s *Store) UpsertOverride(ctx context.Context, id factor.ID, values factor.Values) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO factor_overrides (id, volume_factor, axle_factor)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			volume_factor = excluded.volume_factor,
			axle_factor = excluded.axle_factor
	`, string(id), values.Volume, values.Axle)
	if err != nil {
		return storageErr("upsert override", err)
	}
	return nil
}

// UpsertCounterType writes one counter type's equipment attributes.
func (s *Store) UpsertCounterType(ctx context.Context, name string, ct factor.CounterType) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO counter_types (name, equipment_factor, axle_sensing)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			equipment_factor = excluded.equipment_factor,
			axle_sensing = excluded.axle_sensing
	`, name, ct.EquipmentFactor, ct.AxleSensing)
	if err != nil {
		return storageErr("upsert counter type", err)
	}
	return nil
}

// AddExcludedDay marks one day as excluded. A repeated (day, client) pair
// updates the reason.
func (s *Store) AddExcludedDay(ctx context.Context, ex exclusion.Exclusion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO excluded_days (day, client, reason)
		VALUES (?, ?, ?)
		ON CONFLICT(day, client) DO UPDATE SET reason = excluded.reason
	`, ex.Date.Format(domain.DateLayout), ex.Client, ex.Reason)
	if err != nil {
		return storageErr("add excluded day", err)
	}
	return nil
}

// FactorSnapshot loads the factor tables inside one read transaction, so a
// run never sees a mix of old and new values.
func (s *Store) FactorSnapshot(ctx context.Context) (*factor.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, storageErr("begin factor snapshot", err)
	}
	defer tx.Rollback()

	rows, err := loadFactorRows(ctx, tx)
	if err != nil {
		return nil, err
	}
	overrides, err := loadOverrides(ctx, tx)
	if err != nil {
		return nil, err
	}
	counterTypes, err := loadCounterTypes(ctx, tx)
	if err != nil {
		return nil, err
	}
	return factor.NewSnapshot(rows, overrides, counterTypes), nil
}

func loadFactorRows(ctx context.Context, tx *sql.Tx) ([]factor.Row, error) {
	rows, err := tx.QueryContext(ctx, `SELECT municipality, class, volume_factor, axle_factor, override_id FROM factors`)
	if err != nil {
		return nil, storageErr("load factors", err)
	}
	defer rows.Close()

	var out []factor.Row
	for rows.Next() {
		var (
			row        factor.Row
			class      int
			volume     sql.NullFloat64
			axle       sql.NullFloat64
			overrideID sql.NullString
		)
		if err := rows.Scan(&row.Municipality, &class, &volume, &axle, &overrideID); err != nil {
			return nil, storageErr("scan factor", err)
		}
		row.Class = domain.VehicleClass(class)
		if volume.Valid {
			v := volume.Float64
			row.Values.Volume = &v
		}
		if axle.Valid {
			v := axle.Float64
			row.Values.Axle = &v
		}
		if overrideID.Valid && overrideID.String != "" {
			row.Binding = factor.Override(factor.ID(overrideID.String))
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func loadOverrides(ctx context.Context, tx *sql.Tx) (map[factor.ID]factor.Values, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, volume_factor, axle_factor FROM factor_overrides`)
	if err != nil {
		return nil, storageErr("load overrides", err)
	}
	defer rows.Close()

	out := make(map[factor.ID]factor.Values)
	for rows.Next() {
		var (
			id     string
			volume sql.NullFloat64
			axle   sql.NullFloat64
		)
		if err := rows.Scan(&id, &volume, &axle); err != nil {
			return nil, storageErr("scan override", err)
		}
		var values factor.Values
		if volume.Valid {
			v := volume.Float64
			values.Volume = &v
		}
		if axle.Valid {
			v := axle.Float64
			values.Axle = &v
		}
		out[factor.ID(id)] = values
	}
	return out, rows.Err()
}

func loadCounterTypes(ctx context.Context, tx *sql.Tx) (map[string]factor.CounterType, error) {
	rows, err := tx.QueryContext(ctx, `SELECT name, equipment_factor, axle_sensing FROM counter_types`)
	if err != nil {
		return nil, storageErr("load counter types", err)
	}
	defer rows.Close()

	out := make(map[string]factor.CounterType)
	for rows.Next() {
		var (
			name      string
			equipment sql.NullFloat64
			axle      bool
		)
		if err := rows.Scan(&name, &equipment, &axle); err != nil {
			return nil, storageErr("scan counter type", err)
		}
		ct := factor.CounterType{AxleSensing: axle}
		if equipment.Valid {
			v := equipment.Float64
			ct.EquipmentFactor = &v
		}
		out[name] = ct
	}
	return out, rows.Err()
}

// ExclusionFilter loads the excluded-day set as an immutable filter.
func (s *Store) ExclusionFilter(ctx context.Context) (*exclusion.Filter, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT day, client, reason FROM excluded_days`)
	if err != nil {
		return nil, storageErr("load excluded days", err)
	}
	defer rows.Close()

	var exclusions []exclusion.Exclusion
	for rows.Next() {
		var dayStr, client, reason string
		if err := rows.Scan(&dayStr, &client, &reason); err != nil {
			return nil, storageErr("scan excluded day", err)
		}
		day, err := time.Parse(domain.DateLayout, dayStr)
		if err != nil {
			return nil, fmt.Errorf("parse excluded day %q: %w", dayStr, err)
		}
		exclusions = append(exclusions, exclusion.Exclusion{Date: day, Client: client, Reason: reason})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("load excluded days", err)
	}
	return exclusion.NewFilter(exclusions), nil
}
