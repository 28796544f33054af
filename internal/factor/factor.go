// Package factor resolves the seasonal and axle correction factors applied
// during AADV aggregation. Factors are keyed by municipality and vehicle
// class; a row may bind to a named override table instead of its default
// values, in which case the override must supply every metric the row is
// asked for. There is no partial blending between a row's defaults and an
// override.
package factor

import (
	"fmt"

	"github.com/dvrpc/traffic-counts/internal/domain"
)

// Metric selects which correction a caller is resolving.
type Metric string

const (
	// MetricVolume is the seasonal volume correction, applied to every
	// count kind.
	MetricVolume Metric = "volume_factor"
	// MetricAxle is the axle correction, applied only to simple volume
	// counts recorded by axle-sensing equipment.
	MetricAxle Metric = "axle_factor"
)

// ID names an override factor table.
type ID string

// Binding selects the value source of a factor row: the municipality default
// or a named override. The zero value is the default binding.
type Binding struct {
	override ID
}

// Default binds a row to its own values.
func Default() Binding { return Binding{} }

// Override binds a row to the named override table for both metrics.
func Override(id ID) Binding { return Binding{override: id} }

// OverrideID returns the bound override and whether one is set.
func (b Binding) OverrideID() (ID, bool) { return b.override, b.override != "" }

// Values holds the per-metric factor values of a row or an override. A nil
// value means the metric is not defined by this source.
type Values struct {
	Volume *float64
	Axle   *float64
}

func (v Values) metric(m Metric) *float64 {
	if m == MetricAxle {
		return v.Axle
	}
	return v.Volume
}

// Row is one factor row as loaded from storage.
type Row struct {
	Municipality string
	Class        domain.VehicleClass
	Values       Values
	Binding      Binding
}

// CounterType holds the equipment-level attributes of a counter type: an
// optional correction applied after the seasonal factor, and whether the
// equipment senses axles rather than vehicles (which makes the axle metric
// applicable to its simple volume counts).
type CounterType struct {
	EquipmentFactor *float64
	AxleSensing     bool
}

type rowKey struct {
	municipality string
	class        domain.VehicleClass
}

// Snapshot is an immutable view of the factor tables, loaded once per
// computation so every site in a run resolves against the same values.
type Snapshot struct {
	rows           map[rowKey]Row
	municipalities map[string]bool
	overrides      map[ID]Values
	counterTypes   map[string]CounterType
}

// NewSnapshot builds a snapshot from storage rows. counterTypes maps counter
// type names to their attributes; types absent from the map carry no
// correction and are not axle-sensing.
func NewSnapshot(rows []Row, overrides map[ID]Values, counterTypes map[string]CounterType) *Snapshot {
	s := &Snapshot{
		rows:           make(map[rowKey]Row, len(rows)),
		municipalities: make(map[string]bool),
		overrides:      overrides,
		counterTypes:   counterTypes,
	}
	for _, row := range rows {
		s.rows[rowKey{row.Municipality, row.Class}] = row
		s.municipalities[row.Municipality] = true
	}
	return s
}

// Resolve returns the factor for (municipality, metric, class). A
// municipality with no rows at all is ErrUnknownMunicipality. A row bound to
// an override whose table lacks the metric is ErrMissingFactor; there is no
// fallback to the row's defaults.
func (s *Snapshot) Resolve(municipality string, metric Metric, class domain.VehicleClass) (float64, error) {
	if !s.municipalities[municipality] {
		return 0, fmt.Errorf("municipality %q: %w", municipality, domain.ErrUnknownMunicipality)
	}

	row, ok := s.rows[rowKey{municipality, class}]
	if !ok {
		return 0, fmt.Errorf("%s for %q class %d: %w", metric, municipality, class, domain.ErrMissingFactor)
	}

	source := row.Values
	if id, bound := row.Binding.OverrideID(); bound {
		source, ok = s.overrides[id]
		if !ok {
			return 0, fmt.Errorf("override %q for %q class %d: %w", id, municipality, class, domain.ErrMissingFactor)
		}
	}

	value := source.metric(metric)
	if value == nil {
		if id, bound := row.Binding.OverrideID(); bound {
			return 0, fmt.Errorf("override %q lacks %s for class %d: %w", id, metric, class, domain.ErrMissingFactor)
		}
		return 0, fmt.Errorf("%s for %q class %d: %w", metric, municipality, class, domain.ErrMissingFactor)
	}
	return *value, nil
}

// Equipment returns the correction for a counter type, 1.0 when the type
// carries none. Historical pedestrian counters undercount by a known ratio
// and are corrected here rather than at import time.
func (s *Snapshot) Equipment(counterType string) float64 {
	if ct, ok := s.counterTypes[counterType]; ok && ct.EquipmentFactor != nil {
		return *ct.EquipmentFactor
	}
	return 1.0
}

// AxleSensing reports whether the counter type records axle hits, in which
// case the axle metric applies to its simple volume counts.
func (s *Snapshot) AxleSensing(counterType string) bool {
	return s.counterTypes[counterType].AxleSensing
}
