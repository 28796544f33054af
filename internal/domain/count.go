package domain

import (
	"fmt"
	"time"
)

// CountKind identifies the type of count record, which determines the table
// it lands in and the factors applied during AADV aggregation.
type CountKind string

const (
	// KindVolume is a whole-day simple volume row.
	KindVolume CountKind = "volume"
	// KindFifteenMinuteVolume is a pre-binned 15-minute simple volume row.
	KindFifteenMinuteVolume CountKind = "15min_volume"
	// KindClass is a time-binned vehicle-classification row.
	KindClass CountKind = "class"
	// KindSpeed is a time-binned speed-range row. Speed counts carry no AADV.
	KindSpeed CountKind = "speed"
)

// VehicleClass is an FHWA vehicle class (1-13), 15 for unclassified, or
// ClassAll for counts that are not classified at all.
type VehicleClass int

// ClassAll marks an unclassified simple volume; factor rows keyed by it hold
// the municipality's default factors.
const ClassAll VehicleClass = 0

// Valid reports whether the class is one this engine stores.
func (c VehicleClass) Valid() bool {
	return c == ClassAll || (c >= 1 && c <= 13) || c == 15
}

// Lanes are numbered 1-3; the original deployment never exceeded three
// physical lanes per direction.
const (
	MinLane = 1
	MaxLane = 3
)

// DateLayout is the calendar-day format used in natural keys and storage.
const DateLayout = "2006-01-02"

// TimeLayout is the bin-start format used in natural keys and storage.
const TimeLayout = "15:04"

// CountRecord is one validated count row as delivered by the ingestion
// collaborator. Time is nil for whole-day rows; Total is nil when the period
// had no observation (which is distinct from an observed zero).
type CountRecord struct {
	Kind      CountKind
	Site      int64
	Date      time.Time
	Time      *time.Time
	Direction Direction
	Lane      int
	Total     *int
	Classes   map[VehicleClass]int
	Speeds    []int
}

// NaturalKey identifies a count record: (site, date[, time], direction,
// lane). The tuple is unique per record kind; two directions or two lanes at
// the same site/date are distinct records, never merged.
type NaturalKey struct {
	Kind      CountKind
	Site      int64
	Date      string
	Time      string
	Direction Direction
	Lane      int
}

func (k NaturalKey) String() string {
	if k.Time == "" {
		return fmt.Sprintf("%s/%d/%s/%s/lane%d", k.Kind, k.Site, k.Date, k.Direction, k.Lane)
	}
	return fmt.Sprintf("%s/%d/%s %s/%s/lane%d", k.Kind, k.Site, k.Date, k.Time, k.Direction, k.Lane)
}

// Key returns the record's natural key.
func (r CountRecord) Key() NaturalKey {
	k := NaturalKey{
		Kind:      r.Kind,
		Site:      r.Site,
		Date:      r.Date.Format(DateLayout),
		Direction: r.Direction,
		Lane:      r.Lane,
	}
	if r.Time != nil {
		k.Time = r.Time.Format(TimeLayout)
	}
	return k
}

// Validate checks the structural invariants of a record before it reaches
// the identity resolver.
func (r CountRecord) Validate() error {
	switch r.Kind {
	case KindVolume, KindFifteenMinuteVolume, KindClass, KindSpeed:
	default:
		return fmt.Errorf("unknown count kind %q", r.Kind)
	}
	switch r.Direction {
	case DirNorth, DirEast, DirSouth, DirWest:
	default:
		return fmt.Errorf("count direction must be cardinal, got %q", r.Direction)
	}
	if r.Lane < MinLane || r.Lane > MaxLane {
		return fmt.Errorf("lane %d outside [%d,%d]", r.Lane, MinLane, MaxLane)
	}
	for class := range r.Classes {
		if !class.Valid() {
			return fmt.Errorf("no such vehicle class %d", class)
		}
	}
	return nil
}

// SamePayload reports whether two records carry identical observation values.
// Records with equal natural keys but differing payloads in one batch are an
// ErrDuplicateNaturalKey condition.
func (r CountRecord) SamePayload(other CountRecord) bool {
	if !intPtrEqual(r.Total, other.Total) {
		return false
	}
	if len(r.Classes) != len(other.Classes) {
		return false
	}
	for class, n := range r.Classes {
		if other.Classes[class] != n {
			return false
		}
	}
	if len(r.Speeds) != len(other.Speeds) {
		return false
	}
	for i, n := range r.Speeds {
		if other.Speeds[i] != n {
			return false
		}
	}
	return true
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// SiteHeader is the one-per-site registration record. Direction fields hold
// the empty string when null; the cached AADV is a derived projection of the
// most recent result, never independent state.
type SiteHeader struct {
	Site              int64
	FromLimit         string
	ToLimit           string
	InDirection       Direction
	OutDirection      Direction
	SidewalkDirection Direction
	TrafficDirection  Direction
	CountDirection    Direction
	Municipality      string
	CounterType       string
	Source            YesNo
	Divided           YesNo
	HPMS              YesNo
	AADV              *int
	AADVComputedOn    *time.Time
}
