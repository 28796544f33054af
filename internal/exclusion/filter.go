// Package exclusion filters known-atypical calendar days out of AADV
// averaging windows.
package exclusion

import (
	"time"

	"github.com/dvrpc/traffic-counts/internal/domain"
)

// Exclusion marks one calendar day as atypical. A blank Client excludes the
// day for every computation; a named client excludes it only for computations
// run on that client's behalf. Scoping is additive: a client-scoped run drops
// the union of the unscoped set and its own set.
type Exclusion struct {
	Date   time.Time
	Client string
	Reason string
}

// Filter answers whether a day is excluded for a given client. It is an
// immutable snapshot loaded from storage at the start of a computation.
type Filter struct {
	unscoped map[string]string
	scoped   map[string]map[string]string
}

// NewFilter builds a filter from the exclusion rows. Later duplicates for the
// same (date, client) win, matching the storage layer's upsert behavior.
func NewFilter(exclusions []Exclusion) *Filter {
	f := &Filter{
		unscoped: make(map[string]string),
		scoped:   make(map[string]map[string]string),
	}
	for _, ex := range exclusions {
		day := ex.Date.Format(domain.DateLayout)
		if ex.Client == "" {
			f.unscoped[day] = ex.Reason
			continue
		}
		byDay := f.scoped[ex.Client]
		if byDay == nil {
			byDay = make(map[string]string)
			f.scoped[ex.Client] = byDay
		}
		byDay[day] = ex.Reason
	}
	return f
}

// Excluded reports whether the day is excluded for the client, and the
// recorded reason when it is. A blank client consults only the unscoped set.
func (f *Filter) Excluded(date time.Time, client string) (string, bool) {
	day := date.Format(domain.DateLayout)
	if reason, ok := f.unscoped[day]; ok {
		return reason, true
	}
	if client == "" {
		return "", false
	}
	reason, ok := f.scoped[client][day]
	return reason, ok
}
