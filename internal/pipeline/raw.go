// Package pipeline runs per-site import batches: canonicalize, deduplicate,
// persist. Batches for different sites are independent and run in parallel;
// within one site the stages are sequential.
package pipeline

import (
	"fmt"
	"time"

	"github.com/dvrpc/traffic-counts/internal/domain"
)

// RawHeader is a site registration row as delivered by ingestion, before
// canonicalization. Directional and boolean-like fields are free-form
// strings.
type RawHeader struct {
	FromLimit         string `json:"from_limit"`
	ToLimit           string `json:"to_limit"`
	InDirection       string `json:"in_direction"`
	OutDirection      string `json:"out_direction"`
	SidewalkDirection string `json:"sidewalk_direction"`
	TrafficDirection  string `json:"traffic_direction"`
	CountDirection    string `json:"count_direction"`
	Municipality      string `json:"municipality"`
	CounterType       string `json:"counter_type"`
	Source            string `json:"source"`
	Divided           string `json:"divided"`
	HPMS              string `json:"hpms"`
}

// RawRecord is one count row as delivered by ingestion.
type RawRecord struct {
	Kind      string                      `json:"kind"`
	Date      string                      `json:"date"`
	Time      string                      `json:"time,omitempty"`
	Direction string                      `json:"direction"`
	Lane      int                         `json:"lane"`
	Total     *int                        `json:"total,omitempty"`
	Classes   map[domain.VehicleClass]int `json:"classes,omitempty"`
	Speeds    []int                       `json:"speeds,omitempty"`
}

// Batch is one site's worth of rows from a drop file.
type Batch struct {
	Site    int64
	Header  *RawHeader
	Records []RawRecord
}

// parseRecordTimes resolves the raw date and optional bin time.
func parseRecordTimes(raw RawRecord) (time.Time, *time.Time, error) {
	date, err := time.Parse(domain.DateLayout, raw.Date)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("bad date %q: %w", raw.Date, err)
	}
	if raw.Time == "" {
		return date, nil, nil
	}
	t, err := time.Parse(domain.TimeLayout, raw.Time)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("bad time %q: %w", raw.Time, err)
	}
	bin := time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	return date, &bin, nil
}
