// Package identity enforces natural-key uniqueness within an import batch.
// Cross-run identity is the storage layer's job: its unique indexes on the
// natural key make re-imports idempotent and keep surrogate IDs stable.
package identity

import (
	"fmt"

	"github.com/dvrpc/traffic-counts/internal/domain"
)

// Dedupe collapses a batch to one record per natural key, preserving first
// occurrence order. Byte-for-byte repeats of the same observation collapse
// silently; two rows with the same key but conflicting payloads abort the
// batch with ErrDuplicateNaturalKey, since guessing which observation is
// right would corrupt the series.
func Dedupe(records []domain.CountRecord) ([]domain.CountRecord, error) {
	seen := make(map[domain.NaturalKey]int, len(records))
	out := make([]domain.CountRecord, 0, len(records))

	for _, rec := range records {
		key := rec.Key()
		if i, ok := seen[key]; ok {
			if !out[i].SamePayload(rec) {
				return nil, fmt.Errorf("%s: %w", key, domain.ErrDuplicateNaturalKey)
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, rec)
	}
	return out, nil
}
