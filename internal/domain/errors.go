package domain

import "errors"

// Sentinel errors for the failure modes of the engine. Callers match them with
// errors.Is; wrapped messages carry the site/direction context.
var (
	// ErrDuplicateNaturalKey is returned when two rows in the same import batch
	// map to the same natural key but carry conflicting payloads. Ambiguous
	// input is surfaced, never silently overwritten.
	ErrDuplicateNaturalKey = errors.New("duplicate natural key with conflicting payloads")

	// ErrUnknownMunicipality is returned when no factor row exists for a
	// site's municipality.
	ErrUnknownMunicipality = errors.New("unknown municipality")

	// ErrMissingFactor is returned when the resolved factor source (default or
	// override) has no value for the requested metric and vehicle class.
	ErrMissingFactor = errors.New("missing correction factor")

	// ErrInsufficientData is returned when no days remain in an averaging
	// window after full-day trimming and exclusions. An AADV is never computed
	// over an empty set.
	ErrInsufficientData = errors.New("no days remain after exclusions")

	// ErrBadIntervalCount is returned when the bin count of the first full day
	// matches neither an hourly nor a fifteen-minute cadence, so the last full
	// day cannot be determined.
	ErrBadIntervalCount = errors.New("unexpected bin count for first full day")

	// ErrStorageUnavailable wraps storage-layer failures. It aborts the
	// current site's batch only; other sites' batches are unaffected.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
