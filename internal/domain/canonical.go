package domain

import "strings"

// Direction is the canonical compass direction of a count. Count-level
// direction fields are restricted to the four cardinal values; header-level
// traffic and count direction may additionally be DirBoth.
type Direction string

const (
	DirNorth Direction = "north"
	DirEast  Direction = "east"
	DirSouth Direction = "south"
	DirWest  Direction = "west"
	DirBoth  Direction = "both"
)

// YesNo is the canonical form of the boolean-like header flags (source,
// divided, part-of-HPMS), stored as Y/N.
type YesNo string

const (
	Yes YesNo = "Y"
	No  YesNo = "N"
)

// Outcome classifies what canonicalization did with a raw field value.
type Outcome int

const (
	// Unchanged means the input was already canonical.
	Unchanged Outcome = iota
	// Corrected means the input mapped to a canonical value but was spelled
	// differently (case, single-letter code, -1/0 encoding).
	Corrected
	// Cleared means the input matched a known-garbage sentinel and the field
	// value is null.
	Cleared
	// Unrecognized means the input matched neither the canonical set nor the
	// sentinel list. The raw value is preserved and must be flagged via the
	// import reporter; it is never guessed.
	Unrecognized
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Corrected:
		return "corrected"
	case Cleared:
		return "cleared"
	default:
		return "unrecognized"
	}
}

// DirectionValue is the result of canonicalizing a directional field. When
// Outcome is Unrecognized, Direction is empty and Raw holds the original
// string for auditing.
type DirectionValue struct {
	Direction Direction
	Raw       string
	Outcome   Outcome
}

// YesNoValue is the result of canonicalizing a yes/no field.
type YesNoValue struct {
	YesNo   YesNo
	Raw     string
	Outcome Outcome
}

// Garbage sentinels observed in legacy directional fields. Values here are
// cleared to null rather than flagged.
var directionSentinels = map[string]bool{
	"":     true,
	"-":    true,
	"--":   true,
	"0":    true,
	"na":   true,
	"n/a":  true,
	"none": true,
	"null": true,
	"x":    true,
	"xx":   true,
}

// Garbage sentinels for yes/no fields. "0" is deliberately absent: it is a
// valid encoding of No.
var yesNoSentinels = map[string]bool{
	"":     true,
	"-":    true,
	"--":   true,
	"na":   true,
	"n/a":  true,
	"none": true,
	"null": true,
	"x":    true,
}

// CanonicalizeDirection normalizes a raw directional string. Single letters
// and full words are accepted case-insensitively; "both"/"b" only when
// allowBoth is set (header-level traffic/count direction). Sentinel garbage
// clears the field; anything else is passed through as Unrecognized.
func CanonicalizeDirection(raw string, allowBoth bool) DirectionValue {
	trimmed := strings.ToLower(strings.TrimSpace(raw))

	if directionSentinels[trimmed] {
		return DirectionValue{Raw: raw, Outcome: Cleared}
	}

	var dir Direction
	switch trimmed {
	case "n", "north":
		dir = DirNorth
	case "e", "east":
		dir = DirEast
	case "s", "south":
		dir = DirSouth
	case "w", "west":
		dir = DirWest
	case "b", "both":
		if !allowBoth {
			return DirectionValue{Raw: raw, Outcome: Unrecognized}
		}
		dir = DirBoth
	default:
		return DirectionValue{Raw: raw, Outcome: Unrecognized}
	}

	outcome := Corrected
	if raw == string(dir) {
		outcome = Unchanged
	}
	return DirectionValue{Direction: dir, Raw: raw, Outcome: outcome}
}

// CanonicalizeYesNo normalizes a raw boolean-like string: {-1, yes} map to Y
// and {0, no} map to N, case-insensitively. Already canonical Y/N passes
// through; sentinel garbage clears the field; anything else is Unrecognized.
func CanonicalizeYesNo(raw string) YesNoValue {
	trimmed := strings.ToLower(strings.TrimSpace(raw))

	if yesNoSentinels[trimmed] {
		return YesNoValue{Raw: raw, Outcome: Cleared}
	}

	var yn YesNo
	switch trimmed {
	case "-1", "yes", "y":
		yn = Yes
	case "0", "no", "n":
		yn = No
	default:
		return YesNoValue{Raw: raw, Outcome: Unrecognized}
	}

	outcome := Corrected
	if raw == string(yn) {
		outcome = Unchanged
	}
	return YesNoValue{YesNo: yn, Raw: raw, Outcome: outcome}
}
