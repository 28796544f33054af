package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeDirection(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Direction
		outcome Outcome
	}{
		{"single letter north", "N", DirNorth, Corrected},
		{"lowercase letter north", "n", DirNorth, Corrected},
		{"full word north", "North", DirNorth, Corrected},
		{"already canonical", "north", DirNorth, Unchanged},
		{"single letter south", "S", DirSouth, Corrected},
		{"full word east", "EAST", DirEast, Corrected},
		{"full word west", "west", DirWest, Unchanged},
		{"sentinel dash", "-", "", Cleared},
		{"sentinel zero", "0", "", Cleared},
		{"sentinel na", "N/A", "", Cleared},
		{"empty string", "", "", Cleared},
		{"unrecognized word", "northish", "", Unrecognized},
		{"unrecognized number", "7", "", Unrecognized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanonicalizeDirection(tt.raw, false)
			assert.Equal(t, tt.want, got.Direction)
			assert.Equal(t, tt.outcome, got.Outcome)
			assert.Equal(t, tt.raw, got.Raw)
		})
	}
}

func TestCanonicalizeDirectionBoth(t *testing.T) {
	t.Run("allowed for header fields", func(t *testing.T) {
		got := CanonicalizeDirection("Both", true)
		assert.Equal(t, DirBoth, got.Direction)
		assert.Equal(t, Corrected, got.Outcome)
	})

	t.Run("rejected for count fields", func(t *testing.T) {
		got := CanonicalizeDirection("Both", false)
		assert.Equal(t, Unrecognized, got.Outcome)
		assert.Empty(t, got.Direction)
		assert.Equal(t, "Both", got.Raw)
	})
}

func TestCanonicalizeYesNo(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    YesNo
		outcome Outcome
	}{
		{"minus one is yes", "-1", Yes, Corrected},
		{"yes word", "yes", Yes, Corrected},
		{"yes uppercase", "YES", Yes, Corrected},
		{"zero is no", "0", No, Corrected},
		{"no word", "No", No, Corrected},
		{"canonical Y", "Y", Yes, Unchanged},
		{"canonical N", "N", No, Unchanged},
		{"lowercase y", "y", Yes, Corrected},
		{"sentinel dash", "-", "", Cleared},
		{"empty string", "", "", Cleared},
		{"unrecognized", "maybe", "", Unrecognized},
		{"unrecognized numeral", "2", "", Unrecognized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanonicalizeYesNo(tt.raw)
			assert.Equal(t, tt.want, got.YesNo)
			assert.Equal(t, tt.outcome, got.Outcome)
			assert.Equal(t, tt.raw, got.Raw)
		})
	}
}
