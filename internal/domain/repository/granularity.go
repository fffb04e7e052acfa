package repository

import "FinChart/internal/domain/models"

// IsValidRange returns true if r is a supported range.
func IsValidRange(r models.Range) bool {
	for _, v := range models.Ranges {
		if v == r {
			return true
		}
	}
	return false
}

// IsValidMinutes returns true for 0 (minute mode off) and the supported bar widths.
func IsValidMinutes(m int) bool {
	if m == 0 {
		return true
	}
	for _, v := range models.MinuteModes {
		if v == m {
			return true
		}
	}
	return false
}

// DefaultGranularity returns the default selector.
func DefaultGranularity() models.Granularity {
	return models.Granularity{Range: models.Range1D}
}

// NormalizeGranularity converts raw user input to a valid selector. Unknown
// ranges fall back to the default; minute mode only applies to 1d.
func NormalizeGranularity(r string, minutes int) models.Granularity {
	g := DefaultGranularity()
	if rr := models.Range(r); IsValidRange(rr) {
		g.Range = rr
	}
	if g.Range == models.Range1D && IsValidMinutes(minutes) {
		g.Minutes = minutes
	}
	return g
}
