package repository

import (
	"testing"

	"FinChart/internal/domain/models"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeGranularity(t *testing.T) {
	tests := []struct {
		name    string
		rng     string
		minutes int
		want    models.Granularity
	}{
		{"default on empty", "", 0, models.Granularity{Range: models.Range1D}},
		{"unknown range", "2y", 0, models.Granularity{Range: models.Range1D}},
		{"minute mode on 1d", "1d", 15, models.Granularity{Range: models.Range1D, Minutes: 15}},
		{"minute mode dropped off 1d", "3m", 5, models.Granularity{Range: models.Range3M}},
		{"unsupported minutes", "1d", 7, models.Granularity{Range: models.Range1D}},
		{"yearly", "1y", 0, models.Granularity{Range: models.Range1Y}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeGranularity(tt.rng, tt.minutes))
		})
	}
}

func TestGranularityModes(t *testing.T) {
	assert.True(t, models.Granularity{Range: models.Range1D}.SingleDay())
	assert.False(t, models.Granularity{Range: models.Range1D, Minutes: 5}.SingleDay())
	assert.Equal(t, "1d:5", models.Granularity{Range: models.Range1D, Minutes: 5}.Key())
	assert.Equal(t, int64(300), int64(models.Granularity{Range: models.Range1D, Minutes: 5}.Interval().Seconds()))
	assert.Equal(t, int64(86400), int64(models.Granularity{Range: models.Range1W}.Interval().Seconds()))
}
