package models

import (
	"fmt"
	"time"
)

// Range is the period the chart covers; it also implies the bar width the
// tick source delivers (intraday for 1d, daily/weekly/monthly beyond).
type Range string

const (
	Range1D Range = "1d"
	Range1W Range = "1w"
	Range1M Range = "1m"
	Range3M Range = "3m"
	Range6M Range = "6m"
	Range1Y Range = "1y"
)

// Ranges lists every supported range in display order.
var Ranges = []Range{Range1D, Range1W, Range1M, Range3M, Range6M, Range1Y}

// MinuteModes lists the intraday bar widths, in minutes.
var MinuteModes = []int{1, 5, 15, 30}

// Granularity selects the bucketing rule of the series aggregator.
// Minutes == 0 means minute mode is off.
type Granularity struct {
	Range   Range `json:"range"`
	Minutes int   `json:"minutes"`
}

// SingleDay reports the hourly cumulative-volume mode (1d without minute mode).
func (g Granularity) SingleDay() bool {
	return g.Range == Range1D && g.Minutes == 0
}

// MinuteMode reports whether intraday minute bars are requested.
func (g Granularity) MinuteMode() bool {
	return g.Minutes > 0
}

// Interval is the spacing used to synthesize missing timestamps.
func (g Granularity) Interval() time.Duration {
	if g.Minutes > 0 {
		return time.Duration(g.Minutes) * time.Minute
	}
	return 24 * time.Hour
}

// Lookback is how far back a tick source should read for this range.
func (g Granularity) Lookback() time.Duration {
	const day = 24 * time.Hour
	switch g.Range {
	case Range1D:
		return day
	case Range1W:
		return 7 * day
	case Range1M:
		return 31 * day
	case Range3M:
		return 92 * day
	case Range6M:
		return 183 * day
	default:
		return 366 * day
	}
}

// Key is a compact cache/storage key, e.g. "1d" or "1d:5".
func (g Granularity) Key() string {
	if g.Minutes > 0 {
		return fmt.Sprintf("%s:%d", g.Range, g.Minutes)
	}
	return string(g.Range)
}

func (g Granularity) String() string { return g.Key() }

// BarInterval is the stored bar width a tick store serves for this
// granularity: minute bars intraday, daily bars up to a quarter, weekly beyond.
func (g Granularity) BarInterval() string {
	switch {
	case g.Minutes > 0:
		return fmt.Sprintf("%dm", g.Minutes)
	case g.Range == Range1D:
		return "1m"
	case g.Range == Range6M || g.Range == Range1Y:
		return "1w"
	default:
		return "1d"
	}
}
