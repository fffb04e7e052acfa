package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// TickTime is the loosely typed timestamp carried by a raw price point. Upstream
// feeds send either a string ("2024-10-10", "2024-10-10 09:30", RFC3339) or a
// number (unix seconds or milliseconds). The zero value means "absent".
type TickTime struct {
	raw     string
	numeric bool
}

func TimeFromString(s string) TickTime { return TickTime{raw: s} }

func TimeFromUnix(sec int64) TickTime {
	return TickTime{raw: strconv.FormatInt(sec, 10), numeric: true}
}

// Numeric reports whether the time was supplied as a number rather than a string.
func (t TickTime) Numeric() bool { return t.numeric }

// IsZero reports whether the point carried no timestamp.
func (t TickTime) IsZero() bool { return t.raw == "" }

func (t TickTime) String() string { return t.raw }

func (t *TickTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = TickTime{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("tick time: %w", err)
		}
		*t = TickTime{raw: s}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("tick time: %w", err)
	}
	*t = TickTime{raw: n.String(), numeric: true}
	return nil
}

func (t TickTime) MarshalJSON() ([]byte, error) {
	if t.raw == "" {
		return []byte("null"), nil
	}
	if t.numeric {
		return []byte(t.raw), nil
	}
	return json.Marshal(t.raw)
}

// RawPricePoint is one OHLCV tick as supplied by the data collaborator.
type RawPricePoint struct {
	Time   TickTime `json:"time"`
	Open   float64  `json:"open"`
	High   float64  `json:"high"`
	Low    float64  `json:"low"`
	Close  float64  `json:"close"`
	Volume *float64 `json:"volume,omitempty"`
}

// VolumeOrZero returns the tick volume, treating a missing value as zero.
func (p RawPricePoint) VolumeOrZero() float64 {
	if p.Volume == nil {
		return 0
	}
	return *p.Volume
}

// Candle is a normalized OHLC bar keyed by epoch seconds.
type Candle struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Up reports whether the bar closed at or above its open.
func (c Candle) Up() bool { return c.Close >= c.Open }

type VolumeColor string

const (
	VolumeUp   VolumeColor = "up"
	VolumeDown VolumeColor = "down"
)

type VolumeBar struct {
	Time  int64       `json:"time"`
	Value float64     `json:"value"`
	Color VolumeColor `json:"color"`
}

// Point is a single (time, value) sample of a line series.
type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// Series is a named, time-ordered indicator output.
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

func (s Series) Len() int { return len(s.Points) }

// Aggregated is the output of the series aggregator; all three slices are
// sorted ascending by time and unique in time.
type Aggregated struct {
	Candles []Candle    `json:"candles"`
	Volumes []VolumeBar `json:"volumes"`
	Closes  []Point     `json:"closes"`
}

// Empty reports whether there is nothing to draw.
func (a Aggregated) Empty() bool { return len(a.Candles) == 0 }

// ChartType selects how the main price series is drawn.
type ChartType string

const (
	ChartCandle ChartType = "candle"
	ChartLine   ChartType = "line"
	ChartArea   ChartType = "area"
)

func (t ChartType) Valid() bool {
	switch t {
	case ChartCandle, ChartLine, ChartArea:
		return true
	}
	return false
}

// Theme only affects colors, never geometry or math.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

type IndicatorKind string

const (
	IndicatorRSI  IndicatorKind = "rsi"
	IndicatorMACD IndicatorKind = "macd"
)

func (k IndicatorKind) Valid() bool {
	return k == IndicatorRSI || k == IndicatorMACD
}

// MACD groups the three aligned MACD outputs.
type MACD struct {
	Line      Series `json:"line"`
	Signal    Series `json:"signal"`
	Histogram Series `json:"histogram"`
}

// IndicatorSet is everything the indicator engine derives from one close series.
type IndicatorSet struct {
	MA   []Series `json:"ma"`
	RSI  Series   `json:"rsi"`
	MACD MACD     `json:"macd"`
}
