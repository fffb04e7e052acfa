package models

import (
	"errors"
	"math"
	"strings"
	"time"
)

// Bar is one persisted OHLCV row as kept by a tick store.
type Bar struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	Time     time.Time `json:"time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Point converts the bar to the raw shape the series aggregator consumes.
func (b Bar) Point() RawPricePoint {
	v := b.Volume
	return RawPricePoint{
		Time:   TimeFromUnix(b.Time.Unix()),
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: &v,
	}
}

// BarsToPoints maps stored bars to raw points, keeping order.
func BarsToPoints(bars []Bar) []RawPricePoint {
	out := make([]RawPricePoint, len(bars))
	for i, b := range bars {
		out[i] = b.Point()
	}
	return out
}

// Validate reports why a bar cannot be stored.
func (b Bar) Validate() error {
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("non-finite price/volume")
		}
	}
	switch {
	case b.Symbol == "":
		return errors.New("symbol empty")
	case b.Interval == "":
		return errors.New("interval empty")
	case b.Time.IsZero():
		return errors.New("time missing")
	case b.Open < 0 || b.High < 0 || b.Low < 0 || b.Volume < 0:
		return errors.New("negative price/volume")
	case b.Close <= 0:
		return errors.New("close must be positive")
	case b.High < b.Low:
		return errors.New("high below low")
	}
	return nil
}

// BarMessage is one bar on the ingestion topic. Time is unix seconds;
// millisecond values are accepted and scaled down.
type BarMessage struct {
	Symbol   string  `json:"symbol"`
	Interval string  `json:"interval"`
	Time     int64   `json:"time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

func NewBarMessage(b Bar) BarMessage {
	return BarMessage{
		Symbol:   strings.ToUpper(strings.TrimSpace(b.Symbol)),
		Interval: b.Interval,
		Time:     b.Time.Unix(),
		Open:     b.Open,
		High:     b.High,
		Low:      b.Low,
		Close:    b.Close,
		Volume:   b.Volume,
	}
}

// Bar converts the message to a validated bar. A missing interval means "1m";
// a message carrying only a close becomes a flat bar.
func (m BarMessage) Bar() (Bar, error) {
	if m.Time <= 0 {
		return Bar{}, errors.New("time missing")
	}
	ts := m.Time
	if ts > 1e11 { // ms
		ts /= 1000
	}
	interval := strings.TrimSpace(m.Interval)
	if interval == "" {
		interval = "1m"
	}
	o, h, l := m.Open, m.High, m.Low
	if o == 0 && h == 0 && l == 0 {
		o, h, l = m.Close, m.Close, m.Close
	}
	b := Bar{
		Symbol:   strings.ToUpper(strings.TrimSpace(m.Symbol)),
		Interval: interval,
		Time:     time.Unix(ts, 0).UTC(),
		Open:     o,
		High:     h,
		Low:      l,
		Close:    m.Close,
		Volume:   m.Volume,
	}
	if err := b.Validate(); err != nil {
		return Bar{}, err
	}
	return b, nil
}
