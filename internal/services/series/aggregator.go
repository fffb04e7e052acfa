// Package series turns raw price ticks into the candle, volume and close
// series the chart draws.
package series

import (
	"math"
	"sort"
	"strconv"
	"time"

	"FinChart/internal/domain/models"
	applogger "FinChart/pkg/logger"
	"FinChart/pkg/util"
)

const hour = int64(3600)

// Aggregator is stateless apart from its clock; it is safe for concurrent use.
type Aggregator struct {
	now    func() time.Time
	logger *applogger.Logger
}

// Option configures Aggregator.
type Option func(*Aggregator)

// WithClock overrides wall-clock now (used for timestamp synthesis and the
// single-day future filter).
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets the logger used to report dropped ticks.
func WithLogger(l *applogger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{now: time.Now, logger: applogger.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type tick struct {
	t int64
	p models.RawPricePoint
}

// Aggregate builds the chart series for g. Malformed ticks are dropped, never
// reported as errors; an empty result means the caller shows an empty state.
func (a *Aggregator) Aggregate(points []models.RawPricePoint, g models.Granularity) models.Aggregated {
	now := a.now().Unix()
	interval := int64(g.Interval() / time.Second)
	n := len(points)

	ticks := make([]tick, 0, n)
	dropped := 0
	for i, p := range points {
		if !validOHLC(p) {
			dropped++
			continue
		}
		t, ok := resolveTime(p.Time, now-int64(n-1-i)*interval)
		if !ok {
			dropped++
			continue
		}
		// no forward-looking bars on the intraday chart
		if g.Range == models.Range1D && t > now {
			dropped++
			continue
		}
		ticks = append(ticks, tick{t: t, p: p})
	}
	if dropped > 0 {
		a.logger.Debug("series: dropped ticks",
			applogger.Int("dropped", dropped),
			applogger.Int("total", n),
			applogger.String("granularity", g.Key()),
		)
	}
	if len(ticks) == 0 {
		return models.Aggregated{}
	}

	// stable: among equal times the input order is preserved
	sort.SliceStable(ticks, func(i, j int) bool { return ticks[i].t < ticks[j].t })

	if g.SingleDay() {
		return bucketHourly(ticks)
	}
	return perTick(ticks)
}

// perTick emits one bar per tick; a later tick with the same time replaces
// the earlier one.
func perTick(ticks []tick) models.Aggregated {
	uniq := ticks[:0:0]
	for _, tk := range ticks {
		if len(uniq) > 0 && uniq[len(uniq)-1].t == tk.t {
			uniq[len(uniq)-1] = tk
			continue
		}
		uniq = append(uniq, tk)
	}

	out := models.Aggregated{
		Candles: make([]models.Candle, 0, len(uniq)),
		Volumes: make([]models.VolumeBar, 0, len(uniq)),
		Closes:  make([]models.Point, 0, len(uniq)),
	}
	for _, tk := range uniq {
		c := toCandle(tk.t, tk.p)
		out.Candles = append(out.Candles, c)
		out.Closes = append(out.Closes, models.Point{Time: c.Time, Value: c.Close})
		if v := volumeOf(tk.p); v > 0 {
			out.Volumes = append(out.Volumes, volumeBar(c, v))
		}
	}
	return out
}

type bucket struct {
	start  int64
	first  models.RawPricePoint
	volume float64
}

// bucketHourly implements the single trading-day view. Buckets are anchored on
// the hour of the earliest tick and closed on the right, so a tick landing
// exactly on an hour boundary still belongs to the hour that just ended. The
// displayed volume of bucket i is the sum of buckets i..last.
func bucketHourly(ticks []tick) models.Aggregated {
	open := util.TruncateHour(ticks[0].t)

	buckets := make([]bucket, 0, 8)
	for _, tk := range ticks {
		start := open + bucketIndex(tk.t, open)*hour
		if len(buckets) == 0 || buckets[len(buckets)-1].start != start {
			buckets = append(buckets, bucket{start: start, first: tk.p})
		}
		buckets[len(buckets)-1].volume += volumeOf(tk.p)
	}

	remaining := make([]float64, len(buckets))
	sum := 0.0
	for i := len(buckets) - 1; i >= 0; i-- {
		sum += buckets[i].volume
		remaining[i] = sum
	}

	out := models.Aggregated{
		Candles: make([]models.Candle, 0, len(buckets)),
		Volumes: make([]models.VolumeBar, 0, len(buckets)),
		Closes:  make([]models.Point, 0, len(buckets)),
	}
	for i, b := range buckets {
		c := toCandle(b.start, b.first)
		out.Candles = append(out.Candles, c)
		out.Closes = append(out.Closes, models.Point{Time: c.Time, Value: c.Close})
		if remaining[i] > 0 {
			out.Volumes = append(out.Volumes, volumeBar(c, remaining[i]))
		}
	}
	return out
}

func bucketIndex(t, open int64) int64 {
	d := t - open
	if d <= 0 {
		return 0
	}
	return (d+hour-1)/hour - 1
}

func resolveTime(tt models.TickTime, synthesized int64) (int64, bool) {
	if tt.IsZero() {
		return synthesized, true
	}
	if tt.Numeric() {
		f, err := strconv.ParseFloat(tt.String(), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return util.UnixAuto(int64(f)).Unix(), true
	}
	t, ok := util.ParseTime(tt.String())
	if !ok {
		return 0, false
	}
	return t.Unix(), true
}

func validOHLC(p models.RawPricePoint) bool {
	for _, v := range [...]float64{p.Open, p.High, p.Low, p.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return false
		}
	}
	return true
}

func volumeOf(p models.RawPricePoint) float64 {
	v := p.VolumeOrZero()
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func toCandle(t int64, p models.RawPricePoint) models.Candle {
	return models.Candle{Time: t, Open: p.Open, High: p.High, Low: p.Low, Close: p.Close}
}

func volumeBar(c models.Candle, v float64) models.VolumeBar {
	color := models.VolumeDown
	if c.Up() {
		color = models.VolumeUp
	}
	return models.VolumeBar{Time: c.Time, Value: v, Color: color}
}
