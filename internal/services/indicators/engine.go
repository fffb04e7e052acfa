package indicators

import (
	"FinChart/internal/domain/models"
)

const (
	SmoothingSimple = "simple"
	SmoothingWilder = "wilder"
)

// Config carries the indicator parameters. It is embedded in the chart section
// of the application config.
type Config struct {
	MAPeriods    []int  `yaml:"ma_periods" default:"[5,20,60,120]" validate:"max=4,dive,gt=0"`
	RSIPeriod    int    `yaml:"rsi_period" default:"14" validate:"gt=0"`
	RSISmoothing string `yaml:"rsi_smoothing" default:"simple" validate:"oneof=simple wilder"`
	MACDFast     int    `yaml:"macd_fast" default:"12" validate:"gt=0"`
	MACDSlow     int    `yaml:"macd_slow" default:"26" validate:"gtfield=MACDFast"`
	MACDSignal   int    `yaml:"macd_signal" default:"9" validate:"gt=0"`
}

// DefaultMAPeriods are the four moving averages offered by the chart toolbar.
var DefaultMAPeriods = []int{5, 20, 60, 120}

// DefaultConfig returns the stock parameters.
func DefaultConfig() Config {
	return Config{
		MAPeriods:    append([]int(nil), DefaultMAPeriods...),
		RSIPeriod:    14,
		RSISmoothing: SmoothingSimple,
		MACDFast:     12,
		MACDSlow:     26,
		MACDSignal:   9,
	}
}

// Periods returns the configured MA periods, falling back to the defaults.
func (c Config) Periods() []int {
	if len(c.MAPeriods) == 0 {
		return DefaultMAPeriods
	}
	return c.MAPeriods
}

// Engine recomputes every indicator from scratch for a close series.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	d := DefaultConfig()
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = d.RSIPeriod
	}
	if cfg.RSISmoothing == "" {
		cfg.RSISmoothing = d.RSISmoothing
	}
	if cfg.MACDFast <= 0 || cfg.MACDSlow <= 0 || cfg.MACDSignal <= 0 {
		cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal = d.MACDFast, d.MACDSlow, d.MACDSignal
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) Config() Config { return e.cfg }

// Compute derives the full indicator set. MA series come back in the order of
// the configured periods.
func (e *Engine) Compute(closes []models.Point) models.IndicatorSet {
	periods := e.cfg.Periods()
	set := models.IndicatorSet{MA: make([]models.Series, 0, len(periods))}
	for _, n := range periods {
		set.MA = append(set.MA, models.Series{Name: MAName(n), Points: MovingAverage(closes, n)})
	}

	rsi := RSI
	if e.cfg.RSISmoothing == SmoothingWilder {
		rsi = RSIWilder
	}
	set.RSI = models.Series{Name: RSIName(e.cfg.RSIPeriod), Points: rsi(closes, e.cfg.RSIPeriod)}

	m := MACD(closes, e.cfg.MACDFast, e.cfg.MACDSlow, e.cfg.MACDSignal)
	name := MACDName(e.cfg.MACDFast, e.cfg.MACDSlow, e.cfg.MACDSignal)
	set.MACD = models.MACD{
		Line:      models.Series{Name: name, Points: m.Line},
		Signal:    models.Series{Name: name + " signal", Points: m.Signal},
		Histogram: models.Series{Name: name + " histogram", Points: m.Histogram},
	}
	return set
}
