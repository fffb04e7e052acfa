// Package viewport maps between pixels and chart space (candle index, price)
// and owns the visible window.
package viewport

import (
	"math"
	"sort"

	"FinChart/internal/domain/models"
)

const (
	DefaultZoomIn    = 0.7
	DefaultZoomOut   = 1.3
	DefaultMinWindow = 5.0
	pricePadding     = 0.10
)

// Margins are the fixed axis gutters around the plotting area, in pixels.
type Margins struct {
	Top    float64 `yaml:"top" default:"8" validate:"gte=0"`
	Right  float64 `yaml:"right" default:"64" validate:"gte=0"`
	Bottom float64 `yaml:"bottom" default:"28" validate:"gte=0"`
	Left   float64 `yaml:"left" default:"8" validate:"gte=0"`
}

// DefaultMargins leave room for the price axis on the right and the time axis
// at the bottom.
var DefaultMargins = Margins{Top: 8, Right: 64, Bottom: 28, Left: 8}

type Config struct {
	Margins   Margins `yaml:"margins"`
	ZoomIn    float64 `yaml:"zoom_in" default:"0.7" validate:"gt=0,lt=1"`
	ZoomOut   float64 `yaml:"zoom_out" default:"1.3" validate:"gt=1"`
	MinWindow float64 `yaml:"min_window" default:"5" validate:"gte=1"`
}

func DefaultConfig() Config {
	return Config{Margins: DefaultMargins, ZoomIn: DefaultZoomIn, ZoomOut: DefaultZoomOut, MinWindow: DefaultMinWindow}
}

// Transform is not safe for concurrent use; the owning session serializes
// access.
type Transform struct {
	cfg           Config
	width, height float64
	candles       []models.Candle
	view          models.ViewState
}

func New(cfg Config, width, height int) *Transform {
	d := DefaultConfig()
	if cfg.ZoomIn <= 0 || cfg.ZoomIn >= 1 {
		cfg.ZoomIn = d.ZoomIn
	}
	if cfg.ZoomOut <= 1 {
		cfg.ZoomOut = d.ZoomOut
	}
	if cfg.MinWindow < 1 {
		cfg.MinWindow = d.MinWindow
	}
	t := &Transform{cfg: cfg}
	t.SetSize(width, height)
	t.view.VisiblePriceRange = models.PriceRange{Min: 0, Max: 1}
	return t
}

// SetSize updates the surface dimensions; the view window is left as is.
func (t *Transform) SetSize(width, height int) {
	t.width = float64(max(width, 0))
	t.height = float64(max(height, 0))
}

func (t *Transform) Size() (int, int) { return int(t.width), int(t.height) }

// SetData replaces the candles and fits the view to them.
func (t *Transform) SetData(candles []models.Candle) {
	t.candles = candles
	t.view.Crosshair = nil
	t.FitToData()
}

func (t *Transform) Candles() []models.Candle { return t.candles }

// Plot returns the plotting rectangle in pixels.
func (t *Transform) Plot() (left, top, right, bottom float64) {
	m := t.cfg.Margins
	left, top = m.Left, m.Top
	right = math.Max(left, t.width-m.Right)
	bottom = math.Max(top, t.height-m.Bottom)
	return
}

func (t *Transform) plotSize() (w, h float64) {
	l, tp, r, b := t.Plot()
	return math.Max(r-l, 1), math.Max(b-tp, 1)
}

// InPlot reports whether a pixel lies inside the plotting area.
func (t *Transform) InPlot(x, y float64) bool {
	l, tp, r, b := t.Plot()
	return x >= l && x <= r && y >= tp && y <= b
}

// ClampToPlot moves a pixel onto the nearest point of the plotting area.
func (t *Transform) ClampToPlot(x, y float64) (float64, float64) {
	l, tp, r, b := t.Plot()
	return clamp(x, l, r), clamp(y, tp, b)
}

func (t *Transform) PriceToY(price float64) float64 {
	_, top, _, _ := t.Plot()
	_, h := t.plotSize()
	pr := t.view.VisiblePriceRange
	return top + (pr.Max-price)/span(pr.Max-pr.Min)*h
}

func (t *Transform) YToPrice(y float64) float64 {
	_, top, _, _ := t.Plot()
	_, h := t.plotSize()
	pr := t.view.VisiblePriceRange
	return pr.Max - (y-top)/h*span(pr.Max-pr.Min)
}

func (t *Transform) LogicalToX(logical float64) float64 {
	left, _, _, _ := t.Plot()
	w, _ := t.plotSize()
	lr := t.view.VisibleRangeLogical
	return left + (logical-lr.From)/span(lr.Width())*w
}

func (t *Transform) XToLogical(x float64) float64 {
	left, _, _, _ := t.Plot()
	w, _ := t.plotSize()
	lr := t.view.VisibleRangeLogical
	return lr.From + (x-left)/w*span(lr.Width())
}

// TimeAt returns the time of the candle nearest to a logical index, or 0
// without data.
func (t *Transform) TimeAt(logical float64) int64 {
	if len(t.candles) == 0 {
		return 0
	}
	i := int(math.Round(clamp(logical, 0, t.last())))
	return t.candles[i].Time
}

// LogicalOf returns the logical position of time ts in the current data.
func (t *Transform) LogicalOf(ts int64) float64 { return LogicalOf(t.candles, ts) }

// LogicalOf maps a time onto candles sorted ascending by time: the candle's
// index on an exact match, interpolated between neighbours, and extrapolated
// with the average bar spacing outside the data.
func LogicalOf(candles []models.Candle, ts int64) float64 {
	n := len(candles)
	if n < 2 {
		return 0
	}
	first, last := candles[0].Time, candles[n-1].Time
	step := float64(last-first) / float64(n-1)
	switch {
	case ts <= first:
		return float64(ts-first) / step
	case ts >= last:
		return float64(n-1) + float64(ts-last)/step
	}
	i := sort.Search(n, func(i int) bool { return candles[i].Time >= ts })
	if candles[i].Time == ts {
		return float64(i)
	}
	prev := candles[i-1].Time
	return float64(i-1) + float64(ts-prev)/float64(candles[i].Time-prev)
}

// Zoom scales the window around focal, keeping focal at the same relative
// position. It returns false, leaving the view unchanged, when the result
// would be narrower than the minimum window or there is nothing to zoom.
func (t *Transform) Zoom(dir models.ZoomDirection, focal float64) bool {
	last := t.last()
	if last < 0 {
		return false
	}
	factor := t.cfg.ZoomOut
	if dir == models.ZoomIn {
		factor = t.cfg.ZoomIn
	}

	lr := t.view.VisibleRangeLogical
	width := lr.Width()
	newWidth := width * factor
	if newWidth < t.cfg.MinWindow-1e-9 {
		return false
	}
	if newWidth >= last {
		if lr.From == 0 && lr.To == last {
			return false
		}
		t.setLogical(models.LogicalRange{From: 0, To: last})
		return true
	}

	focal = clamp(focal, lr.From, lr.To)
	ratio := 0.5
	if width > 0 {
		ratio = (focal - lr.From) / width
	}
	from := focal - ratio*newWidth
	t.setLogical(shiftInto(from, newWidth, last))
	return true
}

// Pan shifts the window by delta indices, clamped to the data edges. It
// returns false when nothing moved.
func (t *Transform) Pan(delta float64) bool {
	last := t.last()
	if last < 0 || delta == 0 {
		return false
	}
	lr := t.view.VisibleRangeLogical
	next := shiftInto(lr.From+delta, lr.Width(), last)
	if next == lr {
		return false
	}
	t.setLogical(next)
	return true
}

// FitToData shows every candle. Calling it twice changes nothing.
func (t *Transform) FitToData() {
	last := t.last()
	if last < 0 {
		t.view.VisibleRangeLogical = models.LogicalRange{}
		t.view.VisiblePriceRange = models.PriceRange{Min: 0, Max: 1}
		return
	}
	t.setLogical(models.LogicalRange{From: 0, To: last})
}

// FitPrice sets the price range to the high/low of the visible candles plus
// 10% padding.
func (t *Transform) FitPrice() {
	if len(t.candles) == 0 {
		return
	}
	lr := t.view.VisibleRangeLogical
	from := int(math.Max(0, math.Floor(lr.From)))
	to := int(math.Min(t.last(), math.Ceil(lr.To)))
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, c := range t.candles[from : to+1] {
		lo = math.Min(lo, c.Low)
		hi = math.Max(hi, c.High)
	}
	pad := (hi - lo) * pricePadding
	if pad == 0 {
		pad = math.Abs(hi) * pricePadding
	}
	if pad == 0 {
		pad = 1
	}
	t.view.VisiblePriceRange = models.PriceRange{Min: lo - pad, Max: hi + pad}
}

// SetCrosshair places the crosshair at a pixel, snapped to the nearest
// candle. Pixels outside the plot clear it; it returns whether one is shown.
func (t *Transform) SetCrosshair(x, y float64) bool {
	if len(t.candles) == 0 || !t.InPlot(x, y) {
		t.view.Crosshair = nil
		return false
	}
	logical := math.Round(clamp(t.XToLogical(x), 0, t.last()))
	t.view.Crosshair = &models.Crosshair{
		Time:    t.candles[int(logical)].Time,
		Logical: logical,
		Price:   t.YToPrice(y),
	}
	return true
}

func (t *Transform) ClearCrosshair() { t.view.Crosshair = nil }

// State returns a copy of the current view.
func (t *Transform) State() models.ViewState {
	v := t.view
	if v.Crosshair != nil {
		c := *v.Crosshair
		v.Crosshair = &c
	}
	return v
}

// Anchor captures a pixel as a shape anchor in data space.
func (t *Transform) Anchor(x, y float64) models.Anchor {
	logical := t.XToLogical(x)
	return models.Anchor{
		Time:    t.TimeAt(logical),
		Logical: logical,
		Price:   t.YToPrice(y),
		X:       x,
		Y:       y,
	}
}

func (t *Transform) setLogical(r models.LogicalRange) {
	t.view.VisibleRangeLogical = r
	t.FitPrice()
}

func (t *Transform) last() float64 { return float64(len(t.candles) - 1) }

func shiftInto(from, width, last float64) models.LogicalRange {
	if from < 0 {
		from = 0
	}
	if from+width > last {
		from = last - width
	}
	return models.LogicalRange{From: from, To: from + width}
}

// span keeps the affine maps finite when a range collapses.
func span(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
