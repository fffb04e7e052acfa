// Package render implements the chart surface on top of go-chart, producing one
// PNG per pane.
package render

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/wcharczuk/go-chart/v2"

	"FinChart/internal/domain/models"
	finchart "FinChart/internal/services/chart"
)

// ErrEmpty is returned when a pane has nothing to draw.
var ErrEmpty = errors.New("render: nothing to draw")

const (
	minSubPaneHeight = 80
	minWidth         = 64
	minHeight        = 64
)

// Surface keeps the attached series in memory and rasterizes a pane on demand.
type Surface struct {
	mu       sync.Mutex
	width    int
	height   int
	palette  finchart.Palette
	view     models.ViewState
	series   []*handle
	overlays map[string]models.Shape
	order    []string
	disposed bool
}

var (
	_ finchart.Surface      = (*Surface)(nil)
	_ finchart.PaneRenderer = (*Surface)(nil)
	_ finchart.SeriesHandle = (*handle)(nil)
)

func NewSurface(width, height int, palette finchart.Palette) (*Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("render: invalid surface size %dx%d", width, height)
	}
	return &Surface{
		width:    width,
		height:   height,
		palette:  palette,
		overlays: make(map[string]models.Shape),
	}, nil
}

// Factory adapts NewSurface to chart.SurfaceFactory.
func Factory(width, height int, palette finchart.Palette) (finchart.Surface, error) {
	return NewSurface(width, height, palette)
}

func (s *Surface) Resize(width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return finchart.ErrDisposed
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("render: invalid surface size %dx%d", width, height)
	}
	s.width, s.height = width, height
	return nil
}

func (s *Surface) SetView(v models.ViewState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return finchart.ErrDisposed
	}
	s.view = v
	return nil
}

func (s *Surface) AddSeries(opts finchart.SeriesOptions) (finchart.SeriesHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil, finchart.ErrDisposed
	}
	h := &handle{surface: s, opts: opts}
	s.series = append(s.series, h)
	return h, nil
}

func (s *Surface) RemoveSeries(h finchart.SeriesHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return finchart.ErrDisposed
	}
	for i, sh := range s.series {
		if sh == h {
			s.series = append(s.series[:i], s.series[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("render: series not attached")
}

func (s *Surface) AddOverlay(id string, shape models.Shape) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return finchart.ErrDisposed
	}
	if _, ok := s.overlays[id]; !ok {
		s.order = append(s.order, id)
	}
	s.overlays[id] = shape
	return nil
}

func (s *Surface) RemoveOverlay(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return finchart.ErrDisposed
	}
	if _, ok := s.overlays[id]; !ok {
		return nil
	}
	delete(s.overlays, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Surface) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return finchart.ErrDisposed
	}
	s.disposed = true
	s.series = nil
	s.overlays = nil
	s.order = nil
	return nil
}

// Render writes pane as PNG.
func (s *Surface) Render(pane finchart.Pane, w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return finchart.ErrDisposed
	}

	idx := s.timeIndex()
	if len(idx.times) == 0 {
		return ErrEmpty
	}
	xr := s.view.VisibleRangeLogical
	xmin, xmax := xr.From-0.5, xr.To+0.5

	var series []chart.Series
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, h := range s.series {
		if h.opts.Pane != pane {
			continue
		}
		cs, vlo, vhi := h.chartSeries(idx, xmin, xmax)
		if cs == nil {
			continue
		}
		series = append(series, cs)
		lo, hi = math.Min(lo, vlo), math.Max(hi, vhi)
	}
	if len(series) == 0 {
		return ErrEmpty
	}

	height := s.height
	yr := &chart.ContinuousRange{}
	switch pane {
	case finchart.PaneMain:
		yr.Min, yr.Max = s.view.VisiblePriceRange.Min, s.view.VisiblePriceRange.Max
		if shapes := s.shapes(); len(shapes) > 0 {
			series = append(series, &overlaySeries{shapes: shapes})
		}
	case finchart.PaneVolume:
		height = s.subPaneHeight()
		yr.Min, yr.Max = 0, math.Max(hi*1.1, 1)
	case finchart.PaneRSI:
		height = s.subPaneHeight()
		yr.Min, yr.Max = 0, 100
	default:
		height = s.subPaneHeight()
		lo, hi = math.Min(lo, 0), math.Max(hi, 0)
		pad := math.Max((hi-lo)*0.1, 1e-6)
		yr.Min, yr.Max = lo-pad, hi+pad
	}

	bg := colorOf(s.palette.Background, chart.ColorWhite)
	text := colorOf(s.palette.Text, chart.ColorBlack)
	grid := colorOf(s.palette.Grid, chart.ColorLightGray)
	ch := chart.Chart{
		Width:      max(s.width, minWidth),
		Height:     max(height, minHeight),
		Background: chart.Style{FillColor: bg, Padding: chart.Box{Top: 8, Left: 8, Right: 8, Bottom: 8}},
		Canvas:     chart.Style{FillColor: bg},
		XAxis: chart.XAxis{
			Range:          &chart.ContinuousRange{Min: xmin, Max: xmax},
			ValueFormatter: idx.formatter(),
			Style:          chart.Style{FontColor: text, StrokeColor: grid},
		},
		YAxis: chart.YAxis{
			Range: yr,
			Style: chart.Style{FontColor: text, StrokeColor: grid},
		},
		Series: series,
	}
	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render %s pane: %w", pane, err)
	}
	return nil
}

func (s *Surface) subPaneHeight() int {
	return max(s.height/4, minSubPaneHeight)
}

func (s *Surface) shapes() []models.Shape {
	out := make([]models.Shape, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.overlays[id])
	}
	return out
}

// timeIndex maps candle times to logical indices using the main series.
func (s *Surface) timeIndex() timeIndex {
	for _, h := range s.series {
		if h.opts.Pane != finchart.PaneMain || h.opts.Name != "price" {
			continue
		}
		var times []int64
		switch {
		case len(h.candles) > 0:
			times = make([]int64, len(h.candles))
			for i, c := range h.candles {
				times[i] = c.Time
			}
		case len(h.points) > 0:
			times = make([]int64, len(h.points))
			for i, p := range h.points {
				times[i] = p.Time
			}
		}
		pos := make(map[int64]int, len(times))
		for i, t := range times {
			pos[t] = i
		}
		return timeIndex{times: times, pos: pos}
	}
	return timeIndex{}
}

type timeIndex struct {
	times []int64
	pos   map[int64]int
}

func (ti timeIndex) formatter() chart.ValueFormatter {
	layout := "2006-01-02"
	if n := len(ti.times); n > 1 && ti.times[n-1]-ti.times[0] < 2*86400 {
		layout = "15:04"
	}
	return func(v interface{}) string {
		f, ok := v.(float64)
		if !ok || len(ti.times) == 0 {
			return ""
		}
		i := int(math.Round(f))
		if i < 0 || i >= len(ti.times) {
			return ""
		}
		return time.Unix(ti.times[i], 0).UTC().Format(layout)
	}
}

type handle struct {
	surface *Surface
	opts    finchart.SeriesOptions
	candles []models.Candle
	points  []models.Point
	volumes []models.VolumeBar
}

func (h *handle) SetCandles(c []models.Candle) error {
	h.surface.mu.Lock()
	defer h.surface.mu.Unlock()
	if h.surface.disposed {
		return finchart.ErrDisposed
	}
	h.candles = c
	return nil
}

func (h *handle) SetPoints(p []models.Point) error {
	h.surface.mu.Lock()
	defer h.surface.mu.Unlock()
	if h.surface.disposed {
		return finchart.ErrDisposed
	}
	h.points = p
	return nil
}

func (h *handle) SetVolumes(v []models.VolumeBar) error {
	h.surface.mu.Lock()
	defer h.surface.mu.Unlock()
	if h.surface.disposed {
		return finchart.ErrDisposed
	}
	h.volumes = v
	return nil
}

// chartSeries converts the handle into a go-chart series restricted to the
// visible x window, with the min/max of the values it draws.
func (h *handle) chartSeries(idx timeIndex, xmin, xmax float64) (chart.Series, float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	visible := func(t int64) (float64, bool) {
		i, ok := idx.pos[t]
		if !ok {
			return 0, false
		}
		x := float64(i)
		return x, x >= xmin && x <= xmax
	}
	color := colorOf(h.opts.Color, chart.ColorBlue)
	down := colorOf(h.opts.DownColor, color)

	switch h.opts.Kind {
	case finchart.KindCandle:
		cs := &candleSeries{name: h.opts.Name, up: color, down: down}
		for _, c := range h.candles {
			if x, ok := visible(c.Time); ok {
				cs.xs = append(cs.xs, x)
				cs.candles = append(cs.candles, c)
				lo, hi = math.Min(lo, c.Low), math.Max(hi, c.High)
			}
		}
		if len(cs.candles) == 0 {
			return nil, lo, hi
		}
		return cs, lo, hi

	case finchart.KindHistogram:
		bs := &barSeries{name: h.opts.Name}
		for _, v := range h.volumes {
			if x, ok := visible(v.Time); ok {
				c := color
				if v.Color == models.VolumeDown {
					c = down
				}
				bs.xs, bs.values, bs.colors = append(bs.xs, x), append(bs.values, v.Value), append(bs.colors, c)
				lo, hi = math.Min(lo, v.Value), math.Max(hi, v.Value)
			}
		}
		for _, p := range h.points {
			if x, ok := visible(p.Time); ok {
				c := color
				if p.Value < 0 {
					c = down
				}
				bs.xs, bs.values, bs.colors = append(bs.xs, x), append(bs.values, p.Value), append(bs.colors, c)
				lo, hi = math.Min(lo, p.Value), math.Max(hi, p.Value)
			}
		}
		if len(bs.values) == 0 {
			return nil, lo, hi
		}
		return bs, lo, hi

	default:
		ls := chart.ContinuousSeries{
			Name:  h.opts.Name,
			Style: chart.Style{StrokeColor: color, StrokeWidth: math.Max(h.opts.Width, 1)},
		}
		if h.opts.Kind == finchart.KindArea {
			ls.Style.FillColor = color.WithAlpha(48)
		}
		for _, p := range h.points {
			if x, ok := visible(p.Time); ok {
				ls.XValues = append(ls.XValues, x)
				ls.YValues = append(ls.YValues, p.Value)
				lo, hi = math.Min(lo, p.Value), math.Max(hi, p.Value)
			}
		}
		if len(ls.XValues) == 0 {
			return nil, lo, hi
		}
		return ls, lo, hi
	}
}
