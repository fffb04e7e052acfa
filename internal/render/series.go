package render

import (
	"math"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"FinChart/internal/domain/models"
)

var (
	_ chart.Series = (*candleSeries)(nil)
	_ chart.Series = (*barSeries)(nil)
	_ chart.Series = (*overlaySeries)(nil)
)

// candleSeries draws OHLC bodies and wicks at logical x positions.
type candleSeries struct {
	name    string
	xs      []float64
	candles []models.Candle
	up      drawing.Color
	down    drawing.Color
}

func (s *candleSeries) GetName() string           { return s.name }
func (s *candleSeries) GetYAxis() chart.YAxisType { return chart.YAxisPrimary }
func (s *candleSeries) GetStyle() chart.Style     { return chart.Style{StrokeWidth: 1} }
func (s *candleSeries) Validate() error           { return nil }

func (s *candleSeries) Render(r chart.Renderer, box chart.Box, xrange, yrange chart.Range, _ chart.Style) {
	half := halfBarWidth(box, xrange)
	for i, c := range s.candles {
		x := box.Left + xrange.Translate(s.xs[i])
		color := s.down
		if c.Up() {
			color = s.up
		}
		yHigh := box.Bottom - yrange.Translate(c.High)
		yLow := box.Bottom - yrange.Translate(c.Low)
		yOpen := box.Bottom - yrange.Translate(c.Open)
		yClose := box.Bottom - yrange.Translate(c.Close)

		r.SetStrokeColor(color)
		r.SetStrokeWidth(1)
		r.MoveTo(x, yHigh)
		r.LineTo(x, yLow)
		r.Stroke()

		top, bottom := min(yOpen, yClose), max(yOpen, yClose)
		if bottom == top {
			bottom++
		}
		r.SetFillColor(color)
		r.MoveTo(x-half, top)
		r.LineTo(x+half, top)
		r.LineTo(x+half, bottom)
		r.LineTo(x-half, bottom)
		r.Close()
		r.FillStroke()
	}
}

// barSeries draws a histogram from zero, colored per bar.
type barSeries struct {
	name   string
	xs     []float64
	values []float64
	colors []drawing.Color
}

func (s *barSeries) GetName() string           { return s.name }
func (s *barSeries) GetYAxis() chart.YAxisType { return chart.YAxisPrimary }
func (s *barSeries) GetStyle() chart.Style     { return chart.Style{StrokeWidth: 1} }
func (s *barSeries) Validate() error           { return nil }

func (s *barSeries) Render(r chart.Renderer, box chart.Box, xrange, yrange chart.Range, _ chart.Style) {
	half := halfBarWidth(box, xrange)
	zero := box.Bottom - yrange.Translate(math.Max(yrange.GetMin(), math.Min(0, yrange.GetMax())))
	for i, v := range s.values {
		x := box.Left + xrange.Translate(s.xs[i])
		y := box.Bottom - yrange.Translate(v)
		top, bottom := min(y, zero), max(y, zero)
		r.SetFillColor(s.colors[i])
		r.SetStrokeColor(s.colors[i])
		r.SetStrokeWidth(1)
		r.MoveTo(x-half, top)
		r.LineTo(x+half, top)
		r.LineTo(x+half, bottom)
		r.LineTo(x-half, bottom)
		r.Close()
		r.FillStroke()
	}
}

// overlaySeries draws annotation shapes on the price pane.
type overlaySeries struct {
	shapes []models.Shape
}

func (s *overlaySeries) GetName() string           { return "shapes" }
func (s *overlaySeries) GetYAxis() chart.YAxisType { return chart.YAxisPrimary }
func (s *overlaySeries) GetStyle() chart.Style     { return chart.Style{StrokeWidth: 1} }
func (s *overlaySeries) Validate() error           { return nil }

func (s *overlaySeries) Render(r chart.Renderer, box chart.Box, xrange, yrange chart.Range, _ chart.Style) {
	for _, sh := range s.shapes {
		if len(sh.Anchors) == 0 {
			continue
		}
		r.SetStrokeColor(colorOf(sh.Style.Color, chart.ColorBlack))
		r.SetStrokeWidth(math.Max(sh.Style.Width, 1))
		if sh.Style.Dashed {
			r.SetStrokeDashArray([]float64{4, 4})
		} else {
			r.SetStrokeDashArray(nil)
		}

		switch sh.Primitive {
		case models.PrimitiveSegment:
			if len(sh.Anchors) < 2 {
				continue
			}
			a, b := sh.Anchors[0], sh.Anchors[1]
			r.MoveTo(box.Left+xrange.Translate(a.Logical), box.Bottom-yrange.Translate(a.Price))
			r.LineTo(box.Left+xrange.Translate(b.Logical), box.Bottom-yrange.Translate(b.Price))
			r.Stroke()
		default:
			y := box.Bottom - yrange.Translate(sh.Anchors[0].Price)
			r.MoveTo(box.Left, y)
			r.LineTo(box.Right, y)
			r.Stroke()
			if sh.Style.Label != "" {
				r.SetFontColor(colorOf(sh.Style.Color, chart.ColorBlack))
				r.SetFontSize(8)
				r.Text(sh.Style.Label, box.Left+4, y-2)
			}
		}
	}
	r.SetStrokeDashArray(nil)
}

func halfBarWidth(box chart.Box, xrange chart.Range) int {
	span := xrange.GetDelta()
	if span <= 0 {
		return 2
	}
	w := float64(box.Width()) / (span + 1) * 0.35
	return int(math.Max(1, w))
}

// colorOf parses "#RRGGBB"; empty input yields fallback.
func colorOf(hex string, fallback drawing.Color) drawing.Color {
	if hex == "" {
		return fallback
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}
	return drawing.ColorFromHex(hex)
}
