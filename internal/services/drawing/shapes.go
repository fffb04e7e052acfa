package drawing

import (
	"math"

	"github.com/shopspring/decimal"

	"FinChart/internal/domain/models"
)

// FibRatios are the retracement levels, top (0) to bottom (1).
var FibRatios = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1}

var fibColors = []string{"#787B86", "#F23645", "#FF9800", "#4CAF50", "#089981", "#00BCD4", "#2962FF"}

// Styles holds the stroke used for each tool.
type Styles struct {
	TrendLine  models.ShapeStyle `yaml:"trendline"`
	Horizontal models.ShapeStyle `yaml:"horizontal"`
	Rectangle  models.ShapeStyle `yaml:"rectangle"`
	Fibonacci  models.ShapeStyle `yaml:"fibonacci"`
	Preview    models.ShapeStyle `yaml:"preview"`
}

func DefaultStyles() Styles {
	return Styles{
		TrendLine:  models.ShapeStyle{Color: "#2962FF", Width: 2},
		Horizontal: models.ShapeStyle{Color: "#FF9800", Width: 1},
		Rectangle:  models.ShapeStyle{Color: "#9C27B0", Width: 1},
		Fibonacci:  models.ShapeStyle{Width: 1, Dashed: true},
		Preview:    models.ShapeStyle{Color: "#9598A1", Width: 1, Dashed: true},
	}
}

func priceLine(kind models.ShapeKind, a models.Anchor, style models.ShapeStyle) models.Shape {
	return models.Shape{
		Kind:      kind,
		Primitive: models.PrimitivePriceLine,
		Anchors:   []models.Anchor{a},
		Style:     style,
	}
}

// buildShapes returns the sub-shapes a gesture from start to end produces.
func (c *Controller) buildShapes(kind models.ShapeKind, start, end models.Anchor) []models.Shape {
	switch kind {
	case models.ShapeHorizontal:
		return []models.Shape{priceLine(kind, start, c.styles.Horizontal)}
	case models.ShapeTrendLine:
		return c.trendLine(start, end)
	case models.ShapeRectangle:
		return rectangle(start, end, c.styles.Rectangle)
	case models.ShapeFibonacci:
		return fibonacci(start, end, c.styles.Fibonacci)
	}
	return nil
}

func (c *Controller) trendLine(start, end models.Anchor) []models.Shape {
	if c.trendMode == TrendMidpoint {
		mid := start
		mid.Price = (start.Price + end.Price) / 2
		return []models.Shape{priceLine(models.ShapeTrendLine, mid, c.styles.TrendLine)}
	}
	return []models.Shape{{
		Kind:      models.ShapeTrendLine,
		Primitive: models.PrimitiveSegment,
		Anchors:   []models.Anchor{start, end},
		Style:     c.styles.TrendLine,
	}}
}

func rectangle(start, end models.Anchor, style models.ShapeStyle) []models.Shape {
	top, bottom := start, end
	if bottom.Price > top.Price {
		top, bottom = bottom, top
	}
	return []models.Shape{
		priceLine(models.ShapeRectangle, top, style),
		priceLine(models.ShapeRectangle, bottom, style),
	}
}

func fibonacci(start, end models.Anchor, style models.ShapeStyle) []models.Shape {
	high := math.Max(start.Price, end.Price)
	low := math.Min(start.Price, end.Price)
	out := make([]models.Shape, 0, len(FibRatios))
	for i, r := range FibRatios {
		a := start
		a.Price = high - r*(high-low)
		st := style
		if st.Color == "" {
			st.Color = fibColors[i%len(fibColors)]
		}
		st.Label = FibLabel(r, a.Price)
		out = append(out, priceLine(models.ShapeFibonacci, a, st))
	}
	return out
}

// FibLabel renders a level as "0.618 (123.45)".
func FibLabel(ratio, price float64) string {
	return decimal.NewFromFloat(ratio).String() + " (" + decimal.NewFromFloat(price).StringFixed(2) + ")"
}

// RemapGroup returns a copy of g with fn applied to every anchor. g itself is
// left untouched.
func RemapGroup(g models.ShapeGroup, fn func(models.Anchor) models.Anchor) models.ShapeGroup {
	shapes := make([]models.Shape, len(g.Shapes))
	for i, sh := range g.Shapes {
		anchors := make([]models.Anchor, len(sh.Anchors))
		for j, a := range sh.Anchors {
			anchors[j] = fn(a)
		}
		sh.Anchors = anchors
		shapes[i] = sh
	}
	g.Shapes = shapes
	return g
}
