package models

// LogicalRange is the visible window in candle-index units.
type LogicalRange struct {
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

// Width is the span of the window in indices.
func (r LogicalRange) Width() float64 { return r.To - r.From }

type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type Crosshair struct {
	Time    int64   `json:"time"`
	Logical float64 `json:"logical"`
	Price   float64 `json:"price"`
}

// ViewState is session scoped and never persisted.
type ViewState struct {
	VisibleRangeLogical LogicalRange `json:"visible_range_logical"`
	VisiblePriceRange   PriceRange   `json:"visible_price_range"`
	Crosshair           *Crosshair   `json:"crosshair"`
}

type ZoomDirection string

const (
	ZoomIn  ZoomDirection = "in"
	ZoomOut ZoomDirection = "out"
)
