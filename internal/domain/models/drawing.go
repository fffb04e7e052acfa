package models

// ShapeKind is the annotation tool that produced a shape.
type ShapeKind string

const (
	ShapeTrendLine  ShapeKind = "trendline"
	ShapeHorizontal ShapeKind = "horizontal"
	ShapeFibonacci  ShapeKind = "fibonacci"
	ShapeRectangle  ShapeKind = "rectangle"
)

func (k ShapeKind) Valid() bool {
	switch k {
	case ShapeTrendLine, ShapeHorizontal, ShapeFibonacci, ShapeRectangle:
		return true
	}
	return false
}

// PrimitiveKind is what a renderer has to draw for one sub-shape.
type PrimitiveKind string

const (
	// PrimitivePriceLine is a horizontal line spanning the whole plot at Anchors[0].Price.
	PrimitivePriceLine PrimitiveKind = "price_line"
	// PrimitiveSegment is a straight line between Anchors[0] and Anchors[1].
	PrimitiveSegment PrimitiveKind = "segment"
)

// Anchor is a point of a shape in data space, with the pixel it was captured at.
type Anchor struct {
	Time    int64   `json:"time"`
	Logical float64 `json:"logical"`
	Price   float64 `json:"price"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

type ShapeStyle struct {
	Color  string  `json:"color"`
	Width  float64 `json:"width"`
	Dashed bool    `json:"dashed,omitempty"`
	Label  string  `json:"label,omitempty"`
}

// Shape is one drawable primitive of an annotation.
type Shape struct {
	Kind      ShapeKind     `json:"kind"`
	Primitive PrimitiveKind `json:"primitive"`
	Anchors   []Anchor      `json:"anchors"`
	Style     ShapeStyle    `json:"style"`
}

// ShapeGroup is the unit of undo: every finished gesture produces exactly one.
type ShapeGroup struct {
	ID     int64     `json:"id"`
	Kind   ShapeKind `json:"kind"`
	Shapes []Shape   `json:"shapes"`
}
