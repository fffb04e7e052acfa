// Package drawing implements the pointer-driven annotation tool: a finite state
// machine that turns gestures into shape groups, with live preview and undo.
package drawing

import (
	"fmt"

	"FinChart/internal/domain/models"
)

// Phase is the state of the gesture machine.
type Phase int

const (
	// Idle: no tool is active, pointer input is ignored.
	Idle Phase = iota
	// ToolSelected: a tool is armed and waits for pointer-down.
	ToolSelected
	// Dragging: a two-point gesture is in progress.
	Dragging
)

func (p Phase) String() string {
	switch p {
	case ToolSelected:
		return "tool_selected"
	case Dragging:
		return "dragging"
	default:
		return "idle"
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*p = Idle
	case "tool_selected":
		*p = ToolSelected
	case "dragging":
		*p = Dragging
	default:
		return fmt.Errorf("drawing: unknown phase %q", b)
	}
	return nil
}

// State is a snapshot of the machine. Tool is empty in Idle; Start is set only
// while Dragging.
type State struct {
	Phase Phase            `json:"phase"`
	Tool  models.ShapeKind `json:"tool,omitempty"`
	Start *models.Anchor   `json:"start,omitempty"`
}

// Mapper converts pointer pixels into chart space.
type Mapper interface {
	InPlot(x, y float64) bool
	ClampToPlot(x, y float64) (float64, float64)
	Anchor(x, y float64) models.Anchor
}

// ShapeSink receives finished and preview shapes. Implementations own the
// rendering surface; the controller never touches it directly.
type ShapeSink interface {
	AddShapeGroup(g models.ShapeGroup)
	RemoveShapeGroup(id int64)
	SetPreview(g *models.ShapeGroup)
}

// TrendLineMode selects what a finished trend line gesture commits.
type TrendLineMode string

const (
	// TrendSegment commits a sloped segment between the two anchors.
	TrendSegment TrendLineMode = "segment"
	// TrendMidpoint commits one horizontal line at the mean of the two prices.
	TrendMidpoint TrendLineMode = "midpoint"
)

func (m TrendLineMode) Valid() bool { return m == TrendSegment || m == TrendMidpoint }
