package drawing

import (
	"FinChart/internal/domain/models"
	applogger "FinChart/pkg/logger"
)

// Controller drives shape creation. It is not safe for concurrent use; pointer
// events for one chart arrive serialized.
type Controller struct {
	mapper    Mapper
	sink      ShapeSink
	logger    *applogger.Logger
	styles    Styles
	trendMode TrendLineMode

	state   State
	preview bool
	undo    []models.ShapeGroup
	nextID  int64
}

type Option func(*Controller)

func WithTrendLineMode(m TrendLineMode) Option {
	return func(c *Controller) {
		if m.Valid() {
			c.trendMode = m
		}
	}
}

func WithStyles(s Styles) Option {
	return func(c *Controller) { c.styles = s }
}

func WithLogger(l *applogger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewController(mapper Mapper, sink ShapeSink, opts ...Option) *Controller {
	c := &Controller{
		mapper:    mapper,
		sink:      sink,
		logger:    applogger.NewNop(),
		styles:    DefaultStyles(),
		trendMode: TrendSegment,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current machine state.
func (c *Controller) State() State {
	st := c.state
	if st.Start != nil {
		a := *st.Start
		st.Start = &a
	}
	return st
}

// Groups returns the committed groups, oldest first.
func (c *Controller) Groups() []models.ShapeGroup {
	out := make([]models.ShapeGroup, len(c.undo))
	copy(out, c.undo)
	return out
}

// SelectTool arms kind. Switching tools mid-gesture aborts the gesture.
func (c *Controller) SelectTool(kind models.ShapeKind) bool {
	if !kind.Valid() {
		return false
	}
	c.clearPreview()
	c.state = State{Phase: ToolSelected, Tool: kind}
	return true
}

// Deactivate returns to Idle, discarding any gesture in progress.
func (c *Controller) Deactivate() {
	c.clearPreview()
	c.state = State{Phase: Idle}
}

// PointerDown starts a gesture. Horizontal lines commit right away; the other
// tools begin dragging. Input outside the plot or without a tool is ignored.
func (c *Controller) PointerDown(x, y float64) bool {
	if c.state.Phase != ToolSelected || !c.mapper.InPlot(x, y) {
		return false
	}
	start := c.mapper.Anchor(x, y)
	if c.state.Tool == models.ShapeHorizontal {
		c.commit(c.state.Tool, start, start)
		return true
	}
	c.state = State{Phase: Dragging, Tool: c.state.Tool, Start: &start}
	return true
}

// PointerMove replaces the preview while dragging.
func (c *Controller) PointerMove(x, y float64) bool {
	if c.state.Phase != Dragging {
		return false
	}
	end := c.mapper.Anchor(c.mapper.ClampToPlot(x, y))
	g := models.ShapeGroup{
		Kind:   c.state.Tool,
		Shapes: c.buildShapes(c.state.Tool, *c.state.Start, end),
	}
	for i := range g.Shapes {
		label := g.Shapes[i].Style.Label
		g.Shapes[i].Style = c.styles.Preview
		g.Shapes[i].Style.Label = label
	}
	c.sink.SetPreview(&g)
	c.preview = true
	return true
}

// PointerUp finalizes the gesture as one undo unit and re-arms the tool.
func (c *Controller) PointerUp(x, y float64) bool {
	if c.state.Phase != Dragging {
		return false
	}
	end := c.mapper.Anchor(c.mapper.ClampToPlot(x, y))
	c.clearPreview()
	c.commit(c.state.Tool, *c.state.Start, end)
	return true
}

// Undo removes the most recent group. It is a no-op on an empty stack.
func (c *Controller) Undo() bool {
	if len(c.undo) == 0 {
		return false
	}
	g := c.undo[len(c.undo)-1]
	c.undo = c.undo[:len(c.undo)-1]
	c.sink.RemoveShapeGroup(g.ID)
	c.logger.Debug("drawing: undo", applogger.Int64("group", g.ID), applogger.Int("shapes", len(g.Shapes)))
	return true
}

// ClearAll removes every committed group, newest first.
func (c *Controller) ClearAll() int {
	n := len(c.undo)
	for c.Undo() {
	}
	return n
}

// RemapAnchors rewrites the anchors of every committed group and of a drag in
// progress through fn. The sink is not notified.
func (c *Controller) RemapAnchors(fn func(models.Anchor) models.Anchor) {
	for i, g := range c.undo {
		c.undo[i] = RemapGroup(g, fn)
	}
	if c.state.Start != nil {
		a := fn(*c.state.Start)
		c.state.Start = &a
	}
}

// Replay re-sends committed groups to the sink, e.g. after the surface was
// recreated.
func (c *Controller) Replay() {
	for _, g := range c.undo {
		c.sink.AddShapeGroup(g)
	}
}

func (c *Controller) commit(kind models.ShapeKind, start, end models.Anchor) {
	c.nextID++
	g := models.ShapeGroup{ID: c.nextID, Kind: kind, Shapes: c.buildShapes(kind, start, end)}
	c.undo = append(c.undo, g)
	c.sink.AddShapeGroup(g)
	c.state = State{Phase: ToolSelected, Tool: kind}
	c.logger.Debug("drawing: committed",
		applogger.String("kind", string(kind)),
		applogger.Int64("group", g.ID),
		applogger.Int("shapes", len(g.Shapes)),
	)
}

func (c *Controller) clearPreview() {
	if c.preview {
		c.sink.SetPreview(nil)
		c.preview = false
	}
}
