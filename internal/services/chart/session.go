package chart

import (
	"errors"
	"fmt"
	"io"

	"FinChart/internal/domain/models"
	"FinChart/internal/services/drawing"
	"FinChart/internal/services/indicators"
	"FinChart/internal/services/viewport"
	applogger "FinChart/pkg/logger"
)

// Metrics is the slice of the metrics recorder a session reports to.
type Metrics interface {
	IgnoredOperation(op string)
}

type nopMetrics struct{}

func (nopMetrics) IgnoredOperation(string) {}

// Config is the per-session chart setup.
type Config struct {
	Indicators indicators.Config
	Viewport   viewport.Config
	TrendLine  drawing.TrendLineMode
	Styles     *drawing.Styles
}

// Toggles is which optional series are shown.
type Toggles struct {
	MA         []bool           `json:"ma"`
	Volume     bool             `json:"volume"`
	Indicators map[string]bool  `json:"indicators"`
	ChartType  models.ChartType `json:"chart_type"`
	Theme      models.Theme     `json:"theme"`
}

// Session is one live chart. It owns the surface and every handle attached to
// it; the drawing controller and the toggles reach the surface only through
// Session methods. A Session is not safe for concurrent use.
type Session struct {
	factory SurfaceFactory
	logger  *applogger.Logger
	metrics Metrics

	engine  *indicators.Engine
	view    *viewport.Transform
	drawing *drawing.Controller

	theme     models.Theme
	chartType models.ChartType
	maOn      []bool
	volumeOn  bool
	rsiOn     bool
	macdOn    bool

	data models.Aggregated
	set  models.IndicatorSet

	groups   []models.ShapeGroup
	preview  *models.ShapeGroup
	overlays map[int64][]string

	// generation changes on every Create and Dispose; callbacks compare it
	// with the value captured when they were handed out.
	generation uint64
	surface    Surface
	main       MainSeries
	volume     SeriesHandle
	ma         []SeriesHandle
	rsi        SeriesHandle
	macd       []SeriesHandle
	previewIDs []string
}

type Option func(*Session)

func WithLogger(l *applogger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *Session) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithTheme(t models.Theme) Option {
	return func(s *Session) { s.theme = t }
}

func WithChartType(t models.ChartType) Option {
	return func(s *Session) {
		if t.Valid() {
			s.chartType = t
		}
	}
}

func NewSession(factory SurfaceFactory, cfg Config, opts ...Option) *Session {
	s := &Session{
		factory:   factory,
		logger:    applogger.NewNop(),
		metrics:   nopMetrics{},
		engine:    indicators.NewEngine(cfg.Indicators),
		view:      viewport.New(cfg.Viewport, 0, 0),
		theme:     models.ThemeLight,
		chartType: models.ChartCandle,
		volumeOn:  true,
		overlays:  make(map[int64][]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	periods := s.engine.Config().Periods()
	s.maOn = make([]bool, len(periods))
	s.ma = make([]SeriesHandle, len(periods))

	dopts := []drawing.Option{drawing.WithTrendLineMode(cfg.TrendLine), drawing.WithLogger(s.logger)}
	if cfg.Styles != nil {
		dopts = append(dopts, drawing.WithStyles(*cfg.Styles))
	}
	s.drawing = drawing.NewController(s.view, s, dopts...)
	return s
}

func (s *Session) View() *viewport.Transform       { return s.view }
func (s *Session) Drawing() *drawing.Controller    { return s.drawing }
func (s *Session) Generation() uint64              { return s.generation }
func (s *Session) Alive() bool                     { return s.surface != nil }
func (s *Session) Data() models.Aggregated         { return s.data }
func (s *Session) Indicators() models.IndicatorSet { return s.set }
func (s *Session) Surface() Surface                { return s.surface }

// Create builds a new surface of the given size and attaches every enabled
// series and committed shape. An existing surface is disposed first.
func (s *Session) Create(width, height int) error {
	if s.surface != nil {
		s.Dispose()
	}
	surface, err := s.factory(width, height, PaletteFor(s.theme))
	if err != nil {
		return fmt.Errorf("create surface: %w", err)
	}
	s.generation++
	s.surface = surface
	s.view.SetSize(width, height)
	s.view.FitToData()

	s.attachAll()
	for _, g := range s.groups {
		s.drawGroup(g)
	}
	s.pushView("create")
	s.logger.Debug("chart: surface created",
		applogger.Int("width", width),
		applogger.Int("height", height),
		applogger.Uint64("generation", s.generation),
	)
	return nil
}

// Resize updates the pixel size and re-fits the visible range.
func (s *Session) Resize(width, height int) {
	s.view.SetSize(width, height)
	s.view.FitToData()
	if !s.live("resize") {
		return
	}
	if s.check("resize", s.surface.Resize(width, height)) {
		s.pushView("resize")
	}
}

// ResizeHandler returns a callback bound to the current surface. Once the
// surface is replaced or disposed the callback does nothing.
func (s *Session) ResizeHandler() func(width, height int) {
	gen := s.generation
	return func(width, height int) {
		if gen != s.generation || s.surface == nil {
			s.ignored("resize")
			return
		}
		s.Resize(width, height)
	}
}

// CrosshairHandler returns a crosshair callback with the same guard as
// ResizeHandler. It reports whether the crosshair is shown.
func (s *Session) CrosshairHandler() func(x, y float64) bool {
	gen := s.generation
	return func(x, y float64) bool {
		if gen != s.generation || s.surface == nil {
			s.ignored("crosshair")
			return false
		}
		return s.SetCrosshair(x, y)
	}
}

// Dispose releases every handle and the surface. It is idempotent and never
// fails: already-disposed errors are swallowed.
func (s *Session) Dispose() {
	if s.surface == nil {
		return
	}
	s.detachAll()
	for id := range s.overlays {
		s.eraseGroup(id)
	}
	s.clearPreviewOverlays()
	s.check("dispose", s.surface.Dispose())
	s.surface = nil
	s.generation++
	s.logger.Debug("chart: surface disposed", applogger.Uint64("generation", s.generation))
}

// SetData replaces the series data. Indicators are recomputed from scratch
// and all data series are torn down and rebuilt before returning. Shapes stay
// on the bar times they were drawn at.
func (s *Session) SetData(data models.Aggregated) {
	old := s.view.Candles()
	s.data = data
	s.set = s.engine.Compute(data.Closes)
	s.view.SetData(data.Candles)
	s.rebaseShapes(old)
	if !s.live("set_data") {
		return
	}
	s.detachAll()
	s.attachAll()
	for _, g := range s.groups {
		s.drawGroup(g)
	}
	s.pushView("set_data")
}

// rebaseShapes moves every anchor to the logical position of its time in the
// new data, keeping its offset from that time's bar in the old data.
func (s *Session) rebaseShapes(old []models.Candle) {
	if len(old) < 2 || len(s.view.Candles()) < 2 {
		return
	}
	fn := func(a models.Anchor) models.Anchor {
		if a.Time == 0 {
			return a
		}
		off := a.Logical - viewport.LogicalOf(old, a.Time)
		a.Logical = s.view.LogicalOf(a.Time) + off
		return a
	}
	for i, g := range s.groups {
		s.groups[i] = drawing.RemapGroup(g, fn)
	}
	s.drawing.RemapAnchors(fn)
}

// SetChartType swaps the main series variant; nothing else is touched.
func (s *Session) SetChartType(t models.ChartType) error {
	if !t.Valid() {
		return fmt.Errorf("chart: unknown chart type %q", t)
	}
	if t == s.chartType {
		return nil
	}
	s.chartType = t
	if !s.live("chart_type") {
		return nil
	}
	if s.main != nil {
		s.check("chart_type", s.surface.RemoveSeries(s.main.Handle()))
		s.main = nil
	}
	s.attachMain()
	return nil
}

// SetTheme changes colors by rebuilding the surface at its current size.
func (s *Session) SetTheme(t models.Theme) error {
	if t != models.ThemeLight && t != models.ThemeDark {
		return fmt.Errorf("chart: unknown theme %q", t)
	}
	if t == s.theme {
		return nil
	}
	s.theme = t
	if s.surface == nil {
		return nil
	}
	w, h := s.view.Size()
	return s.Create(w, h)
}

// SetMAVisible toggles the i-th moving average.
func (s *Session) SetMAVisible(i int, on bool) error {
	if i < 0 || i >= len(s.maOn) {
		return fmt.Errorf("chart: moving average %d out of range [0,%d)", i, len(s.maOn))
	}
	if s.maOn[i] == on {
		return nil
	}
	s.maOn[i] = on
	if !s.live("ma") {
		return nil
	}
	if on {
		s.attachMA(i)
	} else {
		s.detach("ma", &s.ma[i])
	}
	return nil
}

// SetIndicator adds or removes the RSI or MACD pane.
func (s *Session) SetIndicator(kind models.IndicatorKind, on bool) error {
	switch kind {
	case models.IndicatorRSI:
		if s.rsiOn == on {
			return nil
		}
		s.rsiOn = on
		if !s.live("rsi") {
			return nil
		}
		if on {
			s.attachRSI()
		} else {
			s.detach("rsi", &s.rsi)
		}
	case models.IndicatorMACD:
		if s.macdOn == on {
			return nil
		}
		s.macdOn = on
		if !s.live("macd") {
			return nil
		}
		if on {
			s.attachMACD()
		} else {
			s.detachMACD()
		}
	default:
		return fmt.Errorf("chart: unknown indicator %q", kind)
	}
	return nil
}

func (s *Session) SetVolumeVisible(on bool) {
	if s.volumeOn == on {
		return
	}
	s.volumeOn = on
	if !s.live("volume") {
		return
	}
	if on {
		s.attachVolume()
	} else {
		s.detach("volume", &s.volume)
	}
}

// Zoom, Pan, Fit and SetCrosshair change the view and push it to the surface.

func (s *Session) Zoom(dir models.ZoomDirection, focal float64) bool {
	if !s.view.Zoom(dir, focal) {
		return false
	}
	s.pushView("zoom")
	return true
}

func (s *Session) Pan(delta float64) bool {
	if !s.view.Pan(delta) {
		return false
	}
	s.pushView("pan")
	return true
}

func (s *Session) Fit() {
	s.view.FitToData()
	s.pushView("fit")
}

func (s *Session) SetCrosshair(x, y float64) bool {
	shown := s.view.SetCrosshair(x, y)
	s.pushView("crosshair")
	return shown
}

func (s *Session) ClearCrosshair() {
	s.view.ClearCrosshair()
	s.pushView("crosshair")
}

// Render draws pane through the current surface.
func (s *Session) Render(p Pane, w io.Writer) error {
	if s.surface == nil {
		return ErrDisposed
	}
	r, ok := s.surface.(PaneRenderer)
	if !ok {
		return ErrNotRenderable
	}
	return r.Render(p, w)
}

// Toggles reports the current series toggles.
func (s *Session) Toggles() Toggles {
	return Toggles{
		MA:     append([]bool(nil), s.maOn...),
		Volume: s.volumeOn,
		Indicators: map[string]bool{
			string(models.IndicatorRSI):  s.rsiOn,
			string(models.IndicatorMACD): s.macdOn,
		},
		ChartType: s.chartType,
		Theme:     s.theme,
	}
}

// Groups returns the committed shape groups, oldest first.
func (s *Session) Groups() []models.ShapeGroup {
	return append([]models.ShapeGroup(nil), s.groups...)
}

func (s *Session) Preview() *models.ShapeGroup {
	if s.preview == nil {
		return nil
	}
	p := *s.preview
	return &p
}

// AddShapeGroup implements drawing.ShapeSink.
func (s *Session) AddShapeGroup(g models.ShapeGroup) {
	s.groups = append(s.groups, g)
	if s.live("add_shape") {
		s.drawGroup(g)
	}
}

// RemoveShapeGroup implements drawing.ShapeSink.
func (s *Session) RemoveShapeGroup(id int64) {
	for i, g := range s.groups {
		if g.ID == id {
			s.groups = append(s.groups[:i], s.groups[i+1:]...)
			break
		}
	}
	s.eraseGroup(id)
}

// SetPreview implements drawing.ShapeSink. The previous preview is always
// removed first.
func (s *Session) SetPreview(g *models.ShapeGroup) {
	s.clearPreviewOverlays()
	s.preview = g
	if g == nil || !s.live("preview") {
		return
	}
	for i, sh := range g.Shapes {
		id := fmt.Sprintf("preview/%d", i)
		if s.check("preview", s.surface.AddOverlay(id, sh)) {
			s.previewIDs = append(s.previewIDs, id)
		}
	}
}

func (s *Session) drawGroup(g models.ShapeGroup) {
	ids := make([]string, 0, len(g.Shapes))
	for i, sh := range g.Shapes {
		id := fmt.Sprintf("g%d/%d", g.ID, i)
		if s.check("add_shape", s.surface.AddOverlay(id, sh)) {
			ids = append(ids, id)
		}
	}
	s.overlays[g.ID] = ids
}

func (s *Session) eraseGroup(id int64) {
	ids, ok := s.overlays[id]
	if !ok {
		return
	}
	delete(s.overlays, id)
	if s.surface == nil {
		return
	}
	for _, oid := range ids {
		s.check("remove_shape", s.surface.RemoveOverlay(oid))
	}
}

func (s *Session) clearPreviewOverlays() {
	if s.surface != nil {
		for _, id := range s.previewIDs {
			s.check("preview", s.surface.RemoveOverlay(id))
		}
	}
	s.previewIDs = nil
}

func (s *Session) attachAll() {
	s.attachMain()
	if s.volumeOn {
		s.attachVolume()
	}
	for i, on := range s.maOn {
		if on {
			s.attachMA(i)
		}
	}
	if s.rsiOn {
		s.attachRSI()
	}
	if s.macdOn {
		s.attachMACD()
	}
}

func (s *Session) detachAll() {
	if s.main != nil {
		s.check("detach", s.surface.RemoveSeries(s.main.Handle()))
		s.main = nil
	}
	s.detach("detach", &s.volume)
	for i := range s.ma {
		s.detach("detach", &s.ma[i])
	}
	s.detach("detach", &s.rsi)
	s.detachMACD()
}

func (s *Session) attachMain() {
	ms, err := buildMainSeries(s.surface, s.chartType, PaletteFor(s.theme), s.data)
	if s.check("main_series", err) {
		s.main = ms
	}
}

func (s *Session) attachVolume() {
	p := PaletteFor(s.theme)
	h := s.addSeries("volume", SeriesOptions{Name: "volume", Kind: KindHistogram, Pane: PaneVolume, Color: p.VolumeUp, DownColor: p.VolumeDown})
	if h != nil && s.check("volume", h.SetVolumes(s.data.Volumes)) {
		s.volume = h
	}
}

func (s *Session) attachMA(i int) {
	if i >= len(s.set.MA) {
		return
	}
	series := s.set.MA[i]
	h := s.addSeries("ma", SeriesOptions{Name: series.Name, Kind: KindLine, Pane: PaneMain, Color: PaletteFor(s.theme).maColor(i), Width: 1})
	if h != nil && s.check("ma", h.SetPoints(series.Points)) {
		s.ma[i] = h
	}
}

func (s *Session) attachRSI() {
	h := s.addSeries("rsi", SeriesOptions{Name: s.set.RSI.Name, Kind: KindLine, Pane: PaneRSI, Color: PaletteFor(s.theme).RSI, Width: 1})
	if h != nil && s.check("rsi", h.SetPoints(s.set.RSI.Points)) {
		s.rsi = h
	}
}

func (s *Session) attachMACD() {
	p := PaletteFor(s.theme)
	m := s.set.MACD
	specs := []struct {
		opts   SeriesOptions
		points []models.Point
	}{
		{SeriesOptions{Name: m.Histogram.Name, Kind: KindHistogram, Pane: PaneMACD, Color: p.Up, DownColor: p.Down}, m.Histogram.Points},
		{SeriesOptions{Name: m.Line.Name, Kind: KindLine, Pane: PaneMACD, Color: p.MACD, Width: 1}, m.Line.Points},
		{SeriesOptions{Name: m.Signal.Name, Kind: KindLine, Pane: PaneMACD, Color: p.Signal, Width: 1}, m.Signal.Points},
	}
	for _, sp := range specs {
		h := s.addSeries("macd", sp.opts)
		if h == nil {
			continue
		}
		if s.check("macd", h.SetPoints(sp.points)) {
			s.macd = append(s.macd, h)
		}
	}
}

func (s *Session) detachMACD() {
	for i := range s.macd {
		s.detach("macd", &s.macd[i])
	}
	s.macd = nil
}

func (s *Session) addSeries(op string, opts SeriesOptions) SeriesHandle {
	h, err := s.surface.AddSeries(opts)
	if !s.check(op, err) {
		return nil
	}
	return h
}

func (s *Session) detach(op string, h *SeriesHandle) {
	if *h == nil {
		return
	}
	if s.surface != nil {
		s.check(op, s.surface.RemoveSeries(*h))
	}
	*h = nil
}

func (s *Session) pushView(op string) {
	if s.surface == nil {
		return
	}
	s.check(op, s.surface.SetView(s.view.State()))
}

// live reports whether a surface is attached. Calls after a surface has been
// disposed are recorded as ignored; before the first Create only the session
// state changes.
func (s *Session) live(op string) bool {
	if s.surface != nil {
		return true
	}
	if s.generation > 0 {
		s.ignored(op)
	}
	return false
}

// check absorbs surface errors. Disposed-surface errors are expected during
// teardown races and only counted; anything else is logged as a warning.
func (s *Session) check(op string, err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, ErrDisposed) {
		s.ignored(op)
		return false
	}
	s.logger.Warn("chart: surface operation failed", applogger.String("op", op), applogger.Error(err))
	return false
}

func (s *Session) ignored(op string) {
	s.metrics.IgnoredOperation(op)
	s.logger.Debug("chart: ignored operation on disposed surface", applogger.String("op", op))
}

var (
	_ drawing.ShapeSink = (*Session)(nil)
	_ drawing.Mapper    = (*viewport.Transform)(nil)
)
