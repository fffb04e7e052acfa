package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"FinChart/internal/domain/models"
	domrepo "FinChart/internal/domain/repository"
	"FinChart/internal/services/chart"
	"FinChart/internal/services/drawing"
	"FinChart/internal/services/series"
	applogger "FinChart/pkg/logger"
)

var (
	ErrSessionNotFound = errors.New("chart session not found")
	ErrTooManySessions = errors.New("too many chart sessions")
	ErrInvalidArgument = errors.New("invalid argument")
)

// PointerPhase is the pointer gesture an input event belongs to.
type PointerPhase string

const (
	PointerDown PointerPhase = "down"
	PointerMove PointerPhase = "move"
	PointerUp   PointerPhase = "up"
)

type OpenParams struct {
	Symbol      string
	Granularity models.Granularity
	ChartType   models.ChartType
	Theme       models.Theme
	Width       int
	Height      int
}

// SeriesPayload is the data a client needs to draw the chart itself.
type SeriesPayload struct {
	models.Aggregated
	Indicators models.IndicatorSet `json:"indicators"`
}

// Snapshot is the externally visible state of one session.
type Snapshot struct {
	ID          string              `json:"id"`
	Symbol      string              `json:"symbol"`
	Granularity models.Granularity  `json:"granularity"`
	Generation  uint64              `json:"generation"`
	Width       int                 `json:"width"`
	Height      int                 `json:"height"`
	View        models.ViewState    `json:"view"`
	Toggles     chart.Toggles       `json:"toggles"`
	Tool        drawing.State       `json:"tool"`
	Groups      []models.ShapeGroup `json:"groups"`
	Preview     *models.ShapeGroup  `json:"preview,omitempty"`
	Series      *SeriesPayload      `json:"series,omitempty"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

type entry struct {
	mu       sync.Mutex
	id       string
	symbol   string
	g        models.Granularity
	session  *chart.Session
	lastUsed time.Time
	closed   bool
	subs     map[int]chan Snapshot
	nextSub  int
}

type SessionsOption func(*ChartSessions)

func WithSessionsLogger(l *applogger.Logger) SessionsOption {
	return func(c *ChartSessions) {
		if l != nil {
			c.l = l
		}
	}
}

func WithSessionsMetrics(m domrepo.Metrics) SessionsOption {
	return func(c *ChartSessions) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithSeriesCache(sc domrepo.SeriesCache) SessionsOption {
	return func(c *ChartSessions) {
		if sc != nil {
			c.cache = sc
		}
	}
}

func WithMaxSessions(n int) SessionsOption {
	return func(c *ChartSessions) { c.max = n }
}

// WithDefaultSize is the surface size used when Open gets none.
func WithDefaultSize(width, height int) SessionsOption {
	return func(c *ChartSessions) { c.width, c.height = width, height }
}

func WithSessionsClock(now func() time.Time) SessionsOption {
	return func(c *ChartSessions) { c.now = now }
}

// WithOnClose registers fn to run after a session is closed for any reason.
func WithOnClose(fn func(id string)) SessionsOption {
	return func(c *ChartSessions) {
		if fn != nil {
			c.onClose = append(c.onClose, fn)
		}
	}
}

// ChartSessions is the registry of live chart sessions. Every engine call on
// a session runs under that session's mutex; tick loading happens before the
// lock is taken.
type ChartSessions struct {
	mu      sync.RWMutex
	entries map[string]*entry

	source  domrepo.TickSource
	cache   domrepo.SeriesCache
	agg     *series.Aggregator
	factory chart.SurfaceFactory
	cfg     chart.Config

	width, height int
	max           int
	metrics       domrepo.Metrics
	l             *applogger.Logger
	now           func() time.Time
	onClose       []func(id string)
}

func NewChartSessions(source domrepo.TickSource, agg *series.Aggregator, factory chart.SurfaceFactory, cfg chart.Config, opts ...SessionsOption) *ChartSessions {
	c := &ChartSessions{
		entries: make(map[string]*entry),
		source:  source,
		cache:   noCache{},
		agg:     agg,
		factory: factory,
		cfg:     cfg,
		width:   800,
		height:  480,
		metrics: domrepo.NopMetrics{},
		l:       applogger.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open loads the series for p, creates a session around it and registers it.
func (c *ChartSessions) Open(ctx context.Context, p OpenParams) (Snapshot, error) {
	symbol := strings.ToUpper(strings.TrimSpace(p.Symbol))
	if symbol == "" {
		return Snapshot{}, fmt.Errorf("%w: symbol required", ErrInvalidArgument)
	}
	if p.ChartType != "" && !p.ChartType.Valid() {
		return Snapshot{}, fmt.Errorf("%w: chart type %q", ErrInvalidArgument, p.ChartType)
	}
	// Checked again at insert time; this only avoids loading for nothing.
	if c.max > 0 && c.Len() >= c.max {
		return Snapshot{}, ErrTooManySessions
	}
	p.Granularity = domrepo.NormalizeGranularity(string(p.Granularity.Range), p.Granularity.Minutes)
	w, h := p.Width, p.Height
	if w <= 0 || h <= 0 {
		w, h = c.width, c.height
	}

	data, err := c.load(ctx, symbol, p.Granularity)
	if err != nil {
		return Snapshot{}, err
	}

	id := uuid.NewString()
	log := c.l.With(applogger.String("session", id), applogger.String("symbol", symbol))
	opts := []chart.Option{chart.WithLogger(log), chart.WithMetrics(c.metrics)}
	if p.Theme != "" {
		opts = append(opts, chart.WithTheme(p.Theme))
	}
	if p.ChartType != "" {
		opts = append(opts, chart.WithChartType(p.ChartType))
	}
	s := chart.NewSession(c.factory, c.cfg, opts...)
	if err := s.Create(w, h); err != nil {
		return Snapshot{}, fmt.Errorf("create chart: %w", err)
	}
	s.SetData(data)

	e := &entry{
		id:       id,
		symbol:   symbol,
		g:        p.Granularity,
		session:  s,
		lastUsed: c.now(),
		subs:     make(map[int]chan Snapshot),
	}
	c.mu.Lock()
	if c.max > 0 && len(c.entries) >= c.max {
		c.mu.Unlock()
		s.Dispose()
		return Snapshot{}, ErrTooManySessions
	}
	c.entries[id] = e
	c.mu.Unlock()

	c.metrics.SessionOpened()
	log.Info("chart session opened", applogger.String("granularity", p.Granularity.Key()), applogger.Int("candles", len(data.Candles)))

	e.mu.Lock()
	defer e.mu.Unlock()
	return c.snapshot(e, true), nil
}

// Get returns the session state including the series payload.
func (c *ChartSessions) Get(id string) (Snapshot, error) {
	e, err := c.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return Snapshot{}, ErrSessionNotFound
	}
	e.lastUsed = c.now()
	return c.snapshot(e, true), nil
}

// Close disposes the session and drops it from the registry.
func (c *ChartSessions) Close(id, reason string) error {
	c.mu.Lock()
	e, ok := c.entries[id]
	delete(c.entries, id)
	c.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	e.session.Dispose()
	e.closed = true
	for k, ch := range e.subs {
		close(ch)
		delete(e.subs, k)
	}
	e.mu.Unlock()

	for _, fn := range c.onClose {
		fn(id)
	}
	c.metrics.SessionClosed(reason)
	c.l.Info("chart session closed", applogger.String("session", id), applogger.String("reason", reason))
	return nil
}

// CloseAll disposes every session; used on shutdown.
func (c *ChartSessions) CloseAll(reason string) {
	for _, id := range c.IDs() {
		_ = c.Close(id, reason)
	}
}

func (c *ChartSessions) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// IDs lists the registered sessions in a stable order.
func (c *ChartSessions) IDs() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (c *ChartSessions) Resize(id string, width, height int) (Snapshot, error) {
	if width <= 0 || height <= 0 {
		return Snapshot{}, fmt.Errorf("%w: size %dx%d", ErrInvalidArgument, width, height)
	}
	return c.update(id, func(e *entry) error {
		e.session.Resize(width, height)
		return nil
	})
}

// SetGranularity reloads the series at g and swaps it into the session.
func (c *ChartSessions) SetGranularity(ctx context.Context, id string, g models.Granularity) (Snapshot, error) {
	e, err := c.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	g = domrepo.NormalizeGranularity(string(g.Range), g.Minutes)
	data, err := c.load(ctx, e.symbol, g)
	if err != nil {
		return Snapshot{}, err
	}
	return c.update(id, func(e *entry) error {
		e.g = g
		e.session.SetData(data)
		return nil
	})
}

func (c *ChartSessions) SetChartType(id string, t models.ChartType) (Snapshot, error) {
	return c.update(id, func(e *entry) error {
		if err := e.session.SetChartType(t); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return nil
	})
}

func (c *ChartSessions) SetTheme(id string, t models.Theme) (Snapshot, error) {
	return c.update(id, func(e *entry) error {
		if t != models.ThemeLight && t != models.ThemeDark {
			return fmt.Errorf("%w: theme %q", ErrInvalidArgument, t)
		}
		return e.session.SetTheme(t)
	})
}

func (c *ChartSessions) SetMA(id string, index int, on bool) (Snapshot, error) {
	return c.update(id, func(e *entry) error {
		if err := e.session.SetMAVisible(index, on); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return nil
	})
}

func (c *ChartSessions) SetIndicator(id string, kind models.IndicatorKind, on bool) (Snapshot, error) {
	return c.update(id, func(e *entry) error {
		if err := e.session.SetIndicator(kind, on); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return nil
	})
}

func (c *ChartSessions) SetVolume(id string, on bool) (Snapshot, error) {
	return c.update(id, func(e *entry) error {
		e.session.SetVolumeVisible(on)
		return nil
	})
}

func (c *ChartSessions) Zoom(id string, dir models.ZoomDirection, focal float64) (Snapshot, error) {
	if dir != models.ZoomIn && dir != models.ZoomOut {
		return Snapshot{}, fmt.Errorf("%w: zoom direction %q", ErrInvalidArgument, dir)
	}
	return c.update(id, func(e *entry) error {
		e.session.Zoom(dir, focal)
		return nil
	})
}

func (c *ChartSessions) Pan(id string, delta float64) (Snapshot, error) {
	return c.update(id, func(e *entry) error {
		e.session.Pan(delta)
		return nil
	})
}

func (c *ChartSessions) Fit(id string) (Snapshot, error) {
	return c.update(id, func(e *entry) error {
		e.session.Fit()
		return nil
	})
}

// Crosshair moves the crosshair to (x, y), or hides it when clear is set.
func (c *ChartSessions) Crosshair(id string, x, y float64, clear bool) (Snapshot, error) {
	return c.update(id, func(e *entry) error {
		if clear {
			e.session.ClearCrosshair()
			return nil
		}
		e.session.SetCrosshair(x, y)
		return nil
	})
}

// SelectTool arms a drawing tool; an empty kind deactivates drawing.
func (c *ChartSessions) SelectTool(id string, kind models.ShapeKind) (Snapshot, error) {
	if kind != "" && !kind.Valid() {
		return Snapshot{}, fmt.Errorf("%w: tool %q", ErrInvalidArgument, kind)
	}
	return c.update(id, func(e *entry) error {
		if kind == "" {
			e.session.Drawing().Deactivate()
			return nil
		}
		e.session.Drawing().SelectTool(kind)
		return nil
	})
}

func (c *ChartSessions) Pointer(id string, phase PointerPhase, x, y float64) (Snapshot, error) {
	return c.update(id, func(e *entry) error {
		d := e.session.Drawing()
		switch phase {
		case PointerDown:
			d.PointerDown(x, y)
		case PointerMove:
			d.PointerMove(x, y)
		case PointerUp:
			d.PointerUp(x, y)
		default:
			return fmt.Errorf("%w: pointer phase %q", ErrInvalidArgument, phase)
		}
		return nil
	})
}

func (c *ChartSessions) Undo(id string) (Snapshot, error) {
	return c.update(id, func(e *entry) error {
		e.session.Drawing().Undo()
		return nil
	})
}

func (c *ChartSessions) ClearDrawings(id string) (Snapshot, error) {
	return c.update(id, func(e *entry) error {
		e.session.Drawing().ClearAll()
		return nil
	})
}

// Render writes one pane of the session as PNG.
func (c *ChartSessions) Render(id string, pane chart.Pane, w io.Writer) error {
	if !pane.Valid() {
		return fmt.Errorf("%w: pane %q", ErrInvalidArgument, pane)
	}
	e, err := c.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrSessionNotFound
	}
	e.lastUsed = c.now()

	start := time.Now()
	err = e.session.Render(pane, w)
	c.metrics.RecordRender(string(pane), time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordError("render")
		return fmt.Errorf("render %s: %w", pane, err)
	}
	return nil
}

// Subscribe returns a channel receiving a snapshot after every change to the
// session. Slow readers miss intermediate snapshots, never the latest one.
func (c *ChartSessions) Subscribe(id string) (<-chan Snapshot, func(), error) {
	e, err := c.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, nil, ErrSessionNotFound
	}
	ch := make(chan Snapshot, 1)
	key := e.nextSub
	e.nextSub++
	e.subs[key] = ch
	ch <- c.snapshot(e, false)

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if sub, ok := e.subs[key]; ok {
			delete(e.subs, key)
			close(sub)
		}
	}
	return ch, cancel, nil
}

// Refresh drops cached series of symbol and reloads every session showing it.
// It returns how many sessions were reloaded.
func (c *ChartSessions) Refresh(ctx context.Context, symbol string) (int, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if err := c.cache.Invalidate(ctx, symbol); err != nil {
		c.l.Warn("series cache invalidate failed", applogger.String("symbol", symbol), applogger.Error(err))
	}

	c.mu.RLock()
	var targets []*entry
	for _, e := range c.entries {
		if e.symbol == symbol {
			targets = append(targets, e)
		}
	}
	c.mu.RUnlock()

	loaded := make(map[string]models.Aggregated)
	n := 0
	for _, e := range targets {
		e.mu.Lock()
		g := e.g
		e.mu.Unlock()

		data, ok := loaded[g.Key()]
		if !ok {
			var err error
			if data, err = c.load(ctx, symbol, g); err != nil {
				return n, err
			}
			loaded[g.Key()] = data
		}

		e.mu.Lock()
		if !e.closed && e.g == g {
			e.session.SetData(data)
			c.publish(e)
			n++
		}
		e.mu.Unlock()
	}
	return n, nil
}

// Sweep closes sessions idle for longer than ttl and returns how many went.
func (c *ChartSessions) Sweep(ttl time.Duration) int {
	cutoff := c.now().Add(-ttl)
	var stale []string
	c.mu.RLock()
	for id, e := range c.entries {
		e.mu.Lock()
		if e.lastUsed.Before(cutoff) {
			stale = append(stale, id)
		}
		e.mu.Unlock()
	}
	c.mu.RUnlock()

	n := 0
	for _, id := range stale {
		if c.Close(id, "idle") == nil {
			n++
		}
	}
	return n
}

func (c *ChartSessions) lookup(id string) (*entry, error) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

// update runs fn under the session lock, then pushes the new state to
// subscribers and returns it.
func (c *ChartSessions) update(id string, fn func(e *entry) error) (Snapshot, error) {
	e, err := c.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return Snapshot{}, ErrSessionNotFound
	}
	e.lastUsed = c.now()
	if err := fn(e); err != nil {
		return Snapshot{}, err
	}
	c.publish(e)
	return c.snapshot(e, false), nil
}

// publish must be called with e.mu held.
func (c *ChartSessions) publish(e *entry) {
	if len(e.subs) == 0 {
		return
	}
	snap := c.snapshot(e, false)
	for _, ch := range e.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// snapshot must be called with e.mu held.
func (c *ChartSessions) snapshot(e *entry, withSeries bool) Snapshot {
	s := e.session
	w, h := s.View().Size()
	snap := Snapshot{
		ID:          e.id,
		Symbol:      e.symbol,
		Granularity: e.g,
		Generation:  s.Generation(),
		Width:       w,
		Height:      h,
		View:        s.View().State(),
		Toggles:     s.Toggles(),
		Tool:        s.Drawing().State(),
		Groups:      s.Groups(),
		Preview:     s.Preview(),
		UpdatedAt:   e.lastUsed,
	}
	if withSeries {
		snap.Series = &SeriesPayload{Aggregated: s.Data(), Indicators: s.Indicators()}
	}
	return snap
}

// load returns the aggregated series for symbol at g, via the cache.
func (c *ChartSessions) load(ctx context.Context, symbol string, g models.Granularity) (models.Aggregated, error) {
	if a, ok := c.cache.Get(ctx, symbol, g); ok {
		return a, nil
	}
	start := time.Now()
	ticks, err := c.source.Ticks(ctx, symbol, g)
	c.metrics.RecordLatency("tick_fetch_seconds", time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordError("tick_fetch")
		return models.Aggregated{}, fmt.Errorf("load %s %s: %w", symbol, g, err)
	}
	a := c.agg.Aggregate(ticks, g)
	if n := len(a.Candles); n > 0 {
		c.metrics.RecordLastPrice(symbol, a.Candles[n-1].Close)
	}
	if err := c.cache.Put(ctx, symbol, g, a); err != nil {
		c.l.Warn("series cache put failed", applogger.String("symbol", symbol), applogger.Error(err))
	}
	return a, nil
}

type noCache struct{}

func (noCache) Get(context.Context, string, models.Granularity) (models.Aggregated, bool) {
	return models.Aggregated{}, false
}
func (noCache) Put(context.Context, string, models.Granularity, models.Aggregated) error { return nil }
func (noCache) Invalidate(context.Context, string) error                                 { return nil }
