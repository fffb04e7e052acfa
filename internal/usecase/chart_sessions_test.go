package usecase

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinChart/internal/domain/models"
	"FinChart/internal/render"
	"FinChart/internal/repository"
	"FinChart/internal/services/chart"
	"FinChart/internal/services/drawing"
	"FinChart/internal/services/indicators"
	"FinChart/internal/services/series"
	"FinChart/internal/services/viewport"
	"FinChart/pkg/cache"
)

var testNow = time.Date(2024, 10, 10, 16, 0, 0, 0, time.UTC)

type countingMetrics struct {
	mu       sync.Mutex
	opened   int
	closed   map[string]int
	renders  int
	ignored  int
	ingested map[string]int
	errors   map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{closed: map[string]int{}, ingested: map[string]int{}, errors: map[string]int{}}
}

func (m *countingMetrics) IgnoredOperation(string) {
	m.mu.Lock()
	m.ignored++
	m.mu.Unlock()
}

func (m *countingMetrics) SessionOpened() {
	m.mu.Lock()
	m.opened++
	m.mu.Unlock()
}

func (m *countingMetrics) SessionClosed(r string) {
	m.mu.Lock()
	m.closed[r]++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordRender(string, float64) {
	m.mu.Lock()
	m.renders++
	m.mu.Unlock()
}
func (m *countingMetrics) RecordTicksIngested(s string, n int) {
	m.mu.Lock()
	m.ingested[s] += n
	m.mu.Unlock()
}
func (m *countingMetrics) RecordLastPrice(string, float64) {}
func (m *countingMetrics) RecordCacheLookup(bool)          {}
func (m *countingMetrics) RecordLatency(string, float64)   {}
func (m *countingMetrics) RecordError(k string) {
	m.mu.Lock()
	m.errors[k]++
	m.mu.Unlock()
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func dailyBars(symbol string, n int) []models.Bar {
	out := make([]models.Bar, n)
	for i := range out {
		c := 100 + float64(i%7)
		out[i] = models.Bar{
			Symbol:   symbol,
			Interval: "1d",
			Time:     testNow.AddDate(0, 0, -(n - i)),
			Open:     c - 1, High: c + 2, Low: c - 2, Close: c,
			Volume: 1000,
		}
	}
	return out
}

type fixture struct {
	reg     *ChartSessions
	store   *repository.MemoryBarStore
	metrics *countingMetrics
	clock   *testClock
}

func newFixture(t *testing.T, opts ...SessionsOption) *fixture {
	t.Helper()
	clock := &testClock{t: testNow}
	store := repository.NewMemoryBarStore(repository.WithMemoryClock(func() time.Time { return testNow }))
	require.NoError(t, store.StoreBatch(context.Background(), dailyBars("AAPL", 60)))
	require.NoError(t, store.StoreBatch(context.Background(), dailyBars("MSFT", 60)))

	m := newCountingMetrics()
	mem := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	t.Cleanup(func() { _ = mem.Close() })

	cfg := chart.Config{
		Indicators: indicators.DefaultConfig(),
		Viewport:   viewport.DefaultConfig(),
		TrendLine:  drawing.TrendSegment,
	}
	agg := series.NewAggregator(series.WithClock(func() time.Time { return testNow }))
	base := []SessionsOption{
		WithSessionsMetrics(m),
		WithSessionsClock(clock.Now),
		WithSeriesCache(repository.NewSeriesCache(mem, time.Hour, m, nil)),
	}
	reg := NewChartSessions(store, agg, render.Factory, cfg, append(base, opts...)...)
	t.Cleanup(func() { reg.CloseAll("test") })
	return &fixture{reg: reg, store: store, metrics: m, clock: clock}
}

func month() models.Granularity { return models.Granularity{Range: models.Range1M} }

func TestChartSessions_Open(t *testing.T) {
	f := newFixture(t)

	snap, err := f.reg.Open(context.Background(), OpenParams{Symbol: " aapl ", Granularity: month()})
	require.NoError(t, err)

	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, "AAPL", snap.Symbol)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, 800, snap.Width)
	require.NotNil(t, snap.Series)
	assert.Len(t, snap.Series.Candles, 31)
	assert.Len(t, snap.Series.Indicators.MA, 4)
	assert.True(t, snap.Toggles.Volume)
	assert.Equal(t, drawing.Idle, snap.Tool.Phase)
	assert.Equal(t, 1, f.reg.Len())
	assert.Equal(t, 1, f.metrics.opened)

	got, err := f.reg.Get(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.View, got.View)
}

func TestChartSessions_OpenRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.reg.Open(ctx, OpenParams{Symbol: "  ", Granularity: month()})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.reg.Open(ctx, OpenParams{Symbol: "AAPL", Granularity: month(), ChartType: "renko"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Zero(t, f.reg.Len())
}

func TestChartSessions_MaxSessions(t *testing.T) {
	f := newFixture(t, WithMaxSessions(1))
	ctx := context.Background()

	_, err := f.reg.Open(ctx, OpenParams{Symbol: "AAPL", Granularity: month()})
	require.NoError(t, err)
	_, err = f.reg.Open(ctx, OpenParams{Symbol: "MSFT", Granularity: month()})
	assert.ErrorIs(t, err, ErrTooManySessions)
}

func TestChartSessions_MaxSessionsConcurrent(t *testing.T) {
	f := newFixture(t, WithMaxSessions(3))
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.reg.Open(ctx, OpenParams{Symbol: "AAPL", Granularity: month()})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if assert.ErrorIs(t, err, ErrTooManySessions) {
				full++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, ok)
	assert.Equal(t, 13, full)
	assert.Equal(t, 3, f.reg.Len())
	assert.Equal(t, 3, f.metrics.opened)
}

func TestChartSessions_UnknownID(t *testing.T) {
	f := newFixture(t)

	_, err := f.reg.Get("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.reg.Zoom("nope", models.ZoomIn, 0)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, f.reg.Close("nope", "api"), ErrSessionNotFound)
	assert.ErrorIs(t, f.reg.Render("nope", chart.PaneMain, &bytes.Buffer{}), ErrSessionNotFound)
}

func TestChartSessions_Toggles(t *testing.T) {
	f := newFixture(t)
	snap, err := f.reg.Open(context.Background(), OpenParams{Symbol: "AAPL", Granularity: month()})
	require.NoError(t, err)
	id := snap.ID

	snap, err = f.reg.SetMA(id, 0, true)
	require.NoError(t, err)
	assert.True(t, snap.Toggles.MA[0])

	_, err = f.reg.SetMA(id, 7, true)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	snap, err = f.reg.SetIndicator(id, models.IndicatorRSI, true)
	require.NoError(t, err)
	assert.True(t, snap.Toggles.Indicators["rsi"])

	_, err = f.reg.SetIndicator(id, "stoch", true)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	snap, err = f.reg.SetVolume(id, false)
	require.NoError(t, err)
	assert.False(t, snap.Toggles.Volume)

	snap, err = f.reg.SetChartType(id, models.ChartArea)
	require.NoError(t, err)
	assert.Equal(t, models.ChartArea, snap.Toggles.ChartType)
	assert.True(t, snap.Toggles.MA[0], "chart type swap keeps the moving averages")

	snap, err = f.reg.SetTheme(id, models.ThemeDark)
	require.NoError(t, err)
	assert.Equal(t, models.ThemeDark, snap.Toggles.Theme)
	assert.Equal(t, uint64(3), snap.Generation, "dispose and create each bump the generation")

	_, err = f.reg.SetTheme(id, "sepia")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestChartSessions_ViewOps(t *testing.T) {
	f := newFixture(t)
	snap, err := f.reg.Open(context.Background(), OpenParams{Symbol: "AAPL", Granularity: month()})
	require.NoError(t, err)
	id := snap.ID
	full := snap.View.VisibleRangeLogical.Width()

	snap, err = f.reg.Zoom(id, models.ZoomIn, 15)
	require.NoError(t, err)
	assert.Less(t, snap.View.VisibleRangeLogical.Width(), full)

	_, err = f.reg.Zoom(id, "sideways", 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.reg.Pan(id, -3)
	require.NoError(t, err)

	snap, err = f.reg.Fit(id)
	require.NoError(t, err)
	assert.InDelta(t, full, snap.View.VisibleRangeLogical.Width(), 1e-9)

	snap, err = f.reg.Crosshair(id, 300, 200, false)
	require.NoError(t, err)
	require.NotNil(t, snap.View.Crosshair)

	snap, err = f.reg.Crosshair(id, 0, 0, true)
	require.NoError(t, err)
	assert.Nil(t, snap.View.Crosshair)

	snap, err = f.reg.Resize(id, 1024, 600)
	require.NoError(t, err)
	assert.Equal(t, 1024, snap.Width)
	assert.Equal(t, 600, snap.Height)

	_, err = f.reg.Resize(id, 0, 600)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestChartSessions_Drawing(t *testing.T) {
	f := newFixture(t)
	snap, err := f.reg.Open(context.Background(), OpenParams{Symbol: "AAPL", Granularity: month()})
	require.NoError(t, err)
	id := snap.ID

	snap, err = f.reg.SelectTool(id, models.ShapeRectangle)
	require.NoError(t, err)
	assert.Equal(t, drawing.ToolSelected, snap.Tool.Phase)

	_, err = f.reg.Pointer(id, PointerDown, 100, 100)
	require.NoError(t, err)
	snap, err = f.reg.Pointer(id, PointerMove, 250, 200)
	require.NoError(t, err)
	assert.Equal(t, drawing.Dragging, snap.Tool.Phase)
	assert.NotNil(t, snap.Preview)

	snap, err = f.reg.Pointer(id, PointerUp, 300, 220)
	require.NoError(t, err)
	require.Len(t, snap.Groups, 1)
	assert.Equal(t, models.ShapeRectangle, snap.Groups[0].Kind)
	assert.Nil(t, snap.Preview)

	_, err = f.reg.Pointer(id, "hover", 1, 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.reg.SelectTool(id, "lasso")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	snap, err = f.reg.Undo(id)
	require.NoError(t, err)
	assert.Empty(t, snap.Groups)

	snap, err = f.reg.SelectTool(id, models.ShapeHorizontal)
	require.NoError(t, err)
	_, err = f.reg.Pointer(id, PointerDown, 200, 150)
	require.NoError(t, err)
	_, err = f.reg.Pointer(id, PointerDown, 200, 250)
	require.NoError(t, err)
	snap, err = f.reg.ClearDrawings(id)
	require.NoError(t, err)
	assert.Empty(t, snap.Groups)

	snap, err = f.reg.SelectTool(id, "")
	require.NoError(t, err)
	assert.Equal(t, drawing.Idle, snap.Tool.Phase)
}

func TestChartSessions_Render(t *testing.T) {
	f := newFixture(t)
	snap, err := f.reg.Open(context.Background(), OpenParams{Symbol: "AAPL", Granularity: month()})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.reg.Render(snap.ID, chart.PaneMain, &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
	assert.Equal(t, 1, f.metrics.renders)

	assert.ErrorIs(t, f.reg.Render(snap.ID, "sidebar", &buf), ErrInvalidArgument)
}

func TestChartSessions_SetGranularity(t *testing.T) {
	f := newFixture(t)
	snap, err := f.reg.Open(context.Background(), OpenParams{Symbol: "AAPL", Granularity: month()})
	require.NoError(t, err)

	_, err = f.reg.SetGranularity(context.Background(), snap.ID, models.Granularity{Range: models.Range1W})
	require.NoError(t, err)

	got, err := f.reg.Get(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Range1W, got.Granularity.Range)
	assert.Len(t, got.Series.Candles, 7)
}

func TestChartSessions_SubscribeAndClose(t *testing.T) {
	f := newFixture(t)
	snap, err := f.reg.Open(context.Background(), OpenParams{Symbol: "AAPL", Granularity: month()})
	require.NoError(t, err)

	ch, cancel, err := f.reg.Subscribe(snap.ID)
	require.NoError(t, err)
	defer cancel()

	first := <-ch
	assert.Equal(t, snap.ID, first.ID)
	assert.Nil(t, first.Series, "stream snapshots carry no series payload")

	_, err = f.reg.Zoom(snap.ID, models.ZoomIn, 15)
	require.NoError(t, err)
	_, err = f.reg.Zoom(snap.ID, models.ZoomIn, 15)
	require.NoError(t, err)

	latest := <-ch
	assert.Less(t, latest.View.VisibleRangeLogical.Width(), first.View.VisibleRangeLogical.Width())

	require.NoError(t, f.reg.Close(snap.ID, "api"))
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 1, f.metrics.closed["api"])

	_, err = f.reg.Get(snap.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, _, err = f.reg.Subscribe(snap.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestChartSessions_Refresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.reg.Open(ctx, OpenParams{Symbol: "AAPL", Granularity: month()})
	require.NoError(t, err)
	m, err := f.reg.Open(ctx, OpenParams{Symbol: "MSFT", Granularity: month()})
	require.NoError(t, err)

	require.NoError(t, f.store.StoreBatch(ctx, []models.Bar{{
		Symbol: "AAPL", Interval: "1d", Time: testNow,
		Open: 110, High: 111, Low: 109, Close: 110.5, Volume: 10,
	}}))

	n, err := f.reg.Refresh(ctx, "aapl")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.reg.Get(a.ID)
	require.NoError(t, err)
	require.Len(t, got.Series.Candles, 32)
	assert.InDelta(t, 110.5, got.Series.Candles[31].Close, 1e-9)

	other, err := f.reg.Get(m.ID)
	require.NoError(t, err)
	assert.Len(t, other.Series.Candles, 31)
}

func TestChartSessions_Sweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	idle, err := f.reg.Open(ctx, OpenParams{Symbol: "AAPL", Granularity: month()})
	require.NoError(t, err)
	busy, err := f.reg.Open(ctx, OpenParams{Symbol: "MSFT", Granularity: month()})
	require.NoError(t, err)

	f.clock.Advance(20 * time.Minute)
	_, err = f.reg.Pan(busy.ID, 1)
	require.NoError(t, err)
	f.clock.Advance(15 * time.Minute)

	assert.Equal(t, 1, f.reg.Sweep(30*time.Minute))
	_, err = f.reg.Get(idle.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.reg.Get(busy.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, f.metrics.closed["idle"])
}

func TestChartSessions_OnClose(t *testing.T) {
	var closed []string
	f := newFixture(t, WithOnClose(func(id string) { closed = append(closed, id) }))
	ctx := context.Background()

	a, err := f.reg.Open(ctx, OpenParams{Symbol: "AAPL", Granularity: month()})
	require.NoError(t, err)
	b, err := f.reg.Open(ctx, OpenParams{Symbol: "MSFT", Granularity: month()})
	require.NoError(t, err)

	require.NoError(t, f.reg.Close(a.ID, "client"))
	f.clock.Advance(time.Hour)
	assert.Equal(t, 1, f.reg.Sweep(time.Minute))
	assert.Equal(t, []string{a.ID, b.ID}, closed)
}
