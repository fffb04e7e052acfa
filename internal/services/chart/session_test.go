package chart

import (
	"testing"

	"FinChart/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleData(n int) models.Aggregated {
	var out models.Aggregated
	for i := 0; i < n; i++ {
		ts := int64(1_700_000_000 + i*86400)
		p := 100 + float64(i%9)
		c := models.Candle{Time: ts, Open: p, High: p + 3, Low: p - 3, Close: p + 1}
		out.Candles = append(out.Candles, c)
		out.Closes = append(out.Closes, models.Point{Time: ts, Value: c.Close})
		out.Volumes = append(out.Volumes, models.VolumeBar{Time: ts, Value: float64(10 + i), Color: models.VolumeUp})
	}
	return out
}

func newTestSession(opts ...Option) (*Session, *fakeFactory, *countingMetrics) {
	ff := &fakeFactory{}
	m := &countingMetrics{}
	s := NewSession(ff.build, Config{}, append([]Option{WithMetrics(m)}, opts...)...)
	return s, ff, m
}

func TestCreateAttachesSeries(t *testing.T) {
	s, ff, _ := newTestSession()
	s.SetData(sampleData(60))
	require.NoError(t, s.Create(800, 500))

	surf := ff.last()
	main := surf.byPane(PaneMain)
	require.Len(t, main, 1)
	assert.Equal(t, KindCandle, main[0].opts.Kind)
	assert.Len(t, main[0].candles, 60)
	require.Len(t, surf.byPane(PaneVolume), 1)
	assert.Len(t, surf.byPane(PaneVolume)[0].volumes, 60)
	assert.Empty(t, surf.byPane(PaneRSI))
	assert.Equal(t, models.LogicalRange{From: 0, To: 59}, surf.view.VisibleRangeLogical)
	assert.Equal(t, uint64(1), s.Generation())
}

func TestToggles(t *testing.T) {
	s, ff, _ := newTestSession()
	s.SetData(sampleData(60))
	require.NoError(t, s.Create(800, 500))
	surf := ff.last()

	require.NoError(t, s.SetMAVisible(0, true))
	require.NoError(t, s.SetMAVisible(1, true))
	require.NoError(t, s.SetIndicator(models.IndicatorRSI, true))
	require.NoError(t, s.SetIndicator(models.IndicatorMACD, true))
	s.SetVolumeVisible(false)

	assert.Len(t, surf.byPane(PaneMain), 3)
	assert.Len(t, surf.byName("MA(5)").points, 56)
	assert.Len(t, surf.byName("MA(20)").points, 41)
	assert.Len(t, surf.byPane(PaneRSI), 1)
	assert.Len(t, surf.byPane(PaneMACD), 3)
	assert.Empty(t, surf.byPane(PaneVolume))

	require.NoError(t, s.SetIndicator(models.IndicatorMACD, false))
	assert.Empty(t, surf.byPane(PaneMACD))
	assert.Error(t, s.SetMAVisible(4, true))
	assert.Error(t, s.SetIndicator("adx", true))

	tg := s.Toggles()
	assert.Equal(t, []bool{true, true, false, false}, tg.MA)
	assert.False(t, tg.Volume)
	assert.True(t, tg.Indicators["rsi"])
	assert.False(t, tg.Indicators["macd"])
}

func TestChartTypeSwapKeepsOtherSeries(t *testing.T) {
	s, ff, _ := newTestSession()
	s.SetData(sampleData(30))
	require.NoError(t, s.Create(800, 500))
	require.NoError(t, s.SetMAVisible(0, true))
	surf := ff.last()
	ma := surf.byName("MA(5)")
	vol := surf.byPane(PaneVolume)[0]

	require.NoError(t, s.SetChartType(models.ChartArea))

	price := surf.byName("price")
	require.NotNil(t, price)
	assert.Equal(t, KindArea, price.opts.Kind)
	assert.Len(t, price.points, 30)
	assert.Same(t, ma, surf.byName("MA(5)"))
	assert.Same(t, vol, surf.byPane(PaneVolume)[0])
	assert.Len(t, surf.series, 3)
	assert.Len(t, ff.created, 1)

	assert.Error(t, s.SetChartType("heikin"))
}

func TestSetDataRebuildsSeries(t *testing.T) {
	s, ff, _ := newTestSession()
	s.SetData(sampleData(30))
	require.NoError(t, s.Create(800, 500))
	require.NoError(t, s.SetIndicator(models.IndicatorRSI, true))
	surf := ff.last()
	before := surf.byName("price")

	s.SetData(sampleData(40))

	after := surf.byName("price")
	assert.NotSame(t, before, after)
	assert.Len(t, after.candles, 40)
	assert.Len(t, surf.byPane(PaneRSI)[0].points, 26)
	assert.Equal(t, 39.0, surf.view.VisibleRangeLogical.To)
}

func TestStaleResizeHandlerIsNoop(t *testing.T) {
	s, ff, m := newTestSession()
	s.SetData(sampleData(20))
	require.NoError(t, s.Create(800, 500))
	stale := s.ResizeHandler()

	require.NoError(t, s.Create(640, 480))
	current := ff.last()

	stale(100, 100)
	assert.Equal(t, 0, current.resizes)
	assert.Equal(t, 1, m.ops["resize"])

	fresh := s.ResizeHandler()
	fresh(1024, 600)
	assert.Equal(t, 1, current.resizes)
	assert.Equal(t, 1024, current.width)

	s.Dispose()
	fresh(10, 10)
	assert.Equal(t, 1, current.resizes)
	assert.Equal(t, 2, m.ops["resize"])
}

func TestStaleCrosshairHandler(t *testing.T) {
	s, _, m := newTestSession()
	s.SetData(sampleData(20))
	require.NoError(t, s.Create(800, 500))
	h := s.CrosshairHandler()

	assert.True(t, h(100, 100))
	s.Dispose()
	assert.False(t, h(100, 100))
	assert.Equal(t, 1, m.ops["crosshair"])
}

func TestDisposeIsIdempotent(t *testing.T) {
	s, ff, m := newTestSession()
	s.SetData(sampleData(20))
	require.NoError(t, s.Create(800, 500))
	surf := ff.last()

	s.Dispose()
	s.Dispose()

	assert.True(t, surf.disposed)
	assert.Equal(t, 1, surf.disposeCalls)
	assert.Empty(t, surf.series)
	assert.False(t, s.Alive())

	// operations after disposal are ignored, not failures
	assert.NoError(t, s.SetIndicator(models.IndicatorRSI, true))
	s.SetData(sampleData(10))
	assert.Equal(t, 1, m.ops["rsi"])
	assert.Equal(t, 1, m.ops["set_data"])
}

func TestSurfaceDisposedUnderneath(t *testing.T) {
	s, ff, m := newTestSession()
	s.SetData(sampleData(20))
	require.NoError(t, s.Create(800, 500))
	surf := ff.last()

	// the renderer tore itself down without telling the session
	require.NoError(t, surf.Dispose())

	assert.NotPanics(t, func() {
		s.Resize(300, 200)
		require.NoError(t, s.SetChartType(models.ChartLine))
		require.NoError(t, s.SetMAVisible(2, true))
		s.Dispose()
	})
	assert.Positive(t, m.ops["resize"])
	assert.Positive(t, m.ops["chart_type"])
	assert.Positive(t, m.ops["ma"])
	assert.Positive(t, m.ops["dispose"])
}

func TestNoSurfaceBeforeCreate(t *testing.T) {
	s, ff, m := newTestSession()
	s.SetData(sampleData(20))
	require.NoError(t, s.SetMAVisible(0, true))
	assert.Empty(t, ff.created)
	assert.Empty(t, m.ops)

	require.NoError(t, s.Create(800, 500))
	assert.NotNil(t, ff.last().byName("MA(5)"))
}

func TestDrawingGoesThroughSession(t *testing.T) {
	s, ff, _ := newTestSession()
	s.SetData(sampleData(50))
	require.NoError(t, s.Create(800, 500))
	surf := ff.last()
	v := s.View()
	d := s.Drawing()

	d.SelectTool(models.ShapeRectangle)
	require.True(t, d.PointerDown(v.LogicalToX(10), v.PriceToY(110)))
	require.True(t, d.PointerMove(v.LogicalToX(20), v.PriceToY(104)))
	assert.Len(t, surf.overlays, 2, "preview only")
	require.NotNil(t, s.Preview())

	require.True(t, d.PointerUp(v.LogicalToX(30), v.PriceToY(98)))
	assert.Nil(t, s.Preview())
	require.Len(t, s.Groups(), 1)
	assert.Len(t, surf.overlays, 2)
	assert.InDelta(t, 110, surf.overlays["g1/0"].Anchors[0].Price, 1e-9)
	assert.InDelta(t, 98, surf.overlays["g1/1"].Anchors[0].Price, 1e-9)

	require.True(t, d.Undo())
	assert.Empty(t, surf.overlays)
	assert.Empty(t, s.Groups())
}

func TestSetDataKeepsShapesOnTheirBars(t *testing.T) {
	s, ff, _ := newTestSession()
	full := sampleData(60)
	s.SetData(full)
	require.NoError(t, s.Create(800, 500))
	surf := ff.last()
	v := s.View()
	d := s.Drawing()

	d.SelectTool(models.ShapeTrendLine)
	require.True(t, d.PointerDown(v.LogicalToX(29.5), v.PriceToY(104)))
	require.True(t, d.PointerUp(v.LogicalToX(45.25), v.PriceToY(107)))
	before := surf.overlays["g1/0"].Anchors
	require.Len(t, before, 2)

	// the lookback window slides: the 10 oldest bars drop out
	shifted := models.Aggregated{
		Candles: full.Candles[10:],
		Volumes: full.Volumes[10:],
		Closes:  full.Closes[10:],
	}
	s.SetData(shifted)

	after := surf.overlays["g1/0"].Anchors
	require.Len(t, after, 2)
	for i := range after {
		assert.Equal(t, before[i].Time, after[i].Time)
		assert.InDelta(t, before[i].Logical-10, after[i].Logical, 1e-9)
		assert.Equal(t, before[i].Time, v.TimeAt(after[i].Logical), "anchor still sits on its bar")
	}
	assert.Equal(t, after, s.Groups()[0].Shapes[0].Anchors)
	assert.Equal(t, after, d.Groups()[0].Shapes[0].Anchors)

	require.True(t, d.Undo())
	assert.Empty(t, surf.overlays)
}

func TestThemeRecreatesSurfaceAndReplaysShapes(t *testing.T) {
	s, ff, _ := newTestSession()
	s.SetData(sampleData(50))
	require.NoError(t, s.Create(800, 500))
	v := s.View()
	d := s.Drawing()
	d.SelectTool(models.ShapeHorizontal)
	d.PointerDown(v.LogicalToX(5), v.PriceToY(101))

	require.NoError(t, s.SetTheme(models.ThemeDark))

	require.Len(t, ff.created, 2)
	old, cur := ff.created[0], ff.created[1]
	assert.True(t, old.disposed)
	assert.Equal(t, PaletteFor(models.ThemeDark), cur.palette)
	assert.Equal(t, 800, cur.width)
	assert.Len(t, cur.overlays, 1)
	assert.Equal(t, uint64(3), s.Generation())

	assert.Error(t, s.SetTheme("sepia"))
}

func TestZoomPushesView(t *testing.T) {
	s, ff, _ := newTestSession()
	s.SetData(sampleData(100))
	require.NoError(t, s.Create(800, 500))
	surf := ff.last()

	require.True(t, s.Zoom(models.ZoomIn, 50))
	assert.InDelta(t, 99*0.7, surf.view.VisibleRangeLogical.Width(), 1e-9)

	require.True(t, s.Pan(-10))
	s.Fit()
	assert.Equal(t, models.LogicalRange{From: 0, To: 99}, surf.view.VisibleRangeLogical)
}
