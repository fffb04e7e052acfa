package render

import (
	"bytes"
	"testing"

	"FinChart/internal/domain/models"
	finchart "FinChart/internal/services/chart"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func sampleData(n int) models.Aggregated {
	var out models.Aggregated
	for i := 0; i < n; i++ {
		ts := int64(1_700_000_000 + i*86400)
		p := 50 + float64(i%11)
		c := models.Candle{Time: ts, Open: p, High: p + 2, Low: p - 2, Close: p + float64(i%3) - 1}
		out.Candles = append(out.Candles, c)
		out.Closes = append(out.Closes, models.Point{Time: ts, Value: c.Close})
		color := models.VolumeUp
		if !c.Up() {
			color = models.VolumeDown
		}
		out.Volumes = append(out.Volumes, models.VolumeBar{Time: ts, Value: float64(100 + i), Color: color})
	}
	return out
}

func TestSessionRendersEveryPane(t *testing.T) {
	s := finchart.NewSession(Factory, finchart.Config{})
	s.SetData(sampleData(80))
	require.NoError(t, s.Create(640, 400))
	require.NoError(t, s.SetMAVisible(0, true))
	require.NoError(t, s.SetIndicator(models.IndicatorRSI, true))
	require.NoError(t, s.SetIndicator(models.IndicatorMACD, true))

	d := s.Drawing()
	v := s.View()
	d.SelectTool(models.ShapeFibonacci)
	d.PointerDown(v.LogicalToX(10), v.PriceToY(58))
	d.PointerUp(v.LogicalToX(40), v.PriceToY(50))
	d.SelectTool(models.ShapeTrendLine)
	d.PointerDown(v.LogicalToX(5), v.PriceToY(52))
	d.PointerUp(v.LogicalToX(60), v.PriceToY(57))

	for _, pane := range finchart.Panes {
		var buf bytes.Buffer
		require.NoError(t, s.Render(pane, &buf), pane)
		assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic), pane)
	}
}

func TestRenderChartTypes(t *testing.T) {
	for _, ct := range []models.ChartType{models.ChartCandle, models.ChartLine, models.ChartArea} {
		s := finchart.NewSession(Factory, finchart.Config{}, finchart.WithChartType(ct), finchart.WithTheme(models.ThemeDark))
		s.SetData(sampleData(30))
		require.NoError(t, s.Create(500, 300))
		require.True(t, s.Zoom(models.ZoomIn, 15))

		var buf bytes.Buffer
		require.NoError(t, s.Render(finchart.PaneMain, &buf), ct)
		assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
	}
}

func TestRenderEmpty(t *testing.T) {
	s := finchart.NewSession(Factory, finchart.Config{})
	require.NoError(t, s.Create(500, 300))

	var buf bytes.Buffer
	assert.ErrorIs(t, s.Render(finchart.PaneMain, &buf), ErrEmpty)

	s.SetData(sampleData(10))
	assert.ErrorIs(t, s.Render(finchart.PaneRSI, &buf), ErrEmpty, "rsi pane is off")
}

func TestDisposedSurface(t *testing.T) {
	surf, err := NewSurface(300, 200, finchart.PaletteFor(models.ThemeLight))
	require.NoError(t, err)
	h, err := surf.AddSeries(finchart.SeriesOptions{Name: "price", Kind: finchart.KindLine, Pane: finchart.PaneMain})
	require.NoError(t, err)

	require.NoError(t, surf.Dispose())

	assert.ErrorIs(t, surf.Dispose(), finchart.ErrDisposed)
	assert.ErrorIs(t, surf.Resize(10, 10), finchart.ErrDisposed)
	assert.ErrorIs(t, h.SetPoints(nil), finchart.ErrDisposed)
	assert.ErrorIs(t, surf.AddOverlay("x", models.Shape{}), finchart.ErrDisposed)
	assert.ErrorIs(t, surf.Render(finchart.PaneMain, &bytes.Buffer{}), finchart.ErrDisposed)

	_, err = NewSurface(0, 10, finchart.Palette{})
	assert.Error(t, err)
}
