// Package chart owns the rendering surface of one chart: its creation,
// resize and disposal, and every series and overlay attached to it.
package chart

import (
	"errors"
	"io"

	"FinChart/internal/domain/models"
)

// ErrDisposed is returned by a Surface (or one of its series) once Dispose has
// run. Sessions treat it as a benign race and ignore it.
var ErrDisposed = errors.New("chart: surface disposed")

// Pane is a vertically stacked plotting region sharing the time axis.
type Pane string

const (
	PaneMain   Pane = "main"
	PaneVolume Pane = "volume"
	PaneRSI    Pane = "rsi"
	PaneMACD   Pane = "macd"
)

var Panes = []Pane{PaneMain, PaneVolume, PaneRSI, PaneMACD}

func (p Pane) Valid() bool {
	switch p {
	case PaneMain, PaneVolume, PaneRSI, PaneMACD:
		return true
	}
	return false
}

// SeriesKind is how a series is drawn.
type SeriesKind string

const (
	KindCandle    SeriesKind = "candle"
	KindLine      SeriesKind = "line"
	KindArea      SeriesKind = "area"
	KindHistogram SeriesKind = "histogram"
)

type SeriesOptions struct {
	Name  string
	Kind  SeriesKind
	Pane  Pane
	Color string
	// DownColor is used by candles and histograms for falling bars.
	DownColor string
	Width     float64
}

// SeriesHandle is a series attached to a surface. Only the setter matching the
// series kind is meaningful.
type SeriesHandle interface {
	SetCandles(c []models.Candle) error
	SetPoints(p []models.Point) error
	SetVolumes(v []models.VolumeBar) error
}

// Surface is the renderer contract. Every method returns ErrDisposed after
// Dispose; Dispose itself may be called any number of times.
type Surface interface {
	Resize(width, height int) error
	SetView(v models.ViewState) error
	AddSeries(opts SeriesOptions) (SeriesHandle, error)
	RemoveSeries(h SeriesHandle) error
	AddOverlay(id string, s models.Shape) error
	RemoveOverlay(id string) error
	Dispose() error
}

// PaneRenderer is implemented by surfaces that can rasterize a pane.
type PaneRenderer interface {
	Render(p Pane, w io.Writer) error
}

// ErrNotRenderable is returned by Session.Render when the surface cannot
// produce images.
var ErrNotRenderable = errors.New("chart: surface cannot render")

// SurfaceFactory builds a fresh surface for the given size and colors.
type SurfaceFactory func(width, height int, palette Palette) (Surface, error)
