package chart

import (
	"fmt"

	"FinChart/internal/domain/models"
)

// MainSeries is the price series variant: candle, line or area. Swapping the
// chart type destroys one variant and builds another from the same data.
type MainSeries interface {
	Type() models.ChartType
	Handle() SeriesHandle
	populate(data models.Aggregated) error
}

type candleSeries struct{ h SeriesHandle }

func (s candleSeries) Type() models.ChartType { return models.ChartCandle }
func (s candleSeries) Handle() SeriesHandle   { return s.h }
func (s candleSeries) populate(data models.Aggregated) error {
	return s.h.SetCandles(data.Candles)
}

type lineSeries struct{ h SeriesHandle }

func (s lineSeries) Type() models.ChartType { return models.ChartLine }
func (s lineSeries) Handle() SeriesHandle   { return s.h }
func (s lineSeries) populate(data models.Aggregated) error {
	return s.h.SetPoints(data.Closes)
}

type areaSeries struct{ h SeriesHandle }

func (s areaSeries) Type() models.ChartType { return models.ChartArea }
func (s areaSeries) Handle() SeriesHandle   { return s.h }
func (s areaSeries) populate(data models.Aggregated) error {
	return s.h.SetPoints(data.Closes)
}

// buildMainSeries attaches the variant for t to surface and fills it.
func buildMainSeries(surface Surface, t models.ChartType, p Palette, data models.Aggregated) (MainSeries, error) {
	var (
		opts SeriesOptions
		wrap func(SeriesHandle) MainSeries
	)
	switch t {
	case models.ChartCandle:
		opts = SeriesOptions{Name: "price", Kind: KindCandle, Pane: PaneMain, Color: p.Up, DownColor: p.Down, Width: 1}
		wrap = func(h SeriesHandle) MainSeries { return candleSeries{h} }
	case models.ChartLine:
		opts = SeriesOptions{Name: "price", Kind: KindLine, Pane: PaneMain, Color: p.Line, Width: 2}
		wrap = func(h SeriesHandle) MainSeries { return lineSeries{h} }
	case models.ChartArea:
		opts = SeriesOptions{Name: "price", Kind: KindArea, Pane: PaneMain, Color: p.Area, Width: 2}
		wrap = func(h SeriesHandle) MainSeries { return areaSeries{h} }
	default:
		return nil, fmt.Errorf("chart: unknown chart type %q", t)
	}

	h, err := surface.AddSeries(opts)
	if err != nil {
		return nil, err
	}
	ms := wrap(h)
	if err := ms.populate(data); err != nil {
		_ = surface.RemoveSeries(h)
		return nil, err
	}
	return ms, nil
}
