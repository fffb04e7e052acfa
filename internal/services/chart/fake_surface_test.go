package chart

import (
	"fmt"

	"FinChart/internal/domain/models"
)

type fakeSeries struct {
	surface *fakeSurface
	opts    SeriesOptions
	candles []models.Candle
	points  []models.Point
	volumes []models.VolumeBar
}

func (f *fakeSeries) SetCandles(c []models.Candle) error {
	if f.surface.disposed {
		return ErrDisposed
	}
	f.candles = c
	return nil
}

func (f *fakeSeries) SetPoints(p []models.Point) error {
	if f.surface.disposed {
		return ErrDisposed
	}
	f.points = p
	return nil
}

func (f *fakeSeries) SetVolumes(v []models.VolumeBar) error {
	if f.surface.disposed {
		return ErrDisposed
	}
	f.volumes = v
	return nil
}

type fakeSurface struct {
	width, height int
	palette       Palette
	view          models.ViewState
	series        []*fakeSeries
	overlays      map[string]models.Shape
	disposed      bool
	disposeCalls  int
	resizes       int
}

func (f *fakeSurface) Resize(w, h int) error {
	if f.disposed {
		return ErrDisposed
	}
	f.width, f.height = w, h
	f.resizes++
	return nil
}

func (f *fakeSurface) SetView(v models.ViewState) error {
	if f.disposed {
		return ErrDisposed
	}
	f.view = v
	return nil
}

func (f *fakeSurface) AddSeries(opts SeriesOptions) (SeriesHandle, error) {
	if f.disposed {
		return nil, ErrDisposed
	}
	s := &fakeSeries{surface: f, opts: opts}
	f.series = append(f.series, s)
	return s, nil
}

func (f *fakeSurface) RemoveSeries(h SeriesHandle) error {
	if f.disposed {
		return ErrDisposed
	}
	for i, s := range f.series {
		if s == h {
			f.series = append(f.series[:i], f.series[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("unknown series")
}

func (f *fakeSurface) AddOverlay(id string, s models.Shape) error {
	if f.disposed {
		return ErrDisposed
	}
	f.overlays[id] = s
	return nil
}

func (f *fakeSurface) RemoveOverlay(id string) error {
	if f.disposed {
		return ErrDisposed
	}
	delete(f.overlays, id)
	return nil
}

func (f *fakeSurface) Dispose() error {
	f.disposeCalls++
	if f.disposed {
		return ErrDisposed
	}
	f.disposed = true
	return nil
}

func (f *fakeSurface) byPane(p Pane) []*fakeSeries {
	var out []*fakeSeries
	for _, s := range f.series {
		if s.opts.Pane == p {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeSurface) byName(name string) *fakeSeries {
	for _, s := range f.series {
		if s.opts.Name == name {
			return s
		}
	}
	return nil
}

type fakeFactory struct {
	created []*fakeSurface
}

func (ff *fakeFactory) build(w, h int, p Palette) (Surface, error) {
	s := &fakeSurface{width: w, height: h, palette: p, overlays: map[string]models.Shape{}}
	ff.created = append(ff.created, s)
	return s, nil
}

func (ff *fakeFactory) last() *fakeSurface { return ff.created[len(ff.created)-1] }

type countingMetrics struct{ ops map[string]int }

func (m *countingMetrics) IgnoredOperation(op string) {
	if m.ops == nil {
		m.ops = map[string]int{}
	}
	m.ops[op]++
}
