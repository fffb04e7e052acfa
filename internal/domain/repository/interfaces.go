package repository

import (
	"context"
	"time"

	"FinChart/internal/domain/models"
)

// TickSource supplies raw price points for a symbol at a granularity. It is
// the boundary to the data-fetching collaborator.
type TickSource interface {
	Ticks(ctx context.Context, symbol string, g models.Granularity) ([]models.RawPricePoint, error)
}

// TickStorage is a TickSource that can also persist bars.
type TickStorage interface {
	TickSource
	Init(ctx context.Context) error // ensure tables, health checks
	StoreBatch(ctx context.Context, bars []models.Bar) error
	Query(ctx context.Context, symbol, interval string, from, to time.Time) ([]models.Bar, error)
	Health(ctx context.Context) error
	Close() error
}

// BarPublisher hands bars to the ingestion topic instead of storing them.
type BarPublisher interface {
	PublishBars(ctx context.Context, bars []models.Bar) error
	Close() error
}

// SeriesCache keeps aggregated series keyed by symbol and granularity.
type SeriesCache interface {
	Get(ctx context.Context, symbol string, g models.Granularity) (models.Aggregated, bool)
	Put(ctx context.Context, symbol string, g models.Granularity, a models.Aggregated) error
	Invalidate(ctx context.Context, symbol string) error
}

type Metrics interface {
	IgnoredOperation(op string)
	SessionOpened()
	SessionClosed(reason string)
	RecordRender(pane string, seconds float64)
	RecordTicksIngested(symbol string, n int)
	RecordLastPrice(symbol string, price float64)
	RecordCacheLookup(hit bool)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

// NopMetrics discards everything; used by tests and tools.
type NopMetrics struct{}

func (NopMetrics) IgnoredOperation(string)         {}
func (NopMetrics) SessionOpened()                  {}
func (NopMetrics) SessionClosed(string)            {}
func (NopMetrics) RecordRender(string, float64)    {}
func (NopMetrics) RecordTicksIngested(string, int) {}
func (NopMetrics) RecordLastPrice(string, float64) {}
func (NopMetrics) RecordCacheLookup(bool)          {}
func (NopMetrics) RecordError(string)              {}
func (NopMetrics) RecordLatency(string, float64)   {}
