package repository

import (
	"context"
	"errors"
	"time"

	"FinChart/internal/domain/models"
	domrepo "FinChart/internal/domain/repository"
	"FinChart/pkg/cache"
	applogger "FinChart/pkg/logger"
)

// SeriesCache stores aggregated series under series:<SYMBOL>:<granularity>.
type SeriesCache struct {
	c       cache.Service
	ttl     time.Duration
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewSeriesCache(c cache.Service, ttl time.Duration, m domrepo.Metrics, l *applogger.Logger) *SeriesCache {
	if m == nil {
		m = domrepo.NopMetrics{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &SeriesCache{c: c, ttl: ttl, metrics: m, l: l}
}

func seriesKey(symbol string, g models.Granularity) string {
	return cache.Key("series", normalizeSymbol(symbol), g.Key())
}

func (s *SeriesCache) Get(ctx context.Context, symbol string, g models.Granularity) (models.Aggregated, bool) {
	a, err := cache.GetTyped[models.Aggregated](ctx, s.c, seriesKey(symbol, g))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.l.Warn("series cache get failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
		s.metrics.RecordCacheLookup(false)
		return models.Aggregated{}, false
	}
	s.metrics.RecordCacheLookup(true)
	return a, true
}

func (s *SeriesCache) Put(ctx context.Context, symbol string, g models.Granularity, a models.Aggregated) error {
	return s.c.Set(ctx, seriesKey(symbol, g), a, s.ttl)
}

func (s *SeriesCache) Invalidate(ctx context.Context, symbol string) error {
	return s.c.DeletePrefix(ctx, cache.Key("series", normalizeSymbol(symbol), ""))
}

// NopSeriesCache never hits; used when caching is disabled.
type NopSeriesCache struct{}

func (NopSeriesCache) Get(context.Context, string, models.Granularity) (models.Aggregated, bool) {
	return models.Aggregated{}, false
}
func (NopSeriesCache) Put(context.Context, string, models.Granularity, models.Aggregated) error {
	return nil
}
func (NopSeriesCache) Invalidate(context.Context, string) error { return nil }

var (
	_ domrepo.SeriesCache = (*SeriesCache)(nil)
	_ domrepo.SeriesCache = NopSeriesCache{}
)
