package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"FinChart/internal/domain/models"
)

// barQuerier is the read half shared by every bar store.
type barQuerier interface {
	Query(ctx context.Context, symbol, interval string, from, to time.Time) ([]models.Bar, error)
}

// ticksFromStore reads the bars a granularity needs and hands them to the
// aggregator as raw points.
func ticksFromStore(ctx context.Context, q barQuerier, now time.Time, symbol string, g models.Granularity) ([]models.RawPricePoint, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	bars, err := q.Query(ctx, symbol, g.BarInterval(), now.Add(-g.Lookback()), now)
	if err != nil {
		return nil, err
	}
	return models.BarsToPoints(bars), nil
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// validBar reports whether a bar can be stored.
func validBar(b models.Bar) bool {
	return b.Symbol != "" && b.Interval != "" && !b.Time.IsZero()
}
