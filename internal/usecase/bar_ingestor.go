package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"FinChart/internal/domain/models"
	domrepo "FinChart/internal/domain/repository"
	applogger "FinChart/pkg/logger"
)

// BarWriter persists bars; a TickStorage or the buffering bar pipeline.
type BarWriter interface {
	StoreBatch(ctx context.Context, bars []models.Bar) error
}

// BarIngestor accepts bars pushed over the API. With a publisher configured
// the bars go to the ingestion topic and reach storage through the consumer;
// otherwise they are stored directly and open charts are refreshed here.
type BarIngestor struct {
	pub       domrepo.BarPublisher
	store     BarWriter
	refresher Refresher
	metrics   domrepo.Metrics
	l         *applogger.Logger
}

func NewBarIngestor(pub domrepo.BarPublisher, store BarWriter, refresher Refresher, metrics domrepo.Metrics, l *applogger.Logger) *BarIngestor {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &BarIngestor{pub: pub, store: store, refresher: refresher, metrics: metrics, l: l}
}

// Backend names where Ingest sends bars.
func (i *BarIngestor) Backend() string {
	if i.pub != nil {
		return "kafka"
	}
	return "storage"
}

// Ingest validates and routes bars; it returns how many were accepted.
func (i *BarIngestor) Ingest(ctx context.Context, bars []models.Bar) (int, error) {
	valid := make([]models.Bar, 0, len(bars))
	symbols := make(map[string]struct{})
	for _, b := range bars {
		b.Symbol = strings.ToUpper(strings.TrimSpace(b.Symbol))
		b.Interval = strings.TrimSpace(b.Interval)
		if err := b.Validate(); err != nil {
			i.metrics.RecordError("ingest_invalid")
			continue
		}
		valid = append(valid, b)
		symbols[b.Symbol] = struct{}{}
	}
	if len(valid) == 0 {
		return 0, fmt.Errorf("%w: no valid bars", ErrInvalidArgument)
	}

	start := time.Now()
	backend := i.Backend()
	var err error
	switch backend {
	case "kafka":
		err = i.pub.PublishBars(ctx, valid)
	default:
		if i.store == nil {
			return 0, fmt.Errorf("ingest: no storage configured")
		}
		err = i.store.StoreBatch(ctx, valid)
	}
	i.metrics.RecordLatency("ingest_"+backend+"_seconds", time.Since(start).Seconds())
	if err != nil {
		i.metrics.RecordError("ingest")
		return 0, fmt.Errorf("ingest bars: %w", err)
	}

	if backend == "storage" && i.refresher != nil {
		for symbol := range symbols {
			if _, err := i.refresher.Refresh(ctx, symbol); err != nil {
				i.l.Warn("refresh charts failed", applogger.String("symbol", symbol), applogger.Error(err))
			}
		}
	}
	return len(valid), nil
}

// Close closes the publisher; storage is owned by the caller.
func (i *BarIngestor) Close() {
	if i.pub != nil {
		_ = i.pub.Close()
	}
}
