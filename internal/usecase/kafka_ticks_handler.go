package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FinChart/internal/domain/models"
	domrepo "FinChart/internal/domain/repository"
	pkgkafka "FinChart/pkg/kafka"
	applogger "FinChart/pkg/logger"
)

// Refresher reloads live charts of a symbol after new bars land.
type Refresher interface {
	Refresh(ctx context.Context, symbol string) (int, error)
}

// KafkaTicksHandler consumes bar messages, stores them and refreshes every
// open chart of the affected symbols.
type KafkaTicksHandler struct {
	topic     string
	storage   domrepo.TickStorage
	refresher Refresher
	metrics   domrepo.Metrics
	l         *applogger.Logger
}

func NewKafkaTicksHandler(topic string, storage domrepo.TickStorage, refresher Refresher, metrics domrepo.Metrics, l *applogger.Logger) *KafkaTicksHandler {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &KafkaTicksHandler{topic: topic, storage: storage, refresher: refresher, metrics: metrics, l: l}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// Handle accepts a single bar object or an array of bars. Invalid bars in a
// batch are skipped; a message without any valid bar fails permanently so
// the consumer dead-letters it.
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	msgs, err := decodeBars(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}

	bars := make([]models.Bar, 0, len(msgs))
	perSymbol := make(map[string]int)
	last := make(map[string]models.Bar)
	var invalid error
	for _, m := range msgs {
		bar, err := m.Bar()
		if err != nil {
			h.metrics.RecordError("consumer_invalid")
			h.l.Warn("invalid bar skipped", applogger.String("symbol", m.Symbol), applogger.Error(err))
			invalid = err
			continue
		}
		bars = append(bars, bar)
		perSymbol[bar.Symbol]++
		if prev, seen := last[bar.Symbol]; !seen || !bar.Time.Before(prev.Time) {
			last[bar.Symbol] = bar
		}
	}
	if len(bars) == 0 {
		if invalid == nil {
			return nil
		}
		return fmt.Errorf("%w: no valid bar: %v", pkgkafka.ErrPermanent, invalid)
	}

	start := time.Now()
	err = h.storage.StoreBatch(ctx, bars)
	h.metrics.RecordLatency("store_batch_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return fmt.Errorf("store bars: %w", err)
	}

	for symbol, n := range perSymbol {
		h.metrics.RecordTicksIngested(symbol, n)
		bar := last[symbol]
		h.metrics.RecordLastPrice(symbol, bar.Close)
		h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(bar.Time).Seconds())

		if h.refresher == nil {
			continue
		}
		reloaded, err := h.refresher.Refresh(ctx, symbol)
		if err != nil {
			// The bars are stored; a failed reload only delays the charts.
			h.metrics.RecordError("consumer_refresh")
			h.l.Warn("refresh charts failed", applogger.String("symbol", symbol), applogger.Error(err))
			continue
		}
		if reloaded > 0 {
			h.l.Debug("charts refreshed",
				applogger.String("symbol", symbol),
				applogger.Int("sessions", reloaded),
				applogger.Float64("last_close", bar.Close),
			)
		}
	}
	return nil
}

func decodeBars(b []byte) ([]models.BarMessage, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var msgs []models.BarMessage
		if err := json.Unmarshal(b, &msgs); err != nil {
			return nil, fmt.Errorf("%w: decode bars: %v", pkgkafka.ErrPermanent, err)
		}
		return msgs, nil
	}
	var m models.BarMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: decode bar: %v", pkgkafka.ErrPermanent, err)
	}
	return []models.BarMessage{m}, nil
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
