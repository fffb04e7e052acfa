package middleware

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"FinChart/internal/domain/models"
	domrepo "FinChart/internal/domain/repository"
	applogger "FinChart/pkg/logger"
)

// BarSink is the downstream the pipeline writes to.
type BarSink interface {
	StoreBatch(ctx context.Context, bars []models.Bar) error
}

// BarPipeline sits between bar producers and the store. It validates and
// normalizes bars, and when the store rejects a batch it keeps the batch in a
// bounded buffer that is retried in the background. Stores upsert on
// (symbol, interval, time), so a retried batch never duplicates rows.
type BarPipeline struct {
	sink    BarSink
	metrics domrepo.Metrics
	l       *applogger.Logger

	bufSize    int
	bufCh      chan []models.Bar
	stopCh     chan struct{}
	done       chan struct{}
	started    bool
	stopped    bool
	mu         sync.Mutex
	backoffMin time.Duration
	backoffMax time.Duration

	transform func(models.Bar) models.Bar
}

type PipelineOption func(*BarPipeline)

// WithBufferSize sets how many failed batches are kept for retry.
func WithBufferSize(n int) PipelineOption {
	return func(p *BarPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithBackoff bounds the wait between retries of a failed batch.
func WithBackoff(min, max time.Duration) PipelineOption {
	return func(p *BarPipeline) {
		if min > 0 && max >= min {
			p.backoffMin, p.backoffMax = min, max
		}
	}
}

// WithTransform replaces the default normalization (trimmed, upper-case symbol).
func WithTransform(fn func(models.Bar) models.Bar) PipelineOption {
	return func(p *BarPipeline) { p.transform = fn }
}

func WithPipelineLogger(l *applogger.Logger) PipelineOption {
	return func(p *BarPipeline) {
		if l != nil {
			p.l = l
		}
	}
}

func NewBarPipeline(sink BarSink, metrics domrepo.Metrics, opts ...PipelineOption) *BarPipeline {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	p := &BarPipeline{
		sink:       sink,
		metrics:    metrics,
		l:          applogger.NewNop(),
		bufSize:    64,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
		transform:  normalizeBar,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan []models.Bar, p.bufSize)
	p.l = p.l.Component("bar_pipeline")
	return p
}

// Start launches the background retry loop. A pipeline starts at most once.
func (p *BarPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.retryLoop(ctx)
}

func (p *BarPipeline) retryLoop(ctx context.Context) {
	defer close(p.done)
	backoff := p.backoffMin
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case bars := <-p.bufCh:
			if err := p.sink.StoreBatch(ctx, bars); err != nil {
				p.metrics.RecordError("pipeline_retry")
				p.l.Warn("buffered batch retry failed",
					applogger.Int("bars", len(bars)), applogger.Duration("backoff_ms", backoff), applogger.Error(err))
				select {
				case p.bufCh <- bars:
				default:
					p.metrics.RecordError("pipeline_buffer_drop")
					p.l.Error("bar buffer full, batch dropped", applogger.Int("bars", len(bars)))
				}
				select {
				case <-time.After(backoff):
				case <-p.stopCh:
					return
				case <-ctx.Done():
					return
				}
				if backoff *= 2; backoff > p.backoffMax {
					backoff = p.backoffMax
				}
				continue
			}
			backoff = p.backoffMin
			p.l.Debug("buffered batch stored", applogger.Int("bars", len(bars)))
		}
	}
}

// Stop ends the retry loop and waits for it. Batches still buffered are
// reported and discarded.
func (p *BarPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.stopped = true
	p.mu.Unlock()
	close(p.stopCh)
	<-p.done
	if n := len(p.bufCh); n > 0 {
		p.l.Warn("discarding buffered batches on stop", applogger.Int("batches", n))
	}
}

// Buffered reports how many batches wait for a retry.
func (p *BarPipeline) Buffered() int { return len(p.bufCh) }

// StoreBatch validates, normalizes and forwards bars. Invalid bars are
// dropped; if no bar survives nothing is written. On a downstream error the
// batch is buffered for retry and the error is still returned.
func (p *BarPipeline) StoreBatch(ctx context.Context, bars []models.Bar) error {
	start := time.Now()
	clean := make([]models.Bar, 0, len(bars))
	for _, b := range bars {
		if p.transform != nil {
			b = p.transform(b)
		}
		if err := b.Validate(); err != nil {
			p.metrics.RecordError("pipeline_validate")
			p.l.Debug("bar dropped", applogger.String("symbol", b.Symbol), applogger.Error(err))
			continue
		}
		clean = append(clean, b)
	}
	if len(clean) == 0 {
		return nil
	}

	if err := p.sink.StoreBatch(ctx, clean); err != nil {
		p.metrics.RecordError("pipeline_store")
		select {
		case p.bufCh <- clean:
			p.l.Warn("store failed, batch buffered", applogger.Int("bars", len(clean)), applogger.Int("buffered", len(p.bufCh)))
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_store_seconds", time.Since(start).Seconds())
	return nil
}

func normalizeBar(b models.Bar) models.Bar {
	b.Symbol = strings.ToUpper(strings.TrimSpace(b.Symbol))
	b.Interval = strings.TrimSpace(b.Interval)
	return b
}
