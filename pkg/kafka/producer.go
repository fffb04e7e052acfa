package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	applogger "FinChart/pkg/logger"
)

// Producer wraps a Kafka writer.
type Producer struct {
	writer  *kafka.Writer
	comp    string
	metrics *producerMetrics
	l       *applogger.Logger

	closeOnce sync.Once
	closeErr  error
}

// Message is a keyed value to publish. Values other than []byte and string
// are JSON encoded.
type Message struct {
	Key   []byte
	Value interface{}
}

// NewProducer creates a new Kafka producer.
func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := &ProducerConfig{
		RequiredAcks: -1,
		Compression:  "snappy",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchSize:    100,
		BatchBytes:   1 << 20,
		BatchTimeout: 50 * time.Millisecond,
		HashByKey:    true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	comp, err := parseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	bal := kafka.Balancer(&kafka.LeastBytes{})
	if cfg.HashByKey {
		bal = &kafka.Hash{}
	}
	l := cfg.Logger
	if l == nil {
		l = applogger.NewNop()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     bal,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  comp,
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
	}
	p := &Producer{writer: writer, comp: cfg.Compression, metrics: newProducerMetrics(cfg.Registerer), l: l.Component("kafka_producer")}
	if cfg.Async {
		writer.Completion = func(msgs []kafka.Message, err error) {
			if err != nil {
				p.l.Error("async publish failed", applogger.Int("messages", len(msgs)), applogger.Error(err))
			}
		}
	}
	return p, nil
}

// Publish sends one message to topic.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishBatch sends messages to topic in one write.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	start := time.Now()
	now := start.UTC()
	msgs := make([]kafka.Message, 0, len(messages))
	var total int
	for _, m := range messages {
		v, err := encodeValue(m.Value)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{Topic: topic, Key: m.Key, Value: v, Time: now})
		total += len(v)
	}

	err := p.writer.WriteMessages(ctx, msgs...)
	p.observe(topic, total, len(msgs), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("publish %d messages to %s: %w", len(msgs), topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
// Close flushes and closes the writer. Further calls return the first result.
func (p *Producer) Close() error {
	p.closeOnce.Do(func() {
		if p.writer != nil {
			p.closeErr = p.writer.Close()
		}
	})
	return p.closeErr
}

func (p *Producer) observe(topic string, bytes, count int, dur time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.metrics.messages.WithLabelValues(topic, p.comp, result).Add(float64(count))
	p.metrics.bytes.WithLabelValues(topic, p.comp).Add(float64(bytes))
	p.metrics.seconds.WithLabelValues(topic).Observe(dur.Seconds())
}

func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		return b, nil
	}
}

func parseCompression(s string) (kafka.Compression, error) {
	switch s {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}
