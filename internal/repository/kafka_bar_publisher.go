package repository

import (
	"context"

	"FinChart/internal/domain/models"
	domrepo "FinChart/internal/domain/repository"
	pkgkafka "FinChart/pkg/kafka"
)

// KafkaBarPublisher writes bars to the ingestion topic, keyed by symbol so a
// symbol's bars stay ordered within one partition.
type KafkaBarPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaBarPublisher(producer *pkgkafka.Producer, topic string) *KafkaBarPublisher {
	return &KafkaBarPublisher{producer: producer, topic: topic}
}

func (p *KafkaBarPublisher) PublishBars(ctx context.Context, bars []models.Bar) error {
	msgs := make([]pkgkafka.Message, 0, len(bars))
	for _, b := range bars {
		b.Symbol = normalizeSymbol(b.Symbol)
		if b.Validate() != nil {
			continue
		}
		msg := models.NewBarMessage(b)
		msgs = append(msgs, pkgkafka.Message{
			Key:   []byte(msg.Symbol),
			Value: msg,
		})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaBarPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ domrepo.BarPublisher = (*KafkaBarPublisher)(nil)
