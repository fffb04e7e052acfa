package kafka

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type consumerMetrics struct {
	queueDepth    *prometheus.GaugeVec
	handleSeconds *prometheus.HistogramVec
	handled       *prometheus.CounterVec
}

type producerMetrics struct {
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	seconds  *prometheus.HistogramVec
}

func newConsumerMetrics(reg prometheus.Registerer) *consumerMetrics {
	return &consumerMetrics{
		queueDepth: register(reg, prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "finchart_kafka_consumer_queue_depth", Help: "Messages waiting for a consumer worker"},
			[]string{"topic"},
		)),
		handleSeconds: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "finchart_kafka_consumer_handle_seconds", Help: "Handling time per message including retries", Buckets: prometheus.DefBuckets},
			[]string{"topic"},
		)),
		handled: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "finchart_kafka_consumer_messages_total", Help: "Consumed messages by result"},
			[]string{"topic", "result"},
		)),
	}
}

func newProducerMetrics(reg prometheus.Registerer) *producerMetrics {
	return &producerMetrics{
		messages: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "finchart_kafka_producer_messages_total", Help: "Messages published by result"},
			[]string{"topic", "compression", "result"},
		)),
		bytes: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "finchart_kafka_producer_bytes_total", Help: "Payload bytes published"},
			[]string{"topic", "compression"},
		)),
		seconds: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "finchart_kafka_producer_publish_seconds", Help: "Publish latency", Buckets: prometheus.DefBuckets},
			[]string{"topic"},
		)),
	}
}

// register returns the collector already registered under the same name when
// several clients share one registry. A nil registry leaves c unregistered.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
