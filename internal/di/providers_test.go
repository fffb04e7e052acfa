package di

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinChart/pkg/config"
	applogger "FinChart/pkg/logger"
)

func TestProvideKafkaProducer_Cleanup(t *testing.T) {
	cfg := &config.Config{}
	l := applogger.NewNop()

	p, cleanup, err := ProvideKafkaProducer(cfg, prometheus.NewRegistry(), l)
	require.NoError(t, err)
	assert.Nil(t, p, "disabled without kafka.publish_ingest")
	require.NotNil(t, cleanup)
	cleanup()

	cfg.Kafka.Enabled = true
	cfg.Kafka.PublishIngest = true
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Kafka.Producer.Compression = "none"
	cfg.Kafka.Producer.RequiredAcks = 1
	cfg.Kafka.Producer.MaxAttempts = 1
	cfg.Kafka.Producer.BatchSize = 1
	cfg.Kafka.Producer.BatchTimeout = time.Millisecond

	p, cleanup, err = ProvideKafkaProducer(cfg, prometheus.NewRegistry(), l)
	require.NoError(t, err)
	require.NotNil(t, p)
	cleanup()
	assert.NoError(t, p.Close(), "the ingestor may close it again at shutdown")
}

func TestOriginChecker(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/api/charts/x/stream", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.True(t, originChecker([]string{"*"})(req("https://evil.example")))

	check := originChecker([]string{"https://app.example"})
	assert.True(t, check(req("https://app.example")))
	assert.True(t, check(req("")), "non-browser clients send no origin")
	assert.False(t, check(req("https://evil.example")))
}
