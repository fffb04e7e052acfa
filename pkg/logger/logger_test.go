package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.DebugLevel).Component("sessions")

	l.Info("chart session opened",
		String("symbol", "AAPL"),
		Int("candles", 31),
		Uint64("generation", 3),
		Float64("last_close", 60.5),
		Bool("kafka_consumer", true),
		Strings("brokers", []string{"a:9092", "b:9092"}),
		Duration("took", 1500*time.Millisecond),
		Error(errors.New("boom")),
	)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "info", got["level"])
	assert.Equal(t, "chart session opened", got["message"])
	assert.Equal(t, "sessions", got["component"])
	assert.Equal(t, "AAPL", got["symbol"])
	assert.EqualValues(t, 31, got["candles"])
	assert.EqualValues(t, 3, got["generation"])
	assert.EqualValues(t, 60.5, got["last_close"])
	assert.Equal(t, true, got["kafka_consumer"])
	assert.Equal(t, "a:9092, b:9092", got["brokers"])
	assert.EqualValues(t, 1500, got["took"])
	assert.Equal(t, "boom", got["error"])
}

func TestLevelFilterAndNop(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.InfoLevel)
	l.Debug("hidden")
	assert.Zero(t, buf.Len())

	NewNop().Error("discarded", Error(errors.New("x")))
	var nilLogger *Logger
	assert.NotNil(t, nilLogger.With(String("k", "v")))
}
