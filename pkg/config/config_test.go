package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "memory", c.Source.Type)
	assert.Equal(t, []int{5, 20, 60, 120}, c.Chart.Indicators.MAPeriods)
	assert.Equal(t, 14, c.Chart.Indicators.RSIPeriod)
	assert.Equal(t, 26, c.Chart.Indicators.MACDSlow)
	assert.InDelta(t, 0.7, c.Chart.Viewport.ZoomIn, 1e-9)
	assert.InDelta(t, 64, c.Chart.Viewport.Margins.Right, 1e-9)
	assert.Equal(t, "segment", c.Chart.TrendLine)
	assert.Equal(t, 30*time.Minute, c.Sessions.IdleTTL)
	assert.Equal(t, "@every 1m", c.Sessions.SweepSchedule)
	assert.Nil(t, c.Chart.Styles)
	assert.True(t, c.Development())
}

func TestParse_Overrides(t *testing.T) {
	yml := `
environment: production
server:
  port: 9090
chart:
  trendline_mode: midpoint
  indicators:
    ma_periods: [10, 30]
    rsi_smoothing: wilder
source:
  type: sqlite
sqlite:
  path: /tmp/bars.db
`
	c, err := Parse([]byte(yml))
	require.NoError(t, err)

	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "midpoint", c.Chart.TrendLine)
	assert.Equal(t, []int{10, 30}, c.Chart.Indicators.MAPeriods)
	assert.Equal(t, "wilder", c.Chart.Indicators.RSISmoothing)
	assert.Equal(t, "/tmp/bars.db", c.SQLite.Path)
	assert.False(t, c.Development())
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad source":     "source:\n  type: mongo\n",
		"bad trendline":  "chart:\n  trendline_mode: ray\n",
		"http no url":    "source:\n  type: http\n",
		"kafka no peers": "kafka:\n  enabled: true\n",
		"macd order":     "chart:\n  indicators:\n    macd_fast: 30\n    macd_slow: 20\n",
		"too many MAs":   "chart:\n  indicators:\n    ma_periods: [1, 2, 3, 4, 5]\n",
		"bad yaml":       "server: [",
	}
	for name, yml := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(yml))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: staging\n"), 0o600))

	t.Setenv("FINCHART_PORT", "7070")
	t.Setenv("FINCHART_LOG_LEVEL", "debug")
	t.Setenv("FINCHART_KAFKA_ENABLED", "true")
	t.Setenv("FINCHART_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("FINCHART_SESSION_IDLE_TTL", "5m")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", c.Environment)
	assert.Equal(t, 7070, c.Server.Port)
	assert.Equal(t, "debug", c.Log.Level)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, 5*time.Minute, c.Sessions.IdleTTL)
}

func TestLoadWithEnv_InvalidOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))

	t.Setenv("FINCHART_SOURCE_TYPE", "oracle")

	_, err := LoadWithEnv(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_ShippedConfig(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "memory", c.Source.Type)
	assert.False(t, c.Kafka.Enabled)
	assert.Equal(t, -1, c.Kafka.Producer.RequiredAcks)
	assert.Equal(t, "snappy", c.Kafka.Producer.Compression)
	assert.Equal(t, "finchart.bars.dlq", c.Kafka.Consumer.DLQTopic)
	assert.Equal(t, 10, c.Sessions.RenderBurst)
}
