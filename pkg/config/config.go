package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"FinChart/internal/services/drawing"
	"FinChart/internal/services/indicators"
	"FinChart/internal/services/viewport"
	"FinChart/pkg/logger"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"oneof=development staging production test"`

	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		AllowOrigins    []string      `yaml:"allow_origins" default:"[\"*\"]"`
	} `yaml:"server"`

	Log logger.Config `yaml:"log"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Chart ChartConfig `yaml:"chart"`

	Source struct {
		Type string `yaml:"type" default:"memory" validate:"oneof=memory clickhouse sqlite http"`
		// SeedFile optionally preloads the memory store with JSON bars.
		SeedFile string        `yaml:"seed_file"`
		BaseURL  string        `yaml:"base_url" validate:"required_if=Type http"`
		Timeout  time.Duration `yaml:"timeout" default:"10s"`
	} `yaml:"source"`

	Cache struct {
		Type    string        `yaml:"type" default:"memory" validate:"oneof=memory layered none"`
		TTL     time.Duration `yaml:"ttl" default:"1m"`
		MaxSize int           `yaml:"max_size" default:"512" validate:"gt=0"`
		Redis   struct {
			Addr         string        `yaml:"addr" default:"localhost:6379"`
			Password     string        `yaml:"password"`
			DB           int           `yaml:"db"`
			Prefix       string        `yaml:"prefix" default:"finchart"`
			PoolSize     int           `yaml:"pool_size" default:"10" validate:"gt=0"`
			MinIdleConns int           `yaml:"min_idle_conns" default:"2" validate:"gte=0"`
			PoolTimeout  time.Duration `yaml:"pool_timeout" default:"4s"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Kafka struct {
		Enabled  bool     `yaml:"enabled"`
		Brokers  []string `yaml:"brokers" validate:"required_if=Enabled true"`
		Topic    string   `yaml:"topic" default:"finchart.bars"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"finchart"`
			Workers    int           `yaml:"workers" default:"4" validate:"gt=0"`
			BufferSize int           `yaml:"buffer_size" default:"256" validate:"gt=0"`
			RetryMax   int           `yaml:"retry_max" default:"3" validate:"gte=0"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
		// Producer backs POST /api/bars when PublishIngest is set; bars then
		// reach storage through the consumer instead of being stored inline.
		PublishIngest bool `yaml:"publish_ingest"`
		Producer      struct {
			RequiredAcks int           `yaml:"required_acks" default:"-1" validate:"oneof=-1 0 1"`
			Compression  string        `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
			MaxAttempts  int           `yaml:"max_attempts" default:"3" validate:"gt=0"`
			BatchSize    int           `yaml:"batch_size" default:"100" validate:"gt=0"`
			BatchTimeout time.Duration `yaml:"batch_timeout" default:"50ms"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`

	ClickHouse struct {
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"default"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		UseHTTP      bool          `yaml:"use_http"`
		AsyncInsert  bool          `yaml:"async_insert"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
		MaxOpenConns int           `yaml:"max_open_conns" default:"10" validate:"gt=0"`
		MaxIdleConns int           `yaml:"max_idle_conns" default:"5" validate:"gte=0"`
		MaxExecTime  time.Duration `yaml:"max_execution_time" default:"60s"`
		Table        string        `yaml:"table" default:"bars" validate:"required"`
	} `yaml:"clickhouse"`

	SQLite struct {
		Path string `yaml:"path" default:"finchart.db"`
	} `yaml:"sqlite"`

	Sessions struct {
		IdleTTL       time.Duration `yaml:"idle_ttl" default:"30m" validate:"gt=0"`
		SweepSchedule string        `yaml:"sweep_schedule" default:"@every 1m" validate:"required"`
		MaxSessions   int           `yaml:"max_sessions" default:"1000" validate:"gt=0"`
		RenderRate    float64       `yaml:"render_rate" default:"5" validate:"gt=0"`
		RenderBurst   int           `yaml:"render_burst" default:"10" validate:"gt=0"`
	} `yaml:"sessions"`
}

// ChartConfig holds the engine parameters shared by every session.
type ChartConfig struct {
	Width      int               `yaml:"width" default:"800" validate:"gt=0"`
	Height     int               `yaml:"height" default:"480" validate:"gt=0"`
	Indicators indicators.Config `yaml:"indicators"`
	Viewport   viewport.Config   `yaml:"viewport"`
	TrendLine  string            `yaml:"trendline_mode" default:"segment" validate:"oneof=segment midpoint"`
	Styles     *drawing.Styles   `yaml:"styles"`
}

// envOverrides is decoded from FINCHART_* variables. Zero values leave the
// YAML value untouched.
type envOverrides struct {
	Environment  string        `envconfig:"ENVIRONMENT"`
	Port         int           `envconfig:"PORT"`
	LogLevel     string        `envconfig:"LOG_LEVEL"`
	LogFormat    string        `envconfig:"LOG_FORMAT"`
	SourceType   string        `envconfig:"SOURCE_TYPE"`
	SourceURL    string        `envconfig:"SOURCE_URL"`
	CacheType    string        `envconfig:"CACHE_TYPE"`
	RedisAddr    string        `envconfig:"REDIS_ADDR"`
	RedisPass    string        `envconfig:"REDIS_PASSWORD"`
	KafkaEnabled *bool         `envconfig:"KAFKA_ENABLED"`
	KafkaBrokers []string      `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string        `envconfig:"KAFKA_TOPIC"`
	CHHost       string        `envconfig:"CLICKHOUSE_HOST"`
	CHPassword   string        `envconfig:"CLICKHOUSE_PASSWORD"`
	SQLitePath   string        `envconfig:"SQLITE_PATH"`
	IdleTTL      time.Duration `envconfig:"SESSION_IDLE_TTL"`
}

var validate = validator.New()

// Parse decodes YAML, fills defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A .env file next to the process is loaded first when present.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	var env envOverrides
	if err := envconfig.Process("FINCHART", &env); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	c.apply(env)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) apply(e envOverrides) {
	setString(&c.Environment, e.Environment)
	setString(&c.Log.Level, e.LogLevel)
	setString(&c.Log.Format, e.LogFormat)
	setString(&c.Source.Type, e.SourceType)
	setString(&c.Source.BaseURL, e.SourceURL)
	setString(&c.Cache.Type, e.CacheType)
	setString(&c.Cache.Redis.Addr, e.RedisAddr)
	setString(&c.Cache.Redis.Password, e.RedisPass)
	setString(&c.Kafka.Topic, e.KafkaTopic)
	setString(&c.ClickHouse.Host, e.CHHost)
	setString(&c.ClickHouse.Password, e.CHPassword)
	setString(&c.SQLite.Path, e.SQLitePath)
	if e.Port > 0 {
		c.Server.Port = e.Port
	}
	if e.KafkaEnabled != nil {
		c.Kafka.Enabled = *e.KafkaEnabled
	}
	if len(e.KafkaBrokers) > 0 {
		c.Kafka.Brokers = e.KafkaBrokers
	}
	if e.IdleTTL > 0 {
		c.Sessions.IdleTTL = e.IdleTTL
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if p := c.Chart.Indicators.MAPeriods; len(p) == 0 {
		return fmt.Errorf("chart.indicators.ma_periods cannot be empty")
	}
	if c.Chart.Viewport.ZoomIn >= 1 || c.Chart.Viewport.ZoomOut <= 1 {
		return fmt.Errorf("chart.viewport zoom factors must shrink in and grow out")
	}
	return nil
}

// Development reports a non-production environment.
func (c *Config) Development() bool {
	return c.Environment == "development" || c.Environment == "test"
}
