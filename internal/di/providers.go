package di

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	domrepo "FinChart/internal/domain/repository"
	"FinChart/internal/handler/api"
	mid "FinChart/internal/middleware"
	"FinChart/internal/render"
	internalrepo "FinChart/internal/repository"
	"FinChart/internal/service/ratelimit"
	"FinChart/internal/services/chart"
	"FinChart/internal/services/drawing"
	"FinChart/internal/services/series"
	"FinChart/internal/usecase"
	"FinChart/pkg/cache"
	pkgch "FinChart/pkg/clickhouse"
	"FinChart/pkg/config"
	xhttp "FinChart/pkg/http"
	pkgkafka "FinChart/pkg/kafka"
	applogger "FinChart/pkg/logger"
	"FinChart/pkg/metrics"
	"FinChart/pkg/server"
)

// Caches is the series cache backend plus the Redis client behind it, if any.
type Caches struct {
	Service cache.Service
	Redis   *cache.RedisCache
}

// Storage is where bars live. Store is nil when charts read from an upstream
// HTTP service and nothing can be written locally.
type Storage struct {
	Source domrepo.TickSource
	Store  domrepo.TickStorage
}

// ProvideLogger builds the root logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideRegistry creates the process-wide Prometheus registry.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) domrepo.Metrics {
	return metrics.New(reg)
}

// ProvideCaches builds the series cache backend named by cache.type.
func ProvideCaches(cfg *config.Config, l *applogger.Logger) (*Caches, func(), error) {
	c := &Caches{}
	switch cfg.Cache.Type {
	case "none":
		return c, func() {}, nil
	case "layered":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		rc, err := cache.NewRedisCache(ctx,
			cache.WithRedisAddr(cfg.Cache.Redis.Addr),
			cache.WithRedisPassword(cfg.Cache.Redis.Password),
			cache.WithRedisDB(cfg.Cache.Redis.DB),
			cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
			cache.WithRedisPool(cfg.Cache.Redis.PoolSize, cfg.Cache.Redis.MinIdleConns, cfg.Cache.Redis.PoolTimeout),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		c.Redis = rc
		c.Service = cache.NewLayeredCache(rc, cfg.Cache.MaxSize, cfg.Cache.TTL/4)
		l.Info("series cache: layered", applogger.String("redis", cfg.Cache.Redis.Addr))
	default:
		c.Service = cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MaxSize),
			cache.WithMemoryDefaultTTL(cfg.Cache.TTL),
		)
		l.Info("series cache: memory", applogger.Int("max_size", cfg.Cache.MaxSize))
	}
	cleanup := func() {
		if err := c.Service.Close(); err != nil {
			l.Warn("cache close error", applogger.Error(err))
		}
	}
	return c, cleanup, nil
}

// ProvideSeriesCache wraps the cache backend for aggregated series.
func ProvideSeriesCache(cfg *config.Config, c *Caches, m domrepo.Metrics, l *applogger.Logger) domrepo.SeriesCache {
	if c.Service == nil {
		return internalrepo.NopSeriesCache{}
	}
	return internalrepo.NewSeriesCache(c.Service, cfg.Cache.TTL, m, l.Component("series_cache"))
}

// ProvideStorage opens the bar store named by source.type.
func ProvideStorage(cfg *config.Config, l *applogger.Logger) (*Storage, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var (
		store   domrepo.TickStorage
		closeCH func() error
	)
	switch cfg.Source.Type {
	case "http":
		client := xhttp.NewClient(xhttp.WithTimeout(cfg.Source.Timeout))
		l.Info("tick source: http", applogger.String("base_url", cfg.Source.BaseURL))
		return &Storage{Source: internalrepo.NewHTTPTickSource(cfg.Source.BaseURL, client)}, func() {}, nil
	case "clickhouse":
		ch, err := pkgch.NewClient(ctx,
			pkgch.WithHost(cfg.ClickHouse.Host),
			pkgch.WithPort(cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, true),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
			pkgch.WithMaxConnections(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns),
			pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecTime),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		closeCH = ch.Close
		store = internalrepo.NewClickHouseBarStore(ch, cfg.ClickHouse.Table, l.Component("clickhouse"))
	case "sqlite":
		s, err := internalrepo.NewSQLiteBarStore(cfg.SQLite.Path, l.Component("sqlite"))
		if err != nil {
			return nil, nil, err
		}
		store = s
	default:
		mem := internalrepo.NewMemoryBarStore()
		if cfg.Source.SeedFile != "" {
			if err := mem.LoadFile(ctx, cfg.Source.SeedFile); err != nil {
				return nil, nil, err
			}
			l.Info("memory store seeded", applogger.String("file", cfg.Source.SeedFile))
		}
		store = mem
	}

	cleanup := func() {
		if err := store.Close(); err != nil {
			l.Warn("bar store close error", applogger.Error(err))
		}
		if closeCH != nil {
			if err := closeCH(); err != nil {
				l.Warn("clickhouse close error", applogger.Error(err))
			}
		}
	}
	if err := store.Init(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init %s store: %w", cfg.Source.Type, err)
	}
	l.Info("bar store ready", applogger.String("type", cfg.Source.Type))
	return &Storage{Source: store, Store: store}, cleanup, nil
}

// ProvideAggregator creates the series aggregator.
func ProvideAggregator(l *applogger.Logger) *series.Aggregator {
	return series.NewAggregator(series.WithLogger(l.Component("series")))
}

// ProvideChartConfig maps the chart section to engine parameters.
func ProvideChartConfig(cfg *config.Config) chart.Config {
	return chart.Config{
		Indicators: cfg.Chart.Indicators,
		Viewport:   cfg.Chart.Viewport,
		TrendLine:  drawing.TrendLineMode(cfg.Chart.TrendLine),
		Styles:     cfg.Chart.Styles,
	}
}

// ProvideRenderLimiter bounds PNG renders per session.
func ProvideRenderLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Sessions.RenderRate, cfg.Sessions.RenderBurst)
}

// ProvideChartSessions creates the session registry.
func ProvideChartSessions(
	cfg *config.Config,
	st *Storage,
	agg *series.Aggregator,
	chartCfg chart.Config,
	sc domrepo.SeriesCache,
	m domrepo.Metrics,
	limiter *ratelimit.Limiter,
	l *applogger.Logger,
) *usecase.ChartSessions {
	return usecase.NewChartSessions(st.Source, agg, render.Factory, chartCfg,
		usecase.WithSessionsLogger(l.Component("sessions")),
		usecase.WithSessionsMetrics(m),
		usecase.WithSeriesCache(sc),
		usecase.WithMaxSessions(cfg.Sessions.MaxSessions),
		usecase.WithDefaultSize(cfg.Chart.Width, cfg.Chart.Height),
		usecase.WithOnClose(limiter.Forget),
	)
}

// ProvideBarPipeline puts the retrying pipeline in front of a writable store.
func ProvideBarPipeline(st *Storage, m domrepo.Metrics, l *applogger.Logger) *mid.BarPipeline {
	if st.Store == nil {
		return nil
	}
	return mid.NewBarPipeline(st.Store, m, mid.WithPipelineLogger(l))
}

// ProvideKafkaProducer creates the ingestion producer when POST /api/bars
// publishes to Kafka. The cleanup is safe after the ingestor closed it.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry, l *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.PublishIngest {
		return nil, func() {}, nil
	}
	p := cfg.Kafka.Producer
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(p.Compression),
		pkgkafka.WithRequiredAcks(p.RequiredAcks),
		pkgkafka.WithMaxAttempts(p.MaxAttempts),
		pkgkafka.WithBatch(p.BatchSize, p.BatchTimeout),
		pkgkafka.WithAsync(p.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerRegisterer(reg),
		pkgkafka.WithProducerLogger(l),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	l.Info("kafka producer ready", applogger.Strings("brokers", cfg.Kafka.Brokers), applogger.String("topic", cfg.Kafka.Topic))
	cleanup := func() {
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	return producer, cleanup, nil
}

// ProvideBarIngestor routes pushed bars to Kafka or through the pipeline into
// storage. It is nil when neither is available.
func ProvideBarIngestor(
	cfg *config.Config,
	producer *pkgkafka.Producer,
	pipeline *mid.BarPipeline,
	sessions *usecase.ChartSessions,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.BarIngestor {
	var pub domrepo.BarPublisher
	if producer != nil {
		pub = internalrepo.NewKafkaBarPublisher(producer, cfg.Kafka.Topic)
	}
	var w usecase.BarWriter
	if pipeline != nil {
		w = pipeline
	}
	if pub == nil && w == nil {
		return nil
	}
	return usecase.NewBarIngestor(pub, w, sessions, m, l.Component("ingest"))
}

// ProvideKafkaConsumer creates the bar consumer; nil when Kafka is disabled
// or there is no store to write to.
func ProvideKafkaConsumer(cfg *config.Config, st *Storage, reg *prometheus.Registry, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || st.Store == nil {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerWorkers(c.Workers),
		pkgkafka.WithConsumerBufferSize(c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
		pkgkafka.WithConsumerFetch(c.MinBytes, c.MaxBytes),
		pkgkafka.WithConsumerRegisterer(reg),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.TracingHook())
	return consumer, nil
}

// ProvideKafkaTicksHandler builds the handler for the bar topic.
func ProvideKafkaTicksHandler(
	cfg *config.Config,
	consumer *pkgkafka.Consumer,
	st *Storage,
	sessions *usecase.ChartSessions,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.KafkaTicksHandler {
	if consumer == nil {
		return nil
	}
	return usecase.NewKafkaTicksHandler(cfg.Kafka.Topic, st.Store, sessions, m, l.Component("kafka_bars"))
}

// ProvideSessionReaper schedules the idle-session sweep.
func ProvideSessionReaper(cfg *config.Config, sessions *usecase.ChartSessions, l *applogger.Logger) (*usecase.SessionReaper, error) {
	return usecase.NewSessionReaper(sessions, cfg.Sessions.SweepSchedule, cfg.Sessions.IdleTTL, l.Component("reaper"))
}

// ProvideHealthChecks lists the dependencies /healthz probes.
func ProvideHealthChecks(st *Storage, c *Caches) map[string]api.HealthChecker {
	checks := make(map[string]api.HealthChecker)
	if st.Store != nil {
		checks["store"] = api.HealthCheckerFunc(st.Store.Health)
	}
	if c.Redis != nil {
		checks["redis"] = api.HealthCheckerFunc(func(ctx context.Context) error {
			return c.Redis.Client().Ping(ctx).Err()
		})
	}
	return checks
}

// ProvideHandlers assembles the HTTP handlers.
func ProvideHandlers(
	cfg *config.Config,
	sessions *usecase.ChartSessions,
	limiter *ratelimit.Limiter,
	ingestor *usecase.BarIngestor,
	checks map[string]api.HealthChecker,
	l *applogger.Logger,
) []xhttp.Handler {
	stream := api.StreamConfig{CheckOrigin: originChecker(cfg.Server.AllowOrigins)}
	return []xhttp.Handler{
		api.NewChartsHandler(l, sessions, limiter, stream),
		api.NewSystemHandler(l, ingestor, sessions, checks),
	}
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, handlers []xhttp.Handler, reg *prometheus.Registry, l *applogger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithAllowOrigins(cfg.Server.AllowOrigins),
		xhttp.WithLogger(l),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(reg, reg, cfg.Metrics.Path))
	}
	return xhttp.NewServer(handlers, opts...)
}

// ProvideApp creates the application.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	sessions *usecase.ChartSessions,
	reaper *usecase.SessionReaper,
	pipeline *mid.BarPipeline,
	ingestor *usecase.BarIngestor,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTicksHandler,
) *server.App {
	return server.New(cfg, l, httpServer, sessions,
		server.WithReaper(reaper),
		server.WithPipeline(pipeline),
		server.WithIngestor(ingestor),
		server.WithConsumer(consumer, kh),
	)
}

// originChecker mirrors the CORS allow list for websocket upgrades.
func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
