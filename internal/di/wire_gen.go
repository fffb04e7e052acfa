//go:build !wireinject
// +build !wireinject

// Injector for wire.go, kept in the layout `wire` emits; `go generate` replaces
// it with the generated file.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire

package di

import (
	"FinChart/pkg/config"
	"FinChart/pkg/server"
)

// Injectors from wire.go:

// InitializeApp wires up all dependencies and returns the application with
// a cleanup that releases the stores and caches.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	caches, cleanup, err := ProvideCaches(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	registry := ProvideRegistry()
	metrics := ProvideMetrics(registry)
	seriesCache := ProvideSeriesCache(cfg, caches, metrics, logger)
	storage, cleanup2, err := ProvideStorage(cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	aggregator := ProvideAggregator(logger)
	chartConfig := ProvideChartConfig(cfg)
	limiter := ProvideRenderLimiter(cfg)
	chartSessions := ProvideChartSessions(cfg, storage, aggregator, chartConfig, seriesCache, metrics, limiter, logger)
	producer, cleanup3, err := ProvideKafkaProducer(cfg, registry, logger)
	if err != nil {
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	barPipeline := ProvideBarPipeline(storage, metrics, logger)
	barIngestor := ProvideBarIngestor(cfg, producer, barPipeline, chartSessions, metrics, logger)
	v := ProvideHealthChecks(storage, caches)
	v2 := ProvideHandlers(cfg, chartSessions, limiter, barIngestor, v, logger)
	httpServer := ProvideHTTPServer(cfg, v2, registry, logger)
	sessionReaper, err := ProvideSessionReaper(cfg, chartSessions, logger)
	if err != nil {
		cleanup3()
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	consumer, err := ProvideKafkaConsumer(cfg, storage, registry, logger)
	if err != nil {
		cleanup3()
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	kafkaTicksHandler := ProvideKafkaTicksHandler(cfg, consumer, storage, chartSessions, metrics, logger)
	app := ProvideApp(cfg, logger, httpServer, chartSessions, sessionReaper, barPipeline, barIngestor, consumer, kafkaTicksHandler)
	return app, func() {
		cleanup3()
		cleanup2()
		cleanup()
	}, nil
}
