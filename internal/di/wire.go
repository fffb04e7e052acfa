//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"FinChart/pkg/config"
	"FinChart/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application with
// a cleanup that releases the stores and caches.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,

		// Infrastructure
		ProvideCaches,
		ProvideSeriesCache,
		ProvideStorage,

		// Chart engine
		ProvideAggregator,
		ProvideChartConfig,
		ProvideRenderLimiter,
		ProvideChartSessions,
		ProvideSessionReaper,

		// Ingestion
		ProvideBarPipeline,
		ProvideKafkaProducer,
		ProvideBarIngestor,
		ProvideKafkaConsumer,
		ProvideKafkaTicksHandler,

		// HTTP
		ProvideHealthChecks,
		ProvideHandlers,
		ProvideHTTPServer,

		ProvideApp,
	)
	return nil, nil, nil
}
