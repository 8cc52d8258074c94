//go:build wireinject
// +build wireinject

package di

import (
	"RiskPulse/pkg/config"
	"RiskPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideClickHouseClient,

		// Repositories
		ProvideFeatureStore,
		ProvideAuditLog,

		// Core services
		ProvideAggregator,
		ProvideScorer,
		ProvideDecisionEngine,

		// Stream / ingest path
		ProvideIngestPipeline,
		ProvideTransactionHandler,
		ProvideIngestProcessor,

		// HTTP surface and application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
