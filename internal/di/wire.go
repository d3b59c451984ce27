//go:build wireinject
// +build wireinject

package di

import (
	"CreditPulse/internal/domain/repository"
	internalrepo "CreditPulse/internal/repository"
	"CreditPulse/pkg/config"
	"CreditPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application with
// a cleanup that releases them in reverse order.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideInputStore,
		wire.Bind(new(repository.InputSource), new(*internalrepo.CHInputStore)),
		wire.Bind(new(repository.ReturnsSource), new(*internalrepo.CHInputStore)),
		ProvideHistoryCache,
		ProvideHistoryStore,
		ProvideResultSink,

		// Use cases
		ProvideEngine,
		ProvideAnalysisOptions,
		ProvideAnalysisRunner,
		ProvideInputGate,
		ProvideKafkaInputsHandler,

		// HTTP
		ProvideOpsHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return nil, nil, nil
}
