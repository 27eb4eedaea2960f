//go:build wireinject
// +build wireinject

package di

import (
	"WhalePulse/pkg/config"
	"WhalePulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Storage and transport
		ProvideArchive,
		ProvideEventPublisher,
		ProvideRecordStore,
		ProvideBytesCache,

		// Core pipeline
		ProvideLedger,
		ProvideHub,
		ProvideThrottler,
		ProvideAlertChannels,
		ProvideDispatcher,
		ProvideSink,
		ProvideController,
		ProvideNormalizer,
		ProvideScorer,
		ProvideCycle,
		ProvideMessageHandlers,

		// Surfaces
		ProvideHTTPHandler,
		ProvideApp,
	)
	return nil, nil
}
