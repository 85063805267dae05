//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"notemesh/infrastructure/config"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogLevel,
	ProvideLogger,
	ProvideAWSConfig,
	ProvideStorage,
	ProvideCanvasRepository,
	ProvideNotebookRepository,
	ProvideUsageTracker,
	ProvideConnectionRegistry,
	ProvideCollector,
	ProvideEventPublisher,
	ProvideChangeNotifier,
	ProvideLLMProvider,
	ProvideClusteringService,
	ProvideImprovementService,
	ProvideClusteringProvider,
	ProvideNoteImprover,
	ProvideCanvasService,
	ProvideNoteService,
	ProvideTokenVerifier,
	ProvideRateLimiters,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil
}

// FunctionSet provides the dependencies of the function Lambdas
var FunctionSet = wire.NewSet(
	ProvideLogLevel,
	ProvideLogger,
	ProvideAWSConfig,
	ProvideStorage,
	ProvideUsageTracker,
	ProvideCollector,
	ProvideLLMProvider,
	ProvideClusteringService,
	ProvideImprovementService,
	ProvideTracer,
	ProvideCloudWatchMetrics,
	wire.Struct(new(FunctionContainer), "*"),
)

// InitializeFunctionContainer wires the function Lambdas. They always call
// the model in-process.
func InitializeFunctionContainer(ctx context.Context, cfg *config.Config) (*FunctionContainer, func(), error) {
	wire.Build(FunctionSet)
	return nil, nil, nil
}

// WebSocketSet provides the dependencies of the websocket Lambdas
var WebSocketSet = wire.NewSet(
	ProvideLogLevel,
	ProvideLogger,
	ProvideAWSConfig,
	ProvideStorage,
	ProvideConnectionRegistry,
	ProvideTokenVerifier,
	wire.Struct(new(WebSocketContainer), "*"),
)

// InitializeWebSocketContainer wires the connection and relay Lambdas
func InitializeWebSocketContainer(ctx context.Context, cfg *config.Config) (*WebSocketContainer, func(), error) {
	wire.Build(WebSocketSet)
	return nil, nil, nil
}
