package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"notemesh/infrastructure/config"
	"notemesh/infrastructure/di"
	"notemesh/interfaces/functions"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, cleanup, err := di.InitializeFunctionContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer cleanup()

	fn := functions.NewImproveFunction(container.Improvement, functions.Options{
		APIKey:  cfg.Proxy.APIKey,
		Tracer:  container.Tracer,
		Metrics: container.Metrics,
		Logger:  container.Logger,
	})
	container.Logger.Info("Function ready", zap.String("function", fn.Name()))

	lambda.Start(fn.Handle)
}
