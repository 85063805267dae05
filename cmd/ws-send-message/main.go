// Package main implements the Lambda that relays canvas changes from
// EventBridge to websocket clients.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"notemesh/infrastructure/config"
	"notemesh/infrastructure/di"
	"notemesh/interfaces/functions"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, cleanup, err := di.InitializeWebSocketContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer cleanup()

	notifier, err := di.ProvideWebSocketNotifier(cfg, container.AWS, container.Connections, container.Logger)
	if err != nil {
		log.Fatalf("Failed to create notifier: %v", err)
	}

	relay := functions.NewRelay(notifier, container.Logger)
	lambda.Start(relay.Handle)
}
