// Package main implements the websocket $connect and $disconnect Lambda.
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

	handler := functions.NewConnectionHandler(container.Verifier, container.Connections, container.Logger)
	lambda.Start(handler.Handle)
}
