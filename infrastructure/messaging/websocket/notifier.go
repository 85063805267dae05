// Package websocket pushes canvas changes to a user's open websocket
// connections through the API Gateway Management API.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwTypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"go.uber.org/zap"

	"notemesh/application/ports"
	"notemesh/domain/canvas"
)

// API is the subset of the management API client used here
type API interface {
	PostToConnection(ctx context.Context, params *apigatewaymanagementapi.PostToConnectionInput, optFns ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error)
}

var _ API = (*apigatewaymanagementapi.Client)(nil)

// Message is the frame sent to clients
type Message struct {
	Type      string             `json:"type"`
	Timestamp int64              `json:"timestamp"`
	Data      canvas.ChangeEvent `json:"data"`
}

// Notifier implements ports.ChangeNotifier
type Notifier struct {
	client      API
	connections ports.ConnectionRegistry
	logger      *zap.Logger
	now         func() time.Time
}

// NewNotifier creates a notifier
func NewNotifier(client API, connections ports.ConnectionRegistry, logger *zap.Logger) *Notifier {
	return &Notifier{client: client, connections: connections, logger: logger, now: time.Now}
}

// NewClient builds a management API client for a websocket stage endpoint,
// e.g. "abc123.execute-api.eu-west-1.amazonaws.com/prod".
func NewClient(cfg aws.Config, endpoint string) *apigatewaymanagementapi.Client {
	return apigatewaymanagementapi.NewFromConfig(cfg, func(o *apigatewaymanagementapi.Options) {
		o.BaseEndpoint = aws.String("https://" + endpoint)
	})
}

// NotifyCanvasChange sends change to every connection of userID. Connections
// that are gone are unregistered; other send failures are collected.
func (n *Notifier) NotifyCanvasChange(ctx context.Context, userID string, change canvas.ChangeEvent) error {
	ids, err := n.connections.Connections(ctx, userID)
	if err != nil {
		return fmt.Errorf("list connections: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	payload, err := json.Marshal(Message{Type: "canvas." + string(change.Type), Timestamp: n.now().Unix(), Data: change})
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}

	var errs []error
	for _, id := range ids {
		_, err := n.client.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
			ConnectionId: aws.String(id),
			Data:         payload,
		})
		if err == nil {
			continue
		}
		var gone *apigwTypes.GoneException
		if errors.As(err, &gone) {
			n.logger.Debug("Connection is gone, removing", zap.String("connectionID", id))
			if err := n.connections.Unregister(ctx, id); err != nil {
				n.logger.Warn("Failed to remove stale connection", zap.String("connectionID", id), zap.Error(err))
			}
			continue
		}
		errs = append(errs, fmt.Errorf("post to %s: %w", id, err))
	}
	return errors.Join(errs...)
}
