package functions

import (
	"context"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"notemesh/application/ports"
	"notemesh/pkg/auth"
)

// LocalUserID is used for websocket connections when authentication is off
const LocalUserID = "local-user"

// ConnectionHandler serves the $connect and $disconnect routes of the
// websocket API.
type ConnectionHandler struct {
	verifier    auth.TokenVerifier
	connections ports.ConnectionRegistry
	logger      *zap.Logger
}

// NewConnectionHandler creates a handler. A nil verifier accepts every
// connection, taking the user from the userId query parameter.
func NewConnectionHandler(verifier auth.TokenVerifier, connections ports.ConnectionRegistry, logger *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{verifier: verifier, connections: connections, logger: logger}
}

// Handle processes one websocket lifecycle event
func (h *ConnectionHandler) Handle(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connectionID := req.RequestContext.ConnectionID

	switch req.RequestContext.RouteKey {
	case "$connect":
		userID, err := h.authenticate(ctx, req)
		if err != nil {
			h.logger.Info("Rejected websocket connection",
				zap.String("connection_id", connectionID),
				zap.Error(err),
			)
			return wsResponse(http.StatusUnauthorized, `{"error":"unauthorized"}`), nil
		}
		if err := h.connections.Register(ctx, userID, connectionID); err != nil {
			h.logger.Error("Failed to register connection", zap.String("connection_id", connectionID), zap.Error(err))
			return wsResponse(http.StatusInternalServerError, `{"error":"internal server error"}`), nil
		}
		h.logger.Info("Websocket connected", zap.String("connection_id", connectionID), zap.String("user_id", userID))
		return wsResponse(http.StatusOK, ""), nil

	case "$disconnect":
		if err := h.connections.Unregister(ctx, connectionID); err != nil {
			h.logger.Warn("Failed to unregister connection", zap.String("connection_id", connectionID), zap.Error(err))
		}
		return wsResponse(http.StatusOK, ""), nil

	default:
		return wsResponse(http.StatusOK, `{"type":"pong"}`), nil
	}
}

func (h *ConnectionHandler) authenticate(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (string, error) {
	if h.verifier == nil {
		if id := req.QueryStringParameters["userId"]; id != "" {
			return id, nil
		}
		return LocalUserID, nil
	}

	token := req.QueryStringParameters["token"]
	if token == "" {
		header := req.Headers["Authorization"]
		if header == "" {
			header = req.Headers["authorization"]
		}
		token = strings.TrimPrefix(header, "Bearer ")
	}
	if token == "" {
		return "", auth.ErrNoUser
	}

	user, err := h.verifier.Verify(ctx, token)
	if err != nil {
		return "", err
	}
	return user.UserID, nil
}

func wsResponse(status int, body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{StatusCode: status, Body: body}
}
