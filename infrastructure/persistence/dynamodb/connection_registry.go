package dynamodb

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	pkgerrors "notemesh/pkg/errors"
)

// connectionItem is a live websocket connection, indexed by user on GSI1
type connectionItem struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	GSI1PK       string `dynamodbav:"GSI1PK"`
	GSI1SK       string `dynamodbav:"GSI1SK"`
	ConnectionID string `dynamodbav:"ConnectionID"`
	UserID       string `dynamodbav:"UserID"`
	ConnectedAt  string `dynamodbav:"ConnectedAt"`
	TTL          int64  `dynamodbav:"TTL"`
}

// ConnectionRegistry implements ports.ConnectionRegistry on DynamoDB
type ConnectionRegistry struct {
	client    API
	tableName string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewConnectionRegistry creates a registry whose entries expire after 24 hours
func NewConnectionRegistry(client API, tableName string, logger *zap.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{client: client, tableName: tableName, ttl: 24 * time.Hour, logger: logger}
}

func (c *ConnectionRegistry) Register(ctx context.Context, userID, connectionID string) error {
	now := time.Now()
	av, err := attributevalue.MarshalMap(connectionItem{
		PK:           prefixConn + connectionID,
		SK:           skMetadata,
		GSI1PK:       prefixUser + userID,
		GSI1SK:       prefixConn + connectionID,
		ConnectionID: connectionID,
		UserID:       userID,
		ConnectedAt:  now.UTC().Format(time.RFC3339),
		TTL:          now.Add(c.ttl).Unix(),
	})
	if err != nil {
		return pkgerrors.NewInternalError("failed to marshal connection").WithCause(err)
	}
	if _, err := c.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(c.tableName), Item: av}); err != nil {
		return pkgerrors.NewDatabaseError("RegisterConnection", err)
	}
	c.logger.Info("Connection registered", zap.String("connectionID", connectionID), zap.String("userID", userID))
	return nil
}

func (c *ConnectionRegistry) Unregister(ctx context.Context, connectionID string) error {
	_, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       key(prefixConn+connectionID, skMetadata),
	})
	if err != nil {
		return pkgerrors.NewDatabaseError("UnregisterConnection", err)
	}
	return nil
}

func (c *ConnectionRegistry) Connections(ctx context.Context, userID string) ([]string, error) {
	items, err := queryPrefix(ctx, c.client, c.tableName, gsi1Name, "GSI1PK", prefixUser+userID, "GSI1SK", prefixConn)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("ListConnections", err)
	}
	var rows []connectionItem
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, pkgerrors.NewInternalError("failed to unmarshal connections").WithCause(err)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ConnectionID)
	}
	return ids, nil
}
