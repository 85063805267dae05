package dynamodb

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	pkgerrors "notemesh/pkg/errors"
)

// usageItem counts one user's uses on one UTC day
type usageItem struct {
	PK    string `dynamodbav:"PK"`
	SK    string `dynamodbav:"SK"`
	Count int    `dynamodbav:"Count"`
	Day   string `dynamodbav:"Day"`
	TTL   int64  `dynamodbav:"TTL"`
}

// UsageTracker implements ports.UsageTracker with an atomic conditional
// counter per user and day. Items expire two days after their day starts.
type UsageTracker struct {
	client    API
	tableName string
	logger    *zap.Logger
}

// NewUsageTracker creates a new UsageTracker
func NewUsageTracker(client API, tableName string, logger *zap.Logger) *UsageTracker {
	return &UsageTracker{client: client, tableName: tableName, logger: logger}
}

func usagePK(userID string, day time.Time) string {
	return prefixUsage + userID + "#" + day.UTC().Format(time.DateOnly)
}

// Increment bumps the day's counter unless it already reached limit. A
// non-positive limit never refuses.
func (u *UsageTracker) Increment(ctx context.Context, userID string, day time.Time, limit int) (int, bool, error) {
	dayStart := day.UTC().Truncate(24 * time.Hour)
	input := &dynamodb.UpdateItemInput{
		TableName:        aws.String(u.tableName),
		Key:              key(usagePK(userID, day), skMetadata),
		UpdateExpression: aws.String("SET #count = if_not_exists(#count, :zero) + :incr, #day = :day, #ttl = :ttl"),
		ExpressionAttributeNames: map[string]string{
			"#count": "Count",
			"#day":   "Day",
			"#ttl":   "TTL",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":incr": &types.AttributeValueMemberN{Value: "1"},
			":day":  &types.AttributeValueMemberS{Value: dayStart.Format(time.DateOnly)},
			":ttl":  &types.AttributeValueMemberN{Value: strconv.FormatInt(dayStart.Add(48*time.Hour).Unix(), 10)},
		},
		ReturnValues: types.ReturnValueAllNew,
	}
	if limit > 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(#count) OR #count < :limit")
		input.ExpressionAttributeValues[":limit"] = &types.AttributeValueMemberN{Value: strconv.Itoa(limit)}
	}

	out, err := u.client.UpdateItem(ctx, input)
	if err != nil {
		if isConditionFailure(err) {
			return limit, false, nil
		}
		u.logger.Error("Usage counter update failed", zap.String("userID", userID), zap.Error(err))
		return 0, false, pkgerrors.NewDatabaseError("IncrementUsage", err)
	}

	var item usageItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return 0, false, pkgerrors.NewInternalError("failed to unmarshal usage").WithCause(err)
	}
	return item.Count, true, nil
}

// Count returns the day's counter
func (u *UsageTracker) Count(ctx context.Context, userID string, day time.Time) (int, error) {
	out, err := u.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(u.tableName),
		Key:            key(usagePK(userID, day), skMetadata),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, pkgerrors.NewDatabaseError("CountUsage", err)
	}
	if out.Item == nil {
		return 0, nil
	}
	var item usageItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return 0, pkgerrors.NewInternalError("failed to unmarshal usage").WithCause(err)
	}
	return item.Count, nil
}

// isConditionFailure recognizes a failed condition both as the typed
// exception and as a generic smithy API error code.
func isConditionFailure(err error) bool {
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}
