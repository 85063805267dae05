// Package dynamodb stores canvases, notebooks, usage counters and websocket
// connections in a single DynamoDB table.
package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// API is the subset of the DynamoDB client the repositories use.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

// Key prefixes of the single table layout.
const (
	prefixUser     = "USER#"
	prefixCanvas   = "CANVAS#"
	prefixNode     = "NODE#"
	prefixEdge     = "EDGE#"
	prefixCluster  = "CLUSTER#"
	prefixNotebook = "NOTEBOOK#"
	prefixNote     = "NOTE#"
	prefixUsage    = "USAGE#"
	prefixConn     = "CONNECTION#"
	skMetadata     = "METADATA"

	// GSI1 indexes items by owner where the primary key does not.
	gsi1Name = "GSI1"

	// BatchWriteItem accepts at most 25 requests.
	maxBatchWrite = 25
)

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// queryPrefix returns every item under pk whose sort key starts with prefix,
// following pagination.
func queryPrefix(ctx context.Context, client API, table, index, pkName, pk, skName, prefix string) ([]map[string]types.AttributeValue, error) {
	cond := expression.Key(pkName).Equal(expression.Value(pk))
	if prefix != "" {
		cond = cond.And(expression.Key(skName).BeginsWith(prefix))
	}
	expr, err := expression.NewBuilder().WithKeyCondition(cond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build key condition: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if index != "" {
		input.IndexName = aws.String(index)
	}

	var items []map[string]types.AttributeValue
	for {
		out, err := client.Query(ctx, input)
		if err != nil {
			return nil, err
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// batchRetryBase is the wait before the first retry of unprocessed items; it
// doubles on each further attempt.
var batchRetryBase = 50 * time.Millisecond

// batchWrite sends requests in chunks of 25, retrying unprocessed items up to
// three times per chunk with exponential backoff.
func batchWrite(ctx context.Context, client API, table string, requests []types.WriteRequest) error {
	for start := 0; start < len(requests); start += maxBatchWrite {
		end := min(start+maxBatchWrite, len(requests))
		pending := map[string][]types.WriteRequest{table: requests[start:end]}
		for attempt := 0; attempt < 3 && len(pending[table]) > 0; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(batchRetryBase << (attempt - 1)):
				}
			}
			out, err := client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return err
			}
			pending = out.UnprocessedItems
		}
		if len(pending[table]) > 0 {
			return fmt.Errorf("%d writes left unprocessed", len(pending[table]))
		}
	}
	return nil
}
