package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notemesh/domain/canvas"
	pkgerrors "notemesh/pkg/errors"
)

// stubAPI answers each call with the configured function.
type stubAPI struct {
	API
	update func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)
	batch  func(*dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error)
	query  func(*dynamodb.QueryInput) (*dynamodb.QueryOutput, error)

	batchCalls int
	queryCalls int
}

func (s *stubAPI) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return s.update(in)
}

func (s *stubAPI) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	s.batchCalls++
	return s.batch(in)
}

func (s *stubAPI) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	s.queryCalls++
	return s.query(in)
}

func TestGraphEncoding_PreservesOrderAndContent(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	graph := canvas.Snapshot{
		Nodes: []canvas.Node{
			{
				ID:         "z-node",
				Position:   canvas.Position{X: 10, Y: 20},
				Dimensions: &canvas.Dimensions{Width: 150, Height: 40},
				Data: canvas.NodeData{
					ID:           "z-node",
					Text:         "Buy milk",
					Tags:         []string{"home"},
					Tasks:        []canvas.Task{{Text: "go to shop", Done: true}},
					ClusterID:    "cluster-0",
					ClusterName:  "Home",
					ClusterColor: "#8B5CF6",
					CreatedAt:    created,
				},
			},
			{ID: "a-node", Position: canvas.Position{X: 1, Y: 2}, Data: canvas.NodeData{ID: "a-node", Text: "Call bank", Tags: []string{}, CreatedAt: created}},
		},
		Edges: []canvas.Edge{
			{ID: "e-2", Source: "z-node", Target: "a-node", Kind: canvas.EdgeKindCluster},
			{ID: "e-1", Source: "a-node", Target: "z-node", Kind: canvas.EdgeKindUntyped, Label: "see also"},
		},
		Clusters: []canvas.Cluster{{ID: "cluster-0", Name: "Home", Color: "#8B5CF6"}},
	}

	items, err := encodeGraph("c1", graph)
	require.NoError(t, err)
	require.Len(t, items, 5)

	// DynamoDB returns items in sort key order, not insertion order.
	reversed := make([]map[string]types.AttributeValue, len(items))
	for i := range items {
		reversed[len(items)-1-i] = items[i]
	}
	decoded, err := decodeGraph(reversed)
	require.NoError(t, err)

	assert.Equal(t, []string{"z-node", "a-node"}, decoded.NodeIDs())
	assert.Equal(t, graph.Nodes[0].Data.Tasks, decoded.Nodes[0].Data.Tasks)
	assert.Equal(t, graph.Nodes[0].Dimensions, decoded.Nodes[0].Dimensions)
	assert.Nil(t, decoded.Nodes[1].Dimensions)
	assert.Equal(t, "Home", decoded.Nodes[0].Data.ClusterName)
	assert.True(t, created.Equal(decoded.Nodes[0].Data.CreatedAt))
	assert.Equal(t, graph.Edges, decoded.Edges)
	assert.Equal(t, graph.Clusters, decoded.Clusters)
}

func TestUsageTracker_Increment(t *testing.T) {
	day := time.Date(2026, 5, 1, 22, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		limit       int
		update      func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)
		wantCount   int
		wantAllowed bool
		wantErr     bool
	}{
		{
			name:  "counts",
			limit: 3,
			update: func(in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
				return &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{
					"Count": &types.AttributeValueMemberN{Value: "2"},
				}}, nil
			},
			wantCount:   2,
			wantAllowed: true,
		},
		{
			name:  "typed condition failure",
			limit: 3,
			update: func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
				return nil, &types.ConditionalCheckFailedException{}
			},
			wantCount: 3,
		},
		{
			name:  "generic condition failure",
			limit: 5,
			update: func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
				return nil, &smithy.GenericAPIError{Code: "ConditionalCheckFailedException"}
			},
			wantCount: 5,
		},
		{
			name:  "throttled",
			limit: 5,
			update: func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
				return nil, &smithy.GenericAPIError{Code: "ProvisionedThroughputExceededException"}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *dynamodb.UpdateItemInput
			api := &stubAPI{update: func(in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
				seen = in
				return tt.update(in)
			}}
			tracker := NewUsageTracker(api, "table", zap.NewNop())

			count, allowed, err := tracker.Increment(context.Background(), "u1", day, tt.limit)

			require.NotNil(t, seen)
			assert.Equal(t, "USAGE#u1#2026-05-01", seen.Key["PK"].(*types.AttributeValueMemberS).Value)
			assert.NotNil(t, seen.ConditionExpression)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeDatabase))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, count)
			assert.Equal(t, tt.wantAllowed, allowed)
		})
	}
}

func TestUsageTracker_UnlimitedHasNoCondition(t *testing.T) {
	var seen *dynamodb.UpdateItemInput
	api := &stubAPI{update: func(in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
		seen = in
		return &dynamodb.UpdateItemOutput{}, nil
	}}

	_, allowed, err := NewUsageTracker(api, "table", zap.NewNop()).Increment(context.Background(), "u1", time.Now(), 0)

	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Nil(t, seen.ConditionExpression)
	assert.NotContains(t, seen.ExpressionAttributeValues, ":limit")
}

func TestBatchWrite_ChunksAndRetries(t *testing.T) {
	requests := make([]types.WriteRequest, 60)
	for i := range requests {
		requests[i] = types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: key("PK", "SK")}}
	}

	retried := false
	api := &stubAPI{batch: func(in *dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error) {
		assert.LessOrEqual(t, len(in.RequestItems["t"]), maxBatchWrite)
		if !retried {
			retried = true
			return &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{
				"t": in.RequestItems["t"][:1],
			}}, nil
		}
		return &dynamodb.BatchWriteItemOutput{}, nil
	}}

	require.NoError(t, batchWrite(context.Background(), api, "t", requests))
	assert.Equal(t, 4, api.batchCalls)
}

func TestBatchWrite_GivesUp(t *testing.T) {
	api := &stubAPI{batch: func(in *dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error) {
		return &dynamodb.BatchWriteItemOutput{UnprocessedItems: in.RequestItems}, nil
	}}
	requests := []types.WriteRequest{{DeleteRequest: &types.DeleteRequest{Key: key("PK", "SK")}}}

	assert.Error(t, batchWrite(context.Background(), api, "t", requests))

	api.batch = func(*dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error) {
		return nil, errors.New("boom")
	}
	assert.Error(t, batchWrite(context.Background(), api, "t", requests))
}

func TestBatchWrite_BacksOffBetweenRetries(t *testing.T) {
	base := batchRetryBase
	batchRetryBase = 20 * time.Millisecond
	t.Cleanup(func() { batchRetryBase = base })

	requests := []types.WriteRequest{{DeleteRequest: &types.DeleteRequest{Key: key("PK", "SK")}}}
	unprocessed := func(in *dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error) {
		return &dynamodb.BatchWriteItemOutput{UnprocessedItems: in.RequestItems}, nil
	}

	tests := []struct {
		name      string
		ctx       func() (context.Context, context.CancelFunc)
		wantCalls int
		wantErr   error
		minWait   time.Duration
	}{
		{
			name:      "waits before each retry",
			ctx:       func() (context.Context, context.CancelFunc) { return context.WithCancel(context.Background()) },
			wantCalls: 3,
			minWait:   60 * time.Millisecond,
		},
		{
			name:      "stops when the context is cancelled",
			ctx:       func() (context.Context, context.CancelFunc) { return context.WithTimeout(context.Background(), 5*time.Millisecond) },
			wantCalls: 1,
			wantErr:   context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &stubAPI{batch: unprocessed}
			ctx, cancel := tt.ctx()
			defer cancel()

			started := time.Now()
			err := batchWrite(ctx, api, "t", requests)

			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantCalls, api.batchCalls)
			assert.GreaterOrEqual(t, time.Since(started), tt.minWait)
		})
	}
}

func TestQueryPrefix_FollowsPages(t *testing.T) {
	api := &stubAPI{}
	api.query = func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
		require.NotNil(t, in.KeyConditionExpression)
		assert.Equal(t, "GSI1", *in.IndexName)
		if in.ExclusiveStartKey == nil {
			return &dynamodb.QueryOutput{
				Items:            []map[string]types.AttributeValue{key("a", "1")},
				LastEvaluatedKey: key("a", "1"),
			}, nil
		}
		return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{key("a", "2")}}, nil
	}

	items, err := queryPrefix(context.Background(), api, "t", "GSI1", "GSI1PK", "USER#u", "GSI1SK", prefixConn)

	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 2, api.queryCalls)
}
