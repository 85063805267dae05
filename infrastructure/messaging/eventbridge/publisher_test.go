package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notemesh/domain/canvas"
	"notemesh/domain/events"
)

type stubAPI struct {
	calls [][]types.PutEventsRequestEntry
	fn    func(*eventbridge.PutEventsInput) (*eventbridge.PutEventsOutput, error)
}

func (s *stubAPI) PutEvents(_ context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	s.calls = append(s.calls, in.Entries)
	if s.fn != nil {
		return s.fn(in)
	}
	return &eventbridge.PutEventsOutput{}, nil
}

func changed(i int) events.DomainEvent {
	return events.NewCanvasChanged("u1", canvas.ChangeEvent{
		Type:     canvas.EventNodeAdded,
		CanvasID: "c1",
		NodeIDs:  []string{fmt.Sprintf("n%d", i)},
	}, time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC))
}

func TestPublisher_PublishBatchChunks(t *testing.T) {
	api := &stubAPI{}
	p := NewPublisher(api, "notemesh-bus", zap.NewNop())

	batch := make([]events.DomainEvent, 23)
	for i := range batch {
		batch[i] = changed(i)
	}
	require.NoError(t, p.PublishBatch(context.Background(), batch))

	require.Len(t, api.calls, 3)
	assert.Len(t, api.calls[0], 10)
	assert.Len(t, api.calls[2], 3)

	first := api.calls[0][0]
	assert.Equal(t, "notemesh-bus", aws.ToString(first.EventBusName))
	assert.Equal(t, Source, aws.ToString(first.Source))
	assert.Equal(t, "canvas.node.added", aws.ToString(first.DetailType))

	var detail map[string]any
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(first.Detail)), &detail))
	assert.Equal(t, "c1", detail["canvas_id"])
}

func TestPublisher_Failures(t *testing.T) {
	tests := []struct {
		name string
		fn   func(*eventbridge.PutEventsInput) (*eventbridge.PutEventsOutput, error)
	}{
		{
			name: "transport",
			fn: func(*eventbridge.PutEventsInput) (*eventbridge.PutEventsOutput, error) {
				return nil, errors.New("connection reset")
			},
		},
		{
			name: "partial",
			fn: func(in *eventbridge.PutEventsInput) (*eventbridge.PutEventsOutput, error) {
				return &eventbridge.PutEventsOutput{
					FailedEntryCount: 1,
					Entries:          []types.PutEventsResultEntry{{ErrorCode: aws.String("ThrottlingException")}},
				}, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPublisher(&stubAPI{fn: tt.fn}, "bus", zap.NewNop())
			assert.Error(t, p.Publish(context.Background(), changed(1)))
		})
	}
}

func TestPublisher_EmptyBatch(t *testing.T) {
	api := &stubAPI{}
	require.NoError(t, NewPublisher(api, "bus", zap.NewNop()).PublishBatch(context.Background(), nil))
	assert.Empty(t, api.calls)
}
