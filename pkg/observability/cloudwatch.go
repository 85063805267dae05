package observability

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// CloudWatchAPI is the subset of the CloudWatch client used here
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ CloudWatchAPI = (*cloudwatch.Client)(nil)

// Metrics publishes Lambda metrics to CloudWatch. A nil client disables it.
type Metrics struct {
	namespace string
	client    CloudWatchAPI
	logger    *zap.Logger
	now       func() time.Time
}

// NewMetrics creates a new metrics instance
func NewMetrics(namespace string, client CloudWatchAPI, logger *zap.Logger) *Metrics {
	return &Metrics{namespace: namespace, client: client, logger: logger, now: time.Now}
}

// RecordInvocation records latency and outcome of one function call.
// outcome is "success" or an error type such as "RATE_LIMIT".
func (m *Metrics) RecordInvocation(ctx context.Context, function, outcome string, latency time.Duration) {
	dims := []types.Dimension{
		{Name: aws.String("Function"), Value: aws.String(function)},
		{Name: aws.String("Outcome"), Value: aws.String(outcome)},
	}
	m.put(ctx,
		types.MetricDatum{
			MetricName: aws.String("InvocationLatency"),
			Dimensions: dims,
			Value:      aws.Float64(float64(latency.Milliseconds())),
			Unit:       types.StandardUnitMilliseconds,
		},
		types.MetricDatum{
			MetricName: aws.String("InvocationCount"),
			Dimensions: dims,
			Value:      aws.Float64(1),
			Unit:       types.StandardUnitCount,
		},
	)
}

// RecordCount records a plain counter, e.g. clusters proposed
func (m *Metrics) RecordCount(ctx context.Context, name string, value float64) {
	m.put(ctx, types.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       types.StandardUnitCount,
	})
}

func (m *Metrics) put(ctx context.Context, data ...types.MetricDatum) {
	if m == nil || m.client == nil {
		return
	}
	now := m.now()
	for i := range data {
		data[i].Timestamp = aws.Time(now)
	}
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.Warn("Failed to send metrics", zap.Error(err))
	}
}
