// Package cloudwatch implements the log and metric sinks on Amazon CloudWatch.
package cloudwatch

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cw "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	logtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/telhawk-systems/cspreport/internal/forwarder"
)

// emptyDimensionValue stands in for empty dimension values, which
// CloudWatch rejects.
const emptyDimensionValue = "none"

// LogsAPI is the subset of the CloudWatch Logs client used by LogsSink.
type LogsAPI interface {
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// MetricsAPI is the subset of the CloudWatch client used by MetricsSink.
type MetricsAPI interface {
	PutMetricData(ctx context.Context, params *cw.PutMetricDataInput, optFns ...func(*cw.Options)) (*cw.PutMetricDataOutput, error)
}

// Config selects the AWS region and an optional endpoint override, e.g. a
// LocalStack URL.
type Config struct {
	Region   string
	Endpoint string
}

// NewClients loads the default AWS credential chain for cfg.Region and
// returns the CloudWatch Logs and CloudWatch clients.
func NewClients(ctx context.Context, cfg Config) (*cloudwatchlogs.Client, *cw.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logsClient := cloudwatchlogs.NewFromConfig(awsCfg, func(o *cloudwatchlogs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	metricsClient := cw.NewFromConfig(awsCfg, func(o *cw.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return logsClient, metricsClient, nil
}

// LogsSink writes log events with PutLogEvents.
type LogsSink struct {
	client LogsAPI
}

// NewLogsSink returns a LogsSink over client.
func NewLogsSink(client LogsAPI) *LogsSink {
	return &LogsSink{client: client}
}

// PutLogEvent sends a single event to group/stream. SDK errors are returned
// unwrapped so the caller reports the service message as-is.
func (s *LogsSink) PutLogEvent(ctx context.Context, group, stream string, event forwarder.LogEvent) error {
	_, err := s.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(group),
		LogStreamName: aws.String(stream),
		LogEvents: []logtypes.InputLogEvent{
			{
				Message:   aws.String(event.Message),
				Timestamp: aws.Int64(event.Timestamp.UnixMilli()),
			},
		},
	})
	return err
}

// MetricsSink records data points with PutMetricData.
type MetricsSink struct {
	client MetricsAPI
}

// NewMetricsSink returns a MetricsSink over client.
func NewMetricsSink(client MetricsAPI) *MetricsSink {
	return &MetricsSink{client: client}
}

// PutMetricData sends datum under namespace.
func (s *MetricsSink) PutMetricData(ctx context.Context, namespace string, datum forwarder.MetricDatum) error {
	dimensions := make([]cwtypes.Dimension, 0, len(datum.Dimensions))
	for _, d := range datum.Dimensions {
		value := d.Value
		if value == "" {
			value = emptyDimensionValue
		}
		dimensions = append(dimensions, cwtypes.Dimension{
			Name:  aws.String(d.Name),
			Value: aws.String(value),
		})
	}

	_, err := s.client.PutMetricData(ctx, &cw.PutMetricDataInput{
		Namespace: aws.String(namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(datum.Name),
				Dimensions: dimensions,
				Value:      aws.Float64(datum.Value),
				Unit:       cwtypes.StandardUnit(datum.Unit),
				Timestamp:  aws.Time(datum.Timestamp),
			},
		},
	})
	return err
}
