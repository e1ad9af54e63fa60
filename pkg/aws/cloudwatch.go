package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwTypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric names the risk checks read.
const (
	LambdaNamespace       = "AWS/Lambda"
	MetricThrottles       = "Throttles"
	MetricConcurrentExecs = "ConcurrentExecutions"
	DimensionFunctionName = "FunctionName"
)

// MetricsClient reads aggregate CloudWatch statistics for one region.
// Results are fetched on demand and never cached across calls.
type MetricsClient struct {
	client *cloudwatch.Client
	region string
}

// NewMetricsClient creates a CloudWatch client for the given region.
func NewMetricsClient(ctx context.Context, region string) (*MetricsClient, error) {
	cfg, err := loadConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return &MetricsClient{
		client: cloudwatch.NewFromConfig(cfg),
		region: region,
	}, nil
}

// SumOverWindow returns the sum of a metric over the trailing window.
// No datapoints means zero. Failures surface as errors; callers decide
// whether to coerce them to zero.
func (c *MetricsClient) SumOverWindow(ctx context.Context, namespace, metricName, dimensionName, dimensionValue string, window time.Duration) (float64, error) {
	endTime := time.Now()
	startTime := endTime.Add(-window)

	input := &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(namespace),
		MetricName: aws.String(metricName),
		Dimensions: []cwTypes.Dimension{
			{
				Name:  aws.String(dimensionName),
				Value: aws.String(dimensionValue),
			},
		},
		StartTime:  aws.Time(startTime),
		EndTime:    aws.Time(endTime),
		Period:     aws.Int32(int32(window.Seconds())),
		Statistics: []cwTypes.Statistic{cwTypes.StatisticSum},
	}

	result, err := c.client.GetMetricStatistics(ctx, input)
	if err != nil {
		return 0, fmt.Errorf("error getting %s statistics for %s: %w", metricName, dimensionValue, err)
	}

	var total float64
	for _, datapoint := range result.Datapoints {
		if datapoint.Sum != nil {
			total += *datapoint.Sum
		}
	}

	return total, nil
}

// MaxConcurrentExecutions returns the highest concurrent-execution
// count observed for the function over the trailing window. Same
// zero-when-empty contract as SumOverWindow.
func (c *MetricsClient) MaxConcurrentExecutions(ctx context.Context, functionName string, window time.Duration) (float64, error) {
	endTime := time.Now()
	startTime := endTime.Add(-window)

	input := &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(LambdaNamespace),
		MetricName: aws.String(MetricConcurrentExecs),
		Dimensions: []cwTypes.Dimension{
			{
				Name:  aws.String(DimensionFunctionName),
				Value: aws.String(functionName),
			},
		},
		StartTime:  aws.Time(startTime),
		EndTime:    aws.Time(endTime),
		Period:     aws.Int32(int32(window.Seconds())),
		Statistics: []cwTypes.Statistic{cwTypes.StatisticMaximum},
	}

	result, err := c.client.GetMetricStatistics(ctx, input)
	if err != nil {
		return 0, fmt.Errorf("error getting concurrency statistics for %s: %w", functionName, err)
	}

	var max float64
	for _, datapoint := range result.Datapoints {
		if datapoint.Maximum != nil && *datapoint.Maximum > max {
			max = *datapoint.Maximum
		}
	}

	return max, nil
}
