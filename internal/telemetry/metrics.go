// Package telemetry emits entitlement decision metrics to AWS CloudWatch.
package telemetry

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"chainvoice/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metric and dimension names for decision telemetry.
const (
	MetricDecision = "EntitlementDecision"

	DimAction = "Action"
	DimResult = "Result"
	DimCode   = "Code"
)

// CloudWatchDecisionMetrics emits one EntitlementDecision datum per gate
// evaluation, dimensioned on action and result (allow/deny), plus the
// stable deny code when denied. Emission is fire-and-forget: a CloudWatch
// failure is logged and swallowed.
type CloudWatchDecisionMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchDecisionMetrics creates a metrics emitter publishing to the
// given CloudWatch namespace.
func NewCloudWatchDecisionMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchDecisionMetrics {
	return &CloudWatchDecisionMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordDecision emits the decision datum.
func (m *CloudWatchDecisionMetrics) RecordDecision(ctx context.Context, action types.ActionType, decision *types.Decision) {
	result := "deny"
	if decision.Allowed {
		result = "allow"
	}

	dims := []cwtypes.Dimension{
		{Name: aws.String(DimAction), Value: aws.String(string(action))},
		{Name: aws.String(DimResult), Value: aws.String(result)},
	}
	if !decision.Allowed {
		dims = append(dims, cwtypes.Dimension{
			Name:  aws.String(DimCode),
			Value: aws.String(string(decision.Code)),
		})
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricDecision),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record decision metric",
			"error", err.Error(),
			"action", string(action),
			"result", result,
		)
	}
}
