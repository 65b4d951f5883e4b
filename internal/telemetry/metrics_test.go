package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainvoice/internal/types"
)

type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatch) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func dimValue(dims []cwtypes.Dimension, name string) (string, bool) {
	for _, d := range dims {
		if *d.Name == name {
			return *d.Value, true
		}
	}
	return "", false
}

func TestRecordDecision_Allow(t *testing.T) {
	client := &mockCloudWatch{}
	metrics := NewCloudWatchDecisionMetrics(client, "Chainvoice/Entitlement", slog.New(slog.DiscardHandler))

	metrics.RecordDecision(context.Background(), types.ActionMeteredRead, types.Allow())

	require.Len(t, client.inputs, 1)
	input := client.inputs[0]
	assert.Equal(t, "Chainvoice/Entitlement", *input.Namespace)

	require.Len(t, input.MetricData, 1)
	datum := input.MetricData[0]
	assert.Equal(t, MetricDecision, *datum.MetricName)
	assert.Equal(t, float64(1), *datum.Value)
	assert.Equal(t, cwtypes.StandardUnitCount, datum.Unit)

	action, ok := dimValue(datum.Dimensions, DimAction)
	require.True(t, ok)
	assert.Equal(t, "metered_read", action)

	result, ok := dimValue(datum.Dimensions, DimResult)
	require.True(t, ok)
	assert.Equal(t, "allow", result)

	_, ok = dimValue(datum.Dimensions, DimCode)
	assert.False(t, ok)
}

func TestRecordDecision_DenyCarriesCode(t *testing.T) {
	client := &mockCloudWatch{}
	metrics := NewCloudWatchDecisionMetrics(client, "Chainvoice/Entitlement", slog.New(slog.DiscardHandler))

	metrics.RecordDecision(context.Background(), types.ActionSubmitTransaction,
		types.Deny(types.DenyTxnLimitExceeded, "limit exceeded", nil))

	require.Len(t, client.inputs, 1)
	datum := client.inputs[0].MetricData[0]

	result, ok := dimValue(datum.Dimensions, DimResult)
	require.True(t, ok)
	assert.Equal(t, "deny", result)

	code, ok := dimValue(datum.Dimensions, DimCode)
	require.True(t, ok)
	assert.Equal(t, "TXN_LIMIT_EXCEEDED", code)
}

func TestRecordDecision_ErrorIsSwallowed(t *testing.T) {
	client := &mockCloudWatch{err: errors.New("throttled")}
	metrics := NewCloudWatchDecisionMetrics(client, "Chainvoice/Entitlement", slog.New(slog.DiscardHandler))

	assert.NotPanics(t, func() {
		metrics.RecordDecision(context.Background(), types.ActionMeteredRead, types.Allow())
	})
}
