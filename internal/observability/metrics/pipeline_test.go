package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewPipelineMetrics(registry)
	require.NoError(t, err)

	m.SetBuffered(4000)
	assert.InDelta(t, 4000, testutil.ToFloat64(m.BufferedBytes), 0)

	m.RecordHandoff(160000)
	m.RecordHandoff(160000)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Handoffs), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.BufferedBytes), 0)

	m.RecordTruncation(6)
	m.RecordTruncation(0)
	assert.InDelta(t, 6, testutil.ToFloat64(m.TruncatedBytes), 0)

	m.RecordPrediction([]string{"Speech", "Music"}, nil)
	m.RecordPrediction(nil, nil)
	m.RecordPrediction(nil, fmt.Errorf("invoke failed"))
	assert.InDelta(t, 1, testutil.ToFloat64(m.Predictions.WithLabelValues(StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Predictions.WithLabelValues(StatusEmpty)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Predictions.WithLabelValues(StatusError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Detections.WithLabelValues("Speech")), 0)

	m.RecordModelLoad(ModelEmbedding, nil)
	m.RecordModelLoad(ModelClassifier, fmt.Errorf("missing"))
	assert.InDelta(t, 1, testutil.ToFloat64(m.ModelLoads.WithLabelValues(ModelEmbedding, StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ModelLoads.WithLabelValues(ModelClassifier, StatusError)), 0)

	m.ObserveStage(StageFeatures, 12*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageDuration))

	m.RecordSinkError("mqtt")
	assert.InDelta(t, 1, testutil.ToFloat64(m.SinkErrors.WithLabelValues("mqtt")), 0)
}

func TestNilPipelineMetricsIsSafe(t *testing.T) {
	var m *PipelineMetrics
	assert.NotPanics(t, func() {
		m.RecordHandoff(1)
		m.RecordTruncation(1)
		m.SetBuffered(1)
		m.ObserveStage(StageTotal, time.Second)
		m.RecordPrediction([]string{"x"}, nil)
		m.RecordModelLoad(ModelPCA, nil)
		m.RecordSinkError("history")
	})
}

func TestDuplicateRegistrationFails(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewMQTTMetrics(registry)
	require.NoError(t, err)
	_, err = NewMQTTMetrics(registry)
	require.Error(t, err)
}

func TestMQTTMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewMQTTMetrics(registry)
	require.NoError(t, err)

	m.UpdateConnectionStatus(true)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ConnectionStatus), 0)
	m.UpdateConnectionStatus(false)
	assert.InDelta(t, 0, testutil.ToFloat64(m.ConnectionStatus), 0)

	m.IncrementMessagesDelivered()
	m.IncrementMessagesSkipped()
	m.IncrementReconnectAttempts()
	m.IncrementErrorsWithCategory("publish")
	assert.InDelta(t, 1, testutil.ToFloat64(m.MessagesDelivered), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.MessagesSkipped), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ReconnectAttempts), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Errors.WithLabelValues("publish")), 0)

	timer := m.StartPublishTimer()
	timer.ObserveDuration()
	m.ObserveMessageSize(200)
	assert.Equal(t, 1, testutil.CollectAndCount(m.PublishLatency))
}
