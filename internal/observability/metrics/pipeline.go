package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains Prometheus metrics for the capture and
// classification pipeline.
type PipelineMetrics struct {
	Handoffs       prometheus.Counter
	TruncatedBytes prometheus.Counter
	BufferedBytes  prometheus.Gauge
	BufferSize     prometheus.Histogram

	StageDuration *prometheus.HistogramVec
	Predictions   *prometheus.CounterVec
	Detections    *prometheus.CounterVec
	ModelLoads    *prometheus.CounterVec
	SinkErrors    *prometheus.CounterVec

	LastPredictionTime prometheus.Gauge
}

// NewPipelineMetrics creates and registers the pipeline metrics.
func NewPipelineMetrics(registry prometheus.Registerer) (*PipelineMetrics, error) {
	m := &PipelineMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.Handoffs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ambient_segmenter_handoffs_total",
		Help: "Total number of buffers handed from the capture loop to the consumer",
	})

	m.TruncatedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ambient_segmenter_truncated_bytes_total",
		Help: "Total number of audio bytes dropped because the accumulator exceeded its maximum",
	})

	m.BufferedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ambient_segmenter_buffered_bytes",
		Help: "Current size of the segmenter accumulator in bytes",
	})

	m.BufferSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ambient_segmenter_handoff_size_bytes",
		Help:    "Size of buffers handed to the consumer",
		Buckets: prometheus.ExponentialBuckets(16000, 2, 8),
	})

	m.StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ambient_stage_duration_seconds",
			Help:    "Time spent in each classification stage",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"stage"},
	)

	m.Predictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ambient_predictions_total",
			Help: "Classified buffers partitioned by outcome",
		},
		[]string{"status"},
	)

	m.Detections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ambient_detections_total",
			Help: "Reported labels partitioned by label name",
		},
		[]string{"label"},
	)

	m.ModelLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ambient_model_load_total",
			Help: "Model artifact loads partitioned by artifact and outcome",
		},
		[]string{"model", "status"},
	)

	m.SinkErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ambient_sink_errors_total",
			Help: "Errors returned by downstream sinks",
		},
		[]string{"sink"},
	)

	m.LastPredictionTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ambient_last_prediction_time_seconds",
		Help: "Timestamp of the last completed classification",
	})
}

// RecordHandoff records a buffer leaving the segmenter.
func (m *PipelineMetrics) RecordHandoff(size int) {
	if m == nil {
		return
	}
	m.Handoffs.Inc()
	m.BufferSize.Observe(float64(size))
	m.BufferedBytes.Set(0)
}

// RecordTruncation records bytes dropped from the front of the accumulator.
func (m *PipelineMetrics) RecordTruncation(dropped int) {
	if m == nil || dropped <= 0 {
		return
	}
	m.TruncatedBytes.Add(float64(dropped))
}

// SetBuffered updates the accumulator size gauge.
func (m *PipelineMetrics) SetBuffered(size int) {
	if m == nil {
		return
	}
	m.BufferedBytes.Set(float64(size))
}

// ObserveStage records the duration of a pipeline stage.
func (m *PipelineMetrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordPrediction records a classification outcome and the labels reported.
func (m *PipelineMetrics) RecordPrediction(labels []string, err error) {
	if m == nil {
		return
	}
	switch {
	case err != nil:
		m.Predictions.WithLabelValues(StatusError).Inc()
		return
	case len(labels) == 0:
		m.Predictions.WithLabelValues(StatusEmpty).Inc()
	default:
		m.Predictions.WithLabelValues(StatusSuccess).Inc()
	}
	for _, label := range labels {
		m.Detections.WithLabelValues(label).Inc()
	}
	m.LastPredictionTime.SetToCurrentTime()
}

// RecordModelLoad records a model artifact load.
func (m *PipelineMetrics) RecordModelLoad(model string, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.ModelLoads.WithLabelValues(model, status).Inc()
}

// RecordSinkError records a failed sink delivery.
func (m *PipelineMetrics) RecordSinkError(sink string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(sink).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Handoffs.Describe(ch)
	m.TruncatedBytes.Describe(ch)
	m.BufferedBytes.Describe(ch)
	m.BufferSize.Describe(ch)
	m.StageDuration.Describe(ch)
	m.Predictions.Describe(ch)
	m.Detections.Describe(ch)
	m.ModelLoads.Describe(ch)
	m.SinkErrors.Describe(ch)
	m.LastPredictionTime.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Handoffs.Collect(ch)
	m.TruncatedBytes.Collect(ch)
	m.BufferedBytes.Collect(ch)
	m.BufferSize.Collect(ch)
	m.StageDuration.Collect(ch)
	m.Predictions.Collect(ch)
	m.Detections.Collect(ch)
	m.ModelLoads.Collect(ch)
	m.SinkErrors.Collect(ch)
	m.LastPredictionTime.Collect(ch)
}
