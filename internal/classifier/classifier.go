// Package classifier chains feature extraction, embedding, whitening,
// sequence aggregation and ranking into a single Predict call.
package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tphakala/ambient-go/internal/conf"
	"github.com/tphakala/ambient-go/internal/errors"
	"github.com/tphakala/ambient-go/internal/features"
	"github.com/tphakala/ambient-go/internal/inference"
	"github.com/tphakala/ambient-go/internal/logger"
	"github.com/tphakala/ambient-go/internal/observability/metrics"
)

// Config holds the sequence shaping and ranking limits.
type Config struct {
	MaxFrames int     // frames handed to the aggregation backend
	Count     int     // max predictions per buffer
	Threshold float64 // scores must be strictly above this
}

// Classifier turns waveforms into ranked predictions. Predict may be called
// from several goroutines; the backends serialize their own invocations.
type Classifier struct {
	extractor  *features.Extractor
	embedder   inference.EmbeddingBackend
	whitener   *inference.Whitener
	aggregator inference.AggregationBackend
	classes    *inference.ClassMap
	config     Config

	metrics *metrics.PipelineMetrics
	log     logger.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithMetrics records stage timings and outcomes.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(c *Classifier) { c.metrics = m }
}

// WithLogger overrides the package logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Classifier) { c.log = l }
}

// New assembles a classifier from loaded components and checks that their
// dimensions line up.
func New(
	extractor *features.Extractor,
	embedder inference.EmbeddingBackend,
	whitener *inference.Whitener,
	aggregator inference.AggregationBackend,
	classes *inference.ClassMap,
	cfg Config,
	opts ...Option,
) (*Classifier, error) {
	if extractor == nil || embedder == nil || whitener == nil || aggregator == nil {
		return nil, errors.Newf("classifier requires an extractor, both backends and a whitener").
			Component("classifier").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.MaxFrames <= 0 || cfg.Count <= 0 {
		return nil, errors.Newf("max frames and count must be positive, got %d and %d", cfg.MaxFrames, cfg.Count).
			Component("classifier").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if embedder.Dim() != whitener.InputDim() {
		return nil, errors.New(fmt.Errorf("embedding dim %d does not match whitening input %d: %w",
			embedder.Dim(), whitener.InputDim(), inference.ErrShapeMismatch)).
			Component("classifier").
			Category(errors.CategoryModelInit).
			Build()
	}

	c := &Classifier{
		extractor:  extractor,
		embedder:   embedder,
		whitener:   whitener,
		aggregator: aggregator,
		classes:    classes,
		config:     cfg,
		log:        GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if classes != nil && classes.Len() != aggregator.NumClasses() {
		c.log.Warn("class map size differs from classifier output",
			logger.Int("labels", classes.Len()),
			logger.Int("classes", aggregator.NumClasses()))
	}

	return c, nil
}

// Load reads every model artifact named in settings and builds a
// classifier. Any load failure is fatal.
func Load(settings *conf.Settings, m *metrics.PipelineMetrics) (*Classifier, error) {
	params := features.ParamsFromSettings(&settings.Features)
	extractor, err := features.NewExtractor(params)
	if err != nil {
		return nil, err
	}

	opts := inference.ModelOptions{
		Threads:    settings.Model.Threads,
		UseXNNPACK: settings.Model.UseXNNPACK,
	}

	whitener, err := inference.LoadWhitener(settings.Model.PCAPath)
	m.RecordModelLoad(metrics.ModelPCA, err)
	if err != nil {
		return nil, err
	}

	if dim := settings.Prediction.EmbeddingDim; dim > 0 && dim != whitener.Dim() {
		return nil, errors.New(fmt.Errorf("whitened embedding dim %d differs from configured %d: %w",
			whitener.Dim(), dim, inference.ErrShapeMismatch)).
			Component("classifier").
			Category(errors.CategoryConfiguration).
			ModelContext(settings.Model.PCAPath).
			Build()
	}

	classes, err := inference.LoadClassMap(settings.Model.LabelsPath)
	m.RecordModelLoad(metrics.ModelLabels, err)
	if err != nil {
		return nil, err
	}

	embedder, err := inference.NewTFLiteEmbedder(settings.Model.EmbeddingPath,
		params.ExampleWindowFrames(), params.MelBands, opts)
	m.RecordModelLoad(metrics.ModelEmbedding, err)
	if err != nil {
		return nil, err
	}

	aggregator, err := inference.NewTFLiteAggregator(settings.Model.ClassifierPath,
		settings.Prediction.MaxFrames, whitener.Dim(), opts)
	m.RecordModelLoad(metrics.ModelClassifier, err)
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	c, err := New(extractor, embedder, whitener, aggregator, classes, Config{
		MaxFrames: settings.Prediction.MaxFrames,
		Count:     settings.Prediction.Count,
		Threshold: settings.Prediction.Threshold,
	}, WithMetrics(m))
	if err != nil {
		_ = embedder.Close()
		_ = aggregator.Close()
		return nil, err
	}
	return c, nil
}

// SampleRate is the rate the feature front end works at.
func (c *Classifier) SampleRate() int {
	return c.extractor.Params().SampleRate
}

// PredictPCM classifies mono 16-bit little-endian PCM recorded at
// sampleRate.
func (c *Classifier) PredictPCM(ctx context.Context, pcm []byte, sampleRate int) ([]inference.Prediction, error) {
	return c.Predict(ctx, features.PCM16ToFloat(pcm), 1, sampleRate)
}

// Predict classifies interleaved samples in [-1, 1). A waveform too short
// for one example still runs through the aggregation backend with an
// all-padding sequence. The result is ordered by descending score.
func (c *Classifier) Predict(ctx context.Context, samples []float64, channels, sampleRate int) ([]inference.Prediction, error) {
	start := time.Now()
	predictions, err := c.predict(ctx, samples, channels, sampleRate)

	c.metrics.ObserveStage(metrics.StageTotal, time.Since(start))
	labels := make([]string, len(predictions))
	for i, p := range predictions {
		labels[i] = p.Label
	}
	c.metrics.RecordPrediction(labels, err)

	if err != nil {
		return nil, err
	}

	c.log.Debug("classified buffer",
		logger.Int("samples", len(samples)),
		logger.Int("predictions", len(predictions)),
		logger.Duration("elapsed", time.Since(start)))
	return predictions, nil
}

func (c *Classifier) predict(ctx context.Context, samples []float64, channels, sampleRate int) ([]inference.Prediction, error) {
	stage := time.Now()
	examples, err := c.extractor.Extract(ctx, samples, channels, sampleRate)
	if err != nil {
		return nil, err
	}
	c.metrics.ObserveStage(metrics.StageFeatures, time.Since(stage))

	stage = time.Now()
	embeddings, err := c.embedder.Embed(ctx, examples)
	if err != nil {
		return nil, backendError("embedding", err)
	}
	if len(embeddings) != len(examples) {
		return nil, backendError("embedding", fmt.Errorf("%d embeddings for %d examples: %w",
			len(embeddings), len(examples), inference.ErrShapeMismatch))
	}
	c.metrics.ObserveStage(metrics.StageEmbedding, time.Since(stage))

	stage = time.Now()
	whitened, err := c.whitener.WhitenAll(embeddings)
	if err != nil {
		return nil, err
	}
	c.metrics.ObserveStage(metrics.StageWhitening, time.Since(stage))

	stage = time.Now()
	sequence, trueLength, err := inference.Prepare(whitened, c.config.MaxFrames, c.whitener.Dim())
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryCancellation).
			Build()
	}
	scores, err := c.aggregator.Score(ctx, sequence, trueLength)
	if err != nil {
		return nil, backendError("aggregation", err)
	}
	if len(scores) != c.aggregator.NumClasses() {
		return nil, backendError("aggregation", fmt.Errorf("%d scores for %d classes: %w",
			len(scores), c.aggregator.NumClasses(), inference.ErrShapeMismatch))
	}
	c.metrics.ObserveStage(metrics.StageAggregate, time.Since(stage))

	stage = time.Now()
	predictions := inference.Rank(scores, c.classes, c.config.Count, c.config.Threshold)
	c.metrics.ObserveStage(metrics.StageRanking, time.Since(stage))

	c.log.Trace("pipeline shapes",
		logger.Int("examples", len(examples)),
		logger.Int("true_length", trueLength),
		logger.Int("scores", len(scores)))

	return predictions, nil
}

// backendError keeps cancellation errors as they are and tags everything
// else as a high priority analysis failure of the named backend.
func backendError(backend string, err error) error {
	if errors.IsCategory(err, errors.CategoryCancellation) {
		return err
	}
	return errors.New(err).
		Component("classifier").
		Category(errors.CategoryAudioAnalysis).
		Priority(errors.PriorityHigh).
		Context("backend", backend).
		Build()
}

// Close releases both backends.
func (c *Classifier) Close() error {
	return errors.Join(c.embedder.Close(), c.aggregator.Close())
}

// FormatPredictions renders predictions as "label: 0.90, label2: 0.80".
func FormatPredictions(predictions []inference.Prediction) string {
	parts := make([]string, len(predictions))
	for i, p := range predictions {
		parts[i] = fmt.Sprintf("%s: %.2f", p.Label, p.Score)
	}
	return strings.Join(parts, ", ")
}
