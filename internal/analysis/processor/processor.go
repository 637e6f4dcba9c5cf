// Package processor classifies handed-off audio buffers and fans the results
// out to the configured actions.
package processor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/ambient-go/internal/classifier"
	"github.com/tphakala/ambient-go/internal/errors"
	"github.com/tphakala/ambient-go/internal/events"
	"github.com/tphakala/ambient-go/internal/inference"
	"github.com/tphakala/ambient-go/internal/logger"
	"github.com/tphakala/ambient-go/internal/observability/metrics"
	"github.com/tphakala/ambient-go/internal/segmenter"
)

// ActionTimeout bounds a single action execution.
const ActionTimeout = 30 * time.Second

// Classifier turns 16-bit mono PCM into ranked predictions.
type Classifier interface {
	PredictPCM(ctx context.Context, pcm []byte, sampleRate int) ([]inference.Prediction, error)
}

// Buffers yields analysis buffers, blocking until one is ready.
type Buffers interface {
	Next(ctx context.Context) ([]byte, error)
}

// Result is a classified buffer.
type Result struct {
	Event      events.Event
	PCM        []byte
	SampleRate int
	Elapsed    time.Duration
}

// Processor runs the classifier over buffers and executes actions on each
// result.
type Processor struct {
	classifier Classifier
	sampleRate int
	exporter   *Exporter
	actions    []Action
	metrics    *metrics.PipelineMetrics
	log        logger.Logger
	now        func() time.Time

	mu        sync.Mutex
	processed uint64
	skipped   uint64
}

// Option configures a Processor.
type Option func(*Processor)

// WithExporter writes every buffer to disk before it is classified.
func WithExporter(e *Exporter) Option {
	return func(p *Processor) {
		p.exporter = e
	}
}

// WithActions appends actions executed in order for each result.
func WithActions(actions ...Action) Option {
	return func(p *Processor) {
		p.actions = append(p.actions, actions...)
	}
}

// WithMetrics sets the pipeline metrics collector.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithLogger overrides the package logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Processor) {
		p.log = l
	}
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

// New creates a processor for PCM at sampleRate.
func New(c Classifier, sampleRate int, opts ...Option) *Processor {
	p := &Processor{
		classifier: c,
		sampleRate: sampleRate,
		log:        GetLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process exports, classifies and dispatches one buffer. A classification
// failure is returned and no action runs. Action failures are logged and
// counted but do not fail the buffer.
func (p *Processor) Process(ctx context.Context, pcm []byte) (*Result, error) {
	start := time.Now()
	ts := p.now()

	// the event ID doubles as trace ID for every record about this buffer
	id := uuid.New()
	ctx = logger.WithTraceID(ctx, id.String())
	log := log.WithContext(ctx)

	if p.exporter != nil {
		if path, err := p.exporter.Export(pcm, ts); err != nil {
			log.Warn("buffer export failed", logger.Error(err))
			p.metrics.RecordSinkError("export")
		} else {
			log.Debug("buffer exported", logger.String("path", path))
		}
	}

	predictions, err := p.classifier.PredictPCM(ctx, pcm, p.sampleRate)
	if err != nil {
		p.mu.Lock()
		p.skipped++
		p.mu.Unlock()
		return nil, err
	}

	text := classifier.FormatPredictions(predictions)
	event := events.NewEvent(ts, predictions, text)
	event.ID = id
	result := &Result{
		Event:      event,
		PCM:        pcm,
		SampleRate: p.sampleRate,
		Elapsed:    time.Since(start),
	}

	if text != "" {
		log.Info("classified", logger.String("predictions", text), logger.Duration("elapsed", result.Elapsed))
	} else {
		log.Debug("classified, nothing above threshold", logger.Duration("elapsed", result.Elapsed))
	}

	for _, action := range p.actions {
		actx, cancel := context.WithTimeout(ctx, ActionTimeout)
		err := action.Execute(actx, result)
		cancel()
		if err != nil {
			log.Warn("action failed",
				logger.String("action", action.GetDescription()),
				logger.Error(err))
			p.metrics.RecordSinkError(action.GetDescription())
		}
	}

	p.mu.Lock()
	p.processed++
	p.mu.Unlock()
	return result, nil
}

// Run consumes buffers until the source stops or ctx is cancelled. Buffers
// that fail classification are skipped.
func (p *Processor) Run(ctx context.Context, buffers Buffers) error {
	p.log.Info("processing loop started", logger.Int("sample_rate", p.sampleRate))
	defer func() {
		processed, skipped := p.Stats()
		p.log.Info("processing loop stopped",
			logger.Uint64("processed", processed),
			logger.Uint64("skipped", skipped))
	}()

	for {
		buf, err := buffers.Next(ctx)
		switch {
		case errors.Is(err, segmenter.ErrStopped), ctx.Err() != nil:
			return nil
		case err != nil:
			return err
		}

		if _, err := p.Process(ctx, buf); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.log.Warn("skipping buffer",
				logger.Int("bytes", len(buf)),
				logger.Error(err))
		}
	}
}

// Stats returns the number of processed and skipped buffers.
func (p *Processor) Stats() (processed, skipped uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed, p.skipped
}

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the processor package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("processor")
	})
	return serviceLogger
}
