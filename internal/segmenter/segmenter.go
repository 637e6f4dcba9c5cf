// Package segmenter turns a continuous PCM byte stream into bounded analysis
// buffers using minimum and maximum watermarks.
package segmenter

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/tphakala/ambient-go/internal/errors"
	"github.com/tphakala/ambient-go/internal/logger"
	"github.com/tphakala/ambient-go/internal/observability/metrics"
)

// BytesPerSample is the width of a signed 16-bit PCM sample.
const BytesPerSample = 2

var (
	// ErrStopped is returned by Next once the capture loop has exited.
	ErrStopped = errors.NewStd("segmenter stopped")

	// ErrAlreadyRunning is returned when Run is called a second time.
	ErrAlreadyRunning = errors.NewStd("segmenter already running")
)

// Source is the capture side of an audio device. Read blocks until up to
// samples samples are available and returns them as little-endian PCM bytes.
// io.EOF signals end of stream.
type Source interface {
	Read(ctx context.Context, samples int) ([]byte, error)
}

// Segmenter accumulates PCM bytes and hands complete buffers to a single
// consumer. Feed is called from the capture goroutine only; the consumer
// signals readiness through Request or Next.
type Segmenter struct {
	minBytes int
	maxBytes int

	mu  sync.Mutex // guards buf for Len; Feed is the only writer
	buf []byte

	ready       atomic.Bool
	running     atomic.Bool
	overflowing bool

	out chan []byte

	log     logger.Logger
	metrics *metrics.PipelineMetrics
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithLogger sets the logger used by the segmenter.
func WithLogger(l logger.Logger) Option {
	return func(s *Segmenter) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics sets the pipeline metrics collector.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(s *Segmenter) {
		s.metrics = m
	}
}

// New creates a segmenter with the given watermarks in bytes. A minimum above
// the maximum is a configuration error.
func New(minBytes, maxBytes int, opts ...Option) (*Segmenter, error) {
	if maxBytes <= 0 || minBytes <= 0 {
		return nil, errors.Newf("watermarks must be positive: min=%d max=%d", minBytes, maxBytes).
			Component("segmenter").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if minBytes > maxBytes {
		return nil, errors.Newf("minimum watermark %d exceeds maximum %d", minBytes, maxBytes).
			Component("segmenter").
			Category(errors.CategoryConfiguration).
			Context("min_bytes", minBytes).
			Context("max_bytes", maxBytes).
			Build()
	}

	s := &Segmenter{
		minBytes: minBytes,
		maxBytes: maxBytes,
		buf:      make([]byte, 0, maxBytes),
		out:      make(chan []byte, 1),
		log:      GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BytesFor converts a duration in seconds to a sample-aligned byte count of
// mono 16-bit PCM at sampleRate.
func BytesFor(seconds float64, sampleRate int) int {
	return int(seconds*float64(sampleRate)) * BytesPerSample
}

// Request marks the consumer as ready for the next buffer.
func (s *Segmenter) Request() {
	s.ready.Store(true)
}

// Ready reports whether the consumer is waiting for a buffer.
func (s *Segmenter) Ready() bool {
	return s.ready.Load()
}

// Len returns the number of bytes currently accumulated.
func (s *Segmenter) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Feed appends chunk to the accumulator, drops the oldest bytes beyond the
// maximum watermark and, if the consumer is ready and at least the minimum
// is held, returns the whole accumulator. The returned slice is owned by the
// caller.
func (s *Segmenter) Feed(chunk []byte) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = append(s.buf, chunk...)

	if overflow := len(s.buf) - s.maxBytes; overflow > 0 {
		s.buf = s.buf[:copy(s.buf, s.buf[overflow:])]
		s.metrics.RecordTruncation(overflow)
		if !s.overflowing {
			s.overflowing = true
			s.log.Warn("consumer is behind, dropping oldest audio",
				logger.Int("dropped_bytes", overflow),
				logger.Int("max_bytes", s.maxBytes))
		} else {
			s.log.Debug("dropped oldest audio", logger.Int("dropped_bytes", overflow))
		}
	}

	if len(s.buf) < s.minBytes || !s.ready.CompareAndSwap(true, false) {
		s.metrics.SetBuffered(len(s.buf))
		return nil, false
	}

	handed := s.buf
	s.buf = make([]byte, 0, s.maxBytes)
	s.overflowing = false
	s.metrics.RecordHandoff(len(handed))
	s.log.Debug("buffer handed off", logger.Int("bytes", len(handed)))
	return handed, true
}

// Run reads chunks of chunkSamples samples from src until ctx is cancelled
// or the source ends, handing buffers to Next. End of stream and
// cancellation return nil; any unconsumed tail is discarded. A read failure
// stops the loop and is returned. Run may be called once.
func (s *Segmenter) Run(ctx context.Context, src Source, chunkSamples int) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(s.out)

	s.log.Info("capture loop started",
		logger.Int("min_bytes", s.minBytes),
		logger.Int("max_bytes", s.maxBytes),
		logger.Int("chunk_samples", chunkSamples))

	for {
		if ctx.Err() != nil {
			s.log.Info("capture loop stopped", logger.String("reason", "cancelled"))
			return nil
		}

		chunk, err := src.Read(ctx, chunkSamples)
		switch {
		case errors.Is(err, io.EOF):
			s.log.Info("capture loop stopped",
				logger.String("reason", "end of stream"),
				logger.Int("discarded_bytes", s.Len()))
			return nil
		case err != nil && ctx.Err() != nil:
			s.log.Info("capture loop stopped", logger.String("reason", "cancelled"))
			return nil
		case err != nil:
			return errors.New(err).
				Component("segmenter").
				Category(errors.CategoryAudioSource).
				Context("operation", "read").
				Context("chunk_samples", chunkSamples).
				Build()
		}

		if len(chunk) == 0 {
			continue
		}

		buf, ok := s.Feed(chunk)
		if !ok {
			continue
		}

		select {
		case s.out <- buf:
		case <-ctx.Done():
			s.log.Info("capture loop stopped", logger.String("reason", "cancelled"))
			return nil
		}
	}
}

// Next signals readiness and blocks until the capture loop hands off a
// buffer, the loop exits (ErrStopped) or ctx is done.
func (s *Segmenter) Next(ctx context.Context) ([]byte, error) {
	select {
	case buf, ok := <-s.out:
		if !ok {
			return nil, ErrStopped
		}
		return buf, nil
	default:
	}

	s.Request()

	select {
	case buf, ok := <-s.out:
		if !ok {
			return nil, ErrStopped
		}
		return buf, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
