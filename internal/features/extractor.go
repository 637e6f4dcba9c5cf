package features

import (
	"context"
	"time"

	"github.com/tphakala/ambient-go/internal/errors"
	"github.com/tphakala/ambient-go/internal/logger"
)

// Example is a fixed-size patch of log-mel spectrogram rows, shaped
// [ExampleWindowFrames][MelBands].
type Example [][]float64

// Extractor converts waveforms into Examples. The window and mel weights
// are computed once; Extract is safe for concurrent use.
type Extractor struct {
	params  Params
	window  []float64
	weights [][]float64
	log     logger.Logger
}

// NewExtractor validates params and precomputes the analysis window and
// mel filterbank.
func NewExtractor(params Params) (*Extractor, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	fftLength := params.FFTLength()
	return &Extractor{
		params:  params,
		window:  periodicHann(params.WindowSamples()),
		weights: melMatrix(params.MelBands, fftLength/2+1, params.SampleRate, params.MelMinHz, params.MelMaxHz),
		log:     GetLogger(),
	}, nil
}

// Params returns the extractor configuration.
func (e *Extractor) Params() Params {
	return e.params
}

// Extract downmixes interleaved samples with the given channel count,
// resamples to the target rate, computes the log-mel spectrogram and frames
// it into examples. Input shorter than one example yields no examples and
// no error. ctx is checked between examples.
func (e *Extractor) Extract(ctx context.Context, samples []float64, channels, sampleRate int) ([]Example, error) {
	start := time.Now()

	if channels < 1 {
		return nil, errors.Newf("invalid channel count %d", channels).
			Component("features").
			Category(errors.CategoryValidation).
			Build()
	}

	mono := Downmix(samples, channels)

	mono, err := Resample(mono, sampleRate, e.params.SampleRate)
	if err != nil {
		return nil, err
	}

	logMel := e.LogMelSpectrogram(mono)

	window := e.params.ExampleWindowFrames()
	hop := e.params.ExampleHopFrames()
	n := numFrames(len(logMel), window, hop)

	examples := make([]Example, 0, n)
	for i := range n {
		if err := ctx.Err(); err != nil {
			return nil, errors.New(err).
				Component("features").
				Category(errors.CategoryCancellation).
				Build()
		}
		from := i * hop
		examples = append(examples, Example(logMel[from:from+window:from+window]))
	}

	e.log.Debug("extracted examples",
		logger.Int("samples", len(mono)),
		logger.Int("frames", len(logMel)),
		logger.Int("examples", len(examples)),
		logger.Duration("elapsed", time.Since(start)))

	return examples, nil
}

// LogMelSpectrogram returns the [frames][MelBands] log-mel spectrogram of
// mono samples already at the target rate.
func (e *Extractor) LogMelSpectrogram(samples []float64) [][]float64 {
	magnitudes := stftMagnitude(samples, e.params.FFTLength(), e.params.HopSamples(), e.window)
	return logMel(magnitudes, e.weights, e.params.MelBands, e.params.LogOffset)
}
