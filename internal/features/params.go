// Package features converts waveforms into log-mel spectrogram examples.
package features

import (
	"fmt"
	"math"

	"github.com/tphakala/ambient-go/internal/conf"
	"github.com/tphakala/ambient-go/internal/errors"
)

// Params holds the front-end constants. Durations are in seconds and are
// converted to sample or frame counts at the target sample rate.
type Params struct {
	SampleRate           int     // target rate in Hz
	StftWindowSeconds    float64 // analysis window
	StftHopSeconds       float64 // analysis hop
	MelBands             int
	MelMinHz             float64
	MelMaxHz             float64
	LogOffset            float64 // added before the log to avoid log(0)
	ExampleWindowSeconds float64
	ExampleHopSeconds    float64
}

// DefaultParams returns the VGGish-compatible front-end parameters.
func DefaultParams() Params {
	return Params{
		SampleRate:           conf.DefaultSampleRate,
		StftWindowSeconds:    conf.DefaultStftWindowSeconds,
		StftHopSeconds:       conf.DefaultStftHopSeconds,
		MelBands:             conf.DefaultMelBands,
		MelMinHz:             conf.DefaultMelMinHz,
		MelMaxHz:             conf.DefaultMelMaxHz,
		LogOffset:            conf.DefaultLogOffset,
		ExampleWindowSeconds: conf.DefaultExampleWindowSeconds,
		ExampleHopSeconds:    conf.DefaultExampleHopSeconds,
	}
}

// ParamsFromSettings builds Params from the feature section of the settings.
func ParamsFromSettings(s *conf.FeatureSettings) Params {
	return Params{
		SampleRate:           s.SampleRate,
		StftWindowSeconds:    s.StftWindowSeconds,
		StftHopSeconds:       s.StftHopSeconds,
		MelBands:             s.MelBands,
		MelMinHz:             s.MelMinHz,
		MelMaxHz:             s.MelMaxHz,
		LogOffset:            s.LogOffset,
		ExampleWindowSeconds: s.ExampleWindowSeconds,
		ExampleHopSeconds:    s.ExampleHopSeconds,
	}
}

// Validate checks that every derived length is positive and the mel band
// edges fit below the Nyquist frequency.
func (p Params) Validate() error {
	var problem string
	nyquist := float64(p.SampleRate) / 2

	switch {
	case p.SampleRate <= 0:
		problem = fmt.Sprintf("sample rate must be positive, got %d", p.SampleRate)
	case p.MelBands <= 0:
		problem = fmt.Sprintf("mel bands must be positive, got %d", p.MelBands)
	case p.LogOffset <= 0:
		problem = fmt.Sprintf("log offset must be positive, got %g", p.LogOffset)
	case p.WindowSamples() <= 0 || p.HopSamples() <= 0:
		problem = "stft window and hop must cover at least one sample"
	case p.ExampleWindowFrames() <= 0 || p.ExampleHopFrames() <= 0:
		problem = "example window and hop must cover at least one frame"
	case p.MelMinHz < 0:
		problem = fmt.Sprintf("lower edge %g Hz must be >= 0", p.MelMinHz)
	case p.MelMinHz >= p.MelMaxHz:
		problem = fmt.Sprintf("lower edge %g Hz must be below upper edge %g Hz", p.MelMinHz, p.MelMaxHz)
	case p.MelMaxHz > nyquist:
		problem = fmt.Sprintf("upper edge %g Hz exceeds nyquist %g Hz", p.MelMaxHz, nyquist)
	default:
		return nil
	}

	return errors.New(errors.NewStd(problem)).
		Component("features").
		Category(errors.CategoryValidation).
		Build()
}

// WindowSamples is the STFT window length in samples.
func (p Params) WindowSamples() int {
	return int(math.Round(float64(p.SampleRate) * p.StftWindowSeconds))
}

// HopSamples is the STFT hop length in samples.
func (p Params) HopSamples() int {
	return int(math.Round(float64(p.SampleRate) * p.StftHopSeconds))
}

// FFTLength is the smallest power of two not below the window length.
func (p Params) FFTLength() int {
	n := 1
	for n < p.WindowSamples() {
		n <<= 1
	}
	return n
}

// frameRate is the number of spectrogram rows per second.
func (p Params) frameRate() float64 {
	return 1 / p.StftHopSeconds
}

// ExampleWindowFrames is the number of spectrogram rows per example.
func (p Params) ExampleWindowFrames() int {
	if p.StftHopSeconds <= 0 {
		return 0
	}
	return int(math.Round(p.ExampleWindowSeconds * p.frameRate()))
}

// ExampleHopFrames is the stride between examples in spectrogram rows.
func (p Params) ExampleHopFrames() int {
	if p.StftHopSeconds <= 0 {
		return 0
	}
	return int(math.Round(p.ExampleHopSeconds * p.frameRate()))
}
