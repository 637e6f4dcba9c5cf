package features

import (
	"encoding/binary"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/tphakala/ambient-go/internal/errors"
)

// pcm16Scale maps signed 16-bit samples to [-1.0, 1.0).
const pcm16Scale = 32768.0

// PCM16ToFloat decodes little-endian signed 16-bit PCM into samples in
// [-1.0, 1.0). A trailing odd byte is ignored.
func PCM16ToFloat(pcm []byte) []float64 {
	out := make([]float64, len(pcm)/2)
	for i := range out {
		out[i] = float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / pcm16Scale
	}
	return out
}

// IntsToFloat scales integer samples of the given bit depth to [-1.0, 1.0).
func IntsToFloat(samples []int, bitDepth int) []float64 {
	scale := float64(int64(1) << (bitDepth - 1))
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s) / scale
	}
	return out
}

// Downmix averages interleaved multi-channel samples into mono. Incomplete
// trailing frames are dropped.
func Downmix(samples []float64, channels int) []float64 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float64, frames)
	for f := range frames {
		var sum float64
		for c := range channels {
			sum += samples[f*channels+c]
		}
		out[f] = sum / float64(channels)
	}
	return out
}

// Resample converts mono samples from inputRate to outputRate with a
// band-limited resampler. The resampler is flushed and the result fitted to
// round(len(samples) * outputRate / inputRate) samples, so clip duration is
// preserved.
func Resample(samples []float64, inputRate, outputRate int) ([]float64, error) {
	if inputRate == outputRate || len(samples) == 0 {
		return samples, nil
	}
	if inputRate <= 0 || outputRate <= 0 {
		return nil, errors.Newf("invalid resample rates %d -> %d", inputRate, outputRate).
			Component("features").
			Category(errors.CategoryValidation).
			Build()
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(inputRate),
		OutputRate: float64(outputRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, errors.New(err).
			Component("features").
			Category(errors.CategoryAudio).
			Context("operation", "create_resampler").
			Context("input_rate", inputRate).
			Context("output_rate", outputRate).
			Build()
	}

	out, err := r.Process(samples)
	if err != nil {
		return nil, errors.New(err).
			Component("features").
			Category(errors.CategoryAudio).
			Context("operation", "resample").
			Build()
	}

	tail, err := r.Flush()
	if err != nil {
		return nil, errors.New(err).
			Component("features").
			Category(errors.CategoryAudio).
			Context("operation", "resample_flush").
			Build()
	}
	out = append(out, tail...)

	return fitLength(out, ResampledLength(len(samples), inputRate, outputRate)), nil
}

// ResampledLength is the number of samples n input samples occupy after
// conversion from inputRate to outputRate.
func ResampledLength(n, inputRate, outputRate int) int {
	return int(math.Round(float64(n) * float64(outputRate) / float64(inputRate)))
}

// fitLength trims samples to n or pads them with silence.
func fitLength(samples []float64, n int) []float64 {
	if len(samples) >= n {
		return samples[:n]
	}
	return append(samples, make([]float64, n-len(samples))...)
}
