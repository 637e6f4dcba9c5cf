package features

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// periodicHann returns a Hann window of length n that is periodic rather
// than symmetric, as used for STFT analysis.
func periodicHann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// numFrames returns how many windows of length window fit into length
// samples at the given hop; zero when length < window.
func numFrames(length, window, hop int) int {
	if length < window || window <= 0 || hop <= 0 {
		return 0
	}
	return 1 + (length-window)/hop
}

// hzToMel converts frequency in Hz to the HTK mel scale.
func hzToMel(hz float64) float64 {
	return 1127.0 * math.Log(1.0+hz/700.0)
}

// linspace returns n evenly spaced values from start to stop inclusive.
func linspace(start, stop float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

// melMatrix returns the [spectrogramBins][melBands] weights that project a
// linear magnitude spectrum onto triangular mel bands. The DC bin carries no
// weight. Band edges must already be validated.
func melMatrix(melBands, spectrogramBins, sampleRate int, lowerHz, upperHz float64) [][]float64 {
	nyquist := float64(sampleRate) / 2
	binsMel := linspace(0, nyquist, spectrogramBins)
	for i, hz := range binsMel {
		binsMel[i] = hzToMel(hz)
	}
	edges := linspace(hzToMel(lowerHz), hzToMel(upperHz), melBands+2)

	weights := make([][]float64, spectrogramBins)
	for k := range weights {
		weights[k] = make([]float64, melBands)
	}

	for m := range melBands {
		lower, center, upper := edges[m], edges[m+1], edges[m+2]
		for k := 1; k < spectrogramBins; k++ {
			lowerSlope := (binsMel[k] - lower) / (center - lower)
			upperSlope := (upper - binsMel[k]) / (upper - center)
			weights[k][m] = math.Max(0, math.Min(lowerSlope, upperSlope))
		}
	}

	return weights
}

// stftMagnitude returns the magnitude spectrum of each windowed frame,
// zero padded to fftLength. Each row has fftLength/2+1 bins.
func stftMagnitude(signal []float64, fftLength, hop int, window []float64) [][]float64 {
	n := numFrames(len(signal), len(window), hop)
	if n == 0 {
		return nil
	}

	fft := fourier.NewFFT(fftLength)
	buf := make([]float64, fftLength)
	coeffs := make([]complex128, fftLength/2+1)
	out := make([][]float64, n)

	for f := range n {
		start := f * hop
		for i := range window {
			buf[i] = signal[start+i] * window[i]
		}
		// remainder of buf stays zero
		coeffs = fft.Coefficients(coeffs, buf)

		row := make([]float64, len(coeffs))
		for k, c := range coeffs {
			row[k] = cmplx.Abs(c)
		}
		out[f] = row
	}
	return out
}

// logMel projects magnitudes onto the mel weights and compresses with
// log(x + offset).
func logMel(magnitudes, weights [][]float64, melBands int, offset float64) [][]float64 {
	out := make([][]float64, len(magnitudes))
	for t, mag := range magnitudes {
		row := make([]float64, melBands)
		for k, v := range mag {
			if v == 0 {
				continue
			}
			for m, w := range weights[k] {
				row[m] += v * w
			}
		}
		for m := range row {
			row[m] = math.Log(row[m] + offset)
		}
		out[t] = row
	}
	return out
}
