package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodicHann(t *testing.T) {
	assert.InDeltaSlice(t, []float64{0, 0.5, 1, 0.5}, periodicHann(4), 1e-12)

	w := periodicHann(400)
	assert.InDelta(t, 0, w[0], 1e-12)
	assert.InDelta(t, 1, w[200], 1e-12)
}

func TestNumFrames(t *testing.T) {
	assert.Equal(t, 0, numFrames(399, 400, 160))
	assert.Equal(t, 1, numFrames(400, 400, 160))
	assert.Equal(t, 1, numFrames(559, 400, 160))
	assert.Equal(t, 2, numFrames(560, 400, 160))
	assert.Equal(t, 98, numFrames(16000, 400, 160))
}

func TestHzToMel(t *testing.T) {
	assert.InDelta(t, 0, hzToMel(0), 1e-12)
	assert.InDelta(t, 1127*math.Ln2, hzToMel(700), 1e-9)
}

func TestLinspace(t *testing.T) {
	assert.InDeltaSlice(t, []float64{0, 0.25, 0.5, 0.75, 1}, linspace(0, 1, 5), 1e-12)
	assert.Equal(t, []float64{3}, linspace(3, 9, 1))
}

func TestMelMatrix(t *testing.T) {
	weights := melMatrix(64, 257, 16000, 125, 7500)
	require.Len(t, weights, 257)

	for _, w := range weights[0] {
		assert.Zero(t, w, "DC bin must carry no weight")
	}

	for k, row := range weights {
		require.Len(t, row, 64)
		for m, w := range row {
			require.GreaterOrEqual(t, w, 0.0, "bin %d band %d", k, m)
			require.LessOrEqual(t, w, 1.0, "bin %d band %d", k, m)
		}
	}

	// bins above the upper edge contribute nothing
	for _, w := range weights[256] {
		assert.Zero(t, w)
	}

	// every band receives energy from at least one bin
	for m := range 64 {
		var sum float64
		for k := range weights {
			sum += weights[k][m]
		}
		assert.Positive(t, sum, "band %d", m)
	}
}

func TestStftMagnitudeShapes(t *testing.T) {
	signal := make([]float64, 1000)
	signal[500] = 1

	mags := stftMagnitude(signal, 512, 160, periodicHann(400))
	require.Len(t, mags, numFrames(1000, 400, 160))
	for _, row := range mags {
		require.Len(t, row, 257)
	}

	assert.Nil(t, stftMagnitude(make([]float64, 10), 512, 160, periodicHann(400)))
}
