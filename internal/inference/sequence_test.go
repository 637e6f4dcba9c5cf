package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rows(n, dim int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, dim)
		for j := range out[i] {
			out[i][j] = float64(i*dim+j) + 1
		}
	}
	return out
}

func TestPreparePads(t *testing.T) {
	in := rows(3, 4)

	seq, trueLength, err := Prepare(in, 5, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, trueLength)
	require.Len(t, seq, 5)

	for i := range 3 {
		assert.Equal(t, in[i], seq[i])
	}
	for i := 3; i < 5; i++ {
		assert.Equal(t, []float64{0, 0, 0, 0}, seq[i])
	}
}

func TestPrepareTruncates(t *testing.T) {
	in := rows(7, 2)

	seq, trueLength, err := Prepare(in, 5, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, trueLength)
	assert.Equal(t, in[:5], seq)
}

func TestPrepareExactAndEmpty(t *testing.T) {
	in := rows(5, 2)
	seq, trueLength, err := Prepare(in, 5, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, trueLength)
	assert.Equal(t, in, seq)

	seq, trueLength, err = Prepare(nil, 3, 2)
	require.NoError(t, err)
	assert.Zero(t, trueLength)
	assert.Equal(t, [][]float64{{0, 0}, {0, 0}, {0, 0}}, seq)
}

func TestPreparePaddingIsIndependent(t *testing.T) {
	seq, _, err := Prepare(nil, 2, 2)
	require.NoError(t, err)

	seq[0] = append(seq[0], 9)
	assert.Equal(t, []float64{0, 0}, seq[1])
}

func TestPrepareRejectsBadShapes(t *testing.T) {
	_, _, err := Prepare(rows(2, 3), 4, 2)
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, _, err = Prepare(rows(2, 2), 0, 2)
	require.Error(t, err)

	_, _, err = Prepare(rows(2, 2), 2, 0)
	require.Error(t, err)
}

func TestPrepareLawsAcrossLengths(t *testing.T) {
	const maxFrames, dim = 6, 3

	for k := range 12 {
		in := rows(k, dim)
		seq, trueLength, err := Prepare(in, maxFrames, dim)
		require.NoError(t, err)
		require.Len(t, seq, maxFrames)
		assert.Equal(t, min(k, maxFrames), trueLength)

		for i, row := range seq {
			require.Len(t, row, dim)
			if i < trueLength {
				assert.Equal(t, in[i], row, "k=%d row %d", k, i)
			} else {
				assert.Equal(t, make([]float64, dim), row, "k=%d row %d", k, i)
			}
		}
	}
}

func TestFlatten(t *testing.T) {
	dst := make([]float32, 4)
	flatten(dst, [][]float64{{1, 2}, {3, 4}})
	assert.Equal(t, []float32{1, 2, 3, 4}, dst)
}
