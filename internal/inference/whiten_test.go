package inference

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/tphakala/ambient-go/internal/errors"
)

// encodeNpy writes a version 1.0 little-endian float64 or float32 array.
func encodeNpy(t *testing.T, shape []int, data []float64, float32s, fortran bool) []byte {
	t.Helper()

	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = fmt.Sprint(d)
	}
	shapeStr := strings.Join(dims, ", ")
	if len(shape) == 1 {
		shapeStr += ","
	}
	descr := "<f8"
	if float32s {
		descr = "<f4"
	}
	order := "False"
	if fortran {
		order = "True"
	}
	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': %s, 'shape': (%s), }", descr, order, shapeStr)
	for (len(npyMagic)+4+len(header)+1)%64 != 0 {
		header += " "
	}
	header += "\n"

	var buf bytes.Buffer
	buf.Write(npyMagic)
	buf.Write([]byte{1, 0})
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(len(header))))
	buf.WriteString(header)
	for _, v := range data {
		if float32s {
			require.NoError(t, binary.Write(&buf, binary.LittleEndian, float32(v)))
		} else {
			require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
		}
	}
	return buf.Bytes()
}

func writeNpz(t *testing.T, entries map[string][]byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "params.npz")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	zw := zip.NewWriter(f)
	for name, data := range entries {
		w, err := zw.Create(name + ".npy")
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func TestReadNpy(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6}

	arr, err := readNpy(bytes.NewReader(encodeNpy(t, []int{2, 3}, data, false, false)))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, arr.shape)
	assert.Equal(t, data, arr.data)

	arr, err = readNpy(bytes.NewReader(encodeNpy(t, []int{6}, data, true, false)))
	require.NoError(t, err)
	assert.Equal(t, []int{6}, arr.shape)
	assert.InDeltaSlice(t, data, arr.data, 1e-6)
}

func TestReadNpyFortranOrder(t *testing.T) {
	// column-major storage of [[1 2 3] [4 5 6]]
	arr, err := readNpy(bytes.NewReader(encodeNpy(t, []int{2, 3}, []float64{1, 4, 2, 5, 3, 6}, false, true)))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, arr.data)
}

func TestReadNpyRejectsGarbage(t *testing.T) {
	_, err := readNpy(strings.NewReader("not a numpy file"))
	require.Error(t, err)

	_, err = parseNpyHeader("{'descr': '<c16', 'fortran_order': False, 'shape': (2,), }")
	require.Error(t, err)

	truncated := encodeNpy(t, []int{4}, []float64{1, 2, 3, 4}, false, false)
	_, err = readNpy(bytes.NewReader(truncated[:len(truncated)-8]))
	require.Error(t, err)
}

func TestWhiten(t *testing.T) {
	// swap the two components and scale the second
	matrix := mat.NewDense(2, 2, []float64{0, 1, 2, 0})
	w, err := NewWhitener(matrix, []float64{1, 1})
	require.NoError(t, err)
	assert.Equal(t, 2, w.InputDim())
	assert.Equal(t, 2, w.Dim())

	got, err := w.Whiten([]float64{3, 5})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{4, 4}, got, 1e-12)

	// construction copies its inputs
	matrix.Set(0, 1, 100)
	got, err = w.Whiten([]float64{1, 2})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 0}, got, 1e-12)
}

func TestWhitenShapeMismatch(t *testing.T) {
	w, err := NewWhitener(mat.NewDense(2, 2, []float64{1, 0, 0, 1}), []float64{0, 0})
	require.NoError(t, err)

	_, err = w.Whiten([]float64{1, 2, 3})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, err = NewWhitener(mat.NewDense(2, 3, nil), []float64{0, 0})
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestWhitenAllPreservesOrder(t *testing.T) {
	w, err := NewWhitener(mat.NewDense(1, 1, []float64{2}), []float64{0.5})
	require.NoError(t, err)

	out, err := w.WhitenAll([][]float64{{1}, {2}, {3}})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, [][]float64{{1}, {3}, {5}}, out)

	empty, err := w.WhitenAll(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLoadWhitener(t *testing.T) {
	const dim = 4
	identity := make([]float64, dim*dim)
	for i := range dim {
		identity[i*dim+i] = 1
	}
	means := []float64{0.5, 0.5, 0.5, 0.5}

	path := writeNpz(t, map[string][]byte{
		PCAMatrixName: encodeNpy(t, []int{dim, dim}, identity, true, false),
		PCAMeansName:  encodeNpy(t, []int{dim, 1}, means, false, false),
	})

	w, err := LoadWhitener(path)
	require.NoError(t, err)
	assert.Equal(t, dim, w.Dim())

	got, err := w.Whiten([]float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 1.5, 2.5, 3.5}, got, 1e-6)
}

func TestLoadWhitenerErrors(t *testing.T) {
	_, err := LoadWhitener(filepath.Join(t.TempDir(), "missing.npz"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))

	path := writeNpz(t, map[string][]byte{
		PCAMatrixName: encodeNpy(t, []int{1, 1}, []float64{1}, false, false),
	})
	_, err = LoadWhitener(path)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelLoad))
	assert.Contains(t, err.Error(), PCAMeansName)
}

func TestWhitenMatchesDirectComputation(t *testing.T) {
	const dim = 8
	data := make([]float64, dim*dim)
	for i := range data {
		data[i] = math.Sin(float64(i))
	}
	mean := make([]float64, dim)
	e := make([]float64, dim)
	for i := range dim {
		mean[i] = float64(i) / 10
		e[i] = math.Cos(float64(i))
	}

	w, err := NewWhitener(mat.NewDense(dim, dim, data), mean)
	require.NoError(t, err)
	got, err := w.Whiten(e)
	require.NoError(t, err)

	for r := range dim {
		var want float64
		for c := range dim {
			want += data[r*dim+c] * (e[c] - mean[c])
		}
		assert.InDelta(t, want, got[r], 1e-12)
	}
}
