package inference

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/tphakala/ambient-go/internal/errors"
	"github.com/tphakala/ambient-go/internal/logger"
)

// Array names inside the PCA parameter archive.
const (
	PCAMatrixName = "pca_eigen_vectors"
	PCAMeansName  = "pca_means"
)

// Whitener applies matrix·(e − mean) to embeddings. It is immutable after
// construction and safe for concurrent use.
type Whitener struct {
	matrix *mat.Dense
	mean   *mat.VecDense
}

// NewWhitener builds a whitener from a rows×cols projection matrix and a
// mean vector of length cols.
func NewWhitener(matrix *mat.Dense, mean []float64) (*Whitener, error) {
	if matrix == nil {
		return nil, errors.Newf("nil whitening matrix").
			Component("inference").
			Category(errors.CategoryValidation).
			Build()
	}
	rows, cols := matrix.Dims()
	if rows == 0 || cols == 0 {
		return nil, shapeError("whitening matrix", len(mean), 0)
	}
	if cols != len(mean) {
		return nil, shapeError("whitening mean", cols, len(mean))
	}

	m := mat.DenseCopyOf(matrix)
	meanCopy := make([]float64, len(mean))
	copy(meanCopy, mean)

	return &Whitener{matrix: m, mean: mat.NewVecDense(len(meanCopy), meanCopy)}, nil
}

// LoadWhitener reads pca_eigen_vectors and pca_means from a numpy .npz
// archive.
func LoadWhitener(path string) (*Whitener, error) {
	start := time.Now()

	arrays, err := loadNpz(path, PCAMatrixName, PCAMeansName)
	if err != nil {
		return nil, err
	}

	vectors := arrays[PCAMatrixName]
	if len(vectors.shape) != 2 || vectors.size() == 0 {
		return nil, errors.Newf("%s must be 2-D, got shape %v", PCAMatrixName, vectors.shape).
			Component("inference").
			Category(errors.CategoryModelLoad).
			Context("path", path).
			Build()
	}
	matrix := mat.NewDense(vectors.shape[0], vectors.shape[1], vectors.data)

	// means may be stored as (n,) or (n, 1)
	means := arrays[PCAMeansName]

	w, err := NewWhitener(matrix, means.data)
	if err != nil {
		return nil, err
	}

	GetLogger().Info("loaded whitening parameters",
		logger.String("path", path),
		logger.Int("input_dim", w.InputDim()),
		logger.Int("output_dim", w.Dim()),
		logger.Duration("elapsed", time.Since(start)))

	return w, nil
}

// InputDim is the expected embedding length.
func (w *Whitener) InputDim() int {
	return w.mean.Len()
}

// Dim is the length of whitened embeddings.
func (w *Whitener) Dim() int {
	rows, _ := w.matrix.Dims()
	return rows
}

// Whiten returns matrix·(e − mean).
func (w *Whitener) Whiten(e []float64) ([]float64, error) {
	if len(e) != w.InputDim() {
		return nil, shapeError("whiten", w.InputDim(), len(e))
	}

	centered := mat.NewVecDense(len(e), nil)
	centered.SubVec(mat.NewVecDense(len(e), e), w.mean)

	out := mat.NewVecDense(w.Dim(), nil)
	out.MulVec(w.matrix, centered)
	return out.RawVector().Data, nil
}

// WhitenAll whitens each embedding independently, preserving order.
func (w *Whitener) WhitenAll(embeddings [][]float64) ([][]float64, error) {
	out := make([][]float64, len(embeddings))
	for i, e := range embeddings {
		v, err := w.Whiten(e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
