package inference

import (
	"github.com/tphakala/ambient-go/internal/errors"
)

// Prepare resizes an embedding sequence to exactly maxFrames rows of length
// dim. Short sequences are zero padded at the end, long ones keep their
// first maxFrames rows. trueLength is min(len(embeddings), maxFrames).
// Real rows are shared with the input, padding rows are fresh.
func Prepare(embeddings [][]float64, maxFrames, dim int) (sequence [][]float64, trueLength int, err error) {
	if maxFrames <= 0 || dim <= 0 {
		return nil, 0, errors.Newf("invalid sequence shape %dx%d", maxFrames, dim).
			Component("inference").
			Category(errors.CategoryValidation).
			Build()
	}

	trueLength = min(len(embeddings), maxFrames)
	for _, e := range embeddings[:trueLength] {
		if len(e) != dim {
			return nil, 0, shapeError("sequence", dim, len(e))
		}
	}

	sequence = make([][]float64, maxFrames)
	copy(sequence, embeddings[:trueLength])

	padding := make([]float64, (maxFrames-trueLength)*dim)
	for i := trueLength; i < maxFrames; i++ {
		off := (i - trueLength) * dim
		sequence[i] = padding[off : off+dim : off+dim]
	}

	return sequence, trueLength, nil
}

// flatten packs a sequence into a row-major float32 tensor buffer.
func flatten(dst []float32, sequence [][]float64) {
	i := 0
	for _, row := range sequence {
		for _, v := range row {
			dst[i] = float32(v)
			i++
		}
	}
}
