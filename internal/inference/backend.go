// Package inference turns feature examples into ranked class predictions:
// embedding, whitening, sequence shaping, aggregation and top-K ranking.
package inference

import (
	"context"
	"fmt"

	"github.com/tphakala/ambient-go/internal/errors"
	"github.com/tphakala/ambient-go/internal/features"
)

// ErrShapeMismatch is returned when a tensor does not have the dimensions a
// stage expects.
var ErrShapeMismatch = errors.NewStd("tensor shape mismatch")

// EmbeddingBackend maps a batch of examples to one embedding vector per
// example, in order.
type EmbeddingBackend interface {
	Embed(ctx context.Context, examples []features.Example) ([][]float64, error)
	// Dim is the length of every returned embedding.
	Dim() int
	Close() error
}

// AggregationBackend scores a fixed-length embedding sequence. trueLength
// counts the rows that precede zero padding.
type AggregationBackend interface {
	Score(ctx context.Context, sequence [][]float64, trueLength int) ([]float64, error)
	// NumClasses is the length of every returned score vector.
	NumClasses() int
	Close() error
}

func shapeError(stage string, want, got int) error {
	return errors.New(fmt.Errorf("%s: expected %d, got %d: %w", stage, want, got, ErrShapeMismatch)).
		Component("inference").
		Category(errors.CategoryValidation).
		Context("stage", stage).
		Context("expected", want).
		Context("actual", got).
		Build()
}
