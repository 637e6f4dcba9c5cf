package audio

import (
	"context"
	"io"

	"github.com/tphakala/ambient-go/internal/errors"
)

// ReaderSource reads raw little-endian 16-bit mono PCM from a stream such
// as stdin.
type ReaderSource struct {
	r io.Reader
}

// NewReaderSource wraps r.
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{r: r}
}

// Read returns exactly samples samples. A short final chunk is discarded and
// reported as io.EOF. Cancelling ctx closes a closable stream so a stalled
// pipe does not hold up shutdown; other readers block until data arrives.
func (s *ReaderSource) Read(ctx context.Context, samples int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	buf := make([]byte, samples*BytesPerSample)
	_, err := io.ReadFull(s.r, buf)
	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case err == nil:
		return buf, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return nil, io.EOF
	default:
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryAudioSource).
			Context("operation", "read_stream").
			Build()
	}
}

// Close closes the underlying stream when it is closable.
func (s *ReaderSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
