package processor

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/tphakala/ambient-go/internal/audio"
	"github.com/tphakala/ambient-go/internal/errors"
)

// Naming selects how exported files are named.
type Naming int

const (
	// NameByUnixTime names files record_<unix seconds>.wav.
	NameByUnixTime Naming = iota
	// NameBySequence names files record_<n>.wav, n counting from 0.
	NameBySequence
)

// Exporter writes buffers as 16-bit mono WAV files.
type Exporter struct {
	fs         afero.Fs
	dir        string
	sampleRate int
	naming     Naming
	seq        atomic.Uint64
}

// NewExporter creates an exporter writing into dir on fs.
func NewExporter(fs afero.Fs, dir string, sampleRate int, naming Naming) *Exporter {
	return &Exporter{fs: fs, dir: dir, sampleRate: sampleRate, naming: naming}
}

// Export writes pcm and returns the file path.
func (e *Exporter) Export(pcm []byte, ts time.Time) (string, error) {
	if err := e.fs.MkdirAll(e.dir, 0o755); err != nil {
		return "", errors.New(err).
			Component("processor").
			Category(errors.CategoryFileIO).
			Context("dir", e.dir).
			Build()
	}

	var name string
	switch e.naming {
	case NameBySequence:
		name = fmt.Sprintf("record_%d.wav", e.seq.Add(1)-1)
	default:
		name = fmt.Sprintf("record_%d.wav", ts.Unix())
	}

	path := filepath.Join(e.dir, name)
	if err := audio.SaveWAV(e.fs, path, pcm, e.sampleRate); err != nil {
		return "", err
	}
	return path, nil
}
