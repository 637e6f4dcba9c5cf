package audio

import (
	"encoding/binary"
	"fmt"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"

	"github.com/tphakala/ambient-go/internal/errors"
	"github.com/tphakala/ambient-go/internal/logger"
)

// ErrUnsupportedFormat is returned for WAV files that are not 16-bit PCM.
var ErrUnsupportedFormat = errors.NewStd("unsupported audio format")

// Clip is decoded PCM audio with interleaved integer samples.
type Clip struct {
	Data       []int
	Channels   int
	SampleRate int
	BitDepth   int
}

// Duration is the clip length in seconds.
func (c *Clip) Duration() float64 {
	if c.Channels == 0 || c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Data)/c.Channels) / float64(c.SampleRate)
}

// ReadWAV decodes a 16-bit PCM WAV file. Other bit depths fail with
// ErrUnsupportedFormat.
func ReadWAV(fs afero.Fs, path string) (*Clip, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer func() { _ = f.Close() }()

	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, errors.New(fmt.Errorf("%s is not a valid WAV file: %w", path, ErrUnsupportedFormat)).
			Component("audio").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}
	if decoder.BitDepth != 16 {
		return nil, errors.New(fmt.Errorf("%d-bit audio: %w", decoder.BitDepth, ErrUnsupportedFormat)).
			Component("audio").
			Category(errors.CategoryValidation).
			Context("path", path).
			Context("bit_depth", decoder.BitDepth).
			Build()
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Context("operation", "decode_pcm").
			Build()
	}

	clip := &Clip{
		Data:       buf.Data,
		Channels:   int(decoder.NumChans),
		SampleRate: int(decoder.SampleRate),
		BitDepth:   int(decoder.BitDepth),
	}

	GetLogger().Debug("decoded wav",
		logger.String("path", path),
		logger.Int("channels", clip.Channels),
		logger.Int("sample_rate", clip.SampleRate),
		logger.Float64("seconds", clip.Duration()))

	return clip, nil
}

// SaveWAV writes little-endian 16-bit mono PCM as a WAV file.
func SaveWAV(fs afero.Fs, path string, pcm []byte, sampleRate int) error {
	f, err := fs.Create(path)
	if err != nil {
		return errors.New(err).
			Component("audio").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	samples := make([]int, len(pcm)/BytesPerSample)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))) //nolint:gosec // G115: reinterpreting two's complement
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	err = enc.Write(&audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: 1},
		SourceBitDepth: 16,
	})
	if err == nil {
		err = enc.Close()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.New(err).
			Component("audio").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Context("operation", "encode_wav").
			Build()
	}
	return nil
}
