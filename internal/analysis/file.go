package analysis

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/tphakala/ambient-go/internal/audio"
	"github.com/tphakala/ambient-go/internal/classifier"
	"github.com/tphakala/ambient-go/internal/conf"
	"github.com/tphakala/ambient-go/internal/errors"
	"github.com/tphakala/ambient-go/internal/features"
	"github.com/tphakala/ambient-go/internal/inference"
	"github.com/tphakala/ambient-go/internal/logger"
)

// Predictor classifies a decoded waveform.
type Predictor interface {
	Predict(ctx context.Context, samples []float64, channels, sampleRate int) ([]inference.Prediction, error)
}

// FileAnalysis classifies a 16-bit WAV file and writes the formatted
// predictions to out.
func FileAnalysis(ctx context.Context, settings *conf.Settings, path string, out io.Writer) error {
	clf, err := classifier.Load(settings, nil)
	if err != nil {
		return err
	}
	defer func() { _ = clf.Close() }()

	_, err = classifyFile(ctx, afero.NewOsFs(), path, clf, out)
	return err
}

func classifyFile(ctx context.Context, fs afero.Fs, path string, p Predictor, out io.Writer) ([]inference.Prediction, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return nil, errors.New(err).
			Component("analysis").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	if info.IsDir() {
		return nil, errors.Newf("%s is a directory, not a file", path).
			Component("analysis").
			Category(errors.CategoryValidation).
			Build()
	}

	clip, err := audio.ReadWAV(fs, path)
	if err != nil {
		return nil, err
	}

	GetLogger().Info("classifying file",
		logger.String("path", path),
		logger.Int("channels", clip.Channels),
		logger.Int("sample_rate", clip.SampleRate),
		logger.Float64("seconds", clip.Duration()))

	samples := features.IntsToFloat(clip.Data, clip.BitDepth)
	predictions, err := p.Predict(ctx, samples, clip.Channels, clip.SampleRate)
	if err != nil {
		return nil, err
	}

	if _, err := fmt.Fprintln(out, classifier.FormatPredictions(predictions)); err != nil {
		return nil, errors.New(err).
			Component("analysis").
			Category(errors.CategoryFileIO).
			Context("operation", "write_results").
			Build()
	}
	return predictions, nil
}
