package analysis

import (
	"context"
	"io"
	"time"

	"github.com/spf13/afero"

	"github.com/tphakala/ambient-go/internal/analysis/processor"
	"github.com/tphakala/ambient-go/internal/audio"
	"github.com/tphakala/ambient-go/internal/classifier"
	"github.com/tphakala/ambient-go/internal/conf"
	"github.com/tphakala/ambient-go/internal/errors"
	"github.com/tphakala/ambient-go/internal/logger"
	"github.com/tphakala/ambient-go/internal/observability"
	"github.com/tphakala/ambient-go/internal/segmenter"
)

// CaptureOptions configures CaptureCycles.
type CaptureOptions struct {
	Period  time.Duration // recording length per cycle, 1 to 10 seconds
	Cycles  int           // number of cycles, 0 runs until cancelled
	SaveDir string        // when set, each recording is saved as record_<n>.wav
}

// Validate checks the period bounds and cycle count.
func (o CaptureOptions) Validate() error {
	if o.Period < time.Second || o.Period > 10*time.Second {
		return errors.New(ErrInvalidPeriod).
			Component("analysis").
			Category(errors.CategoryValidation).
			Context("period", o.Period.String()).
			Build()
	}
	if o.Cycles < 0 {
		return errors.Newf("cycles must not be negative, got %d", o.Cycles).
			Component("analysis").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// CaptureCycles records fixed-length periods from the sound card and
// classifies each one.
func CaptureCycles(ctx context.Context, settings *conf.Settings, opts CaptureOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	clf, err := classifier.Load(settings, m.Pipeline)
	if err != nil {
		return err
	}
	defer func() { _ = clf.Close() }()

	rate := clf.SampleRate()
	dev, err := audio.OpenDevice(audio.DeviceConfig{
		Source:        settings.Audio.Source,
		SampleRate:    rate,
		BufferSeconds: 2 * opts.Period.Seconds(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = dev.Close() }()

	var procOpts []processor.Option
	procOpts = append(procOpts, processor.WithMetrics(m.Pipeline))
	if opts.SaveDir != "" {
		procOpts = append(procOpts, processor.WithExporter(
			processor.NewExporter(afero.NewOsFs(), opts.SaveDir, rate, processor.NameBySequence)))
	}

	_, err = runCycles(ctx, dev, processor.New(clf, rate, procOpts...), opts, rate)
	return err
}

// runCycles reads one period per cycle from src and processes it. It
// returns the number of completed cycles. End of stream and cancellation
// end the run without error.
func runCycles(ctx context.Context, src segmenter.Source, proc *processor.Processor, opts CaptureOptions, rate int) (int, error) {
	log := GetLogger()
	samples := int(opts.Period.Seconds() * float64(rate))

	log.Info("starting capture cycles",
		logger.Duration("period", opts.Period),
		logger.Int("cycles", opts.Cycles),
		logger.String("save_dir", opts.SaveDir))

	completed := 0
	for opts.Cycles == 0 || completed < opts.Cycles {
		pcm, err := src.Read(ctx, samples)
		switch {
		case errors.Is(err, io.EOF):
			log.Info("audio source ended", logger.Int("cycles", completed))
			return completed, nil
		case ctx.Err() != nil:
			log.Info("capture cancelled", logger.Int("cycles", completed))
			return completed, nil
		case err != nil:
			return completed, err
		}

		if _, err := proc.Process(ctx, pcm); err != nil {
			if ctx.Err() != nil {
				return completed, nil
			}
			log.Warn("cycle classification failed", logger.Int("cycle", completed), logger.Error(err))
		}
		completed++
	}
	return completed, nil
}
