package analysis

import (
	"context"
	"io"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/ambient-go/internal/analysis/processor"
	"github.com/tphakala/ambient-go/internal/audio"
	"github.com/tphakala/ambient-go/internal/classifier"
	"github.com/tphakala/ambient-go/internal/conf"
	"github.com/tphakala/ambient-go/internal/events"
	"github.com/tphakala/ambient-go/internal/httpserver"
	"github.com/tphakala/ambient-go/internal/logger"
	"github.com/tphakala/ambient-go/internal/mqtt"
	"github.com/tphakala/ambient-go/internal/observability"
	"github.com/tphakala/ambient-go/internal/segmenter"
)

// StdinSource is the audio source value that reads raw PCM from stdin.
const StdinSource = "-"

// Pipeline connects an audio source through the segmenter to the processor.
type Pipeline struct {
	Source       segmenter.Source
	Segmenter    *segmenter.Segmenter
	Processor    *processor.Processor
	ChunkSamples int
	Server       *httpserver.Server // optional
}

// Run starts the capture and processing goroutines, and the HTTP server when
// set, and waits for them. The run ends when ctx is cancelled, the source
// ends or a goroutine fails.
func (p *Pipeline) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	// processing ends after the capture loop; its exit stops the server
	procCtx, procDone := context.WithCancel(gctx)

	g.Go(func() error {
		return p.Segmenter.Run(gctx, p.Source, p.ChunkSamples)
	})
	g.Go(func() error {
		defer procDone()
		return p.Processor.Run(gctx, p.Segmenter)
	})
	if p.Server != nil {
		g.Go(func() error {
			return p.Server.Run(procCtx)
		})
	}

	err := g.Wait()
	procDone()
	return err
}

// RealtimeAnalysis runs the classifier continuously over the configured
// audio source until ctx is cancelled or the source ends.
func RealtimeAnalysis(ctx context.Context, settings *conf.Settings, stdin io.Reader) error {
	log := GetLogger()

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
	src, closeSource, err := openSource(settings, rate, stdin)
	if err != nil {
		return err
	}
	defer closeSource()

	seg, err := segmenter.New(
		segmenter.BytesFor(settings.Audio.Capture.MinTime, rate),
		segmenter.BytesFor(settings.Audio.Capture.MaxTime, rate),
		segmenter.WithMetrics(m.Pipeline))
	if err != nil {
		return err
	}

	history := events.NewHistory(settings.History.Size)
	actions := []processor.Action{processor.NewHistoryAction(history)}

	if settings.MQTT.Enabled {
		client := mqtt.NewClient(mqtt.ConfigFromSettings(settings), m.MQTT)
		if err := client.Connect(ctx); err != nil {
			log.Warn("MQTT connection failed, retrying in background", logger.Error(err))
		}
		pub := mqtt.NewPublisher(client, settings.MQTT.Topic, settings.Main.Name, settings.MQTT.Cooldown, m.MQTT)
		defer pub.Close()
		actions = append(actions, processor.NewMqttAction(pub))
	}

	opts := []processor.Option{
		processor.WithActions(actions...),
		processor.WithMetrics(m.Pipeline),
	}
	if settings.Audio.Export.Enabled {
		opts = append(opts, processor.WithExporter(
			processor.NewExporter(afero.NewOsFs(), settings.Audio.Export.Path, rate, processor.NameByUnixTime)))
	}

	pipeline := &Pipeline{
		Source:       src,
		Segmenter:    seg,
		Processor:    processor.New(clf, rate, opts...),
		ChunkSamples: settings.Audio.ChunkSamples,
	}
	if settings.WebServer.Enabled {
		pipeline.Server = httpserver.New(settings.WebServer.Listen, history,
			httpserver.WithMetricsHandler(m.Handler()),
			httpserver.WithDevice(settings.Main.Name))
	}

	log.Info("starting realtime analysis",
		logger.String("source", sourceName(settings.Audio.Source)),
		logger.Float64("min_seconds", settings.Audio.Capture.MinTime),
		logger.Float64("max_seconds", settings.Audio.Capture.MaxTime),
		logger.Int("count", settings.Prediction.Count),
		logger.Float64("threshold", settings.Prediction.Threshold))

	return pipeline.Run(ctx)
}

// openSource opens the sound card or, for StdinSource, wraps stdin.
func openSource(settings *conf.Settings, rate int, stdin io.Reader) (segmenter.Source, func(), error) {
	if settings.Audio.Source == StdinSource {
		src := audio.NewReaderSource(stdin)
		return src, func() { _ = src.Close() }, nil
	}

	chunkSeconds := float64(settings.Audio.ChunkSamples) / float64(rate)
	dev, err := audio.OpenDevice(audio.DeviceConfig{
		Source:        settings.Audio.Source,
		SampleRate:    rate,
		BufferSeconds: 2 * max(settings.Audio.Capture.MaxTime, chunkSeconds),
	})
	if err != nil {
		return nil, nil, err
	}
	return dev, func() { _ = dev.Close() }, nil
}

func sourceName(source string) string {
	switch source {
	case "":
		return "default"
	case StdinSource:
		return "stdin"
	default:
		return source
	}
}
