package realtime

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tphakala/ambient-go/internal/analysis"
	"github.com/tphakala/ambient-go/internal/conf"
)

// Command creates a new command for real-time audio analysis.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Analyze audio in realtime mode",
		Long: "Continuously classify sound from the sound card, or raw 16-bit PCM on stdin " +
			"with --source -, until interrupted or the input ends.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.RealtimeAnalysis(cmd.Context(), settings, os.Stdin)
		},
	}

	setupFlags(cmd)

	return cmd
}

// setupFlags configures flags specific to the realtime command.
func setupFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("source", "", "Audio capture source (device name or ID, \"-\" for stdin)")
	flags.Float64("min-time", conf.DefaultCaptureSeconds, "Seconds of audio needed before a buffer is ready")
	flags.Float64("max-time", conf.DefaultCaptureSeconds, "Seconds of audio kept while waiting for the classifier")
	flags.Bool("export", false, "Save every classified buffer as a WAV file")
	flags.String("clippath", "recordings/", "Directory for exported WAV files")
	flags.String("listen", ":8080", "Listen address of the HTTP endpoint")

	conf.AnnotateFlag(flags, "source", "audio.source")
	conf.AnnotateFlag(flags, "min-time", "audio.capture.mintime")
	conf.AnnotateFlag(flags, "max-time", "audio.capture.maxtime")
	conf.AnnotateFlag(flags, "export", "audio.export.enabled")
	conf.AnnotateFlag(flags, "clippath", "audio.export.path")
	conf.AnnotateFlag(flags, "listen", "webserver.listen")
}
