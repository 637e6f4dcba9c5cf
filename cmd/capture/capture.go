package capture

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/ambient-go/internal/analysis"
	"github.com/tphakala/ambient-go/internal/conf"
)

// Command creates the capture command, which records and classifies fixed
// periods from the sound card.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		period  int
		cycles  int
		saveDir string
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Record and classify fixed-length periods",
		Long: "Record a fixed period from the sound card, classify it and repeat. " +
			"With --save each recording is also written as record_<n>.wav.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.CaptureCycles(cmd.Context(), settings, analysis.CaptureOptions{
				Period:  time.Duration(period) * time.Second,
				Cycles:  cycles,
				SaveDir: saveDir,
			})
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&period, "period", "p", 5, "Recording period in seconds (1-10)")
	flags.IntVarP(&cycles, "cycles", "c", 0, "Number of cycles, 0 runs until interrupted")
	flags.StringVarP(&saveDir, "save", "s", "", "Directory to save each recording to")
	flags.String("source", "", "Audio capture source (device name or ID)")
	conf.AnnotateFlag(flags, "source", "audio.source")

	return cmd
}
