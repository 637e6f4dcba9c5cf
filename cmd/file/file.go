package file

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/ambient-go/internal/analysis"
	"github.com/tphakala/ambient-go/internal/conf"
)

// Command creates a new file command for analyzing a single audio file.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "file [input.wav]",
		Short: "Analyze an audio file",
		Long:  `Classify a single 16-bit PCM WAV file and print the top classes.`,
		Args:  cobra.ExactArgs(1), // the command expects exactly one argument
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.FileAnalysis(cmd.Context(), settings, args[0], cmd.OutOrStdout())
		},
	}
}
