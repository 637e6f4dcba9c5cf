package devices

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tphakala/ambient-go/internal/audio"
)

// Command creates the devices command, which lists capture devices.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := audio.ListDevices()
			if err != nil {
				return err
			}
			return printDevices(cmd.OutOrStdout(), list)
		},
	}
}

func printDevices(w io.Writer, list []audio.DeviceInfo) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "no capture devices found")
		return err
	}
	for _, d := range list {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		if _, err := fmt.Fprintf(w, "%s %d: %s (%s)\n", marker, d.Index, d.Name, d.ID); err != nil {
			return err
		}
	}
	return nil
}
