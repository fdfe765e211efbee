package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-xmodem/internal/serialport"
)

// listPorts is replaced in tests.
var listPorts = serialport.List

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List the serial devices present on this system",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := listPorts()
			if err != nil {
				return fmt.Errorf("failed to list serial ports: %w", err)
			}

			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("no serial ports found"))
				return nil
			}

			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}

			return nil
		},
	}
}
