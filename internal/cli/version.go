package cli

import (
	"fmt"

	"github.com/rn0x/audio2text/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the audio2text version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "audio2text v%s\n", version.Resolve())
			return nil
		},
	}
}
