package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print stored sync checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		return getApp().Status(cmd.Context(), func(format string, args ...interface{}) {
			fmt.Fprintf(out, format, args...)
		})
	},
}
