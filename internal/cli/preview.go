package cli

import (
	"github.com/spf13/cobra"

	"pxwatch/internal/app"
)

var (
	previewMonthly bool
	previewSend    bool
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Fetch prices once and print the composed message",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Preview(cmd.Context(), app.PreviewOptions{
			Monthly: previewMonthly,
			Send:    previewSend,
		})
	},
}

func init() {
	previewCmd.Flags().BoolVar(&previewMonthly, "monthly", false, "Compose the monthly anniversary message instead of the regular update")
	previewCmd.Flags().BoolVar(&previewSend, "send", false, "Deliver the message to the configured chat")
}
