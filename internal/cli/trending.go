package cli

import (
	"github.com/spf13/cobra"
)

var trendingCmd = &cobra.Command{
	Use:   "trending",
	Short: "List the trending coins from the listing homepage",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Trending(cmd.Context())
	},
}
