package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var (
	configPath = "./config/gateway.yaml"
	rootCmd    = &cobra.Command{
		Use:   "ap-filters",
		Short: "Filter polling gateway",
		Long: `Serve eth_newFilter, eth_getFilterChanges and the related filter methods
on top of any JSON-RPC node.

Such as "ap-filters run -c config/gateway.yaml"
`,
	}
)

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/gateway.yaml", "Path to config file")
}
