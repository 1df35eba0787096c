package cmd

import (
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/ap-filters/core/config"
	"github.com/AvaProtocol/ap-filters/gateway"
)

var (
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the filter gateway",
		Long: `Initialize and run the filter gateway.

Use --config=path-to-your-config-file. default is=./config/gateway.yaml `,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.NewConfig(configPath)
			if err != nil {
				return err
			}
			return gateway.RunWithConfig(c)
		},
	}
)

func init() {
	rootCmd.AddCommand(runCmd)
}
