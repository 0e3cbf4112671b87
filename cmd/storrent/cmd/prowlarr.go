package cmd

import (
	"github.com/pojntfx/storrent/pkg/indexer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var prowlarrCmd = &cobra.Command{
	Use:     "prowlarr",
	Aliases: []string{"p"},
	Short:   "Validate and use a Prowlarr indexer",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
			return err
		}

		return runIndexer(cmd.Context(), indexer.NameProwlarr)
	},
}

func init() {
	prowlarrCmd.PersistentFlags().String(urlFlag, "", "Prowlarr base URL (must be passed together with --api-key)")
	prowlarrCmd.PersistentFlags().String(apiKeyFlag, "", "Prowlarr API key (must be passed together with --url)")
	prowlarrCmd.PersistentFlags().StringP(queryFlag, "q", "", "Search query to run after the healthcheck")
	prowlarrCmd.PersistentFlags().Bool(noCacheFlag, false, "Bypass the search cache for this invocation")

	viper.AutomaticEnv()

	rootCmd.AddCommand(prowlarrCmd)
}
