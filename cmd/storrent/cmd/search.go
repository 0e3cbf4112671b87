package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/pojntfx/storrent/pkg/indexer"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var searchCmd = &cobra.Command{
	Use:     "search <query>",
	Aliases: []string{"s"},
	Short:   "Search the configured indexer for torrents",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
			return err
		}

		query := strings.TrimSpace(args[0])
		if query == "" {
			return errEmptySearchQuery
		}

		cfg, err := openConfig()
		if err != nil {
			return err
		}

		searchCache := openCache(cfg)
		if searchCache != nil {
			defer searchCache.Close()
		}

		idx, err := resolveIndexer(
			cfg,
			viper.GetString(indexerFlag),
			viper.GetString(urlFlag),
			viper.GetString(apiKeyFlag),
			searchCache,
		)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		log.Info().
			Str("indexer", idx.Name()).
			Str("query", query).
			Msg("Searching")

		torrents, err := idx.Search(ctx, query, !viper.GetBool(noCacheFlag))
		if err != nil {
			return err
		}

		torrents = indexer.Dedupe(torrents)
		if len(torrents) == 0 {
			log.Info().Msg("No results")

			return nil
		}

		y, err := yaml.Marshal(torrents)
		if err != nil {
			return err
		}

		fmt.Printf("%s", y)

		return nil
	},
}

func init() {
	searchCmd.PersistentFlags().StringP(indexerFlag, "i", "", "Indexer to search (jackett or prowlarr, defaults to indexers.default from the configuration file)")
	searchCmd.PersistentFlags().String(urlFlag, "", "Indexer base URL (overrides the configuration file; must be passed together with --api-key)")
	searchCmd.PersistentFlags().String(apiKeyFlag, "", "Indexer API key (overrides the configuration file; must be passed together with --url)")
	searchCmd.PersistentFlags().Bool(noCacheFlag, false, "Bypass the search cache for this invocation")

	viper.AutomaticEnv()

	rootCmd.AddCommand(searchCmd)
}
