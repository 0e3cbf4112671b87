package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/pojntfx/storrent/pkg/config"
	"github.com/pojntfx/storrent/pkg/indexer"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var jackettCmd = &cobra.Command{
	Use:     "jackett",
	Aliases: []string{"j"},
	Short:   "Validate and use a Jackett indexer",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
			return err
		}

		return runIndexer(cmd.Context(), indexer.NameJackett)
	},
}

// runIndexer validates connectivity and credentials for the named indexer,
// persists working overrides into the configuration file and optionally
// runs a search.
func runIndexer(ctx context.Context, name string) error {
	cfg, err := openConfig()
	if err != nil {
		return err
	}

	searchCache := openCache(cfg)
	if searchCache != nil {
		defer searchCache.Close()
	}

	url, apiKey := viper.GetString(urlFlag), viper.GetString(apiKeyFlag)

	idx, err := resolveIndexer(cfg, name, url, apiKey, searchCache)
	if err != nil {
		return err
	}

	log.Info().
		Str("indexer", name).
		Msg("Checking indexer health")

	if err := idx.Healthcheck(ctx); err != nil {
		return err
	}

	log.Info().
		Str("indexer", name).
		Msg("Indexer is healthy")

	if url != "" && apiKey != "" {
		if err := persistIndexer(cfg, name, url, apiKey); err != nil {
			return err
		}
	}

	query := strings.TrimSpace(viper.GetString(queryFlag))
	if query == "" {
		return nil
	}

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
}

func persistIndexer(cfg *config.Config, name string, url string, apiKey string) error {
	if err := cfg.Set("indexers."+name+".url", url); err != nil {
		return err
	}
	if err := cfg.Set("indexers."+name+".api_key", apiKey); err != nil {
		return err
	}
	if cfg.GetDefault("indexers.default", "").(string) == "" {
		if err := cfg.Set("indexers.default", name); err != nil {
			return err
		}
	}

	return nil
}

func init() {
	jackettCmd.PersistentFlags().String(urlFlag, "", "Jackett base URL (must be passed together with --api-key)")
	jackettCmd.PersistentFlags().String(apiKeyFlag, "", "Jackett API key (must be passed together with --url)")
	jackettCmd.PersistentFlags().StringP(queryFlag, "q", "", "Search query to run after the healthcheck")
	jackettCmd.PersistentFlags().Bool(noCacheFlag, false, "Bypass the search cache for this invocation")

	viper.AutomaticEnv()

	rootCmd.AddCommand(jackettCmd)
}
