package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/pojntfx/storrent/pkg/cache"
	"github.com/pojntfx/storrent/pkg/config"
	"github.com/pojntfx/storrent/pkg/indexer"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	indexerFlag = "indexer"
	urlFlag     = "url"
	apiKeyFlag  = "api-key"
	noCacheFlag = "no-cache"
	queryFlag   = "query"
	pausedFlag  = "paused"
	pathFlag    = "path"
)

var (
	errNoDefaultIndexer    = errors.New("no default indexer configured and none given; set indexers.default or pass --indexer (check your configuration file)")
	errURLAndAPIKeyAreOne  = errors.New("both --url and --api-key must be provided together, or neither to use the configuration file")
	errCouldNotResolveURI  = errors.New("could not resolve input to a magnet URI")
	errEmptySearchQuery    = errors.New("could not work with an empty search query")
	errIndexerUnconfigured = errors.New("indexer is not configured; run the indexer subcommand once with --url and --api-key (check your configuration file)")
)

func openConfig() (*config.Config, error) {
	return config.Open(viper.GetString(configFlag))
}

func dataPath(file string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}

	return filepath.Join(home, ".local", "share", "storrent", file)
}

func cachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return dataPath("cache.db")
	}

	return filepath.Join(dir, "storrent", "cache.db")
}

// openCache opens the search cache; storage failures degrade to running
// without a cache rather than failing the command.
func openCache(cfg *config.Config) *cache.Cache {
	if !cfg.GetBool("general.use_cache", true) {
		return nil
	}

	c, err := cache.Open(cachePath(), nil)
	if err != nil {
		log.Warn().
			Err(err).
			Msg("Could not open search cache, continuing without one")

		return nil
	}

	return c
}

// resolveIndexer builds the indexer named by the flags or the configured
// default, applying the URL/API key override rule: both or neither.
func resolveIndexer(cfg *config.Config, name string, url string, apiKey string, searchCache *cache.Cache) (indexer.Indexer, error) {
	if name == "" {
		name = cfg.GetDefault("indexers.default", "").(string)
		if name == "" {
			return nil, errNoDefaultIndexer
		}
	}

	if url == "" && apiKey == "" {
		var err error
		url, err = cfg.GetString("indexers." + name + ".url")
		if err != nil {
			return nil, errIndexerUnconfigured
		}

		apiKey, err = cfg.GetString("indexers." + name + ".api_key")
		if err != nil {
			return nil, errIndexerUnconfigured
		}
	} else if url == "" || apiKey == "" {
		return nil, errURLAndAPIKeyAreOne
	}

	return indexer.FromName(name, url, apiKey, indexer.Options{
		Timeout:    cfg.Duration("general.timeout", indexer.DefaultTimeout),
		MaxRetries: cfg.GetInt("general.max_retries", indexer.DefaultMaxRetries),
		Cache:      searchCache,
		CacheTTL:   time.Duration(cfg.GetInt("general.cache_ttl", 300)) * time.Second,
	})
}
