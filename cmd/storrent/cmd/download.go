package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pojntfx/storrent/pkg/downloader"
	"github.com/pojntfx/storrent/pkg/engine"
	"github.com/pojntfx/storrent/pkg/history"
	"github.com/pojntfx/storrent/pkg/indexer"
	"github.com/pojntfx/storrent/pkg/manager"
	"github.com/pojntfx/storrent/pkg/monitor"
	"github.com/pojntfx/storrent/pkg/resolver"
	"github.com/pojntfx/storrent/pkg/store"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const directDownloadSource = "Direct Download"

var downloadCmd = &cobra.Command{
	Use:     "download <magnet|url|file>",
	Aliases: []string{"d"},
	Short:   "Download a torrent from a magnet link, URL or .torrent file",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
			return err
		}

		cfg, err := openConfig()
		if err != nil {
			return err
		}

		downloadPath := viper.GetString(pathFlag)
		if downloadPath == "" {
			downloadPath = cfg.GetDefault("general.download_path", "").(string)
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		input := args[0]
		r := resolver.NewResolver(cfg.Duration("general.timeout", time.Second*10))

		record := store.Record{
			Source:   directDownloadSource,
			IsPaused: viper.GetBool(pausedFlag),
		}

		isLocalFile := false
		if info, err := os.Stat(input); err == nil && !info.IsDir() && strings.HasSuffix(input, ".torrent") {
			magnetURI, name, length, err := r.ResolveFile(input)
			if err != nil {
				return err
			}

			record.MagnetURI = magnetURI
			record.Title = name
			record.Size = length
			isLocalFile = true
		} else {
			magnetURI := r.Resolve(ctx, input)
			if magnetURI == "" {
				return errCouldNotResolveURI
			}

			record.MagnetURI = magnetURI
			// The real title is backfilled once the engine has metadata
			record.Title = placeholderTitle(magnetURI, input)
		}

		if err := history.NewHistory(dataPath("history.json")).Add(indexer.Torrent{
			Title:     record.Title,
			Size:      record.Size,
			Source:    record.Source,
			MagnetURI: record.MagnetURI,
		}); err != nil {
			log.Warn().
				Err(err).
				Msg("Could not append to download history")
		}

		// A configured external client takes the magnet and owns the
		// download from there; only the embedded engine tracks it locally.
		if client := cfg.GetDefault("download.client", downloader.NameInternal).(string); client != downloader.NameInternal {
			dl, err := downloader.FromName(client, downloader.TransmissionOptions{
				Host:     cfg.GetDefault("downloaders.transmission.host", "localhost").(string),
				Port:     cfg.GetInt("downloaders.transmission.port", 9091),
				Username: cfg.GetDefault("downloaders.transmission.username", "").(string),
				Password: cfg.GetDefault("downloaders.transmission.password", "").(string),
			})
			if err != nil {
				return err
			}

			log.Info().
				Str("client", dl.Name()).
				Str("magnet", record.MagnetURI).
				Msg("Handing download off")

			return dl.SendMagnet(ctx, record.MagnetURI, downloadPath, record.IsPaused)
		}

		records, err := store.Open(dataPath("storrent.db"))
		if err != nil {
			return err
		}
		defer records.Close()

		if err := records.Add(ctx, record); err != nil {
			return err
		}

		// A pre-existing record keeps its persisted pause state unless the
		// flag was passed explicitly for this invocation
		if stored, ok, err := records.Get(ctx, record.MagnetURI); err == nil && ok {
			if cmd.Flags().Changed(pausedFlag) {
				if stored.IsPaused != record.IsPaused {
					if err := records.UpdatePaused(ctx, record.MagnetURI, record.IsPaused); err != nil {
						return err
					}
				}
			} else {
				record.IsPaused = stored.IsPaused
			}
		}

		mgr := manager.NewManager(
			func() (engine.Session, error) {
				return engine.NewTorrentSession(downloadPath, viper.GetInt(verboseFlag) > 5)
			},
			records,
			cfg.GetFloat("general.seed_ratio", 0),
		)
		defer func() {
			if err := mgr.Close(); err != nil {
				log.Error().
					Err(err).
					Msg("Could not close torrent session")
			}
		}()

		if isLocalFile {
			err = mgr.AddFile(ctx, record.MagnetURI, input, record.IsPaused)
		} else {
			err = mgr.Add(ctx, record.MagnetURI, record.IsPaused)
		}
		if err != nil {
			return err
		}

		s := make(chan os.Signal, 1)
		signal.Notify(s, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-s

			log.Debug().Msg("Gracefully shutting down")

			cancel()
		}()

		mon := monitor.NewMonitor(mgr, records, time.Second)
		go func() {
			if err := mon.Run(ctx); err != nil && err != context.Canceled {
				log.Error().
					Err(err).
					Msg("Monitor failed")
			}
		}()

		log.Info().
			Str("magnet", record.MagnetURI).
			Str("path", downloadPath).
			Msg("Downloading")

		for {
			select {
			case <-ctx.Done():
				return nil
			case snapshot := <-mon.Snapshots():
				for _, row := range snapshot.Rows {
					if row.MagnetURI != record.MagnetURI {
						continue
					}

					log.Info().
						Str("state", row.State).
						Str("down", row.Download).
						Str("up", row.Upload).
						Int("seeders", row.Seeders).
						Int("peers", row.Peers).
						Msgf("%.1f%% completed", row.Progress)

					if row.State == "Completed" {
						log.Info().
							Str("title", row.Title).
							Msg("Download completed")

						return nil
					}
				}
			}
		}
	},
}

// placeholderTitle mirrors what gets shown before the engine reports real
// metadata: the magnet prefix for magnet inputs, the raw input otherwise.
func placeholderTitle(magnetURI string, input string) string {
	if strings.HasPrefix(magnetURI, "magnet:") {
		if i := strings.Index(magnetURI, "&"); i != -1 {
			return magnetURI[:i]
		}

		return magnetURI
	}

	return input
}

func init() {
	downloadCmd.PersistentFlags().StringP(pathFlag, "p", "", "Directory to download into (defaults to general.download_path from the configuration file)")
	downloadCmd.PersistentFlags().Bool(pausedFlag, false, "Add the torrent in the paused state")

	viper.AutomaticEnv()

	rootCmd.AddCommand(downloadCmd)
}
