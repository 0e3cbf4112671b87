package downloader

import (
	"context"
	"fmt"
	"net/url"

	transmissionrpc "github.com/hekmon/transmissionrpc/v3"
	"github.com/rs/zerolog/log"
)

// Transmission sends magnets to a Transmission daemon over its RPC API. The
// daemon owns the download from that point on; nothing is tracked locally.
type Transmission struct {
	endpoint *url.URL
}

func NewTransmission(options TransmissionOptions) (*Transmission, error) {
	endpoint := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%v:%v", options.Host, options.Port),
		Path:   "/transmission/rpc",
	}
	if options.Username != "" {
		endpoint.User = url.UserPassword(options.Username, options.Password)
	}

	return &Transmission{
		endpoint: endpoint,
	}, nil
}

func (t *Transmission) Name() string {
	return NameTransmission
}

func (t *Transmission) SendMagnet(ctx context.Context, magnetURI string, downloadPath string, startPaused bool) error {
	client, err := transmissionrpc.New(t.endpoint, nil)
	if err != nil {
		return err
	}

	payload := transmissionrpc.TorrentAddPayload{
		Filename: &magnetURI,
		Paused:   &startPaused,
	}
	if downloadPath != "" {
		payload.DownloadDir = &downloadPath
	}

	torrent, err := client.TorrentAdd(ctx, payload)
	if err != nil {
		return fmt.Errorf("could not add torrent to Transmission: %w", err)
	}

	if torrent.Name != nil {
		log.Debug().
			Str("name", *torrent.Name).
			Msg("Handed torrent off to Transmission")
	}

	return nil
}
