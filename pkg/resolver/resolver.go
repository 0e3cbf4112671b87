package resolver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotATorrentFile = errors.New("could not parse file as a torrent")
)

const (
	magnetScheme       = "magnet:"
	torrentContentType = "application/x-bittorrent"
)

// Resolver turns an arbitrary user input (magnet URI, redirect URL or
// .torrent URL) into a canonical magnet URI.
type Resolver struct {
	hc *http.Client
}

func NewResolver(timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = time.Second * 10
	}

	return &Resolver{
		hc: &http.Client{
			Timeout: timeout,
			// A 301/302 Location is the resolved value; only one hop is
			// ever followed.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Resolve returns the canonical magnet URI for input, or the empty string
// when the input can't be resolved. It never returns an error; callers
// treat the empty string as "give up, notify the user".
func (r *Resolver) Resolve(ctx context.Context, input string) string {
	if strings.HasPrefix(input, magnetScheme) {
		return input
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, input, http.NoBody)
	if err != nil {
		log.Debug().
			Err(err).
			Str("input", input).
			Msg("Could not create resolution request")

		return ""
	}

	res, err := r.hc.Do(req)
	if err != nil {
		log.Debug().
			Err(err).
			Str("input", input).
			Msg("Could not resolve input")

		return ""
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusMovedPermanently || res.StatusCode == http.StatusFound {
		return res.Header.Get("Location")
	}

	contentType := res.Header.Get("Content-Type")
	if strings.Contains(contentType, torrentContentType) || strings.HasSuffix(input, ".torrent") {
		magnet, err := magnetFromTorrentPayload(res.Body)
		if err != nil {
			log.Debug().
				Err(err).
				Str("input", input).
				Msg("Could not parse torrent payload")

			return ""
		}

		return magnet
	}

	return ""
}

// ResolveFile derives a magnet URI plus display metadata from a local
// .torrent file.
func (r *Resolver) ResolveFile(path string) (magnet string, name string, length int64, err error) {
	mi, err := metainfo.LoadFromFile(path)
	if err != nil {
		return "", "", 0, err
	}

	info, err := mi.UnmarshalInfo()
	if err != nil {
		return "", "", 0, err
	}

	return mi.Magnet(nil, &info).String(), info.BestName(), info.TotalLength(), nil
}

// magnetFromTorrentPayload spools the payload to a temporary file, parses it
// and derives a magnet URI. The temporary file is removed on every path.
func magnetFromTorrentPayload(payload io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "storrent-*.torrent")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, payload); err != nil {
		_ = tmp.Close()

		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	mi, err := metainfo.LoadFromFile(tmp.Name())
	if err != nil {
		return "", ErrNotATorrentFile
	}

	info, err := mi.UnmarshalInfo()
	if err != nil {
		return "", ErrNotATorrentFile
	}

	return mi.Magnet(nil, &info).String(), nil
}
