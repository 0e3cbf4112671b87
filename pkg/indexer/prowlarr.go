package indexer

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pojntfx/storrent/pkg/cache"
	"github.com/rs/zerolog/log"
)

type prowlarrResult struct {
	Title       string `json:"title"`
	Size        int64  `json:"size"`
	Seeders     int    `json:"seeders"`
	Leechers    int    `json:"leechers"`
	Indexer     string `json:"indexer"`
	MagnetURL   string `json:"magnetUrl"`
	DownloadURL string `json:"downloadUrl"`
}

type Prowlarr struct {
	url    string
	apiKey string

	options Options

	hc *http.Client
}

func NewProwlarr(url string, apiKey string, options Options) *Prowlarr {
	options = options.withDefaults()

	return &Prowlarr{
		url:    strings.TrimRight(url, "/"),
		apiKey: apiKey,

		options: options,

		hc: &http.Client{Timeout: options.Timeout},
	}
}

func (p *Prowlarr) Name() string {
	return NameProwlarr
}

func (p *Prowlarr) Search(ctx context.Context, query string, useCache bool) ([]Torrent, error) {
	key := cache.MakeKey(NameProwlarr, query)

	if useCache && p.options.Cache != nil {
		if raw, ok := p.options.Cache.Get(key); ok {
			torrents := []Torrent{}
			if err := json.Unmarshal(raw, &torrents); err == nil {
				log.Debug().
					Str("query", query).
					Msg("Returning cached Prowlarr results")

				return torrents, nil
			}
		}
	}

	endpoint := fmt.Sprintf("%v/api/v1/search", p.url)

	body, err := getWithRetry(ctx, p.hc, endpoint, map[string]string{
		"apikey": p.apiKey,
		"query":  query,
	}, p.options.MaxRetries)
	if err != nil {
		return nil, classify(NameProwlarr, "make sure Prowlarr is running and the URL is correct", err)
	}

	results := []prowlarrResult{}
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, &Error{Indexer: NameProwlarr, Kind: KindUnexpectedStatus, Hint: hintVerifySetup, Err: err}
	}

	torrents := make([]Torrent, 0, len(results))
	for _, result := range results {
		torrents = append(torrents, normalizeProwlarrResult(result))
	}

	if useCache && p.options.Cache != nil && len(torrents) > 0 {
		if raw, err := json.Marshal(torrents); err == nil {
			p.options.Cache.Set(key, raw, p.options.CacheTTL)
		}
	}

	return torrents, nil
}

func (p *Prowlarr) Healthcheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%v/api/v1/health", p.url)

	res, err := get(ctx, p.hc, endpoint, map[string]string{
		"apikey": p.apiKey,
	})
	if err != nil {
		return &Error{
			Indexer: NameProwlarr,
			Kind:    KindUnreachable,
			Hint:    "make sure Prowlarr is running and the URL is correct",
			Err:     err,
		}
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}

	if res.StatusCode == http.StatusUnauthorized {
		return &Error{
			Indexer: NameProwlarr,
			Kind:    KindInvalidAPIKey,
			Hint:    "double-check the API key you provided",
		}
	}

	return &Error{
		Indexer: NameProwlarr,
		Kind:    KindUnexpectedStatus,
		Hint:    hintVerifySetup,
		Err:     fmt.Errorf("HTTP %v", res.StatusCode),
	}
}

func normalizeProwlarrResult(r prowlarrResult) Torrent {
	source := r.Indexer
	if source == "" {
		source = "unknown"
	}

	magnetURI := r.MagnetURL
	if magnetURI == "" {
		magnetURI = r.DownloadURL
	}

	return Torrent{
		Title:     r.Title,
		Size:      r.Size,
		Seeders:   r.Seeders,
		Leechers:  r.Leechers,
		Source:    source,
		MagnetURI: magnetURI,
	}
}
