package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pojntfx/storrent/pkg/cache"
)

var (
	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

var (
	ErrUnknownIndexer = errors.New("could not find an indexer with this name")
)

const (
	NameJackett  = "jackett"
	NameProwlarr = "prowlarr"

	DefaultTimeout    = time.Second * 10
	DefaultMaxRetries = 3

	retryBaseDelay = time.Millisecond * 500
)

// Torrent is a single normalized search result. A torrent without a magnet
// URI can't be downloaded and is dropped by Dedupe before display.
type Torrent struct {
	Title     string `json:"title"`
	Size      int64  `json:"size"`
	Seeders   int    `json:"seeders"`
	Leechers  int    `json:"leechers"`
	Source    string `json:"source"`
	MagnetURI string `json:"magnetUri"`
}

type Indexer interface {
	Name() string
	Search(ctx context.Context, query string, useCache bool) ([]Torrent, error)
	Healthcheck(ctx context.Context) error
}

// Options carries the knobs shared by all indexer implementations. The
// cache may be nil, in which case every search goes to the network.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	Cache      *cache.Cache
	CacheTTL   time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = cache.DefaultTTL
	}

	return o
}

// FromName selects an indexer implementation from its configured name.
func FromName(name string, url string, apiKey string, options Options) (Indexer, error) {
	switch name {
	case NameJackett:
		return NewJackett(url, apiKey, options), nil
	case NameProwlarr:
		return NewProwlarr(url, apiKey, options), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownIndexer, name)
	}
}

// Dedupe drops torrents without a magnet URI and keeps only the first
// occurrence of every magnet URI, preserving order.
func Dedupe(torrents []Torrent) []Torrent {
	seen := map[string]struct{}{}

	deduped := []Torrent{}
	for _, torrent := range torrents {
		if torrent.MagnetURI == "" {
			continue
		}

		if _, ok := seen[torrent.MagnetURI]; ok {
			continue
		}
		seen[torrent.MagnetURI] = struct{}{}

		deduped = append(deduped, torrent)
	}

	return deduped
}
