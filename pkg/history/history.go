package history

import (
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pojntfx/storrent/pkg/indexer"
	"github.com/rs/zerolog/log"
)

var (
	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

// History is an append-only JSON log of every torrent the user ever added,
// deduplicated by magnet URI. A missing or corrupt file reads as empty.
type History struct {
	path string

	mu sync.Mutex
}

func NewHistory(path string) *History {
	return &History{
		path: path,
	}
}

func (h *History) Add(torrent indexer.Torrent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	torrents := h.load()
	for _, existing := range torrents {
		if torrent.MagnetURI != "" && existing.MagnetURI == torrent.MagnetURI {
			return nil
		}
	}

	torrents = append(torrents, torrent)

	return h.save(torrents)
}

func (h *History) List() []indexer.Torrent {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.load()
}

func (h *History) load() []indexer.Torrent {
	raw, err := os.ReadFile(h.path)
	if err != nil {
		return []indexer.Torrent{}
	}

	torrents := []indexer.Torrent{}
	if err := json.Unmarshal(raw, &torrents); err != nil {
		log.Debug().
			Err(err).
			Str("path", h.path).
			Msg("Could not parse history file, starting fresh")

		return []indexer.Torrent{}
	}

	return torrents
}

func (h *History) save(torrents []indexer.Torrent) error {
	if err := os.MkdirAll(filepath.Dir(h.path), os.ModePerm); err != nil {
		return err
	}

	raw, err := json.MarshalIndent(torrents, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(h.path, raw, 0o644)
}
