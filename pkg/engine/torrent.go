package engine

import (
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/storage"
	"github.com/phayes/freeport"
	"github.com/rs/zerolog/log"
)

// TorrentSession is the anacrolix/torrent-backed Session. Exactly one
// session should exist per process; the manager enforces this.
type TorrentSession struct {
	client *torrent.Client
}

func NewTorrentSession(storagePath string, debug bool) (*TorrentSession, error) {
	log.Trace().Msg("Opening torrent session")

	cfg := torrent.NewDefaultClientConfig()
	cfg.Debug = debug
	cfg.DefaultStorage = storage.NewFileByInfoHash(storagePath)

	torrentPort, err := freeport.GetFreePort()
	if err != nil {
		return nil, err
	}
	cfg.ListenPort = torrentPort

	c, err := torrent.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	return &TorrentSession{
		client: c,
	}, nil
}

func (s *TorrentSession) AddMagnet(uri string, paused bool) (Handle, error) {
	t, err := s.client.AddMagnet(uri)
	if err != nil {
		return nil, err
	}

	return newTorrentHandle(t, paused), nil
}

func (s *TorrentSession) AddTorrentFile(path string, paused bool) (Handle, error) {
	t, err := s.client.AddTorrentFromFile(path)
	if err != nil {
		return nil, err
	}

	return newTorrentHandle(t, paused), nil
}

func (s *TorrentSession) Drop(handle Handle) {
	h, ok := handle.(*torrentHandle)
	if !ok {
		return
	}

	h.t.Drop()
}

func (s *TorrentSession) Close() error {
	log.Trace().Msg("Closing torrent session")

	errs := s.client.Close()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}

type torrentHandle struct {
	t *torrent.Torrent

	mu     sync.Mutex
	paused bool

	lastPoll       time.Time
	lastDownloaded int64
	lastUploaded   int64
}

func newTorrentHandle(t *torrent.Torrent, paused bool) *torrentHandle {
	h := &torrentHandle{
		t:      t,
		paused: paused,
	}

	if paused {
		t.DisallowDataDownload()
		t.DisallowDataUpload()
	}

	// DownloadAll may only be called once the engine has the metadata
	go func() {
		<-t.GotInfo()

		h.mu.Lock()
		defer h.mu.Unlock()

		if !h.paused {
			t.DownloadAll()
		}
	}()

	return h
}

func (h *torrentHandle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.t.DisallowDataDownload()
	h.t.DisallowDataUpload()

	h.paused = true
}

func (h *torrentHandle) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.t.AllowDataDownload()
	h.t.AllowDataUpload()

	if h.t.Info() != nil {
		h.t.DownloadAll()
	}

	h.paused = false
}

func (h *torrentHandle) HasMetadata() bool {
	return h.t.Info() != nil
}

func (h *torrentHandle) Metadata() (string, int64) {
	if h.t.Info() == nil {
		return "", 0
	}

	return h.t.Name(), h.t.Length()
}

// Status never propagates engine failures; a handle the engine can no
// longer serve reports StateUnknown for that poll.
func (h *torrentHandle) Status() (status Status) {
	defer func() {
		if err := recover(); err != nil {
			log.Debug().
				Interface("error", err).
				Msg("Could not query torrent handle, reporting unknown state")

			status = Status{State: StateUnknown}
		}
	}()

	h.mu.Lock()
	defer h.mu.Unlock()

	stats := h.t.Stats()
	downloaded := stats.BytesReadUsefulData.Int64()
	uploaded := stats.BytesWrittenData.Int64()

	now := time.Now()
	downloadRate, uploadRate := 0.0, 0.0
	if !h.lastPoll.IsZero() {
		if elapsed := now.Sub(h.lastPoll).Seconds(); elapsed > 0 {
			downloadRate = float64(downloaded-h.lastDownloaded) / elapsed
			uploadRate = float64(uploaded-h.lastUploaded) / elapsed
		}
	}
	h.lastPoll = now
	h.lastDownloaded = downloaded
	h.lastUploaded = uploaded

	status = Status{
		DownloadRate: downloadRate,
		UploadRate:   uploadRate,
		Seeders:      stats.ConnectedSeeders,
		Peers:        len(h.t.PeerConns()),
		Paused:       h.paused,
		Downloaded:   downloaded,
		Uploaded:     uploaded,
	}

	if h.t.Info() == nil {
		status.State = StateFetching

		return status
	}

	completed, total := h.t.BytesCompleted(), h.t.Length()
	if total > 0 {
		status.Progress = float64(completed) / float64(total) * 100
	}

	switch {
	case completed < total:
		status.State = StateDownloading
	case h.t.Seeding():
		status.State = StateSeeding
	default:
		status.State = StateCompleted
	}

	return status
}
