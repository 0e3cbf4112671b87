// Package engine wraps the embedded torrent engine behind a narrow session
// interface so that higher layers can be tested against fakes.
package engine

type State int

const (
	StateUnknown State = iota
	StateFetching
	StateDownloading
	StateSeeding
	StateCompleted
)

// Status is a point-in-time snapshot of a single tracked torrent.
type Status struct {
	State        State
	Progress     float64 // 0-100
	DownloadRate float64 // bytes/second
	UploadRate   float64 // bytes/second
	Seeders      int
	Peers        int
	Paused       bool

	// Totals used for the optional seed-ratio cutoff
	Downloaded int64
	Uploaded   int64
}

// Handle tracks one torrent for the lifetime of a session. Handles must not
// outlive the session that created them.
type Handle interface {
	Pause()
	Resume()
	Status() Status
	HasMetadata() bool
	Metadata() (name string, length int64)
}

type Session interface {
	AddMagnet(uri string, paused bool) (Handle, error)
	AddTorrentFile(path string, paused bool) (Handle, error)
	Drop(handle Handle)
	Close() error
}
