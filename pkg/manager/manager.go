package manager

import (
	"context"
	"sync"

	"github.com/pojntfx/storrent/pkg/engine"
	"github.com/pojntfx/storrent/pkg/store"
	"github.com/rs/zerolog/log"
)

var stateLabels = map[engine.State][2]string{
	engine.StateDownloading: {"Downloading", "DL"},
	engine.StateSeeding:     {"Seeding", "SE"},
	engine.StateCompleted:   {"Completed", "CD"},
	engine.StateFetching:    {"Fetching", "FE"},
}

// Label maps a status to its display label; Paused overrides the phase.
func Label(status engine.Status) string {
	if status.Paused {
		return "Paused"
	}

	labels, ok := stateLabels[status.State]
	if !ok {
		return "N/A"
	}

	return labels[0]
}

// ShortLabel is the two-letter variant of Label.
func ShortLabel(status engine.Status) string {
	if status.Paused {
		return "PD"
	}

	labels, ok := stateLabels[status.State]
	if !ok {
		return "N/A"
	}

	return labels[1]
}

// Manager owns the process-wide engine session and correlates engine
// handles with persisted records through their magnet URIs. It never owns
// persistence beyond the one-shot metadata backfill.
type Manager struct {
	openSession func() (engine.Session, error)
	records     *store.Store
	seedRatio   float64

	mu           sync.Mutex
	session      engine.Session
	handles      map[string]engine.Handle
	metadataSeen map[string]struct{}
}

// NewManager creates a manager; the session is opened lazily on the first
// add so that commands which never download don't start the engine. A
// seedRatio of 0 disables the seed-ratio cutoff.
func NewManager(openSession func() (engine.Session, error), records *store.Store, seedRatio float64) *Manager {
	return &Manager{
		openSession: openSession,
		records:     records,
		seedRatio:   seedRatio,

		handles:      map[string]engine.Handle{},
		metadataSeen: map[string]struct{}{},
	}
}

func (m *Manager) sessionLocked() (engine.Session, error) {
	if m.session != nil {
		return m.session, nil
	}

	session, err := m.openSession()
	if err != nil {
		return nil, err
	}
	m.session = session

	return session, nil
}

// Add starts tracking the magnet URI. Re-adding a tracked URI is a no-op
// unless the requested paused flag differs, in which case only the pause
// state is flipped. There is never more than one handle per magnet URI.
func (m *Manager) Add(ctx context.Context, magnetURI string, startPaused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if handle, ok := m.handles[magnetURI]; ok {
		if handle.Status().Paused != startPaused {
			if startPaused {
				handle.Pause()
			} else {
				handle.Resume()
			}

			m.persistPausedLocked(ctx, magnetURI, startPaused)
		}

		return nil
	}

	session, err := m.sessionLocked()
	if err != nil {
		return err
	}

	handle, err := session.AddMagnet(magnetURI, startPaused)
	if err != nil {
		return err
	}
	m.handles[magnetURI] = handle

	log.Debug().
		Str("magnet", magnetURI).
		Bool("paused", startPaused).
		Msg("Tracking torrent")

	return nil
}

// AddFile starts tracking a local .torrent file under the magnet URI that
// was derived from it.
func (m *Manager) AddFile(ctx context.Context, magnetURI string, path string, startPaused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if handle, ok := m.handles[magnetURI]; ok {
		if handle.Status().Paused != startPaused {
			if startPaused {
				handle.Pause()
			} else {
				handle.Resume()
			}

			m.persistPausedLocked(ctx, magnetURI, startPaused)
		}

		return nil
	}

	session, err := m.sessionLocked()
	if err != nil {
		return err
	}

	handle, err := session.AddTorrentFile(path, startPaused)
	if err != nil {
		return err
	}
	m.handles[magnetURI] = handle

	return nil
}

// persistPausedLocked mirrors a pause transition into the record store so
// re-adds after a restart pick the state back up.
func (m *Manager) persistPausedLocked(ctx context.Context, magnetURI string, isPaused bool) {
	if m.records == nil {
		return
	}

	if err := m.records.UpdatePaused(ctx, magnetURI, isPaused); err != nil {
		log.Error().
			Err(err).
			Str("magnet", magnetURI).
			Msg("Could not persist torrent paused state")
	}
}

// Remove destroys the engine handle and drops tracking. Unknown magnet
// URIs are a no-op.
func (m *Manager) Remove(magnetURI string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handle, ok := m.handles[magnetURI]
	if !ok {
		return
	}

	m.session.Drop(handle)
	delete(m.handles, magnetURI)
	delete(m.metadataSeen, magnetURI)
}

func (m *Manager) Pause(ctx context.Context, magnetURI string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if handle, ok := m.handles[magnetURI]; ok {
		handle.Pause()

		m.persistPausedLocked(ctx, magnetURI, true)
	}
}

func (m *Manager) Resume(ctx context.Context, magnetURI string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if handle, ok := m.handles[magnetURI]; ok {
		handle.Resume()

		m.persistPausedLocked(ctx, magnetURI, false)
	}
}

func (m *Manager) TogglePause(ctx context.Context, magnetURI string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handle, ok := m.handles[magnetURI]
	if !ok {
		return
	}

	if handle.Status().Paused {
		handle.Resume()

		m.persistPausedLocked(ctx, magnetURI, false)
	} else {
		handle.Pause()

		m.persistPausedLocked(ctx, magnetURI, true)
	}
}

// Status returns the live status for a tracked magnet URI; the second
// return value is false for unknown URIs. Once the configured seed ratio
// is reached during seeding, the status reports Completed; this is
// informational, the engine keeps seeding.
func (m *Manager) Status(magnetURI string) (engine.Status, bool) {
	m.mu.Lock()
	handle, ok := m.handles[magnetURI]
	m.mu.Unlock()

	if !ok {
		return engine.Status{}, false
	}

	status := handle.Status()

	if m.seedRatio > 0 && status.State == engine.StateSeeding && status.Downloaded > 0 {
		if float64(status.Uploaded)/float64(status.Downloaded) >= m.seedRatio {
			status.State = engine.StateCompleted
		}
	}

	return status, true
}

// BackfillMetadata propagates engine-reported names and sizes into the
// record store, exactly once per tracked torrent.
func (m *Manager) BackfillMetadata(ctx context.Context) {
	m.mu.Lock()
	pending := map[string]engine.Handle{}
	for magnetURI, handle := range m.handles {
		if _, seen := m.metadataSeen[magnetURI]; seen {
			continue
		}
		if !handle.HasMetadata() {
			continue
		}

		pending[magnetURI] = handle
		m.metadataSeen[magnetURI] = struct{}{}
	}
	m.mu.Unlock()

	for magnetURI, handle := range pending {
		name, length := handle.Metadata()

		if err := m.records.UpdateMetadata(ctx, magnetURI, name, length); err != nil {
			log.Error().
				Err(err).
				Str("magnet", magnetURI).
				Msg("Could not backfill torrent metadata")
		}
	}
}

// Tracked returns the magnet URIs of all live handles.
func (m *Manager) Tracked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	magnetURIs := make([]string, 0, len(m.handles))
	for magnetURI := range m.handles {
		magnetURIs = append(magnetURIs, magnetURI)
	}

	return magnetURIs
}

// Close drops all handles and tears down the engine session.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil
	}

	for magnetURI, handle := range m.handles {
		m.session.Drop(handle)
		delete(m.handles, magnetURI)
	}

	err := m.session.Close()
	m.session = nil

	return err
}
