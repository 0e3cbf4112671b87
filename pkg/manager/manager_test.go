package manager

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/pojntfx/storrent/pkg/engine"
	"github.com/pojntfx/storrent/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	status      engine.Status
	hasMetadata bool
	name        string
	length      int64
}

func (h *fakeHandle) Pause() {
	h.status.Paused = true
}

func (h *fakeHandle) Resume() {
	h.status.Paused = false
}

func (h *fakeHandle) Status() engine.Status {
	return h.status
}

func (h *fakeHandle) HasMetadata() bool {
	return h.hasMetadata
}

func (h *fakeHandle) Metadata() (string, int64) {
	return h.name, h.length
}

type fakeSession struct {
	addMagnetCalls int
	addFileCalls   int
	dropped        int
	closed         bool

	lastHandle *fakeHandle
}

func (s *fakeSession) AddMagnet(magnetURI string, startPaused bool) (engine.Handle, error) {
	s.addMagnetCalls++
	s.lastHandle = &fakeHandle{status: engine.Status{Paused: startPaused}}

	return s.lastHandle, nil
}

func (s *fakeSession) AddTorrentFile(path string, startPaused bool) (engine.Handle, error) {
	s.addFileCalls++
	s.lastHandle = &fakeHandle{status: engine.Status{Paused: startPaused}}

	return s.lastHandle, nil
}

func (s *fakeSession) Drop(handle engine.Handle) {
	s.dropped++
}

func (s *fakeSession) Close() error {
	s.closed = true

	return nil
}

func openTestManager(t *testing.T, seedRatio float64) (*Manager, *fakeSession, *store.Store) {
	t.Helper()

	records, err := store.Open(filepath.Join(t.TempDir(), "storrent.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = records.Close()
	})

	session := &fakeSession{}
	m := NewManager(func() (engine.Session, error) {
		return session, nil
	}, records, seedRatio)

	return m, session, records
}

func TestAddOpensSessionLazily(t *testing.T) {
	sessionOpens := 0
	session := &fakeSession{}
	m := NewManager(func() (engine.Session, error) {
		sessionOpens++

		return session, nil
	}, nil, 0)

	assert.Equal(t, 0, sessionOpens)

	ctx := context.Background()
	require.NoError(t, m.Add(ctx, "magnet:?xt=urn:btih:a", false))
	require.NoError(t, m.Add(ctx, "magnet:?xt=urn:btih:b", false))

	assert.Equal(t, 1, sessionOpens)
}

func TestAddFailsWhenSessionCannotOpen(t *testing.T) {
	m := NewManager(func() (engine.Session, error) {
		return nil, errors.New("no ports left")
	}, nil, 0)

	assert.Error(t, m.Add(context.Background(), "magnet:?xt=urn:btih:a", false))
}

func TestAddIsIdempotent(t *testing.T) {
	m, session, _ := openTestManager(t, 0)
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, "magnet:?xt=urn:btih:a", false))
	require.NoError(t, m.Add(ctx, "magnet:?xt=urn:btih:a", false))

	assert.Equal(t, 1, session.addMagnetCalls)
	assert.Len(t, m.Tracked(), 1)
}

func TestReAddFlipsAndPersistsPauseState(t *testing.T) {
	m, session, records := openTestManager(t, 0)
	ctx := context.Background()

	require.NoError(t, records.Add(ctx, store.Record{MagnetURI: "magnet:?xt=urn:btih:a"}))
	require.NoError(t, m.Add(ctx, "magnet:?xt=urn:btih:a", false))
	require.NoError(t, m.Add(ctx, "magnet:?xt=urn:btih:a", true))

	assert.Equal(t, 1, session.addMagnetCalls)

	status, ok := m.Status("magnet:?xt=urn:btih:a")
	require.True(t, ok)
	assert.True(t, status.Paused)

	stored, ok, err := records.Get(ctx, "magnet:?xt=urn:btih:a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, stored.IsPaused)
}

func TestAddFileStartsPaused(t *testing.T) {
	m, session, _ := openTestManager(t, 0)
	ctx := context.Background()

	require.NoError(t, m.AddFile(ctx, "magnet:?xt=urn:btih:a", "a.torrent", true))

	assert.Equal(t, 1, session.addFileCalls)

	status, ok := m.Status("magnet:?xt=urn:btih:a")
	require.True(t, ok)
	assert.True(t, status.Paused)
}

func TestRemove(t *testing.T) {
	m, session, _ := openTestManager(t, 0)
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, "magnet:?xt=urn:btih:a", false))
	m.Remove("magnet:?xt=urn:btih:a")

	assert.Equal(t, 1, session.dropped)

	_, ok := m.Status("magnet:?xt=urn:btih:a")
	assert.False(t, ok)

	// Removing twice must not drop twice
	m.Remove("magnet:?xt=urn:btih:a")
	assert.Equal(t, 1, session.dropped)
}

func TestStatusForUnknownMagnetURI(t *testing.T) {
	m, _, _ := openTestManager(t, 0)

	_, ok := m.Status("magnet:?xt=urn:btih:unknown")
	assert.False(t, ok)
}

func TestPauseAndResumePersistToStore(t *testing.T) {
	m, _, records := openTestManager(t, 0)
	ctx := context.Background()

	require.NoError(t, records.Add(ctx, store.Record{MagnetURI: "magnet:?xt=urn:btih:a"}))
	require.NoError(t, m.Add(ctx, "magnet:?xt=urn:btih:a", false))

	m.Pause(ctx, "magnet:?xt=urn:btih:a")

	stored, ok, err := records.Get(ctx, "magnet:?xt=urn:btih:a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, stored.IsPaused)

	m.Resume(ctx, "magnet:?xt=urn:btih:a")

	stored, ok, err = records.Get(ctx, "magnet:?xt=urn:btih:a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, stored.IsPaused)
}

func TestTogglePausePersistsToStore(t *testing.T) {
	m, _, records := openTestManager(t, 0)
	ctx := context.Background()

	require.NoError(t, records.Add(ctx, store.Record{MagnetURI: "magnet:?xt=urn:btih:a"}))
	require.NoError(t, m.Add(ctx, "magnet:?xt=urn:btih:a", false))

	m.TogglePause(ctx, "magnet:?xt=urn:btih:a")
	status, _ := m.Status("magnet:?xt=urn:btih:a")
	assert.True(t, status.Paused)

	stored, _, err := records.Get(ctx, "magnet:?xt=urn:btih:a")
	require.NoError(t, err)
	assert.True(t, stored.IsPaused)

	m.TogglePause(ctx, "magnet:?xt=urn:btih:a")
	status, _ = m.Status("magnet:?xt=urn:btih:a")
	assert.False(t, status.Paused)

	stored, _, err = records.Get(ctx, "magnet:?xt=urn:btih:a")
	require.NoError(t, err)
	assert.False(t, stored.IsPaused)
}

func TestSeedRatioReportsCompleted(t *testing.T) {
	tests := []struct {
		name      string
		seedRatio float64
		status    engine.Status
		want      engine.State
	}{
		{
			name:      "ratio reached while seeding",
			seedRatio: 1.5,
			status:    engine.Status{State: engine.StateSeeding, Downloaded: 100, Uploaded: 200},
			want:      engine.StateCompleted,
		},
		{
			name:      "ratio not yet reached",
			seedRatio: 1.5,
			status:    engine.Status{State: engine.StateSeeding, Downloaded: 100, Uploaded: 100},
			want:      engine.StateSeeding,
		},
		{
			name:      "zero ratio disables the cutoff",
			seedRatio: 0,
			status:    engine.Status{State: engine.StateSeeding, Downloaded: 100, Uploaded: 1000},
			want:      engine.StateSeeding,
		},
		{
			name:      "only applies while seeding",
			seedRatio: 1.5,
			status:    engine.Status{State: engine.StateDownloading, Downloaded: 100, Uploaded: 200},
			want:      engine.StateDownloading,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, session, _ := openTestManager(t, tt.seedRatio)

			require.NoError(t, m.Add(context.Background(), "magnet:?xt=urn:btih:a", false))
			session.lastHandle.status = tt.status

			status, ok := m.Status("magnet:?xt=urn:btih:a")
			require.True(t, ok)
			assert.Equal(t, tt.want, status.State)
		})
	}
}

func TestBackfillMetadataRunsExactlyOnce(t *testing.T) {
	m, session, records := openTestManager(t, 0)
	ctx := context.Background()

	require.NoError(t, records.Add(ctx, store.Record{MagnetURI: "magnet:?xt=urn:btih:a", Title: "placeholder"}))
	require.NoError(t, m.Add(ctx, "magnet:?xt=urn:btih:a", false))

	// Metadata not fetched yet, nothing to backfill
	m.BackfillMetadata(ctx)

	listed, err := records.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "placeholder", listed[0].Title)

	session.lastHandle.hasMetadata = true
	session.lastHandle.name = "Real Title"
	session.lastHandle.length = 840499200

	m.BackfillMetadata(ctx)

	listed, err = records.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "Real Title", listed[0].Title)
	assert.Equal(t, int64(840499200), listed[0].Size)

	// Later engine values must not overwrite the backfilled record
	session.lastHandle.name = "Changed Title"
	m.BackfillMetadata(ctx)

	listed, err = records.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Real Title", listed[0].Title)
}

func TestCloseDropsAllHandles(t *testing.T) {
	m, session, _ := openTestManager(t, 0)
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, "magnet:?xt=urn:btih:a", false))
	require.NoError(t, m.Add(ctx, "magnet:?xt=urn:btih:b", false))

	require.NoError(t, m.Close())

	assert.Equal(t, 2, session.dropped)
	assert.True(t, session.closed)
	assert.Empty(t, m.Tracked())
}

func TestCloseWithoutSessionIsANoOp(t *testing.T) {
	m, session, _ := openTestManager(t, 0)

	require.NoError(t, m.Close())
	assert.False(t, session.closed)
}

func TestLabels(t *testing.T) {
	tests := []struct {
		name      string
		status    engine.Status
		want      string
		wantShort string
	}{
		{name: "downloading", status: engine.Status{State: engine.StateDownloading}, want: "Downloading", wantShort: "DL"},
		{name: "seeding", status: engine.Status{State: engine.StateSeeding}, want: "Seeding", wantShort: "SE"},
		{name: "completed", status: engine.Status{State: engine.StateCompleted}, want: "Completed", wantShort: "CD"},
		{name: "fetching", status: engine.Status{State: engine.StateFetching}, want: "Fetching", wantShort: "FE"},
		{name: "unknown", status: engine.Status{State: engine.StateUnknown}, want: "N/A", wantShort: "N/A"},
		{name: "paused overrides the phase", status: engine.Status{State: engine.StateDownloading, Paused: true}, want: "Paused", wantShort: "PD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Label(tt.status))
			assert.Equal(t, tt.wantShort, ShortLabel(tt.status))
		})
	}
}
