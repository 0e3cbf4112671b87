package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pojntfx/storrent/pkg/manager"
	"github.com/pojntfx/storrent/pkg/store"
	"github.com/rs/zerolog/log"
)

// Row is the display-ready state of one tracked torrent.
type Row struct {
	MagnetURI  string
	Title      string
	State      string
	ShortState string
	Progress   float64
	Download   string
	Upload     string
	Seeders    int
	Peers      int

	// JustCompleted is set on the single tick where the torrent first
	// reached the completed state, so the UI can notify once.
	JustCompleted bool
}

// Snapshot is one reconciliation pass over every tracked torrent, plus the
// per-label rollup counters for the summary line.
type Snapshot struct {
	Rows   []Row
	Counts map[string]int
}

// Monitor periodically reconciles live engine state into persisted records
// and publishes snapshots for the UI. It owns nothing it polls; stopping
// the monitor leaves the manager untouched.
type Monitor struct {
	manager *manager.Manager
	records *store.Store

	interval  time.Duration
	snapshots chan Snapshot
}

func NewMonitor(manager *manager.Manager, records *store.Store, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}

	return &Monitor{
		manager: manager,
		records: records,

		interval: interval,
		// Latest-wins: a slow consumer only ever sees the freshest snapshot
		snapshots: make(chan Snapshot, 1),
	}
}

func (m *Monitor) Snapshots() <-chan Snapshot {
	return m.snapshots
}

// Run ticks until the context is canceled. Use a fresh context to resume
// after suspending; the manager and its engine session survive across runs.
func (m *Monitor) Run(ctx context.Context) error {
	tick := time.NewTicker(m.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			m.reconcile(ctx)
		}
	}
}

func (m *Monitor) reconcile(ctx context.Context) {
	m.manager.BackfillMetadata(ctx)

	records, err := m.records.List(ctx)
	if err != nil {
		log.Error().
			Err(err).
			Msg("Could not list torrent records")

		return
	}

	snapshot := Snapshot{
		Rows:   []Row{},
		Counts: map[string]int{},
	}

	for _, record := range records {
		status, ok := m.manager.Status(record.MagnetURI)
		if !ok {
			continue
		}

		label := manager.Label(status)
		snapshot.Counts[label]++

		row := Row{
			MagnetURI:  record.MagnetURI,
			Title:      record.Title,
			State:      label,
			ShortState: manager.ShortLabel(status),
			Progress:   status.Progress,
			Download:   formatRate(status.DownloadRate),
			Upload:     formatRate(status.UploadRate),
			Seeders:    status.Seeders,
			Peers:      status.Peers,
		}

		if label == "Completed" && !record.IsNotified {
			if err := m.records.UpdateNotified(ctx, record.MagnetURI); err != nil {
				log.Error().
					Err(err).
					Str("magnet", record.MagnetURI).
					Msg("Could not mark torrent record as notified")
			} else {
				row.JustCompleted = true
			}
		}

		snapshot.Rows = append(snapshot.Rows, row)
	}

	m.publish(snapshot)
}

// publish never blocks; if the consumer hasn't drained the previous
// snapshot yet it is replaced by the fresh one.
func (m *Monitor) publish(snapshot Snapshot) {
	for {
		select {
		case m.snapshots <- snapshot:
			return
		default:
			select {
			case <-m.snapshots:
			default:
			}
		}
	}
}

func formatRate(bytesPerSecond float64) string {
	if bytesPerSecond < 0 {
		bytesPerSecond = 0
	}

	return fmt.Sprintf("%v/s", humanize.Bytes(uint64(bytesPerSecond)))
}
