package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Record is a persisted, user-added torrent. The magnet URI is the primary
// key and immutable after creation.
type Record struct {
	MagnetURI  string
	Title      string
	Size       int64
	Source     string
	IsPaused   bool
	IsNotified bool
}

// Store persists torrent records so downloads can be re-hydrated across
// restarts. Every operation is a single statement and therefore atomic.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if err := migrate(db); err != nil {
		_ = db.Close()

		return nil, err
	}

	return &Store{
		db: db,
	}, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS torrents (
			magnet_uri TEXT PRIMARY KEY,
			title TEXT,
			size INTEGER,
			source TEXT
		)
	`); err != nil {
		return err
	}

	// Additive columns; pre-existing stores created before these existed
	// keep working and read back the defaults.
	for _, column := range []string{
		`ALTER TABLE torrents ADD COLUMN is_paused INTEGER NOT NULL DEFAULT 0`,
		`ALTER TABLE torrents ADD COLUMN is_notified INTEGER NOT NULL DEFAULT 0`,
	} {
		if _, err := db.Exec(column); err != nil {
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}

			return err
		}
	}

	return nil
}

// Add inserts the record, ignoring the insert if a record with the same
// magnet URI already exists; existing fields are never overwritten.
func (s *Store) Add(ctx context.Context, record Record) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO torrents (magnet_uri, title, size, source, is_paused, is_notified)
		VALUES (?, ?, ?, ?, ?, 0)
	`, record.MagnetURI, record.Title, record.Size, record.Source, boolToInt(record.IsPaused)); err != nil {
		return fmt.Errorf("could not add torrent record: %w", err)
	}

	return nil
}

func (s *Store) Remove(ctx context.Context, magnetURI string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM torrents WHERE magnet_uri = ?`, magnetURI); err != nil {
		return fmt.Errorf("could not remove torrent record: %w", err)
	}

	return nil
}

func (s *Store) UpdatePaused(ctx context.Context, magnetURI string, isPaused bool) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE torrents SET is_paused = ? WHERE magnet_uri = ?`, boolToInt(isPaused), magnetURI); err != nil {
		return fmt.Errorf("could not update torrent paused state: %w", err)
	}

	return nil
}

func (s *Store) UpdateMetadata(ctx context.Context, magnetURI string, title string, size int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE torrents SET title = ?, size = ? WHERE magnet_uri = ?`, title, size, magnetURI); err != nil {
		return fmt.Errorf("could not update torrent metadata: %w", err)
	}

	return nil
}

func (s *Store) UpdateNotified(ctx context.Context, magnetURI string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE torrents SET is_notified = 1 WHERE magnet_uri = ?`, magnetURI); err != nil {
		return fmt.Errorf("could not update torrent notified state: %w", err)
	}

	return nil
}

// Get returns the record for the magnet URI; the second return value is
// false when no such record exists.
func (s *Store) Get(ctx context.Context, magnetURI string) (Record, bool, error) {
	var (
		record     Record
		isPaused   int
		isNotified int
	)
	if err := s.db.QueryRowContext(ctx, `
		SELECT magnet_uri, title, size, source, is_paused, is_notified
		FROM torrents
		WHERE magnet_uri = ?
	`, magnetURI).Scan(&record.MagnetURI, &record.Title, &record.Size, &record.Source, &isPaused, &isNotified); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, false, nil
		}

		return Record{}, false, fmt.Errorf("could not get torrent record: %w", err)
	}
	record.IsPaused = isPaused != 0
	record.IsNotified = isNotified != 0

	return record, true, nil
}

func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT magnet_uri, title, size, source, is_paused, is_notified
		FROM torrents
	`)
	if err != nil {
		return nil, fmt.Errorf("could not list torrent records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			record     Record
			isPaused   int
			isNotified int
		)
		if err := rows.Scan(&record.MagnetURI, &record.Title, &record.Size, &record.Source, &isPaused, &isNotified); err != nil {
			return nil, fmt.Errorf("could not scan torrent record: %w", err)
		}
		record.IsPaused = isPaused != 0
		record.IsNotified = isNotified != 0

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate torrent records: %w", err)
	}

	return records, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
