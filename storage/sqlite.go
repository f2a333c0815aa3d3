package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"homesrv.dev/dbtimetable/model"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

type SQLiteStorage struct {
	SQLiteConfig

	db *sql.DB
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	onDisk := false
	directory := ""
	if len(cfg) > 0 {
		onDisk = cfg[0].OnDisk
		directory = cfg[0].Directory
	}

	sourceName := ":memory:"
	if onDisk {
		sourceName = directory + "/dbtimetable.db"
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Each connection to :memory: is a database of its own.
	if !onDisk {
		db.SetMaxOpenConns(1)
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS snapshot (
    id TEXT NOT NULL,
    station_id TEXT NOT NULL,
    station_name TEXT NOT NULL,
    direction INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    items TEXT NOT NULL,
PRIMARY KEY (station_id, direction)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating snapshot table: %w", err)
	}

	return &SQLiteStorage{
		SQLiteConfig: SQLiteConfig{
			OnDisk:    onDisk,
			Directory: directory,
		},
		db: db,
	}, nil
}

func (s *SQLiteStorage) WriteSnapshot(snapshot *Snapshot) error {
	ensureID(snapshot)

	items, err := encodeItems(snapshot.Items)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
INSERT INTO snapshot (id, station_id, station_name, direction, created_at, items)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (station_id, direction) DO UPDATE SET
    id = excluded.id,
    station_name = excluded.station_name,
    created_at = excluded.created_at,
    items = excluded.items`,
		snapshot.ID,
		snapshot.StationID,
		snapshot.StationName,
		int(snapshot.Direction),
		snapshot.CreatedAt.UTC().Format(time.RFC3339Nano),
		string(items),
	)
	if err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) ReadSnapshot(stationID string, dir model.Direction) (*Snapshot, error) {
	row := s.db.QueryRow(`
SELECT id, station_id, station_name, direction, created_at, items
FROM snapshot
WHERE station_id = ? AND direction = ?`, stationID, int(dir))

	snapshot, err := scanSQLiteSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

func (s *SQLiteStorage) ListSnapshots() ([]*Snapshot, error) {
	rows, err := s.db.Query(`
SELECT id, station_id, station_name, direction, created_at, items
FROM snapshot
ORDER BY station_id, direction`)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []*Snapshot{}
	for rows.Next() {
		snapshot, err := scanSQLiteSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}

	return snapshots, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func scanSQLiteSnapshot(row interface{ Scan(...any) error }) (*Snapshot, error) {
	var (
		snapshot  Snapshot
		direction int
		createdAt string
		items     string
	)

	err := row.Scan(
		&snapshot.ID,
		&snapshot.StationID,
		&snapshot.StationName,
		&direction,
		&createdAt,
		&items,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning snapshot: %w", err)
	}

	snapshot.Direction = model.Direction(direction)

	snapshot.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}

	snapshot.Items, err = decodeItems([]byte(items))
	if err != nil {
		return nil, err
	}

	return &snapshot, nil
}
