package storage

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"homesrv.dev/dbtimetable/model"
)

type PSQLStorage struct {
	db *sql.DB
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, the database will be cleared on startup. You
// probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if clearDB {
		_, err = db.Exec(`DROP TABLE IF EXISTS snapshot;`)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("clearing db: %w", err)
		}
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS snapshot (
    id UUID NOT NULL,
    station_id TEXT NOT NULL,
    station_name TEXT NOT NULL,
    direction SMALLINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    items JSONB NOT NULL,
    PRIMARY KEY (station_id, direction)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating snapshot table: %w", err)
	}

	return &PSQLStorage{db: db}, nil
}

func (s *PSQLStorage) WriteSnapshot(snapshot *Snapshot) error {
	ensureID(snapshot)

	items, err := encodeItems(snapshot.Items)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
INSERT INTO snapshot (id, station_id, station_name, direction, created_at, items)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (station_id, direction) DO UPDATE SET
    id = EXCLUDED.id,
    station_name = EXCLUDED.station_name,
    created_at = EXCLUDED.created_at,
    items = EXCLUDED.items`,
		snapshot.ID,
		snapshot.StationID,
		snapshot.StationName,
		int(snapshot.Direction),
		snapshot.CreatedAt.UTC(),
		string(items),
	)
	if err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	return nil
}

func (s *PSQLStorage) ReadSnapshot(stationID string, dir model.Direction) (*Snapshot, error) {
	row := s.db.QueryRow(`
SELECT id, station_id, station_name, direction, created_at, items
FROM snapshot
WHERE station_id = $1 AND direction = $2`, stationID, int(dir))

	snapshot, err := scanPSQLSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

func (s *PSQLStorage) ListSnapshots() ([]*Snapshot, error) {
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
		snapshot, err := scanPSQLSnapshot(rows)
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

func (s *PSQLStorage) Close() error {
	return s.db.Close()
}

func scanPSQLSnapshot(row interface{ Scan(...any) error }) (*Snapshot, error) {
	var (
		snapshot  Snapshot
		direction int
		items     []byte
	)

	err := row.Scan(
		&snapshot.ID,
		&snapshot.StationID,
		&snapshot.StationName,
		&direction,
		&snapshot.CreatedAt,
		&items,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning snapshot: %w", err)
	}

	snapshot.Direction = model.Direction(direction)
	snapshot.CreatedAt = snapshot.CreatedAt.UTC()

	snapshot.Items, err = decodeItems(items)
	if err != nil {
		return nil, err
	}

	return &snapshot, nil
}
