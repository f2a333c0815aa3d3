package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"homesrv.dev/dbtimetable/model"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// Keeps the latest published timetable per station and direction, for
// consumers that can't query the Manager directly (dashboards, HTML
// pages, other processes).
type Storage interface {
	// Writes a snapshot. Replaces any previous snapshot for the same
	// station and direction. A snapshot without ID is assigned one.
	WriteSnapshot(snapshot *Snapshot) error

	// Retrieves the latest snapshot for a station and direction, or
	// ErrSnapshotNotFound.
	ReadSnapshot(stationID string, dir model.Direction) (*Snapshot, error)

	// Retrieves all snapshots, ordered by station ID and direction.
	ListSnapshots() ([]*Snapshot, error)

	Close() error
}

// A timetable as published at a point in time.
type Snapshot struct {
	ID          string
	StationID   string
	StationName string
	Direction   model.Direction
	CreatedAt   time.Time
	Items       []model.TimetableItem
}

func NewSnapshot(
	stationID string,
	stationName string,
	dir model.Direction,
	createdAt time.Time,
	items []model.TimetableItem,
) *Snapshot {
	return &Snapshot{
		ID:          uuid.NewString(),
		StationID:   stationID,
		StationName: stationName,
		Direction:   dir,
		CreatedAt:   createdAt,
		Items:       items,
	}
}

func ensureID(s *Snapshot) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
}

type snapshotKey struct {
	StationID string
	Direction model.Direction
}

func encodeItems(items []model.TimetableItem) ([]byte, error) {
	if items == nil {
		items = []model.TimetableItem{}
	}
	buf, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshaling items: %w", err)
	}
	return buf, nil
}

func decodeItems(buf []byte) ([]model.TimetableItem, error) {
	items := []model.TimetableItem{}
	if err := json.Unmarshal(buf, &items); err != nil {
		return nil, fmt.Errorf("unmarshaling items: %w", err)
	}
	return items, nil
}
