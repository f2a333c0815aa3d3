package storage

import (
	"sort"
	"sync"

	"homesrv.dev/dbtimetable/model"
)

// In memory implementation of Storage

type MemoryStorage struct {
	mutex     sync.RWMutex
	Snapshots map[snapshotKey]*Snapshot
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		Snapshots: map[snapshotKey]*Snapshot{},
	}
}

func (s *MemoryStorage) WriteSnapshot(snapshot *Snapshot) error {
	ensureID(snapshot)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Snapshots[snapshotKey{snapshot.StationID, snapshot.Direction}] = copySnapshot(snapshot)
	return nil
}

func (s *MemoryStorage) ReadSnapshot(stationID string, dir model.Direction) (*Snapshot, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	snapshot, found := s.Snapshots[snapshotKey{stationID, dir}]
	if !found {
		return nil, ErrSnapshotNotFound
	}
	return copySnapshot(snapshot), nil
}

func (s *MemoryStorage) ListSnapshots() ([]*Snapshot, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	snapshots := []*Snapshot{}
	for _, snapshot := range s.Snapshots {
		snapshots = append(snapshots, copySnapshot(snapshot))
	}

	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].StationID != snapshots[j].StationID {
			return snapshots[i].StationID < snapshots[j].StationID
		}
		return snapshots[i].Direction < snapshots[j].Direction
	})

	return snapshots, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

func copySnapshot(s *Snapshot) *Snapshot {
	c := *s
	c.Items = append([]model.TimetableItem{}, s.Items...)
	return &c
}
