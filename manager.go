package dbtimetable

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"homesrv.dev/dbtimetable/model"
)

const (
	DefaultScheduleTTL  = 120 * time.Second
	DefaultChangesTTL   = 30 * time.Second
	DefaultDirectoryTTL = 24 * time.Hour
	DefaultFetchTimeout = 10 * time.Second

	// Departures this far in the past still show up in timetables.
	UpcomingTolerance = time.Minute
)

var (
	ErrUnknownStation        = errors.New("unknown station")
	ErrDirectoryUnavailable  = errors.New("station directory unavailable")
	ErrFetchFailed           = errors.New("fetch failed")
	ErrMalformedUpstreamData = errors.New("malformed upstream data")
)

// Manager keeps timetables for a set of stations up to date.
//
// Stations are added once, after which Refresh (or RefreshAll) is
// called periodically to keep their data current, and Timetable
// builds rider facing views from whatever is cached.
type Manager struct {
	ScheduleTTL  time.Duration
	ChangesTTL   time.Duration
	FetchTimeout time.Duration
	TimeNow      func() time.Time

	Directory *Directory

	client Client

	mutex    sync.RWMutex
	stations map[string]*Station
	order    []string
}

// Creates a Manager fetching data through client. TTLs and timeouts
// can be adjusted before stations are added.
func NewManager(client Client) *Manager {
	return &Manager{
		ScheduleTTL:  DefaultScheduleTTL,
		ChangesTTL:   DefaultChangesTTL,
		FetchTimeout: DefaultFetchTimeout,
		TimeNow:      time.Now,
		Directory:    NewDirectory(client),
		client:       client,
		stations:     map[string]*Station{},
	}
}

// Starts tracking the station with the given ID. The station name is
// looked up in the directory, and ErrUnknownStation returned if it
// isn't there. Adding a station twice returns the existing one.
func (m *Manager) AddStation(id string) (*Station, error) {
	if st, err := m.Station(id); err == nil {
		return st, nil
	}

	// Resolving may hit the network, so it's done without holding the
	// lock.
	info, err := m.Directory.Resolve(id)
	if err != nil {
		return nil, fmt.Errorf("adding station: %w", err)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if st, found := m.stations[id]; found {
		return st, nil
	}

	st := NewStation(m.client, info.ID, info.Name)
	st.ScheduleTTL = m.ScheduleTTL
	st.ChangesTTL = m.ChangesTTL
	st.FetchTimeout = m.FetchTimeout
	st.TimeNow = m.TimeNow

	m.stations[id] = st
	m.order = append(m.order, id)

	return st, nil
}

// Returns a tracked station.
func (m *Manager) Station(id string) (*Station, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	st, found := m.stations[id]
	if !found {
		return nil, fmt.Errorf("%w: %s is not tracked", ErrUnknownStation, id)
	}
	return st, nil
}

// All tracked stations, in the order they were added.
func (m *Manager) Stations() []*Station {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	stations := make([]*Station, 0, len(m.order))
	for _, id := range m.order {
		stations = append(stations, m.stations[id])
	}
	return stations
}

// Finds stations by exact ID, or else by name substring.
func (m *Manager) ResolveStation(idOrName string) ([]model.Station, error) {
	return m.Directory.Find(idOrName)
}

// Refreshes a tracked station for the hour containing at. See
// Station.Refresh.
func (m *Manager) Refresh(id string, at time.Time) error {
	st, err := m.Station(id)
	if err != nil {
		return err
	}
	return st.Refresh(at)
}

// Refreshes all tracked stations in parallel.
func (m *Manager) RefreshAll(at time.Time) error {
	stations := m.Stations()

	errs := make([]error, len(stations))
	wg := sync.WaitGroup{}
	for i, st := range stations {
		wg.Add(1)
		go func(i int, st *Station) {
			defer wg.Done()
			if err := st.Refresh(at); err != nil {
				errs[i] = fmt.Errorf("refreshing %s: %w", st.ID, err)
			}
		}(i, st)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// Builds the timetable of a tracked station, from cached data.
func (m *Manager) Timetable(id string, dir model.Direction) (*View, error) {
	st, err := m.Station(id)
	if err != nil {
		return nil, err
	}
	return st.Timetable(dir), nil
}
