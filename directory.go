package dbtimetable

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/bluele/gcache"

	"homesrv.dev/dbtimetable/model"
)

const (
	searchCacheSize = 256

	// Minimum wait between attempts after a failed refresh.
	DefaultDirectoryRetry = time.Minute
)

// Station directory: maps station IDs (EVA numbers) to names for the
// entire network. The full list is fetched in one go, and refreshed
// as a whole once TTL has passed.
//
// A failed refresh keeps whatever the directory held before. Stale
// names beat no names. Lookups retry a failed refresh at most once
// per RetryInterval.
type Directory struct {
	TTL           time.Duration
	RetryInterval time.Duration
	Timeout       time.Duration
	TimeNow       func() time.Time

	client Client

	mutex       sync.Mutex
	stations    []model.Station
	byID        map[string]model.Station
	refreshedAt time.Time
	failedAt    time.Time

	// Memoized SearchByName results, rebuilt on refresh. Only saves
	// rescanning the list.
	search gcache.Cache
}

func NewDirectory(client Client) *Directory {
	d := &Directory{
		TTL:           DefaultDirectoryTTL,
		RetryInterval: DefaultDirectoryRetry,
		Timeout:       DefaultFetchTimeout,
		TimeNow:       time.Now,
		client:        client,
		byID:          map[string]model.Station{},
	}
	d.resetSearch()
	return d
}

// Loads stations without marking the directory as refreshed. Meant
// for seeding from a local station list, so that lookups work even if
// the first refresh fails. The next successful refresh replaces the
// seeded entries.
func (d *Directory) Seed(stations []model.Station) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.replace(stations)
}

// Fetches the station list, regardless of TTL.
func (d *Directory) Refresh() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.refresh()
}

// Looks up a station by ID. Refreshes the directory first if stale.
func (d *Directory) Resolve(id string) (model.Station, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.refreshIfStale()

	return d.resolve(id)
}

// Finds stations by exact ID, or else by name substring. Refreshes
// the directory first if stale.
func (d *Directory) Find(idOrName string) ([]model.Station, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.refreshIfStale()

	if st, err := d.resolve(idOrName); err == nil {
		return []model.Station{st}, nil
	}

	matches := d.searchByName(idOrName)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no station matches %q", ErrUnknownStation, idOrName)
	}
	return matches, nil
}

func (d *Directory) resolve(id string) (model.Station, error) {
	st, found := d.byID[id]
	if !found {
		return model.Station{}, fmt.Errorf("%w: %s", ErrUnknownStation, id)
	}
	return st, nil
}

// Returns all stations with names containing substring (case
// sensitive), in the order the upstream listed them. Refreshes the
// directory first if stale.
func (d *Directory) SearchByName(substring string) []model.Station {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.refreshIfStale()

	return d.searchByName(substring)
}

func (d *Directory) searchByName(substring string) []model.Station {
	if cached, err := d.search.Get(substring); err == nil {
		return append([]model.Station{}, cached.([]model.Station)...)
	}

	matches := []model.Station{}
	for _, st := range d.stations {
		if strings.Contains(st.Name, substring) {
			matches = append(matches, st)
		}
	}

	d.search.Set(substring, matches)

	return append([]model.Station{}, matches...)
}

// Number of stations known.
func (d *Directory) Len() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.stations)
}

func (d *Directory) refreshIfStale() {
	now := d.TimeNow()
	if !stale(d.refreshedAt, d.TTL, now) {
		return
	}
	if !d.failedAt.IsZero() && now.Sub(d.failedAt) < d.RetryInterval {
		return
	}
	if err := d.refresh(); err != nil {
		log.Printf("[ERROR] %v (keeping %d known stations)", err, len(d.stations))
	}
}

func (d *Directory) refresh() error {
	log.Printf("[INFO] Refreshing station directory")

	ctx, cancel := context.WithTimeout(context.Background(), d.Timeout)
	defer cancel()

	stations, err := d.client.FetchStations(ctx)
	if err == nil && len(stations) == 0 {
		err = fmt.Errorf("empty station list")
	}
	if err != nil {
		d.failedAt = d.TimeNow()
		return fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}

	d.replace(stations)
	d.refreshedAt = d.TimeNow()
	d.failedAt = time.Time{}

	return nil
}

func (d *Directory) replace(stations []model.Station) {
	d.stations = append([]model.Station{}, stations...)
	d.byID = make(map[string]model.Station, len(stations))
	for _, st := range d.stations {
		if _, dup := d.byID[st.ID]; !dup {
			d.byID[st.ID] = st
		}
	}
	d.resetSearch()
}

func (d *Directory) resetSearch() {
	b := gcache.New(searchCacheSize).LRU()
	if d.TTL > 0 {
		b = b.Expiration(d.TTL)
	}
	d.search = b.Build()
}

// Reports whether data last refreshed at refreshedAt has outlived ttl.
// Never refreshed data is always stale.
func stale(refreshedAt time.Time, ttl time.Duration, now time.Time) bool {
	return refreshedAt.IsZero() || now.Sub(refreshedAt) > ttl
}
