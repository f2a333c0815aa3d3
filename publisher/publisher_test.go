package publisher_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homesrv.dev/dbtimetable"
	"homesrv.dev/dbtimetable/disruptions"
	"homesrv.dev/dbtimetable/model"
	"homesrv.dev/dbtimetable/publisher"
	"homesrv.dev/dbtimetable/storage"
	"homesrv.dev/dbtimetable/testutil"
)

const pasing = "8004158"

var errStorageDown = errors.New("storage down")

func at(hh, mm int) time.Time {
	return time.Date(2024, 10, 18, hh, mm, 0, 0, time.UTC)
}

// Fails the given number of writes before passing them on. Negative
// means fail forever.
type flakyStorage struct {
	storage.Storage

	mutex    sync.Mutex
	failures int
	attempts int
}

func (f *flakyStorage) WriteSnapshot(snapshot *storage.Snapshot) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.attempts++
	if f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		return errStorageDown
	}
	return f.Storage.WriteSnapshot(snapshot)
}

func fixture(t *testing.T, store storage.Storage) (*testutil.FakeClient, *publisher.Publisher, *time.Time) {
	client := testutil.NewFakeClient()
	client.SetStations(model.Station{ID: pasing, Name: "München-Pasing"})
	client.SetSchedule(pasing, at(14, 0),
		testutil.Train("re", "RE", "4400").
			Arrives(at(14, 7), "3", "München Hbf").
			Departs(at(14, 8), "3", "Augsburg Hbf|Ulm Hbf").
			Build(),
	)
	client.SetChanges(pasing,
		testutil.Change("re").DepartureChange(model.Event{ChangedPlatform: model.Ptr("5")}).Build(),
	)

	now := at(14, 0)
	m := dbtimetable.NewManager(client)
	m.TimeNow = func() time.Time { return now }
	m.Directory.TimeNow = m.TimeNow

	_, err := m.AddStation(pasing)
	require.NoError(t, err)

	p := publisher.New(m, store)
	p.RetryInterval = time.Millisecond
	p.RetryMaxElapsed = 50 * time.Millisecond

	return client, p, &now
}

func TestPublish(t *testing.T) {
	store := storage.NewMemoryStorage()
	_, p, _ := fixture(t, store)

	require.NoError(t, p.Publish(context.Background(), at(14, 0)))

	dep, err := store.ReadSnapshot(pasing, model.DirectionDeparture)
	require.NoError(t, err)
	assert.Equal(t, "München-Pasing", dep.StationName)
	assert.Equal(t, at(14, 0), dep.CreatedAt)
	require.Len(t, dep.Items, 1)
	assert.Equal(t, "RE 4400", dep.Items[0].Train)
	assert.Equal(t, "5", dep.Items[0].Platform)
	assert.Equal(t, "3", dep.Items[0].ScheduledPlatform)
	assert.Equal(t, "Ulm Hbf", dep.Items[0].FromTo)

	arr, err := store.ReadSnapshot(pasing, model.DirectionArrival)
	require.NoError(t, err)
	require.Len(t, arr.Items, 1)
	assert.Equal(t, "München Hbf", arr.Items[0].FromTo)
	assert.Equal(t, "3", arr.Items[0].Platform)

	snapshots, err := store.ListSnapshots()
	require.NoError(t, err)
	assert.Len(t, snapshots, 2)
}

func TestPublishDirections(t *testing.T) {
	store := storage.NewMemoryStorage()
	_, p, _ := fixture(t, store)
	p.Directions = []model.Direction{model.DirectionDeparture}

	require.NoError(t, p.Publish(context.Background(), at(14, 0)))

	_, err := store.ReadSnapshot(pasing, model.DirectionArrival)
	assert.ErrorIs(t, err, storage.ErrSnapshotNotFound)
}

func TestPublishKeepsCachedDataOnRefreshFailure(t *testing.T) {
	store := storage.NewMemoryStorage()
	client, p, now := fixture(t, store)

	require.NoError(t, p.Publish(context.Background(), at(14, 0)))

	client.ScheduleErr = errors.New("503")
	client.ChangesErr = errors.New("503")
	*now = at(14, 5)

	require.NoError(t, p.Publish(context.Background(), at(14, 5)))

	dep, err := store.ReadSnapshot(pasing, model.DirectionDeparture)
	require.NoError(t, err)
	assert.Equal(t, at(14, 5), dep.CreatedAt)
	require.Len(t, dep.Items, 1)
	assert.Equal(t, "5", dep.Items[0].Platform)
}

func TestPublishRetriesFailedWrites(t *testing.T) {
	store := &flakyStorage{Storage: storage.NewMemoryStorage(), failures: 2}
	_, p, _ := fixture(t, store)

	require.NoError(t, p.Publish(context.Background(), at(14, 0)))

	// 2 failures, then one write per direction
	assert.Equal(t, 4, store.attempts)

	snapshots, err := store.ListSnapshots()
	require.NoError(t, err)
	assert.Len(t, snapshots, 2)
}

func TestPublishGivesUpOnWrites(t *testing.T) {
	store := &flakyStorage{Storage: storage.NewMemoryStorage(), failures: -1}
	_, p, _ := fixture(t, store)

	err := p.Publish(context.Background(), at(14, 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errStorageDown))
	assert.Contains(t, err.Error(), "storing 8004158 departure")
	assert.Contains(t, err.Error(), "storing 8004158 arrival")
	assert.Greater(t, store.attempts, 2)
}

func TestPublishCancelled(t *testing.T) {
	store := &flakyStorage{Storage: storage.NewMemoryStorage(), failures: -1}
	_, p, _ := fixture(t, store)
	p.RetryMaxElapsed = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Publish(ctx, at(14, 0))
	require.Error(t, err)
	assert.Equal(t, 2, store.attempts)
}

func TestPublishHTML(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()
	server.Set("/disruptions.json", []byte(`{"disruptions": [
  {"id": "d1", "author": "S_BAHN_MUC", "cause": {"category": "construction", "label": "Bauarbeiten"},
   "lines": [{"name": "S3"}], "headline": "Pasing - Laim", "text": "Busse"}
]}`))

	dir := t.TempDir()
	_, p, _ := fixture(t, storage.NewMemoryStorage())
	p.Output = filepath.Join(dir, "index.html")
	p.Feed = disruptions.NewFeed(server.URL() + "/disruptions.json")
	p.Filter = disruptions.Filter{Authors: []string{"S_BAHN_MUC"}}

	require.NoError(t, p.Publish(context.Background(), at(14, 0)))

	f, err := os.Open(p.Output)
	require.NoError(t, err)
	defer f.Close()
	doc, err := goquery.NewDocumentFromReader(f)
	require.NoError(t, err)

	assert.Equal(t, "18.10.2024 14:00:00", doc.Find("#updated").Text())
	assert.Equal(t, 1, doc.Find("section.timetable.departure tr.item").Length())
	assert.Equal(t, 1, doc.Find("section.timetable.arrival tr.item").Length())
	assert.Equal(t, "Pasing - Laim", doc.Find("#disruptions h3").Text())
	assert.Equal(t, 0, doc.Find("#disruptions p.text").Length())

	// No temp files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
