package dbtimetable_test

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homesrv.dev/dbtimetable"
	"homesrv.dev/dbtimetable/model"
	"homesrv.dev/dbtimetable/testutil"
)

const (
	hbf  = "8000261"
	ost  = "8004132"
	augs = "8000013"
)

func managerFixture() (*testutil.FakeClient, *dbtimetable.Manager, *clock) {
	client := testutil.NewFakeClient()
	client.SetStations(
		model.Station{ID: hbf, Name: "München Hbf"},
		model.Station{ID: pasing, Name: "München-Pasing"},
		model.Station{ID: augs, Name: "Augsburg Hbf"},
		model.Station{ID: ost, Name: "München Ost"},
	)

	client.SetSchedule(hbf, at(14, 0),
		testutil.Train("hbf-re", "RE", "4400").Departs(at(14, 0), "3", "München-Pasing|Augsburg Hbf|Ulm Hbf").Build(),
		testutil.Train("hbf-ice", "ICE", "599").Departs(at(14, 20), "20", "Ingolstadt Hbf|Nürnberg Hbf").Build(),
	)
	client.SetChanges(hbf,
		testutil.Change("hbf-re").DepartureChange(model.Event{
			ChangedPlatform: model.Ptr("5"),
			ChangeStatus:    model.Ptr(model.ChangeStatusPlanned),
		}).Build(),
	)

	client.SetSchedule(pasing, at(14, 0),
		testutil.Train("pasing-re", "RE", "4400").
			Arrives(at(14, 7), "3", "München Hbf").
			Departs(at(14, 8), "3", "Augsburg Hbf|Ulm Hbf").
			Build(),
	)

	c := &clock{now: at(14, 0)}

	m := dbtimetable.NewManager(client)
	m.TimeNow = c.Now
	m.Directory.TimeNow = c.Now

	return client, m, c
}

func TestManagerAddStation(t *testing.T) {
	client, m, _ := managerFixture()

	st, err := m.AddStation(hbf)
	require.NoError(t, err)
	assert.Equal(t, hbf, st.ID)
	assert.Equal(t, "München Hbf", st.Name)
	assert.Equal(t, dbtimetable.DefaultScheduleTTL, st.ScheduleTTL)
	assert.Equal(t, dbtimetable.DefaultChangesTTL, st.ChangesTTL)

	again, err := m.AddStation(hbf)
	require.NoError(t, err)
	assert.Same(t, st, again)

	_, err = m.AddStation("0000000")
	assert.True(t, errors.Is(err, dbtimetable.ErrUnknownStation))

	_, err = m.Station("0000000")
	assert.True(t, errors.Is(err, dbtimetable.ErrUnknownStation))

	// Adding doesn't fetch timetables
	schedule, changes := client.Calls()
	assert.Equal(t, 0, schedule)
	assert.Equal(t, 0, changes)
}

func TestManagerKnobsApplyToNewStations(t *testing.T) {
	_, m, _ := managerFixture()
	m.ScheduleTTL = 5 * time.Minute
	m.ChangesTTL = time.Minute
	m.FetchTimeout = 3 * time.Second

	st, err := m.AddStation(pasing)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, st.ScheduleTTL)
	assert.Equal(t, time.Minute, st.ChangesTTL)
	assert.Equal(t, 3*time.Second, st.FetchTimeout)
}

func TestManagerResolveStation(t *testing.T) {
	_, m, _ := managerFixture()

	stations, err := m.ResolveStation(pasing)
	require.NoError(t, err)
	assert.Equal(t, []model.Station{{ID: pasing, Name: "München-Pasing"}}, stations)

	stations, err = m.ResolveStation("München")
	require.NoError(t, err)
	require.Len(t, stations, 3)
	assert.Equal(t, hbf, stations[0].ID)
	assert.Equal(t, pasing, stations[1].ID)
	assert.Equal(t, ost, stations[2].ID)

	_, err = m.ResolveStation("Hamburg")
	assert.True(t, errors.Is(err, dbtimetable.ErrUnknownStation))
}

func TestManagerTimetable(t *testing.T) {
	_, m, _ := managerFixture()

	_, err := m.AddStation(hbf)
	require.NoError(t, err)

	// Before any refresh, the timetable is empty
	v, err := m.Timetable(hbf, model.DirectionDeparture)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Len())

	require.NoError(t, m.Refresh(hbf, at(14, 0)))

	v, err = m.Timetable(hbf, model.DirectionDeparture)
	require.NoError(t, err)
	require.Equal(t, 2, v.Len())

	re := v.Items[0]
	assert.Equal(t, "RE 4400", re.Train)
	assert.Equal(t, "5", re.Platform)
	assert.Equal(t, "3", re.ScheduledPlatform)
	assert.Equal(t, "PLANNED", re.Status)
	assert.Equal(t, "Ulm Hbf", re.FromTo)

	// Transit through Augsburg, even though Ulm is the destination
	via := v.FilterDestination("Augsburg")
	require.Equal(t, 1, via.Len())
	assert.Equal(t, "hbf-re", via.Items[0].TrainID)

	_, err = m.Timetable(augs, model.DirectionDeparture)
	assert.True(t, errors.Is(err, dbtimetable.ErrUnknownStation))

	assert.True(t, errors.Is(m.Refresh(augs, at(14, 0)), dbtimetable.ErrUnknownStation))
}

func TestManagerRefreshAll(t *testing.T) {
	client, m, _ := managerFixture()

	for _, id := range []string{hbf, pasing, ost} {
		_, err := m.AddStation(id)
		require.NoError(t, err)
	}

	ids := []string{}
	for _, st := range m.Stations() {
		ids = append(ids, st.ID)
	}
	assert.Equal(t, []string{hbf, pasing, ost}, ids)

	require.NoError(t, m.RefreshAll(at(14, 0)))

	schedule, changes := client.Calls()
	assert.Equal(t, 6, schedule)
	assert.Equal(t, 3, changes)

	calls := append([]string{}, client.ChangesCalls...)
	sort.Strings(calls)
	assert.Equal(t, []string{hbf, ost, pasing}, calls)

	v, err := m.Timetable(pasing, model.DirectionArrival)
	require.NoError(t, err)
	require.Equal(t, 1, v.Len())
	assert.Equal(t, "München Hbf", v.Items[0].FromTo)
}

func TestManagerRefreshAllReportsFailures(t *testing.T) {
	client, m, _ := managerFixture()

	_, err := m.AddStation(hbf)
	require.NoError(t, err)
	_, err = m.AddStation(pasing)
	require.NoError(t, err)

	client.ChangesErr = errors.New("502 Bad Gateway")

	err = m.RefreshAll(at(14, 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, dbtimetable.ErrFetchFailed))
	assert.Contains(t, err.Error(), "refreshing "+hbf)
	assert.Contains(t, err.Error(), "refreshing "+pasing)

	// Schedules were still loaded
	v, err := m.Timetable(hbf, model.DirectionDeparture)
	require.NoError(t, err)
	require.Equal(t, 2, v.Len())
	assert.Equal(t, "3", v.Items[0].Platform)
	assert.Equal(t, "", v.Items[0].Status)
}

func TestManagerResolveStationUnavailable(t *testing.T) {
	client, m, _ := managerFixture()
	client.StationsErr = errors.New("no route to host")

	_, err := m.ResolveStation("München")
	assert.True(t, errors.Is(err, dbtimetable.ErrUnknownStation))
	assert.Equal(t, 1, client.StationsCalls)
}

// Holds FetchStations until released.
type stallingClient struct {
	*testutil.FakeClient
	entered chan struct{}
	release chan struct{}
}

func (c *stallingClient) FetchStations(ctx context.Context) ([]model.Station, error) {
	c.entered <- struct{}{}
	<-c.release
	return c.FakeClient.FetchStations(ctx)
}

func TestManagerAddStationDoesntBlockReaders(t *testing.T) {
	fake, _, c := managerFixture()
	client := &stallingClient{
		FakeClient: fake,
		entered:    make(chan struct{}, 1),
		release:    make(chan struct{}),
	}
	m := dbtimetable.NewManager(client)
	m.TimeNow = c.Now
	m.Directory.TimeNow = c.Now

	close(client.release)
	_, err := m.AddStation(hbf)
	require.NoError(t, err)
	<-client.entered

	// Directory goes stale, next add waits on upstream
	c.Advance(25 * time.Hour)
	client.release = make(chan struct{})
	added := make(chan *dbtimetable.Station)
	go func() {
		st, _ := m.AddStation(pasing)
		added <- st
	}()
	<-client.entered

	st, err := m.Station(hbf)
	require.NoError(t, err)
	assert.Equal(t, hbf, st.ID)
	assert.Len(t, m.Stations(), 1)

	close(client.release)
	st = <-added
	require.NotNil(t, st)
	assert.Equal(t, pasing, st.ID)
	assert.Len(t, m.Stations(), 2)
}
