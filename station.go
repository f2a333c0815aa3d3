package dbtimetable

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"homesrv.dev/dbtimetable/model"
)

// Cached timetable of a single station.
//
// The station holds the planned schedule for a two hour window, the
// pending changes, and the consolidation of the two. Schedule and
// changes are refreshed independently, each on its own TTL.
//
// Readers never block on a refresh: the consolidated timetable is
// rebuilt off to the side and published in one atomic swap.
type Station struct {
	ID   string
	Name string

	ScheduleTTL  time.Duration
	ChangesTTL   time.Duration
	FetchTimeout time.Duration
	TimeNow      func() time.Time

	client Client

	// Held for the duration of a refresh. Guards everything below,
	// except consolidated.
	mutex           sync.RWMutex
	schedule        []*model.TrainStop
	changes         []*model.TrainStop
	scheduleDate    time.Time
	scheduleRefresh time.Time
	changesRefresh  time.Time

	// Window the consolidated timetable was built for.
	consolidatedDate time.Time

	consolidated atomic.Pointer[[]*model.TrainStop]
}

func NewStation(client Client, id, name string) *Station {
	s := &Station{
		ID:           id,
		Name:         name,
		ScheduleTTL:  DefaultScheduleTTL,
		ChangesTTL:   DefaultChangesTTL,
		FetchTimeout: DefaultFetchTimeout,
		TimeNow:      time.Now,
		client:       client,
	}
	s.consolidated.Store(&[]*model.TrainStop{})
	return s
}

// Brings the station's data up to date for the hour containing at.
//
// A change of hour invalidates everything cached for the previous
// one. Otherwise, schedule and changes are only fetched once their
// TTL has passed. Fetching a new schedule always fetches changes as
// well.
//
// Consolidated is rebuilt after a successful change fetch. If changes
// can't be fetched for a new schedule, the previous consolidated
// timetable is kept when it covers the same hour, and the schedule is
// published without changes otherwise. Changes are never applied to a
// schedule fetched after them.
//
// Fetch failures leave the affected data as it was, to be retried on
// the next call. The returned error joins all failures of this call;
// the station remains usable regardless.
func (s *Station) Refresh(at time.Time) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.TimeNow()
	if at.IsZero() {
		at = now
	}

	window := truncateHour(at)
	if !window.Equal(s.scheduleDate) {
		s.scheduleDate = window
		s.scheduleRefresh = time.Time{}
		s.changesRefresh = time.Time{}
	}

	var errs []error
	newSchedule := false

	if stale(s.scheduleRefresh, s.ScheduleTTL, now) {
		schedule, err := s.fetchSchedule(window)
		if err != nil {
			log.Printf("[ERROR] %v", err)
			errs = append(errs, err)
		} else {
			s.schedule = schedule
			s.scheduleRefresh = now
			newSchedule = true
			// A fresh schedule must be paired with fresh changes.
			s.changesRefresh = time.Time{}
		}
	}

	if stale(s.changesRefresh, s.ChangesTTL, now) {
		changes, err := s.fetchChanges()
		if err != nil {
			log.Printf("[ERROR] %v", err)
			errs = append(errs, err)
			if newSchedule && !s.consolidatedDate.Equal(window) {
				// Changes fetched for another window don't apply, so
				// the new schedule goes out as planned.
				s.publish(window, Consolidate(s.schedule, nil))
			}
		} else {
			s.changes = changes
			s.changesRefresh = now
			s.publish(window, Consolidate(s.schedule, s.changes))
		}
	}

	return errors.Join(errs...)
}

func (s *Station) publish(window time.Time, consolidated []*model.TrainStop) {
	s.consolidatedDate = window
	s.consolidated.Store(&consolidated)
}

func (s *Station) fetchSchedule(window time.Time) ([]*model.TrainStop, error) {
	log.Printf("[INFO] Refreshing schedule of %s (%s) for %s", s.Name, s.ID, window.Format("2006-01-02 15:04"))

	schedule := []*model.TrainStop{}
	seen := map[string]bool{}

	for _, hour := range []time.Time{window, window.Add(time.Hour)} {
		ctx, cancel := context.WithTimeout(context.Background(), s.FetchTimeout)
		stops, err := s.client.FetchSchedule(ctx, s.ID, hour)
		cancel()
		if err != nil {
			return nil, fmt.Errorf(
				"%w: schedule of station %s for %s: %w",
				ErrFetchFailed, s.ID, hour.Format("2006-01-02 15:04"), err,
			)
		}

		for _, stop := range stops {
			if seen[stop.TrainID] {
				continue
			}
			seen[stop.TrainID] = true
			schedule = append(schedule, stop)
		}
	}

	return schedule, nil
}

func (s *Station) fetchChanges() ([]*model.TrainStop, error) {
	log.Printf("[INFO] Refreshing changes of %s (%s)", s.Name, s.ID)

	ctx, cancel := context.WithTimeout(context.Background(), s.FetchTimeout)
	defer cancel()

	changes, err := s.client.FetchChanges(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: changes of station %s: %w", ErrFetchFailed, s.ID, err)
	}

	return changes, nil
}

// Latest consolidated timetable. Must not be modified.
func (s *Station) Consolidated() []*model.TrainStop {
	return *s.consolidated.Load()
}

// Planned train stops of the current window.
func (s *Station) Schedule() []*model.TrainStop {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]*model.TrainStop{}, s.schedule...)
}

// Pending changes, including those for trains outside the current
// window.
func (s *Station) Changes() []*model.TrainStop {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]*model.TrainStop{}, s.changes...)
}

// Start of the hour window currently cached. Zero before the first
// refresh.
func (s *Station) ScheduleDate() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.scheduleDate
}

// Builds the timetable for direction dir from the consolidated data.
// Departures that left more than UpcomingTolerance ago are left out.
// Items are ordered by time.
func (s *Station) Timetable(dir model.Direction) *View {
	notBefore := s.TimeNow().Add(-UpcomingTolerance)
	items := NewItems(s.Consolidated(), dir, notBefore)
	return NewView(dir, items).Sort(SortByDate, Ascending)
}

// Human readable dump of the consolidated timetable, for debugging.
func (s *Station) Dump() string {
	return dumpStops(fmt.Sprintf("%s (%s)", s.Name, s.ID), s.Consolidated())
}

// Human readable dump of the pending changes, for debugging.
func (s *Station) DumpChanges() string {
	return dumpStops(fmt.Sprintf("%s (%s) changes", s.Name, s.ID), s.Changes())
}

func dumpStops(title string, stops []*model.TrainStop) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d records\n", title, len(stops))
	for _, stop := range stops {
		fmt.Fprintf(&sb, "%s\n", stop.TrainID)
		if stop.Trip != (model.TripLabel{}) {
			fmt.Fprintf(&sb, "  trip: %s %s (flags %q, type %q, owner %s)\n",
				stop.Trip.Category, stop.Trip.TrainNumber, stop.Trip.Flags, stop.Trip.TripType, stop.Trip.Owner)
		}
		dumpEvent(&sb, "arrival", &stop.Arrival)
		dumpEvent(&sb, "departure", &stop.Departure)
		for _, m := range stop.Messages {
			fmt.Fprintf(&sb, "  message %s: %s (type %s, priority %d)\n", m.ID, m.Category, m.Type, m.Urgency())
		}
	}
	return sb.String()
}

func dumpEvent(sb *strings.Builder, name string, ev *model.Event) {
	if ev.Empty() && ev.ChangeStatus == nil {
		return
	}
	fmt.Fprintf(sb, "  %s:\n", name)
	if ev.Time != nil {
		fmt.Fprintf(sb, "    time: %s\n", ev.Time.Format("2006-01-02 15:04"))
	}
	if ev.ChangedTime != nil {
		fmt.Fprintf(sb, "    changed time: %s\n", ev.ChangedTime.Format("2006-01-02 15:04"))
	}
	for _, f := range []struct {
		label string
		value *string
	}{
		{"platform", ev.Platform},
		{"changed platform", ev.ChangedPlatform},
		{"line", ev.Line},
		{"path", ev.Path},
		{"changed path", ev.ChangedPath},
	} {
		if f.value != nil {
			fmt.Fprintf(sb, "    %s: %s\n", f.label, *f.value)
		}
	}
	if ev.ChangeStatus != nil {
		fmt.Fprintf(sb, "    status: %s\n", *ev.ChangeStatus)
	}
}

// Start of the hour containing t, in t's location. Computed by
// subtracting rather than with time.Date, which is ambiguous for the
// repeated hour when DST ends.
func truncateHour(t time.Time) time.Time {
	into := time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
	return t.Add(-into)
}
