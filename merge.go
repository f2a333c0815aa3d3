package dbtimetable

import (
	"homesrv.dev/dbtimetable/model"
)

// Consolidates a baseline schedule with realtime changes.
//
// The result holds one fresh copy of every baseline record, with each
// matching change record (same TrainID) applied on top, in the order
// the changes are listed. Neither input is modified. Change records
// that match no baseline record are left out.
//
// Applying the same changes to the same schedule always produces the
// same result, so consolidation can be repeated any number of times.
func Consolidate(schedule, changes []*model.TrainStop) []*model.TrainStop {
	byTrain := map[string][]*model.TrainStop{}
	for _, c := range changes {
		byTrain[c.TrainID] = append(byTrain[c.TrainID], c)
	}

	consolidated := make([]*model.TrainStop, 0, len(schedule))
	for _, base := range schedule {
		stop := base.Clone()
		for _, change := range byTrain[base.TrainID] {
			applyChange(stop, change)
		}
		consolidated = append(consolidated, stop)
	}

	return consolidated
}

// Applies one change record to stop. Changed fields are only recorded
// when they differ from plan. Messages are replaced wholesale, also
// when the change carries none.
func applyChange(stop, change *model.TrainStop) {
	applyEvent(&stop.Arrival, &change.Arrival)
	applyEvent(&stop.Departure, &change.Departure)

	stop.Messages = change.Clone().Messages
}

func applyEvent(ev, change *model.Event) {
	if ct := change.ChangedTime; ct != nil {
		if ev.Time == nil || !ev.Time.Equal(*ct) {
			ev.ChangedTime = model.Ptr(*ct)
		}
	}

	if cp := change.ChangedPlatform; cp != nil && !equalPtr(ev.Platform, cp) {
		ev.ChangedPlatform = model.Ptr(*cp)
	}

	if cpth := change.ChangedPath; cpth != nil && !equalPtr(ev.Path, cpth) {
		ev.ChangedPath = model.Ptr(*cpth)
	}

	// Status has no planned counterpart.
	if cs := change.ChangeStatus; cs != nil {
		ev.ChangeStatus = model.Ptr(*cs)
	}
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
