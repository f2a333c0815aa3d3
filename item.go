package dbtimetable

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"homesrv.dev/dbtimetable/model"
)

// Derives the rider facing item for one direction of a consolidated
// train stop. Returns false if the stop has no event in that
// direction, i.e. neither planned nor changed time.
func NewItem(stop *model.TrainStop, dir model.Direction) (model.TimetableItem, bool) {
	ev := &stop.Departure
	if dir == model.DirectionArrival {
		ev = &stop.Arrival
	}

	if ev.Empty() {
		return model.TimetableItem{}, false
	}

	item := model.TimetableItem{
		TrainID: stop.TrainID,
		Train:   trainLabel(stop.Trip, ev.Line),
	}

	if ev.Time != nil {
		item.Time = *ev.Time
	}
	if ev.ChangedTime != nil {
		item.ScheduledTime = item.Time
		item.Time = *ev.ChangedTime
	}

	item.Platform = deref(ev.Platform)
	if ev.ChangedPlatform != nil {
		item.ScheduledPlatform = item.Platform
		item.Platform = *ev.ChangedPlatform
	}

	// Arriving trains are labeled by where they come from, departing
	// ones by where they're headed.
	endpoint := (*model.Event).Destination
	changedEndpoint := (*model.Event).ChangedDestination
	if dir == model.DirectionArrival {
		endpoint = (*model.Event).Origin
		changedEndpoint = (*model.Event).ChangedOrigin
	}
	item.FromTo = endpoint(ev)
	if ev.ChangedPath != nil {
		item.ScheduledFromTo = item.FromTo
		item.FromTo = changedEndpoint(ev)
	}

	item.Path = deref(ev.Path)
	if ev.ChangedPath != nil {
		item.Path = *ev.ChangedPath
	}

	if ev.ChangeStatus != nil {
		item.Status = ev.ChangeStatus.Label()
	}

	item.Message = topMessage(stop.Messages)

	return item, true
}

// Derives items for all stops with an event in direction dir. With a
// non-zero notBefore, departures scheduled (or rescheduled) to leave
// before it are left out.
func NewItems(stops []*model.TrainStop, dir model.Direction, notBefore time.Time) []model.TimetableItem {
	items := []model.TimetableItem{}
	for _, stop := range stops {
		item, ok := NewItem(stop, dir)
		if !ok {
			continue
		}
		if dir == model.DirectionDeparture && !notBefore.IsZero() && item.Time.Before(notBefore) {
			continue
		}
		items = append(items, item)
	}
	return items
}

// Display name of a train. Lines that are bare numbers (S-Bahn "6",
// regional "RB 57" style numbering) get the category prefixed, other
// line names stand on their own. Without a line, category and train
// number are used.
func trainLabel(trip model.TripLabel, line *string) string {
	if line == nil || *line == "" {
		return strings.TrimSpace(trip.Category + " " + trip.TrainNumber)
	}

	r, _ := utf8.DecodeRuneInString(*line)
	if unicode.IsDigit(r) {
		return strings.TrimSpace(trip.Category + " " + *line)
	}

	return *line
}

// Category of the most urgent message. On ties, the first one wins.
func topMessage(messages []model.Message) string {
	if len(messages) == 0 {
		return ""
	}

	top := messages[0]
	for _, m := range messages[1:] {
		if m.Urgency() < top.Urgency() {
			top = m
		}
	}

	return top.Category
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
