package model

import (
	"fmt"
	"strings"
	"time"
)

// Holds all external facing types and constants.

// Separates station names in a path string.
const PathSeparator = "|"

// Priority assumed for messages that don't carry one.
const DefaultMessagePriority = 99

type Direction int

const (
	DirectionDeparture Direction = iota
	DirectionArrival
)

func (d Direction) String() string {
	switch d {
	case DirectionDeparture:
		return "departure"
	case DirectionArrival:
		return "arrival"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "departure", "departures", "dp":
		return DirectionDeparture, nil
	case "arrival", "arrivals", "ar":
		return DirectionArrival, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Change status of an event, as reported by the change feed.
type ChangeStatus string

const (
	ChangeStatusNone      ChangeStatus = ""
	ChangeStatusCancelled ChangeStatus = "c"
	ChangeStatusPlanned   ChangeStatus = "p"
	ChangeStatusAdded     ChangeStatus = "a"
)

// Rider facing label for the status. Unknown codes map to "".
func (cs ChangeStatus) Label() string {
	switch cs {
	case ChangeStatusCancelled:
		return "CANCELLED"
	case ChangeStatusPlanned:
		return "PLANNED"
	case ChangeStatusAdded:
		return "ADDED"
	}
	return ""
}

type Station struct {
	ID    string
	Name  string
	DS100 string
}

// Static descriptive data of a train. Only populated on baseline
// records.
type TripLabel struct {
	Category    string
	Flags       string
	TrainNumber string
	Owner       string
	TripType    string
}

// Arrival or departure of a train at a station.
//
// Every field is optional. Baseline records fill in the planned
// fields, change records the Changed* fields. Once merged, a Changed*
// field is only set if it differs from its planned counterpart.
type Event struct {
	Time     *time.Time
	Platform *string
	Line     *string
	Path     *string

	ChangedTime     *time.Time
	ChangedPlatform *string
	ChangedPath     *string
	ChangeStatus    *ChangeStatus
}

// Reports whether the event carries neither planned nor changed time.
func (e *Event) Empty() bool {
	return e.Time == nil && e.ChangedTime == nil
}

// Stations along the planned path, in order.
func (e *Event) Stops() []string {
	return splitPath(e.Path)
}

// Stations along the changed path, in order. Nil if the path wasn't
// changed.
func (e *Event) ChangedStops() []string {
	return splitPath(e.ChangedPath)
}

// First station of the planned path (the origin of an arriving train).
func (e *Event) Origin() string {
	return first(e.Stops())
}

// Last station of the planned path (the destination of a departing
// train).
func (e *Event) Destination() string {
	return last(e.Stops())
}

func (e *Event) ChangedOrigin() string {
	return first(e.ChangedStops())
}

func (e *Event) ChangedDestination() string {
	return last(e.ChangedStops())
}

func (e Event) Clone() Event {
	return Event{
		Time:            clonePtr(e.Time),
		Platform:        clonePtr(e.Platform),
		Line:            clonePtr(e.Line),
		Path:            clonePtr(e.Path),
		ChangedTime:     clonePtr(e.ChangedTime),
		ChangedPlatform: clonePtr(e.ChangedPlatform),
		ChangedPath:     clonePtr(e.ChangedPath),
		ChangeStatus:    clonePtr(e.ChangeStatus),
	}
}

type Message struct {
	ID        string
	Type      string
	Code      string
	Category  string
	Priority  *int
	Timestamp time.Time
}

// Message priority, lower is more urgent.
func (m Message) Urgency() int {
	if m.Priority == nil {
		return DefaultMessagePriority
	}
	return *m.Priority
}

// One train's arrival and/or departure at one station. Used both for
// baseline (planned) and change records, and for the consolidation of
// the two.
type TrainStop struct {
	TrainID   string
	Trip      TripLabel
	Arrival   Event
	Departure Event
	Messages  []Message
}

// Returns a deep copy.
func (ts *TrainStop) Clone() *TrainStop {
	c := &TrainStop{
		TrainID:   ts.TrainID,
		Trip:      ts.Trip,
		Arrival:   ts.Arrival.Clone(),
		Departure: ts.Departure.Clone(),
	}
	if ts.Messages != nil {
		c.Messages = make([]Message, len(ts.Messages))
		for i, m := range ts.Messages {
			m.Priority = clonePtr(m.Priority)
			c.Messages[i] = m
		}
	}
	return c
}

// Rider facing projection of a consolidated TrainStop, for one
// direction. The Scheduled* fields are only set when the realtime
// value differs from plan.
type TimetableItem struct {
	TrainID           string    `json:"train_id"`
	Train             string    `json:"train"`
	Time              time.Time `json:"time"`
	ScheduledTime     time.Time `json:"scheduled_time"`
	Platform          string    `json:"platform"`
	ScheduledPlatform string    `json:"scheduled_platform,omitempty"`
	FromTo            string    `json:"from_to"`
	ScheduledFromTo   string    `json:"scheduled_from_to,omitempty"`
	Path              string    `json:"path"`
	Status            string    `json:"status,omitempty"`
	Message           string    `json:"message,omitempty"`
}

// Stations along the item's path, in order.
func (ti TimetableItem) Stops() []string {
	return splitPath(&ti.Path)
}

type DisruptionCause struct {
	Category string `json:"category"`
	Label    string `json:"label"`
}

type DisruptionLine struct {
	Name string `json:"name"`
}

type Disruption struct {
	ID            string           `json:"id"`
	Author        string           `json:"author"`
	States        []string         `json:"states"`
	Cause         DisruptionCause  `json:"cause"`
	Lines         []DisruptionLine `json:"lines"`
	DurationBegin string           `json:"durationBegin"`
	DurationEnd   string           `json:"durationEnd"`
	Headline      string           `json:"headline"`
	Text          string           `json:"text,omitempty"`
}

func Ptr[T any](v T) *T {
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func splitPath(path *string) []string {
	if path == nil || *path == "" {
		return nil
	}
	return strings.Split(*path, PathSeparator)
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

func last(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1]
}
