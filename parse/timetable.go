package parse

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/pkg/errors"

	"homesrv.dev/dbtimetable/model"
)

// Layout of timestamps in timetable documents.
const TimeLayout = "0601021504"

// Timezone the timetable API reports times in.
const Timezone = "Europe/Berlin"

type timetableXML struct {
	XMLName xml.Name  `xml:"timetable"`
	Station string    `xml:"station,attr"`
	EVA     string    `xml:"eva,attr"`
	Stops   []stopXML `xml:"s"`
}

type stopXML struct {
	ID        string       `xml:"id,attr"`
	EVA       string       `xml:"eva,attr"`
	TripLabel *tripXML     `xml:"tl"`
	Arrival   *eventXML    `xml:"ar"`
	Departure *eventXML    `xml:"dp"`
	Messages  []messageXML `xml:"m"`
}

type tripXML struct {
	Flags       string `xml:"f,attr"`
	TripType    string `xml:"t,attr"`
	Owner       string `xml:"o,attr"`
	Category    string `xml:"c,attr"`
	TrainNumber string `xml:"n,attr"`
}

// Pointers distinguish absent attributes from empty ones.
type eventXML struct {
	PlannedTime     *string `xml:"pt,attr"`
	PlannedPlatform *string `xml:"pp,attr"`
	Line            *string `xml:"l,attr"`
	PlannedPath     *string `xml:"ppth,attr"`
	ChangedTime     *string `xml:"ct,attr"`
	ChangedPlatform *string `xml:"cp,attr"`
	ChangedPath     *string `xml:"cpth,attr"`
	ChangedStatus   *string `xml:"cs,attr"`
}

type messageXML struct {
	ID        string `xml:"id,attr"`
	Type      string `xml:"t,attr"`
	Code      string `xml:"c,attr"`
	Category  string `xml:"cat,attr"`
	Priority  string `xml:"pr,attr"`
	Timestamp string `xml:"ts,attr"`
}

// Train stops decoded from a timetable document. Both planned
// ("plan") and change ("fchg") documents share this format.
type Timetable struct {
	Station string
	EVA     string
	Stops   []*model.TrainStop

	// Records that could not be decoded, and were left out of
	// Stops.
	Skipped []error
}

// Parses a timetable document. Times are interpreted in loc, or in
// the API's timezone if loc is nil.
//
// Only a document that can't be decoded at all results in an
// error. Broken records are skipped and reported in
// Timetable.Skipped.
func ParseTimetable(buf []byte, loc *time.Location) (*Timetable, error) {
	if loc == nil {
		var err error
		loc, err = time.LoadLocation(Timezone)
		if err != nil {
			return nil, fmt.Errorf("loading timezone: %w", err)
		}
	}

	doc := &timetableXML{}
	if err := xml.Unmarshal(buf, doc); err != nil {
		return nil, fmt.Errorf("unmarshaling timetable xml: %w", err)
	}

	tt := &Timetable{
		Station: doc.Station,
		EVA:     doc.EVA,
		Stops:   []*model.TrainStop{},
	}

	for i, s := range doc.Stops {
		stop, err := parseStop(s, loc)
		if err != nil {
			tt.Skipped = append(tt.Skipped, errors.Wrapf(err, "record %d", i+1))
			continue
		}
		tt.Stops = append(tt.Stops, stop)
	}

	return tt, nil
}

func parseStop(s stopXML, loc *time.Location) (*model.TrainStop, error) {
	if s.ID == "" {
		return nil, fmt.Errorf("missing id")
	}

	stop := &model.TrainStop{TrainID: s.ID}

	if s.TripLabel != nil {
		stop.Trip = model.TripLabel{
			Category:    s.TripLabel.Category,
			Flags:       s.TripLabel.Flags,
			TrainNumber: s.TripLabel.TrainNumber,
			Owner:       s.TripLabel.Owner,
			TripType:    s.TripLabel.TripType,
		}
	}

	var err error
	if s.Arrival != nil {
		stop.Arrival, err = parseEvent(s.Arrival, loc)
		if err != nil {
			return nil, errors.Wrapf(err, "arrival of %s", s.ID)
		}
	}
	if s.Departure != nil {
		stop.Departure, err = parseEvent(s.Departure, loc)
		if err != nil {
			return nil, errors.Wrapf(err, "departure of %s", s.ID)
		}
	}

	for _, m := range s.Messages {
		stop.Messages = append(stop.Messages, parseMessage(m, loc))
	}

	return stop, nil
}

func parseEvent(e *eventXML, loc *time.Location) (model.Event, error) {
	ev := model.Event{
		Platform:        nonEmpty(e.PlannedPlatform),
		Line:            nonEmpty(e.Line),
		Path:            nonEmpty(e.PlannedPath),
		ChangedPlatform: nonEmpty(e.ChangedPlatform),
		ChangedPath:     nonEmpty(e.ChangedPath),
	}

	if pt := nonEmpty(e.PlannedTime); pt != nil {
		t, err := time.ParseInLocation(TimeLayout, *pt, loc)
		if err != nil {
			return ev, errors.Wrapf(err, "parsing pt %q", *pt)
		}
		ev.Time = &t
	}

	if ct := nonEmpty(e.ChangedTime); ct != nil {
		t, err := time.ParseInLocation(TimeLayout, *ct, loc)
		if err != nil {
			return ev, errors.Wrapf(err, "parsing ct %q", *ct)
		}
		ev.ChangedTime = &t
	}

	if cs := nonEmpty(e.ChangedStatus); cs != nil {
		ev.ChangeStatus = model.Ptr(model.ChangeStatus(*cs))
	}

	return ev, nil
}

// A message with a broken priority or timestamp is kept, minus the
// broken field.
func parseMessage(m messageXML, loc *time.Location) model.Message {
	msg := model.Message{
		ID:       m.ID,
		Type:     m.Type,
		Code:     m.Code,
		Category: m.Category,
	}
	if pr, err := strconv.Atoi(strings.TrimSpace(m.Priority)); err == nil {
		msg.Priority = &pr
	}
	if ts, err := time.ParseInLocation(TimeLayout, m.Timestamp, loc); err == nil {
		msg.Timestamp = ts
	}
	return msg
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
