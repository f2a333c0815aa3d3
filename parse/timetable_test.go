package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homesrv.dev/dbtimetable/model"
)

func TestParseTimetablePlan(t *testing.T) {
	buf := []byte(`<?xml version='1.0' encoding='UTF-8'?>
<timetable station="München-Pasing">
  <s id="-5366291744960817010-2410181350-5">
    <tl f="N" t="p" o="800725" c="RE" n="4400"/>
    <ar pt="2410181358" pp="3" l="" ppth="München Hbf|München-Laim"/>
    <dp pt="2410181400" pp="3" ppth="Augsburg Hbf|Ulm Hbf"/>
  </s>
  <s id="1234-2410181410-1">
    <tl f="S" t="p" o="800725" c="S" n="6512"/>
    <dp pt="2410181410" pp="7" l="3" ppth="Maisach|Mammendorf"/>
  </s>
</timetable>`)

	tt, err := ParseTimetable(buf, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "München-Pasing", tt.Station)
	assert.Empty(t, tt.Skipped)
	require.Len(t, tt.Stops, 2)

	re := tt.Stops[0]
	assert.Equal(t, "-5366291744960817010-2410181350-5", re.TrainID)
	assert.Equal(t, model.TripLabel{
		Category:    "RE",
		Flags:       "N",
		TrainNumber: "4400",
		Owner:       "800725",
		TripType:    "p",
	}, re.Trip)

	require.NotNil(t, re.Arrival.Time)
	assert.Equal(t, time.Date(2024, 10, 18, 13, 58, 0, 0, time.UTC), *re.Arrival.Time)
	assert.Equal(t, "3", *re.Arrival.Platform)
	assert.Nil(t, re.Arrival.Line, "empty attribute is absent")
	assert.Equal(t, "München Hbf", re.Arrival.Origin())

	require.NotNil(t, re.Departure.Time)
	assert.Equal(t, time.Date(2024, 10, 18, 14, 0, 0, 0, time.UTC), *re.Departure.Time)
	assert.Nil(t, re.Departure.Line)
	assert.Equal(t, "Ulm Hbf", re.Departure.Destination())
	assert.Nil(t, re.Departure.ChangedTime)
	assert.Nil(t, re.Departure.ChangeStatus)

	s := tt.Stops[1]
	assert.True(t, s.Arrival.Empty())
	assert.Equal(t, "3", *s.Departure.Line)
	assert.Equal(t, []string{"Maisach", "Mammendorf"}, s.Departure.Stops())
}

func TestParseTimetableChanges(t *testing.T) {
	buf := []byte(`<timetable station="München-Pasing" eva="8004158">
  <s id="-5366291744960817010-2410181350-5" eva="8004158">
    <m id="r123" t="d" c="43" cat="Verspätung eines vorausfahrenden Zuges" pr="2" ts="2410181340"/>
    <m id="r124" t="h" cat="Bauarbeiten"/>
    <ar ct="2410181405" cp="5"/>
    <dp ct="2410181407" cp="5" cs="p" cpth="Augsburg Hbf|Günzburg|Ulm Hbf"/>
  </s>
</timetable>`)

	tt, err := ParseTimetable(buf, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "8004158", tt.EVA)
	require.Len(t, tt.Stops, 1)

	c := tt.Stops[0]
	assert.Equal(t, model.TripLabel{}, c.Trip)
	assert.Nil(t, c.Arrival.Time)
	assert.Equal(t, time.Date(2024, 10, 18, 14, 5, 0, 0, time.UTC), *c.Arrival.ChangedTime)
	assert.Equal(t, "5", *c.Arrival.ChangedPlatform)
	assert.Nil(t, c.Arrival.ChangeStatus)

	assert.Equal(t, model.ChangeStatusPlanned, *c.Departure.ChangeStatus)
	assert.Equal(t, "Ulm Hbf", c.Departure.ChangedDestination())
	assert.Equal(t, []string{"Augsburg Hbf", "Günzburg", "Ulm Hbf"}, c.Departure.ChangedStops())

	require.Len(t, c.Messages, 2)
	assert.Equal(t, "r123", c.Messages[0].ID)
	assert.Equal(t, "d", c.Messages[0].Type)
	assert.Equal(t, "43", c.Messages[0].Code)
	assert.Equal(t, 2, c.Messages[0].Urgency())
	assert.Equal(t, time.Date(2024, 10, 18, 13, 40, 0, 0, time.UTC), c.Messages[0].Timestamp)
	assert.Nil(t, c.Messages[1].Priority)
	assert.Equal(t, model.DefaultMessagePriority, c.Messages[1].Urgency())
	assert.True(t, c.Messages[1].Timestamp.IsZero())
}

func TestParseTimetableDefaultTimezone(t *testing.T) {
	tt, err := ParseTimetable([]byte(`<timetable><s id="x"><dp pt="2407011200"/></s></timetable>`), nil)
	require.NoError(t, err)
	require.Len(t, tt.Stops, 1)

	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 7, 1, 12, 0, 0, 0, berlin).Equal(*tt.Stops[0].Departure.Time))
	assert.True(t, time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC).Equal(*tt.Stops[0].Departure.Time))
}

func TestParseTimetableSkipsBrokenRecords(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
		ids     []string
		skipped int
		err     bool
	}{
		{
			"empty timetable",
			`<timetable station="X"/>`,
			[]string{},
			0,
			false,
		},
		{
			"missing id",
			`<timetable><s><dp pt="2410181400"/></s><s id="b"><dp pt="2410181400"/></s></timetable>`,
			[]string{"b"},
			1,
			false,
		},
		{
			"bad planned time",
			`<timetable><s id="a"><dp pt="24-10-18"/></s><s id="b"><ar pt="2410181400"/></s></timetable>`,
			[]string{"b"},
			1,
			false,
		},
		{
			"bad changed time",
			`<timetable><s id="a"><ar ct="yesterday"/></s></timetable>`,
			[]string{},
			1,
			false,
		},
		{
			"bad priority keeps record",
			`<timetable><s id="a"><m id="m" pr="high" cat="x"/></s></timetable>`,
			[]string{"a"},
			0,
			false,
		},
		{
			"not xml",
			`{"timetable": []}`,
			nil,
			0,
			true,
		},
		{
			"wrong root element",
			`<stations><station name="x" eva="1"/></stations>`,
			nil,
			0,
			true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tt, err := ParseTimetable([]byte(tc.content), time.UTC)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			ids := []string{}
			for _, s := range tt.Stops {
				ids = append(ids, s.TrainID)
			}
			assert.Equal(t, tc.ids, ids)
			assert.Len(t, tt.Skipped, tc.skipped)
		})
	}
}
