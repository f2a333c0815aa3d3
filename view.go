package dbtimetable

import (
	"fmt"
	"sort"
	"strings"

	"homesrv.dev/dbtimetable/model"
)

type SortField int

const (
	SortByDate SortField = iota
	SortByTrain
	SortByFromTo
	SortByPlatform
)

func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(s) {
	case "date", "time":
		return SortByDate, nil
	case "train":
		return SortByTrain, nil
	case "from_to", "fromto", "destination", "origin":
		return SortByFromTo, nil
	case "platform":
		return SortByPlatform, nil
	}
	return 0, fmt.Errorf("unknown sort field %q", s)
}

type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

// Timetable for one direction at one station.
//
// Views are values: Sort and the filters return a new View, leaving
// the receiver as is.
type View struct {
	Direction model.Direction
	Items     []model.TimetableItem
}

func NewView(dir model.Direction, items []model.TimetableItem) *View {
	return &View{Direction: dir, Items: items}
}

func (v *View) Len() int {
	return len(v.Items)
}

// Stable sort on field.
func (v *View) Sort(field SortField, order SortOrder) *View {
	items := append([]model.TimetableItem{}, v.Items...)

	less := func(a, b model.TimetableItem) bool {
		switch field {
		case SortByTrain:
			return a.Train < b.Train
		case SortByFromTo:
			return a.FromTo < b.FromTo
		case SortByPlatform:
			return a.Platform < b.Platform
		}
		return a.Time.Before(b.Time)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if order == Descending {
			return less(items[j], items[i])
		}
		return less(items[i], items[j])
	})

	return NewView(v.Direction, items)
}

// Keeps only items whose train label is one of trains.
func (v *View) FilterTrain(trains ...string) *View {
	keep := map[string]bool{}
	for _, t := range trains {
		keep[t] = true
	}
	return v.filter(func(item model.TimetableItem) bool {
		return keep[item.Train]
	})
}

// Keeps only items passing through a station containing substring.
// The full path is matched, not just the origin or destination.
func (v *View) FilterDestination(substring string) *View {
	return v.filter(func(item model.TimetableItem) bool {
		return strings.Contains(item.Path, substring)
	})
}

func (v *View) filter(keep func(model.TimetableItem) bool) *View {
	items := []model.TimetableItem{}
	for _, item := range v.Items {
		if keep(item) {
			items = append(items, item)
		}
	}
	return NewView(v.Direction, items)
}

// Renders one line per item:
//
//	14:07 [14:00]: RE 4400 Ulm Hbf, platform 5 [3] - PLANNED ! Bauarbeiten !
//
// Scheduled values are shown in brackets where they differ from the
// current ones. With a non-empty pathFilter, the stations along the
// path that contain pathFilter are appended in parentheses, if any.
func (v *View) Render(pathFilter string) string {
	var sb strings.Builder
	for _, item := range v.Items {
		sb.WriteString(RenderItem(item, pathFilter))
		sb.WriteString("\n")
	}
	return sb.String()
}

// Renders a single item, see View.Render.
func RenderItem(item model.TimetableItem, pathFilter string) string {
	line := fmt.Sprintf(
		"%s: %s %s, platform %s",
		withScheduled(item.Time.Format("15:04"), scheduledClock(item)),
		item.Train,
		withScheduled(item.FromTo, item.ScheduledFromTo),
		withScheduled(item.Platform, item.ScheduledPlatform),
	)

	if item.Status != "" {
		line += " - " + item.Status
	}
	if item.Message != "" {
		line += " ! " + item.Message + " !"
	}

	if pathFilter != "" {
		matches := []string{}
		for _, stop := range item.Stops() {
			if strings.Contains(stop, pathFilter) {
				matches = append(matches, stop)
			}
		}
		if len(matches) > 0 {
			line += " (" + strings.Join(matches, ", ") + ")"
		}
	}

	return line
}

func scheduledClock(item model.TimetableItem) string {
	if item.ScheduledTime.IsZero() {
		return ""
	}
	return item.ScheduledTime.Format("15:04")
}

func withScheduled(current, scheduled string) string {
	if scheduled == "" {
		return current
	}
	return fmt.Sprintf("%s [%s]", current, scheduled)
}
