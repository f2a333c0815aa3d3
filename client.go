package dbtimetable

import (
	"context"
	"time"

	"homesrv.dev/dbtimetable/model"
)

// Source of timetable data. Implementations decode the upstream
// payloads, the core only deals in records.
type Client interface {
	// Planned train stops at a station, for the hour containing hour.
	FetchSchedule(ctx context.Context, stationID string, hour time.Time) ([]*model.TrainStop, error)

	// All pending changes for a station.
	FetchChanges(ctx context.Context, stationID string) ([]*model.TrainStop, error)

	// Every station in the network.
	FetchStations(ctx context.Context) ([]model.Station, error)
}
