package dbapi

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"homesrv.dev/dbtimetable"
	"homesrv.dev/dbtimetable/downloader"
	"homesrv.dev/dbtimetable/model"
	"homesrv.dev/dbtimetable/parse"
)

const (
	DefaultBaseURL     = "https://apis.deutschebahn.com/db-api-marketplace/apis/timetables/v1/"
	DefaultTimeout     = 10 * time.Second
	DefaultMaxSize     = 8 << 20 // 8 MB
	DefaultStationsTTL = 24 * time.Hour
)

// Client for DB's Timetables API.
//
// Requests go through Downloader. Timetables are never cached by the
// client, the station list is cached for StationsTTL if the
// Downloader supports caching.
type Client struct {
	BaseURL      string
	ClientID     string
	ClientSecret string

	Timeout     time.Duration
	MaxSize     int
	StationsTTL time.Duration
	Downloader  downloader.Downloader

	// Timezone of times in responses. Defaults to Europe/Berlin.
	Location *time.Location
}

var _ dbtimetable.Client = (*Client)(nil)

func NewClient(baseURL, clientID, clientSecret string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &Client{
		BaseURL:      baseURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Timeout:      DefaultTimeout,
		MaxSize:      DefaultMaxSize,
		StationsTTL:  DefaultStationsTTL,
		Downloader:   downloader.Direct{},
	}
}

// Planned stops at a station for the hour containing hour. The hour
// is expressed in the API's timezone.
func (c *Client) FetchSchedule(ctx context.Context, stationID string, hour time.Time) ([]*model.TrainStop, error) {
	loc, err := c.location()
	if err != nil {
		return nil, err
	}

	local := hour.In(loc)
	path := fmt.Sprintf("plan/%s/%s/%s", stationID, local.Format("060102"), local.Format("15"))

	return c.fetchTimetable(ctx, path, loc)
}

// All known changes for a station.
func (c *Client) FetchChanges(ctx context.Context, stationID string) ([]*model.TrainStop, error) {
	loc, err := c.location()
	if err != nil {
		return nil, err
	}

	return c.fetchTimetable(ctx, fmt.Sprintf("fchg/%s", stationID), loc)
}

// Every station the API knows about.
func (c *Client) FetchStations(ctx context.Context) ([]model.Station, error) {
	buf, err := c.get(ctx, "station/*", true)
	if err != nil {
		return nil, err
	}

	list, err := parse.ParseStations(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: station/*: %w", dbtimetable.ErrMalformedUpstreamData, err)
	}
	logSkipped("station/*", list.Skipped)

	return list.Stations, nil
}

func (c *Client) fetchTimetable(ctx context.Context, path string, loc *time.Location) ([]*model.TrainStop, error) {
	buf, err := c.get(ctx, path, false)
	if err != nil {
		return nil, err
	}

	tt, err := parse.ParseTimetable(buf, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", dbtimetable.ErrMalformedUpstreamData, path, err)
	}
	logSkipped(path, tt.Skipped)

	return tt.Stops, nil
}

func (c *Client) get(ctx context.Context, path string, cache bool) ([]byte, error) {
	url := c.BaseURL + path

	buf, err := c.Downloader.Get(ctx, url, c.headers(), downloader.GetOptions{
		MaxSize:  c.MaxSize,
		Timeout:  c.Timeout,
		Cache:    cache,
		CacheTTL: c.StationsTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", url, err)
	}

	return buf, nil
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		"DB-Client-Id": c.ClientID,
		"DB-Api-Key":   c.ClientSecret,
		"accept":       "application/xml",
	}
}

func (c *Client) location() (*time.Location, error) {
	if c.Location != nil {
		return c.Location, nil
	}
	loc, err := time.LoadLocation(parse.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}
	return loc, nil
}

func logSkipped(path string, skipped []error) {
	for _, err := range skipped {
		log.Printf("[ERROR] %v: skipping record in %s: %v", dbtimetable.ErrMalformedUpstreamData, path, err)
	}
}
