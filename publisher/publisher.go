package publisher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"homesrv.dev/dbtimetable"
	"homesrv.dev/dbtimetable/disruptions"
	"homesrv.dev/dbtimetable/model"
	"homesrv.dev/dbtimetable/render"
	"homesrv.dev/dbtimetable/storage"
)

const (
	DefaultRetryInterval   = time.Second
	DefaultRetryMaxElapsed = 30 * time.Second
)

// Publishes the timetables of all stations tracked by a Manager.
//
// Each call to Publish refreshes the stations, stores one snapshot
// per station and direction, and renders an HTML page if Output is
// set. Disruptions are included in the page when Feed is set.
type Publisher struct {
	Manager *dbtimetable.Manager
	Storage storage.Storage

	Directions []model.Direction

	Feed   *disruptions.Feed
	Filter disruptions.Filter

	// Page template, see render.HTML. Output is the path of the
	// rendered page, written only if set.
	Template []byte
	Output   string

	// Bounds on retrying a failed snapshot write.
	RetryInterval   time.Duration
	RetryMaxElapsed time.Duration
}

func New(manager *dbtimetable.Manager, store storage.Storage) *Publisher {
	return &Publisher{
		Manager:         manager,
		Storage:         store,
		Directions:      []model.Direction{model.DirectionDeparture, model.DirectionArrival},
		RetryInterval:   DefaultRetryInterval,
		RetryMaxElapsed: DefaultRetryMaxElapsed,
	}
}

// Runs one publish cycle for the hour containing at.
//
// Refresh failures are logged, and whatever is cached gets published
// anyway. The returned error covers storing and rendering only.
func (p *Publisher) Publish(ctx context.Context, at time.Time) error {
	if err := p.Manager.RefreshAll(at); err != nil {
		log.Printf("[ERROR] refresh incomplete, publishing cached data: %v", err)
	}

	errs := []error{}
	timetables := []render.Timetable{}

	for _, st := range p.Manager.Stations() {
		for _, dir := range p.Directions {
			view := st.Timetable(dir)

			snapshot := storage.NewSnapshot(st.ID, st.Name, dir, at, view.Items)
			if err := p.write(ctx, snapshot); err != nil {
				errs = append(errs, fmt.Errorf("storing %s %s: %w", st.ID, dir, err))
			}

			timetables = append(timetables, render.Timetable{
				StationID:   st.ID,
				StationName: st.Name,
				Direction:   dir,
				Items:       view.Items,
			})
		}
	}

	if p.Output != "" {
		page := render.Page{UpdatedAt: at, Timetables: timetables}
		if p.Feed != nil {
			// Feed logs its own failures and keeps the last good data
			page.Disruptions, _ = p.Feed.Disruptions(ctx, p.Filter)
		}

		if err := p.render(page); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		log.Printf("[INFO] published %d timetables", len(timetables))
	}

	return errors.Join(errs...)
}

func (p *Publisher) write(ctx context.Context, snapshot *storage.Snapshot) error {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.RetryInterval,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         p.RetryMaxElapsed,
		MaxElapsedTime:      p.RetryMaxElapsed,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}

	return backoff.RetryNotify(
		func() error {
			return p.Storage.WriteSnapshot(snapshot)
		},
		backoff.WithContext(b, ctx),
		func(err error, d time.Duration) {
			log.Printf("[ERROR] storing %s %s failed, retrying in %s: %v", snapshot.StationID, snapshot.Direction, d, err)
		},
	)
}

func (p *Publisher) render(page render.Page) error {
	html, err := render.HTML(p.Template, page)
	if err != nil {
		return fmt.Errorf("rendering page: %w", err)
	}

	// Written to a temp file first so readers never see a partial page
	tmp, err := os.CreateTemp(filepath.Dir(p.Output), ".timetable-*.html")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(html); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), p.Output); err != nil {
		return fmt.Errorf("renaming to %s: %w", p.Output, err)
	}

	return nil
}
