package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"homesrv.dev/dbtimetable"
	"homesrv.dev/dbtimetable/config"
	"homesrv.dev/dbtimetable/disruptions"
	"homesrv.dev/dbtimetable/publisher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Keeps the configured stations' timetables published",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

var once bool

func init() {
	serveCmd.Flags().BoolVarP(&once, "once", "", false, "Publish once and exit")
}

func loadFeed(cfg config.DisruptionsConfig) (*disruptions.Feed, disruptions.Filter, error) {
	filter := disruptions.Filter{
		Authors:  cfg.Authors,
		States:   cfg.States,
		WithText: cfg.WithText,
	}
	if cfg.URL == "" {
		return nil, filter, fmt.Errorf("no disruptions url configured")
	}

	feed := disruptions.NewFeed(cfg.URL)
	feed.TTL = cfg.Refresh

	return feed, filter, nil
}

// Stations that can't be added are logged and skipped. Fails only if
// none could be added.
func addStations(manager *dbtimetable.Manager, ids []string) ([]*dbtimetable.Station, error) {
	stations := []*dbtimetable.Station{}
	for _, id := range ids {
		st, err := manager.AddStation(id)
		if err != nil {
			log.Printf("[ERROR] skipping station %s: %v", id, err)
			continue
		}
		log.Printf("[INFO] tracking %s (%s)", st.Name, st.ID)
		stations = append(stations, st)
	}

	if len(stations) == 0 {
		return nil, fmt.Errorf("none of %d configured stations could be added", len(ids))
	}

	return stations, nil
}

func serve(cmd *cobra.Command, args []string) error {
	dbtimetable.InitLogging()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Timetable.Stations) == 0 {
		return fmt.Errorf("no stations configured")
	}

	manager, err := loadManager(cfg)
	if err != nil {
		return err
	}

	if _, err := addStations(manager, cfg.Timetable.Stations); err != nil {
		return err
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	p := publisher.New(manager, store)
	p.Output = cfg.HTML.Output
	if cfg.HTML.Template != "" {
		p.Template, err = os.ReadFile(cfg.HTML.Template)
		if err != nil {
			return fmt.Errorf("reading template: %w", err)
		}
	}
	if cfg.Disruptions.URL != "" {
		p.Feed, p.Filter, err = loadFeed(cfg.Disruptions)
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if once {
		return p.Publish(ctx, time.Now())
	}

	ticker := time.NewTicker(cfg.Serve.Interval)
	defer ticker.Stop()

	for {
		if err := p.Publish(ctx, time.Now()); err != nil {
			log.Printf("[ERROR] publishing: %v", err)
		}

		select {
		case <-ctx.Done():
			log.Printf("[INFO] shutting down")
			return nil
		case <-ticker.C:
		}
	}
}
