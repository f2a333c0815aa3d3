package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"homesrv.dev/dbtimetable"
	"homesrv.dev/dbtimetable/config"
	"homesrv.dev/dbtimetable/dbapi"
	"homesrv.dev/dbtimetable/downloader"
	"homesrv.dev/dbtimetable/model"
	"homesrv.dev/dbtimetable/parse"
	"homesrv.dev/dbtimetable/storage"
)

var rootCmd = &cobra.Command{
	Use:          "dbtimetable",
	Short:        "DB timetable tool",
	Long:         "Fetches, consolidates and publishes Deutsche Bahn station timetables",
	SilenceUsage: true,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./config.yaml, then ~/.config/homesrv/config.yaml)")
	rootCmd.AddCommand(stationsCmd)
	rootCmd.AddCommand(departuresCmd)
	rootCmd.AddCommand(arrivalsCmd)
	rootCmd.AddCommand(disruptionsCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.Load()
}

// Sets up a Manager talking to the DB API as configured. No stations
// are added.
func loadManager(cfg config.Config) (*dbtimetable.Manager, error) {
	tc := cfg.Timetable

	client := dbapi.NewClient(tc.BaseURL, tc.ClientID, tc.ClientSecret)
	client.Timeout = tc.Timeout
	client.StationsTTL = tc.RefreshDirectory

	if tc.CacheFile != "" {
		fs, err := downloader.NewFilesystem(tc.CacheFile)
		if err != nil {
			return nil, fmt.Errorf("creating station cache: %w", err)
		}
		client.Downloader = fs
	}

	manager := dbtimetable.NewManager(client)
	manager.ScheduleTTL = tc.RefreshSchedule
	manager.ChangesTTL = tc.RefreshChanges
	manager.FetchTimeout = tc.Timeout
	manager.Directory.TTL = tc.RefreshDirectory
	manager.Directory.Timeout = tc.Timeout

	if tc.StationCSV != "" {
		stations, err := loadStationCSV(tc.StationCSV)
		if err != nil {
			return nil, err
		}
		manager.Directory.Seed(stations)
	}

	return manager, nil
}

func loadStationCSV(path string) ([]model.Station, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening station list: %w", err)
	}
	defer f.Close()

	list, err := parse.ParseStationsCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return list.Stations, nil
}

// Resolves a station ID or name to a single station.
func resolveStation(manager *dbtimetable.Manager, idOrName string) (model.Station, error) {
	matches, err := manager.ResolveStation(idOrName)
	if err != nil {
		return model.Station{}, err
	}

	if len(matches) > 1 {
		names := []string{}
		for _, st := range matches {
			// An exact name match wins
			if strings.EqualFold(st.Name, idOrName) {
				return st, nil
			}
			names = append(names, fmt.Sprintf("%s (%s)", st.Name, st.ID))
		}
		return model.Station{}, fmt.Errorf("'%s' is ambiguous: %s", idOrName, strings.Join(names, ", "))
	}

	return matches[0], nil
}

func openStorage(cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Backend {
	case "sqlite":
		if cfg.Directory == "" {
			return storage.NewSQLiteStorage()
		}
		return storage.NewSQLiteStorage(storage.SQLiteConfig{OnDisk: true, Directory: cfg.Directory})
	case "postgres":
		return storage.NewPSQLStorage(cfg.DSN, false)
	case "memory", "":
		return storage.NewMemoryStorage(), nil
	}
	return nil, fmt.Errorf("unknown storage backend '%s'", cfg.Backend)
}
