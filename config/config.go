package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables overriding the API credentials in the config
// file.
const (
	EnvClientID     = "DBTIMETABLE_CLIENT_ID"
	EnvClientSecret = "DBTIMETABLE_CLIENT_SECRET"
)

type Config struct {
	Timetable   TimetableConfig   `yaml:"timetable"`
	Disruptions DisruptionsConfig `yaml:"disruptions"`
	Storage     StorageConfig     `yaml:"storage"`
	HTML        HTMLConfig        `yaml:"html"`
	Serve       ServeConfig       `yaml:"serve"`
}

type TimetableConfig struct {
	BaseURL          string        `yaml:"base_url" validate:"required,url"`
	ClientID         string        `yaml:"client_id" validate:"required"`
	ClientSecret     string        `yaml:"client_secret" validate:"required"`
	RefreshSchedule  time.Duration `yaml:"refresh_schedule" validate:"gte=0"`
	RefreshChanges   time.Duration `yaml:"refresh_changes" validate:"gte=0"`
	RefreshDirectory time.Duration `yaml:"refresh_directory" validate:"gte=0"`
	Timeout          time.Duration `yaml:"timeout" validate:"gt=0"`
	Stations         []string      `yaml:"stations" validate:"dive,numeric"`

	// DB station list (semicolon separated CSV) to seed the station
	// directory with.
	StationCSV string `yaml:"station_csv"`

	// File caching the station list between runs.
	CacheFile string `yaml:"cache_file"`
}

type DisruptionsConfig struct {
	URL      string        `yaml:"url" validate:"omitempty,url"`
	Refresh  time.Duration `yaml:"refresh" validate:"gte=0"`
	Authors  []string      `yaml:"authors"`
	States   []string      `yaml:"states"`
	WithText bool          `yaml:"with_text"`
}

type StorageConfig struct {
	Backend string `yaml:"backend" validate:"oneof=memory sqlite postgres"`

	// Directory of the sqlite database. Empty keeps it in memory.
	Directory string `yaml:"directory"`

	DSN string `yaml:"dsn" validate:"required_if=Backend postgres"`
}

type HTMLConfig struct {
	Template string `yaml:"template"`
	Output   string `yaml:"output"`
}

type ServeConfig struct {
	Interval time.Duration `yaml:"interval" validate:"gt=0"`
}

func Default() Config {
	return Config{
		Timetable: TimetableConfig{
			BaseURL:          "https://apis.deutschebahn.com/db-api-marketplace/apis/timetables/v1/",
			RefreshSchedule:  120 * time.Second,
			RefreshChanges:   30 * time.Second,
			RefreshDirectory: 24 * time.Hour,
			Timeout:          10 * time.Second,
		},
		Disruptions: DisruptionsConfig{
			Refresh: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
		Serve: ServeConfig{
			Interval: 30 * time.Second,
		},
	}
}

// Candidate config file locations, most specific first.
func DefaultPaths() []string {
	paths := []string{"config.yaml"}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "homesrv", "config.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "homesrv", "config.yaml"))
	}
	return paths
}

// Loads config from the first of paths that exists, or from
// DefaultPaths() if none are given.
func Load(paths ...string) (Config, error) {
	if len(paths) == 0 {
		paths = DefaultPaths()
	}

	for _, p := range paths {
		data, err := os.ReadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return Config{}, fmt.Errorf("reading %s: %w", p, err)
		}

		cfg, err := Parse(data)
		if err != nil {
			return Config{}, fmt.Errorf("loading %s: %w", p, err)
		}
		return cfg, nil
	}

	return Config{}, fmt.Errorf("no config file found (tried %v): %w", paths, os.ErrNotExist)
}

// Parses and validates YAML config. Missing values are taken from
// Default().
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling yaml: %w", err)
	}

	if id := os.Getenv(EnvClientID); id != "" {
		cfg.Timetable.ClientID = id
	}
	if secret := os.Getenv(EnvClientSecret); secret != "" {
		cfg.Timetable.ClientSecret = secret
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validating: %w", err)
	}

	return cfg, nil
}
