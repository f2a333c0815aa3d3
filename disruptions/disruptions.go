package disruptions

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"homesrv.dev/dbtimetable/downloader"
	"homesrv.dev/dbtimetable/model"
	"homesrv.dev/dbtimetable/parse"
)

const (
	DefaultTTL     = 5 * time.Minute
	DefaultTimeout = 10 * time.Second
	DefaultMaxSize = 4 << 20 // 4 MB
)

// Cause categories that aren't disruptions as far as riders are
// concerned.
var IgnoredCauses = []string{"additional_service", "other_cause"}

// Selects disruptions of interest. Empty fields match everything.
type Filter struct {
	// Keep only disruptions published by one of these.
	Authors []string

	// Keep only disruptions affecting one of these states. Disruptions
	// without states always match.
	States []string

	// Keep the long description.
	WithText bool
}

// Polls the disruptions feed. Responses are cached by the Downloader
// for TTL, and the last good response is kept when a poll fails.
type Feed struct {
	URL        string
	TTL        time.Duration
	Timeout    time.Duration
	MaxSize    int
	Downloader downloader.Downloader

	mutex       sync.Mutex
	disruptions []model.Disruption
}

func NewFeed(url string) *Feed {
	return &Feed{
		URL:        url,
		TTL:        DefaultTTL,
		Timeout:    DefaultTimeout,
		MaxSize:    DefaultMaxSize,
		Downloader: downloader.NewMemoryDownloader(),
	}
}

// Returns current disruptions matching filter.
//
// If the feed can't be fetched or decoded, the last good data is
// returned along with the error. With no good data, the result is
// empty.
func (f *Feed) Disruptions(ctx context.Context, filter Filter) ([]model.Disruption, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	err := f.refresh(ctx)
	if err != nil {
		log.Printf("[ERROR] %v (keeping %d disruptions)", err, len(f.disruptions))
	}

	return Apply(f.disruptions, filter), err
}

func (f *Feed) refresh(ctx context.Context) error {
	buf, err := f.Downloader.Get(ctx, f.URL, nil, downloader.GetOptions{
		MaxSize:  f.MaxSize,
		Timeout:  f.Timeout,
		Cache:    true,
		CacheTTL: f.TTL,
	})
	if err != nil {
		return fmt.Errorf("requesting disruptions from %s: %w", f.URL, err)
	}

	disruptions, err := parse.ParseDisruptions(buf)
	if err != nil {
		return fmt.Errorf("parsing disruptions from %s: %w", f.URL, err)
	}

	f.disruptions = disruptions

	return nil
}

// Filters disruptions. The input is not modified.
func Apply(disruptions []model.Disruption, filter Filter) []model.Disruption {
	result := []model.Disruption{}
	for _, d := range disruptions {
		if contains(IgnoredCauses, d.Cause.Category) {
			continue
		}
		if len(filter.Authors) > 0 && !contains(filter.Authors, d.Author) {
			continue
		}
		if len(filter.States) > 0 && len(d.States) > 0 && !overlaps(filter.States, d.States) {
			continue
		}
		if !filter.WithText {
			d.Text = ""
		}
		result = append(result, d)
	}
	return result
}

// Renders disruptions as text, one block per disruption:
//
//	---
//	S3, S4
//	Bauarbeiten: 2024-10-18T04:00:00 - 2024-10-21T04:00:00
//	Pasing - Laim: Einschränkungen
func Render(disruptions []model.Disruption, withText bool) string {
	var sb strings.Builder
	for _, d := range disruptions {
		lines := []string{}
		for _, l := range d.Lines {
			lines = append(lines, l.Name)
		}

		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "%s\n", strings.Join(lines, ", "))
		fmt.Fprintf(&sb, "%s: %s - %s\n", d.Cause.Label, d.DurationBegin, d.DurationEnd)
		fmt.Fprintf(&sb, "%s\n", d.Headline)
		if withText && d.Text != "" {
			fmt.Fprintf(&sb, "%s\n", d.Text)
		}
	}
	return sb.String()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func overlaps(a, b []string) bool {
	for _, s := range b {
		if contains(a, s) {
			return true
		}
	}
	return false
}
