package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// Caches downloaded documents in a JSON file, so that repeated CLI
// invocations within the TTL don't hit the API again. Documents are
// text (XML or JSON), and stored as such.
type Filesystem struct {
	Path string

	Fetch   func(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error)
	TimeNow func() time.Time

	mutex   sync.Mutex
	records map[string]fsRecord
}

type fsRecord struct {
	Body      string    `json:"body"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewFilesystem(path string) (*Filesystem, error) {
	fs := &Filesystem{
		Path:    path,
		Fetch:   HTTPGet,
		TimeNow: time.Now,
		records: map[string]fsRecord{},
	}

	buf, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(buf, &fs.records); err != nil {
		return nil, fmt.Errorf("unmarshalling %s: %w", path, err)
	}

	return fs, nil
}

func (f *Filesystem) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {

	f.mutex.Lock()
	defer f.mutex.Unlock()

	if options.Cache {
		if record, found := f.records[url]; found && record.ExpiresAt.After(f.TimeNow()) {
			return []byte(record.Body), nil
		}
	}

	body, err := f.Fetch(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}

	if !options.Cache {
		return body, nil
	}

	f.records[url] = fsRecord{
		Body:      string(body),
		ExpiresAt: f.TimeNow().Add(options.CacheTTL).UTC(),
	}

	// Expired records are dropped on write to keep the file small.
	now := f.TimeNow()
	for k, r := range f.records {
		if !r.ExpiresAt.After(now) {
			delete(f.records, k)
		}
	}

	buf, err := json.Marshal(f.records)
	if err != nil {
		return nil, fmt.Errorf("marshalling: %w", err)
	}
	if err := os.WriteFile(f.Path, buf, 0644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", f.Path, err)
	}

	return body, nil
}
