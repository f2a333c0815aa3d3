package downloader

import (
	"context"
	"sync"
	"time"

	"github.com/bluele/gcache"
)

const memoryCacheSize = 64

// Keeps recent documents in memory, keyed by URL, each for its
// request's CacheTTL. Misses for the same URL share a single fetch.
// Fetches for different URLs run concurrently.
type MemoryDownloader struct {
	docs gcache.Cache

	mutex   sync.Mutex
	pending map[string]*pendingFetch

	// Fetches on cache miss. Defaults to HTTPGet.
	Fetch   func(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error)
	TimeNow func() time.Time
}

type pendingFetch struct {
	done chan struct{}
	data []byte
	err  error
}

// Lets the cache expire entries by TimeNow.
type downloaderClock struct {
	d *MemoryDownloader
}

func (c downloaderClock) Now() time.Time {
	return c.d.TimeNow()
}

func NewMemoryDownloader() *MemoryDownloader {
	d := &MemoryDownloader{
		pending: map[string]*pendingFetch{},
		Fetch:   HTTPGet,
		TimeNow: time.Now,
	}
	d.docs = gcache.New(memoryCacheSize).LRU().Clock(downloaderClock{d}).Build()
	return d
}

func (d *MemoryDownloader) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if !options.Cache {
		return d.Fetch(ctx, url, headers, options)
	}

	if data, err := d.docs.Get(url); err == nil {
		return data.([]byte), nil
	}

	d.mutex.Lock()
	if p, found := d.pending[url]; found {
		d.mutex.Unlock()
		select {
		case <-p.done:
			return p.data, p.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p := &pendingFetch{done: make(chan struct{})}
	d.pending[url] = p
	d.mutex.Unlock()

	p.data, p.err = d.Fetch(ctx, url, headers, options)
	if p.err == nil && options.CacheTTL > 0 {
		d.docs.SetWithExpire(url, p.data, options.CacheTTL)
	}

	d.mutex.Lock()
	delete(d.pending, url)
	d.mutex.Unlock()
	close(p.done)

	return p.data, p.err
}

// Number of unexpired documents held.
func (d *MemoryDownloader) Len() int {
	return d.docs.Len(true)
}

// Drops all cached documents.
func (d *MemoryDownloader) Purge() {
	d.docs.Purge()
}
