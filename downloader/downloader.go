package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	resty "gopkg.in/resty.v1"
)

type GetOptions struct {
	MaxSize  int
	Timeout  time.Duration
	Cache    bool
	CacheTTL time.Duration
}

// A thing capable of downloading a document, optionally with caching
type Downloader interface {
	Get(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error)
}

// Error returned for non-200 responses.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d %s", e.URL, e.StatusCode, e.Status)
}

// Gets a document. Doesn't cache. Provided as convenience for
// implementing custom Downloaders.
func HTTPGet(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error) {
	client := resty.New().SetTimeout(options.Timeout)

	resp, err := client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}

	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode(), Status: http.StatusText(resp.StatusCode())}
	}

	var reader io.Reader = body
	if options.MaxSize > 0 {
		reader = io.LimitReader(body, int64(options.MaxSize))
	}

	buf, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	return buf, nil
}

// Downloads without caching.
type Direct struct{}

func (Direct) Get(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error) {
	return HTTPGet(ctx, url, headers, options)
}
