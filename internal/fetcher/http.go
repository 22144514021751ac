// Package fetcher provides the rate-limited HTTP client used for all portal
// requests. It never retries; retry policy lives with the caller.
package fetcher

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/uralstat/realty-cli/internal/resilience"
)

// maxBodyBytes caps how much of a page body is read. Listing pages are well
// under this; anything larger is junk.
const maxBodyBytes = 2 * 1024 * 1024

// Page is the raw fetch payload for one URL. Ephemeral: parsed and discarded,
// never persisted.
type Page struct {
	URL        string
	Body       []byte
	StatusCode int
	FetchedAt  time.Time
}

// Options configures the fetcher.
type Options struct {
	UserAgent      string
	Timeout        time.Duration
	RequestsPerSec float64
}

// Client fetches portal pages with a politeness rate limit and a per-request
// timeout.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// New creates a Client with the given options.
func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 0.5
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (compatible; realty-cli/1.0)"
	}

	return &Client{
		http: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:   rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1),
		userAgent: opts.UserAgent,
	}
}

// Fetch retrieves one URL. Timeouts, connection errors, 408/429, and 5xx
// responses come back wrapped as resilience.TransientError; other non-2xx
// statuses are permanent errors.
func (c *Client) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		// Client-side timeouts and network failures are worth a retry.
		return nil, resilience.NewTransientError(eris.Wrapf(err, "fetcher: get %s", targetURL), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "fetcher: read body"), resp.StatusCode)
	}

	zap.L().Debug("fetched page",
		zap.String("url", targetURL),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := eris.Errorf("fetcher: status %d for %s", resp.StatusCode, targetURL)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	return &Page{
		URL:        targetURL,
		Body:       body,
		StatusCode: resp.StatusCode,
		FetchedAt:  time.Now().UTC(),
	}, nil
}
