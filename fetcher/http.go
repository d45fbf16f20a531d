package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/scipunch/feedsorter/fetcher/types"
)

const (
	// DefaultTimeout bounds a single remote request
	DefaultTimeout = 10 * time.Second
	// DefaultUserAgent identifies the client to remotes
	DefaultUserAgent = "feedsorter/1.0 (+https://github.com/scipunch/feedsorter)"
	// DefaultMaxBodyBytes caps payloads read into memory
	DefaultMaxBodyBytes = 8 << 20
)

// HTTPOptions is fixed request configuration shared by every fetch
type HTTPOptions struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	HostInterval time.Duration // Minimum spacing of requests to one host, 0 disables
}

// HTTPFetcher performs conditional GET requests
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
	limiter      *hostLimiter
}

// NewHTTPFetcher creates a fetcher, zero option fields fall back to defaults
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	return &HTTPFetcher{
		client:       &http.Client{Timeout: opts.Timeout},
		userAgent:    opts.UserAgent,
		maxBodyBytes: opts.MaxBodyBytes,
		limiter:      newHostLimiter(opts.HostInterval),
	}
}

// Fetch retrieves the resource at url, passing hint as If-Modified-Since / If-None-Match.
// A body larger than the configured cap is a failure, never a partial payload.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, hint *Hint) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.FailedOutcome(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)

	if err := f.limiter.Wait(ctx, url); err != nil {
		return types.FailedOutcome(fmt.Errorf("rate limit wait for '%s': %w", url, err))
	}

	if hint != nil {
		if !hint.LastWrite.IsZero() {
			req.Header.Set("If-Modified-Since", hint.LastWrite.UTC().Format(http.TimeFormat))
		}
		if hint.ETag != "" {
			req.Header.Set("If-None-Match", hint.ETag)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return types.FailedOutcome(fmt.Errorf("failed to fetch '%s': %w", url, err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		slog.Debug("remote not modified", "url", url)
		return Outcome{Status: types.NotModified}
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
		if err != nil {
			return types.FailedOutcome(fmt.Errorf("failed to read response body of '%s': %w", url, err))
		}
		if int64(len(body)) > f.maxBodyBytes {
			return types.FailedOutcome(fmt.Errorf("response body of '%s' exceeds %d bytes", url, f.maxBodyBytes))
		}
		// the tag is kept verbatim, quotes and weak prefix included
		etag := strings.TrimSpace(resp.Header.Get("ETag"))
		return Outcome{Status: types.Modified, Payload: body, ETag: etag}
	default:
		return types.FailedOutcome(fmt.Errorf("unexpected status code %d from '%s'", resp.StatusCode, url))
	}
}
