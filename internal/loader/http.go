package loader

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net/http"
	"time"

	"tableflow/internal/records"
)

// HTTPConfig configures remote loading.
//
// Zero values are given sensible defaults:
//   - Timeout:        30s
//   - MaxRetries:     3
//   - InitialBackoff: 200ms
//   - MaxBackoff:     5s
type HTTPConfig struct {
	// Timeout is the per-request timeout applied at the http.Client level.
	Timeout time.Duration

	// MaxRetries is the number of retry attempts after the initial request.
	MaxRetries int

	// InitialBackoff is the delay before the first retry; each further retry
	// doubles it up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// Header is added to every request.
	Header http.Header

	// Transport is an optional custom RoundTripper.
	Transport http.RoundTripper
}

// HTTPFetcher downloads tables with retry and exponential backoff on
// transport errors, 429 and 5xx.
type HTTPFetcher struct {
	client         *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	header         http.Header

	// wait is injectable to make tests fast and deterministic.
	wait func(ctx context.Context, d time.Duration) error
}

// NewHTTPFetcher constructs a fetcher, applying defaults for zero values.
func NewHTTPFetcher(cfg HTTPConfig) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // explicitly configurable
			},
		}
	}
	return &HTTPFetcher{
		client:         &http.Client{Timeout: cfg.Timeout, Transport: transport},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		header:         cfg.Header.Clone(),
		wait:           sleepContext,
	}
}

// Load downloads url and decodes the body. The format comes from opt, then
// the response Content-Type, then the URL extension.
func (h *HTTPFetcher) Load(ctx context.Context, url string, opt Options) (records.Table, error) {
	resp, err := h.get(ctx, url)
	if err != nil {
		return records.Table{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return records.Table{}, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	if opt.Format == "" {
		opt.Format = formatFromContentType(resp.Header.Get("Content-Type"))
	}
	return Decode(url, contextReader{ctx: ctx, r: resp.Body}, opt)
}

// get issues GET with retries. A non-retryable response is returned as is;
// the caller closes its body.
func (h *HTTPFetcher) get(ctx context.Context, url string) (*http.Response, error) {
	attempts := h.maxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		for k, vs := range h.header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := h.client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			if !isRetryableStatus(resp.StatusCode) {
				return resp, nil
			}
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("retryable status %d from GET %s", resp.StatusCode, url)
		}

		if attempt+1 >= attempts {
			break
		}
		if err := h.wait(ctx, backoffDuration(h.initialBackoff, attempt, h.maxBackoff)); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("GET %s: giving up after %d attempts: %w", url, attempts, lastErr)
}

// isRetryableStatus treats 429 and 5xx as transient.
func isRetryableStatus(code int) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// backoffDuration returns initial*2^attempt clamped to max.
func backoffDuration(initial time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt > 30 {
		return max
	}
	d := initial << attempt
	if d > max || d <= 0 {
		return max
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func formatFromContentType(ct string) Format {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	switch mt {
	case "text/csv", "application/csv":
		return FormatCSV
	case "application/json":
		return FormatJSON
	case "application/x-ndjson", "application/jsonl", "application/x-jsonlines":
		return FormatNDJSON
	default:
		return ""
	}
}
