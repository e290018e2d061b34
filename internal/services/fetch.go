// Rate-limited HTTP fetch helper shared by the catalog clients
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunedl/internal/shared"
	"golang.org/x/time/rate"
)

// QuotaSentinel marks a throttled response that still came back with a 2xx status.
const QuotaSentinel = "Quota limit exceeded"

// DefaultQuotaRetryDelay is the fixed wait before the single retry of a throttled request.
const DefaultQuotaRetryDelay = 5 * time.Second

// FetcherOptions configures a [Fetcher].
type FetcherOptions struct {
	BaseURL           string
	Client            *http.Client
	RequestsPerSecond float64
	QuotaRetryDelay   time.Duration
	Header            http.Header
	Logger            *log.Logger

	// TokenURL overrides the OAuth token endpoint for clients that authenticate.
	TokenURL string
}

// APIResponse is a raw response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Decode unmarshals the body into v.
func (r *APIResponse) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Fetcher performs GET requests against one API with a per-client rate limiter and the quota retry convention:
// a 2xx body containing [QuotaSentinel] is retried once after a fixed delay, then surfaced as [shared.ErrRateLimited].
type Fetcher struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retryDelay time.Duration
	header     http.Header
	logger     *log.Logger
}

// NewFetcher creates a fetcher. Zero options fall back to [http.DefaultClient], 10 requests per second and
// [DefaultQuotaRetryDelay].
func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 10
	}
	if opts.QuotaRetryDelay <= 0 {
		opts.QuotaRetryDelay = DefaultQuotaRetryDelay
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}

	return &Fetcher{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		httpClient: opts.Client,
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		retryDelay: opts.QuotaRetryDelay,
		header:     opts.Header.Clone(),
		logger:     opts.Logger,
	}
}

// SetClient swaps the underlying HTTP client, e.g. after re-authentication.
func (f *Fetcher) SetClient(c *http.Client) {
	f.httpClient = c
}

// Client returns the underlying HTTP client.
func (f *Fetcher) Client() *http.Client {
	return f.httpClient
}

func (f *Fetcher) buildURL(endpoint string, query url.Values) string {
	u := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		u = f.baseURL + endpoint
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + query.Encode()
	}
	return u
}

// Get performs a GET against endpoint (relative to the base URL, or absolute) with query parameters.
func (f *Fetcher) Get(ctx context.Context, endpoint string, query url.Values) (*APIResponse, error) {
	fullURL := f.buildURL(endpoint, query)

	for attempt := 0; ; attempt++ {
		resp, err := f.do(ctx, fullURL)
		if err != nil {
			return nil, err
		}

		if !bytes.Contains(resp.Body, []byte(QuotaSentinel)) {
			return resp, nil
		}

		if attempt > 0 {
			return nil, fmt.Errorf("%w: %s", shared.ErrRateLimited, endpoint)
		}

		f.logger.Warn("quota limit exceeded, retrying", "endpoint", endpoint, "delay", f.retryDelay)
		timer := time.NewTimer(f.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// GetJSON performs [Fetcher.Get] and decodes the body into result.
func (f *Fetcher) GetJSON(ctx context.Context, endpoint string, query url.Values, result any) error {
	resp, err := f.Get(ctx, endpoint, query)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	return resp.Decode(result)
}

// do issues one request and classifies the status code.
func (f *Fetcher) do(ctx context.Context, fullURL string) (*APIResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrRateLimited, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range f.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrNetworkFailure, err)
	}

	apiResp := &APIResponse{StatusCode: resp.StatusCode, Headers: resp.Header, Body: body}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return apiResp, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", shared.ErrNotFound, fullURL)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", shared.ErrAuthFailed, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", shared.ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", shared.ErrServiceUnavailable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, resp.StatusCode, truncate(body, 200))
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
