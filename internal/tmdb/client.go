// Package tmdb is the metadata gateway backed by The Movie Database v3 API.
//
// Every call is bearer-authenticated, paced by an outbound token bucket,
// bounded by a per-request timeout and guarded by a circuit breaker. Payloads
// are checked against embedded JSON Schemas before they are decoded.
package tmdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/jonathan/pikflix/internal/logging"
	"github.com/jonathan/pikflix/internal/metrics"
	"github.com/jonathan/pikflix/internal/schemas"
	"github.com/jonathan/pikflix/internal/types"
)

// DefaultBaseURL is the public TMDB v3 endpoint.
const DefaultBaseURL = "https://api.themoviedb.org/3"

// DefaultTimeout bounds a single provider request.
const DefaultTimeout = 10 * time.Second

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

const breakerName = "tmdb"

// errNotFound marks a 404 inside the breaker; it is not a provider failure.
var errNotFound = errors.New("not found")

// Options configures the Client.
type Options struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
	// RequestsPerSecond of zero disables outbound pacing.
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
}

// DefaultOptions returns sensible defaults for the public API.
func DefaultOptions() *Options {
	return &Options{
		BaseURL:           DefaultBaseURL,
		Timeout:           DefaultTimeout,
		RequestsPerSecond: 40,
		Burst:             20,
	}
}

// Client calls the TMDB API.
type Client struct {
	baseURL *url.URL
	token   string
	timeout time.Duration
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// NewClient creates a Client. A nil opts uses DefaultOptions.
func NewClient(opts *Options) (*Client, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid tmdb base url %q", base)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL: u,
		token:   opts.APIToken,
		timeout: timeout,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		breaker: newBreaker(),
	}, nil
}

func newBreaker() *gobreaker.CircuitBreaker[[]byte] {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= 0.6 {
				logging.Warn().Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("tmdb circuit opening")
				return true
			}
			return false
		},
		IsSuccessful: func(err error) bool {
			// not-found and caller cancellation say nothing about provider health
			return err == nil ||
				errors.Is(err, errNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

type searchResponse struct {
	Results []struct {
		ID int `json:"id"`
	} `json:"results"`
}

type providersResponse struct {
	ID      int                                 `json:"id"`
	Results map[string]types.RegionAvailability `json:"results"`
}

// ResolveID searches by title and optional release year and returns the id
// of the top result, or nil when the search is empty.
func (c *Client) ResolveID(ctx context.Context, title string, year *int) (*int, error) {
	q := url.Values{}
	q.Set("query", title)
	q.Set("include_adult", "false")
	if year != nil && *year > 0 {
		q.Set("year", strconv.Itoa(*year))
	}

	body, err := c.get(ctx, "search", "/search/movie", q, schemas.Search)
	if err != nil || body == nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &Error{Op: "search", Message: "failed to decode response", Cause: err}
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	id := resp.Results[0].ID
	return &id, nil
}

// FetchByID returns the full record for id, or nil when the provider has none.
func (c *Client) FetchByID(ctx context.Context, id int) (*types.Movie, error) {
	body, err := c.get(ctx, "details", "/movie/"+strconv.Itoa(id), nil, schemas.Movie)
	if err != nil || body == nil {
		return nil, err
	}

	var m types.Movie
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, &Error{Op: "details", Message: "failed to decode response", Cause: err}
	}
	m.LastUpdated = nil
	return &m, nil
}

// FetchRegions returns the watch provider payload for every region, or nil
// when the provider has no entry for id.
func (c *Client) FetchRegions(ctx context.Context, id int) (map[string]types.RegionAvailability, error) {
	body, err := c.get(ctx, "providers", "/movie/"+strconv.Itoa(id)+"/watch/providers", nil, schemas.WatchProviders)
	if err != nil || body == nil {
		return nil, err
	}

	var resp providersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &Error{Op: "providers", Message: "failed to decode response", Cause: err}
	}
	if resp.Results == nil {
		resp.Results = map[string]types.RegionAvailability{}
	}
	return resp.Results, nil
}

// get performs one GET and returns the validated body. A 404 yields nil, nil.
func (c *Client) get(ctx context.Context, op, path string, query url.Values, schema string) ([]byte, error) {
	start := time.Now()

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, op, path, query)
	})

	switch {
	case errors.Is(err, errNotFound):
		metrics.RecordMetadataCall(op, "not_found", time.Since(start))
		return nil, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordMetadataCall(op, "rejected", time.Since(start))
		return nil, &Error{Op: op, Message: "circuit open", Cause: err}
	case err != nil:
		metrics.RecordMetadataCall(op, "error", time.Since(start))
		return nil, err
	}

	if err := schemas.Validate(schema, body); err != nil {
		metrics.RecordMetadataCall(op, "invalid", time.Since(start))
		return nil, err
	}
	metrics.RecordMetadataCall(op, "ok", time.Since(start))
	return body, nil
}

func (c *Client) do(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Error{Op: op, Message: "rate limiter wait aborted", Cause: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := *c.baseURL
	u.Path += path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &Error{Op: op, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, errNotFound
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{Op: op, Message: "failed to read response body", Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Message: statusMessage(body)}
	}
	return body, nil
}

// statusMessage extracts TMDB's status_message from an error body.
func statusMessage(body []byte) string {
	var e struct {
		StatusMessage string `json:"status_message"`
	}
	if json.Unmarshal(body, &e) == nil && e.StatusMessage != "" {
		return e.StatusMessage
	}
	return "unexpected status"
}
