package server

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/pikflix/internal/availability"
	"github.com/jonathan/pikflix/internal/config"
	"github.com/jonathan/pikflix/internal/logging"
	"github.com/jonathan/pikflix/internal/pipeline"
	"github.com/jonathan/pikflix/internal/types"
)

type fakeRecommender struct {
	mu      sync.Mutex
	resp    *types.RecommendationResponse
	err     error
	items   []types.Recommendation
	queries []string
	ids     []string
}

func (f *fakeRecommender) record(ctx context.Context, query string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.ids = append(f.ids, logging.RequestIDFromContext(ctx))
}

func (f *fakeRecommender) Recommend(ctx context.Context, query string) (*types.RecommendationResponse, error) {
	f.record(ctx, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeRecommender) Stream(ctx context.Context, query string, h pipeline.StreamHandler) error {
	f.record(ctx, query)
	if f.err != nil {
		return f.err
	}
	if err := h.OnInit(query); err != nil {
		return err
	}
	for _, item := range f.items {
		if err := h.OnItem(item); err != nil {
			return err
		}
	}
	return nil
}

type fakeProviderCatalog struct{ calls int }

func (f *fakeProviderCatalog) LookupProviders(context.Context, int, string) (*types.ProviderRecord, error) {
	f.calls++
	return nil, nil
}

type fakeRegions struct {
	regions map[string]types.RegionAvailability
	calls   int
}

func (f *fakeRegions) FetchRegions(context.Context, int) (map[string]types.RegionAvailability, error) {
	f.calls++
	return f.regions, nil
}

type testServer struct {
	*Server
	recommender *fakeRecommender
	catalog     *fakeProviderCatalog
	regions     *fakeRegions
}

func newTestServer(t *testing.T, rl config.RateLimitConfig) *testServer {
	t.Helper()
	rec := &fakeRecommender{}
	catalog := &fakeProviderCatalog{}
	regions := &fakeRegions{regions: map[string]types.RegionAvailability{
		"DE": {Link: "https://example.test/de", Flatrate: []types.WatchProvider{{ProviderID: 8, ProviderName: "Netflix"}}},
		"US": {Link: "https://example.test/us"},
	}}
	s := New(config.Default().Server, rl, Deps{
		Recommender: rec,
		Providers:   availability.NewService(catalog, regions, nil, 0),
	})
	t.Cleanup(s.Close)
	return &testServer{Server: s, recommender: rec, catalog: catalog, regions: regions}
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func rec(id int, title string, rank int) types.Recommendation {
	return types.Recommendation{Movie: types.Movie{ID: id, Title: title}, Reason: "because " + title, Rank: rank}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})

	w := ts.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"status": "ok"}, decodeBody(t, w))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})

	w := ts.do(http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRecommend(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})
	ts.recommender.resp = &types.RecommendationResponse{
		Query:           "heist films",
		Recommendations: []types.Recommendation{rec(949, "Heat", 1), rec(1422, "The Departed", 3)},
	}

	w := ts.do(http.MethodPost, "/api/movies/recommendations", `{"query":"heist films"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp types.RecommendationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "heist films", resp.Query)
	require.Len(t, resp.Recommendations, 2)
	assert.Equal(t, "Heat", resp.Recommendations[0].Title)
	assert.Equal(t, "because Heat", resp.Recommendations[0].Reason)
	assert.Equal(t, 3, resp.Recommendations[1].Rank)
	assert.Equal(t, []string{"heist films"}, ts.recommender.queries)
}

func TestRecommend_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `query=heist`},
		{"empty body", ``},
		{"missing query", `{}`},
		{"blank query", `{"query":"   "}`},
		{"wrong type", `{"query":42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, config.RateLimitConfig{})

			w := ts.do(http.MethodPost, "/api/movies/recommendations", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, decodeBody(t, w)["error"])
			assert.Empty(t, ts.recommender.queries)
		})
	}
}

func TestRecommend_NoRecommendations(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})
	ts.recommender.err = pipeline.ErrNoRecommendations

	w := ts.do(http.MethodPost, "/api/movies/recommendations", `{"query":"x"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, map[string]any{"error": "Failed to get movie recommendations"}, decodeBody(t, w))
}

func TestRecommendStream(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})
	ts.recommender.items = []types.Recommendation{rec(3, "Third", 3), rec(1, "First", 1)}

	w := ts.do(http.MethodPost, "/api/movies/recommendations/stream", `{"query":"space operas"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, NDJSONContentType, w.Header().Get("Content-Type"))

	var frames []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(w.Body.Bytes()))
	for scanner.Scan() {
		var f map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &f), scanner.Text())
		frames = append(frames, f)
	}
	require.Len(t, frames, 3)

	assert.Equal(t, map[string]any{"type": "init", "query": "space operas"}, frames[0])
	assert.Equal(t, "movie", frames[1]["type"])
	data := frames[1]["data"].(map[string]any)
	assert.Equal(t, "Third", data["title"])
	assert.Equal(t, "because Third", data["reason"])
	assert.EqualValues(t, 3, data["rank"])
	assert.EqualValues(t, 1, frames[2]["data"].(map[string]any)["rank"])
}

func TestRecommendStream_EmptySourceIsPlainError(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})
	ts.recommender.err = pipeline.ErrNoRecommendations

	w := ts.do(http.MethodPost, "/api/movies/recommendations/stream", `{"query":"x"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, map[string]any{"error": "Failed to get movie recommendations"}, decodeBody(t, w))
}

func TestRecommendStream_BlankQuery(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})

	w := ts.do(http.MethodPost, "/api/movies/recommendations/stream", `{"query":""}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, ts.recommender.queries)
}

func TestProviders_ReturnsOnlyRequestedRegion(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})

	for _, path := range []string{"/api/providers/", "/api/providers"} {
		w := ts.do(http.MethodPost, path, `{"movie_id":42,"region":"de"}`)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp types.ProviderResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 42, resp.ID)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "Netflix", resp.Results["DE"].Flatrate[0].ProviderName)
	}
}

func TestProviders_MissingRegionRejectedBeforeLookup(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})

	for _, body := range []string{`{"movie_id":42,"region":""}`, `{"movie_id":42}`} {
		w := ts.do(http.MethodPost, "/api/providers/", body)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeBody(t, w)["error"], "region")
	}
	assert.Zero(t, ts.catalog.calls)
	assert.Zero(t, ts.regions.calls)
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})
	ts.recommender.resp = &types.RecommendationResponse{Recommendations: []types.Recommendation{}}

	req := httptest.NewRequest(http.MethodPost, "/api/movies/recommendations", strings.NewReader(`{"query":"x"}`))
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
	assert.Equal(t, []string{"req-123"}, ts.recommender.ids)

	w = ts.do(http.MethodGet, "/health", "")
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})

	req := httptest.NewRequest(http.MethodOptions, "/api/movies/recommendations", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, ts.recommender.queries)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{Enabled: true, DefaultLimit: 100, DefaultWindow: time.Minute})
	ts.recommender.resp = &types.RecommendationResponse{Recommendations: []types.Recommendation{}}

	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		last = ts.do(http.MethodPost, "/api/movies/recommendations", `{"query":"x"}`)
	}

	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "rate_limit_exceeded", decodeBody(t, last)["error"])
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
	assert.Len(t, ts.recommender.queries, 5)

	// Health checks are never limited.
	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health", "").Code)
	}
}
