package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/pikflix/internal/types"
)

type fakeCatalog struct {
	rec     *types.ProviderRecord
	err     error
	lookups []string
}

func (f *fakeCatalog) LookupProviders(_ context.Context, _ int, region string) (*types.ProviderRecord, error) {
	f.lookups = append(f.lookups, region)
	return f.rec, f.err
}

type fakeMetadata struct {
	regions map[string]types.RegionAvailability
	err     error
	calls   int
}

func (f *fakeMetadata) FetchRegions(context.Context, int) (map[string]types.RegionAvailability, error) {
	f.calls++
	return f.regions, f.err
}

type fakePersister struct {
	itemID  int
	regions map[string]types.RegionAvailability
	calls   int
}

func (f *fakePersister) SubmitProviders(_ context.Context, itemID int, regions map[string]types.RegionAvailability) {
	f.calls++
	f.itemID = itemID
	f.regions = regions
}

func provider(name string) types.WatchProvider {
	return types.WatchProvider{ProviderID: len(name), ProviderName: name}
}

func allRegions() map[string]types.RegionAvailability {
	return map[string]types.RegionAvailability{
		"DE": {Link: "https://example.test/de", Flatrate: []types.WatchProvider{provider("Netflix")}},
		"US": {Link: "https://example.test/us", Rent: []types.WatchProvider{provider("Apple TV")}},
		"FR": {Buy: []types.WatchProvider{provider("Canal+")}},
	}
}

func TestLookup_NotCachedFetchesAndPersistsAll(t *testing.T) {
	catalog := &fakeCatalog{}
	meta := &fakeMetadata{regions: allRegions()}
	persister := &fakePersister{}
	s := NewService(catalog, meta, persister, 0)

	resp, err := s.Lookup(context.Background(), types.ProviderRequest{MovieID: 42, Region: "DE"})
	require.NoError(t, err)

	assert.Equal(t, 42, resp.ID)
	assert.Equal(t, map[string]types.RegionAvailability{"DE": allRegions()["DE"]}, resp.Results)
	assert.Equal(t, 1, meta.calls)
	assert.Equal(t, 1, persister.calls)
	assert.Equal(t, 42, persister.itemID)
	assert.Len(t, persister.regions, 3)
}

func TestLookup_FreshRowServedFromCatalog(t *testing.T) {
	now := time.Now()
	catalog := &fakeCatalog{rec: &types.ProviderRecord{
		ItemID:      42,
		Regions:     map[string]types.RegionAvailability{"DE": allRegions()["DE"]},
		LastUpdated: &now,
	}}
	meta := &fakeMetadata{}
	persister := &fakePersister{}
	s := NewService(catalog, meta, persister, time.Hour)

	resp, err := s.Lookup(context.Background(), types.ProviderRequest{MovieID: 42, Region: "de"})
	require.NoError(t, err)

	assert.Equal(t, []string{"DE"}, catalog.lookups)
	assert.Equal(t, allRegions()["DE"], resp.Results["DE"])
	assert.Zero(t, meta.calls)
	assert.Zero(t, persister.calls)
}

func TestLookup_FreshRowWithoutRegion(t *testing.T) {
	now := time.Now()
	catalog := &fakeCatalog{rec: &types.ProviderRecord{ItemID: 42, Regions: map[string]types.RegionAvailability{}, LastUpdated: &now}}
	meta := &fakeMetadata{}
	s := NewService(catalog, meta, &fakePersister{}, time.Hour)

	resp, err := s.Lookup(context.Background(), types.ProviderRequest{MovieID: 42, Region: "JP"})
	require.NoError(t, err)

	assert.Equal(t, map[string]types.RegionAvailability{"JP": {}}, resp.Results)
	assert.Zero(t, meta.calls)
}

func TestLookup_StaleRowRefetched(t *testing.T) {
	old := time.Now().Add(-30 * 24 * time.Hour)
	catalog := &fakeCatalog{rec: &types.ProviderRecord{ItemID: 42, Regions: map[string]types.RegionAvailability{}, LastUpdated: &old}}
	meta := &fakeMetadata{regions: allRegions()}
	persister := &fakePersister{}
	s := NewService(catalog, meta, persister, 0)

	resp, err := s.Lookup(context.Background(), types.ProviderRequest{MovieID: 42, Region: "US"})
	require.NoError(t, err)

	assert.Equal(t, allRegions()["US"], resp.Results["US"])
	assert.Len(t, resp.Results, 1)
	assert.Equal(t, 1, meta.calls)
	assert.Equal(t, 1, persister.calls)
}

func TestLookup_InvalidRequestCallsNothing(t *testing.T) {
	tests := []struct {
		name  string
		req   types.ProviderRequest
		field string
	}{
		{"empty region", types.ProviderRequest{MovieID: 42, Region: ""}, "region"},
		{"blank region", types.ProviderRequest{MovieID: 42, Region: "  "}, "region"},
		{"bad region", types.ProviderRequest{MovieID: 42, Region: "GERMANY"}, "region"},
		{"missing id", types.ProviderRequest{Region: "DE"}, "movie_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := &fakeCatalog{}
			meta := &fakeMetadata{}
			persister := &fakePersister{}
			s := NewService(catalog, meta, persister, 0)

			resp, err := s.Lookup(context.Background(), tt.req)

			assert.Nil(t, resp)
			var ve *types.ErrValidation
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
			assert.Empty(t, catalog.lookups)
			assert.Zero(t, meta.calls)
			assert.Zero(t, persister.calls)
		})
	}
}

func TestLookup_Degrades(t *testing.T) {
	tests := []struct {
		name       string
		catalogErr error
		regions    map[string]types.RegionAvailability
		fetchErr   error
		persisted  int
	}{
		{"fetch error", nil, nil, errors.New("circuit open"), 0},
		{"provider has nothing", nil, nil, nil, 0},
		{"catalog error falls through to fetch", errors.New("pool closed"), allRegions(), nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			persister := &fakePersister{}
			s := NewService(&fakeCatalog{err: tt.catalogErr}, &fakeMetadata{regions: tt.regions, err: tt.fetchErr}, persister, 0)

			resp, err := s.Lookup(context.Background(), types.ProviderRequest{MovieID: 7, Region: "FR"})
			require.NoError(t, err)

			assert.Equal(t, 7, resp.ID)
			assert.Contains(t, resp.Results, "FR")
			assert.Len(t, resp.Results, 1)
			assert.Equal(t, tt.persisted, persister.calls)
		})
	}
}
