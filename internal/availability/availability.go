// Package availability answers "where can I watch this" for one movie in
// one region, serving from the catalog when it can.
package availability

import (
	"context"
	"time"

	"github.com/jonathan/pikflix/internal/logging"
	"github.com/jonathan/pikflix/internal/pipeline"
	"github.com/jonathan/pikflix/internal/types"
)

// Catalog is the provider side of the catalog gateway.
type Catalog interface {
	LookupProviders(ctx context.Context, itemID int, region string) (*types.ProviderRecord, error)
}

// Metadata fetches every region's availability for a movie.
type Metadata interface {
	FetchRegions(ctx context.Context, id int) (map[string]types.RegionAvailability, error)
}

// Persister accepts provider data for background persistence.
type Persister interface {
	SubmitProviders(ctx context.Context, itemID int, regions map[string]types.RegionAvailability)
}

// Service looks up watch providers.
type Service struct {
	catalog   Catalog
	metadata  Metadata
	persister Persister
	ttl       time.Duration
	now       func() time.Time
}

// NewService creates a Service. Stored rows older than ttl are refetched.
func NewService(catalog Catalog, metadata Metadata, persister Persister, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = pipeline.DefaultTTL
	}
	return &Service{
		catalog:   catalog,
		metadata:  metadata,
		persister: persister,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Lookup returns the providers for req.MovieID in req.Region. The response
// only ever holds the requested region.
//
// An invalid request fails with *types.ErrValidation before anything else is
// called. Provider failures degrade to an empty region payload.
func (s *Service) Lookup(ctx context.Context, req types.ProviderRequest) (*types.ProviderResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, types.AsValidationError(err)
	}
	log := logging.Ctx(ctx).With().Int("movie_id", req.MovieID).Str("region", req.Region).Logger()

	rec, err := s.catalog.LookupProviders(ctx, req.MovieID, req.Region)
	if err != nil {
		log.Warn().Err(err).Msg("provider lookup failed, fetching")
		rec = nil
	}
	if rec != nil && pipeline.IsFresh(rec.LastUpdated, s.ttl, s.now()) {
		log.Debug().Msg("providers served from catalog")
		return regionResponse(req.MovieID, req.Region, rec.Regions), nil
	}

	regions, err := s.metadata.FetchRegions(ctx, req.MovieID)
	if err != nil {
		log.Warn().Err(err).Msg("provider fetch failed")
		return regionResponse(req.MovieID, req.Region, nil), nil
	}
	if regions == nil {
		log.Info().Msg("no provider data for movie")
		return regionResponse(req.MovieID, req.Region, nil), nil
	}

	if s.persister != nil {
		s.persister.SubmitProviders(ctx, req.MovieID, regions)
	}
	log.Debug().Int("regions", len(regions)).Msg("providers fetched")
	return regionResponse(req.MovieID, req.Region, regions), nil
}

// regionResponse filters regions down to the one requested. A region with no
// data is present with an empty payload.
func regionResponse(id int, region string, regions map[string]types.RegionAvailability) *types.ProviderResponse {
	return &types.ProviderResponse{
		ID:      id,
		Results: map[string]types.RegionAvailability{region: regions[region]},
	}
}
