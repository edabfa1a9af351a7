// Package catalog is the gateway between the recommendation pipeline and the
// catalog store. Writes are best effort: a failed record is logged and
// counted, and never reaches the caller.
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/jonathan/pikflix/internal/logging"
	"github.com/jonathan/pikflix/internal/metrics"
	"github.com/jonathan/pikflix/internal/types"
)

// Store is the persistence surface the gateway needs. *db.DB implements it.
type Store interface {
	FindMovieByTitle(ctx context.Context, title string, year *int) (*types.Movie, error)
	UpsertMovie(ctx context.Context, m *types.Movie) error
	GetProviders(ctx context.Context, movieID int, region string) (*types.ProviderRecord, error)
	MergeProviders(ctx context.Context, movieID int, regions map[string]types.RegionAvailability, updatedAt time.Time) error
}

// Gateway reads and writes catalog records.
type Gateway struct {
	store Store
	now   func() time.Time
}

// New returns a Gateway over store.
func New(store Store) *Gateway {
	return &Gateway{store: store, now: time.Now}
}

// LookupByTitle returns the best stored match for title within the optional
// release year, or nil when nothing matches.
func (g *Gateway) LookupByTitle(ctx context.Context, title string, year *int) (*types.Movie, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil
	}
	m, err := g.store.FindMovieByTitle(ctx, title, year)
	switch {
	case err != nil:
		metrics.CatalogQueries.WithLabelValues("lookup_title", "error").Inc()
		return nil, err
	case m == nil:
		metrics.CatalogQueries.WithLabelValues("lookup_title", "miss").Inc()
	default:
		metrics.CatalogQueries.WithLabelValues("lookup_title", "hit").Inc()
	}
	return m, nil
}

// UpsertRecords writes each record independently. A failed record does not
// stop the remaining ones.
func (g *Gateway) UpsertRecords(ctx context.Context, records []types.Movie) {
	for i := range records {
		if err := g.store.UpsertMovie(ctx, &records[i]); err != nil {
			metrics.CatalogQueries.WithLabelValues("upsert_movie", "error").Inc()
			logging.Ctx(ctx).Warn().Err(err).
				Int("movie_id", records[i].ID).
				Str("title", records[i].Title).
				Msg("failed to persist movie")
			continue
		}
		metrics.CatalogQueries.WithLabelValues("upsert_movie", "ok").Inc()
	}
}

// LookupProviders returns stored provider data for one region.
func (g *Gateway) LookupProviders(ctx context.Context, itemID int, region string) (*types.ProviderRecord, error) {
	rec, err := g.store.GetProviders(ctx, itemID, region)
	switch {
	case err != nil:
		metrics.CatalogQueries.WithLabelValues("lookup_providers", "error").Inc()
		return nil, err
	case rec == nil:
		metrics.CatalogQueries.WithLabelValues("lookup_providers", "miss").Inc()
	default:
		metrics.CatalogQueries.WithLabelValues("lookup_providers", "hit").Inc()
	}
	return rec, nil
}

// UpsertProviders merges regions into the stored provider data.
func (g *Gateway) UpsertProviders(ctx context.Context, itemID int, regions map[string]types.RegionAvailability) {
	if err := g.store.MergeProviders(ctx, itemID, regions, g.now().UTC()); err != nil {
		metrics.CatalogQueries.WithLabelValues("upsert_providers", "error").Inc()
		logging.Ctx(ctx).Warn().Err(err).Int("movie_id", itemID).Msg("failed to persist providers")
		return
	}
	metrics.CatalogQueries.WithLabelValues("upsert_providers", "ok").Inc()
}
