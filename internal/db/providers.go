package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/pikflix/internal/types"
)

// GetProviders returns the stored provider data of one region for a movie.
// A stored row without the region yields a record with no regions; no row
// at all yields nil.
func (db *DB) GetProviders(ctx context.Context, movieID int, region string) (*types.ProviderRecord, error) {
	var data []byte
	var lastUpdated *time.Time
	err := db.pool.QueryRow(ctx,
		`SELECT results -> $2::text, last_updated FROM watch_providers WHERE movie_id = $1`,
		movieID, region,
	).Scan(&data, &lastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get providers for movie %d: %w", movieID, err)
	}

	rec := &types.ProviderRecord{
		ItemID:      movieID,
		Regions:     map[string]types.RegionAvailability{},
		LastUpdated: lastUpdated,
	}
	if data != nil {
		var avail types.RegionAvailability
		if err := json.Unmarshal(data, &avail); err != nil {
			return nil, fmt.Errorf("failed to unmarshal providers for movie %d region %s: %w", movieID, region, err)
		}
		rec.Regions[region] = avail
	}
	return rec, nil
}

// MergeProviders stores provider data for the given regions. Regions already
// stored and absent from regions are kept.
func (db *DB) MergeProviders(ctx context.Context, movieID int, regions map[string]types.RegionAvailability, updatedAt time.Time) error {
	if regions == nil {
		regions = map[string]types.RegionAvailability{}
	}
	data, err := json.Marshal(regions)
	if err != nil {
		return fmt.Errorf("failed to marshal providers for movie %d: %w", movieID, err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO watch_providers (movie_id, results, last_updated)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (movie_id) DO UPDATE SET
		     results = watch_providers.results || EXCLUDED.results,
		     last_updated = EXCLUDED.last_updated`,
		movieID, data, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to merge providers for movie %d: %w", movieID, err)
	}
	return nil
}
